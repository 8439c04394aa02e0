package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/synheart/vitalsynth/internal/models"
)

// CSVEncoder writes a header row followed by one row per reading.
type CSVEncoder struct{}

func NewCSVEncoder() *CSVEncoder {
	return &CSVEncoder{}
}

func (e *CSVEncoder) Encode(readings []models.Reading) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, r := range readings {
		for i, v := range row(r) {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write reading %s: %w", r.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *CSVEncoder) ContentType() string {
	return "text/csv"
}

func (e *CSVEncoder) Extension() string {
	return "csv"
}

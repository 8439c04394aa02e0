// Package export encodes stored readings for download.
package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/synheart/vitalsynth/internal/models"
)

// Format represents the export format
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatProtobuf Format = "protobuf"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatXLSX, FormatProtobuf}

// Encoder encodes a batch of readings to bytes
type Encoder interface {
	Encode(readings []models.Reading) ([]byte, error)
	ContentType() string
	Extension() string
}

// JSONEncoder encodes readings as a JSON array
type JSONEncoder struct{}

func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (e *JSONEncoder) Encode(readings []models.Reading) ([]byte, error) {
	if readings == nil {
		readings = []models.Reading{}
	}
	return json.Marshal(readings)
}

func (e *JSONEncoder) ContentType() string {
	return "application/json"
}

func (e *JSONEncoder) Extension() string {
	return "json"
}

// NewEncoder creates an encoder for the given format. Empty means CSV.
func NewEncoder(format string) (Encoder, error) {
	switch Format(strings.ToLower(format)) {
	case "", FormatCSV:
		return NewCSVEncoder(), nil
	case FormatJSON:
		return NewJSONEncoder(), nil
	case FormatXLSX:
		return NewXLSXEncoder(), nil
	case FormatProtobuf:
		return NewProtobufEncoder(), nil
	}
	return nil, fmt.Errorf("unknown export format %q (expected: json|csv|xlsx|protobuf)", format)
}

// columns is the flat layout shared by the tabular encoders.
var columns = []string{
	"id", "device_id", "received_at",
	"heart_rate", "heart_rate_avg", "spo2", "temperature", "glucose",
	"red", "ir",
	"finger_detected", "heart_rate_valid", "spo2_valid",
}

// row flattens a reading in column order. Missing glucose is an empty cell.
func row(r models.Reading) []interface{} {
	var glucose interface{} = ""
	if r.LastGlucose != nil {
		glucose = *r.LastGlucose
	}
	return []interface{}{
		r.ID, r.DeviceID, r.ReceivedAt.UTC().Format(time.RFC3339Nano),
		r.HeartRate, r.HeartRateAvg, r.SpO2, r.Temperature, glucose,
		r.Red, r.IR,
		r.FingerDetected, r.HeartRateValid, r.SpO2Valid,
	}
}

func formatCell(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprint(v)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/synth"
)

// renderBar draws a bar of width cells with [from, to] (fractions of the width) filled.
func renderBar(from, to float64, width int) string {
	lo := int(from * float64(width))
	hi := int(to*float64(width) + 0.5)
	if lo < 0 {
		lo = 0
	}
	if hi > width {
		hi = width
	}
	if hi <= lo {
		hi = lo + 1
		if hi > width {
			lo, hi = width-1, width
		}
	}
	return strings.Repeat("░", lo) + strings.Repeat("█", hi-lo) + strings.Repeat("░", width-hi)
}

// renderBand positions band inside the envelope scale.
func renderBand(band synth.Band, scale models.Envelope, width int) string {
	span := scale.Max - scale.Min
	if span <= 0 {
		return strings.Repeat("█", width)
	}
	return renderBar((band.Min-scale.Min)/span, (band.Max-scale.Min)/span, width)
}

func formatBand(band synth.Band) string {
	return fmt.Sprintf("%.*f-%.*f", band.Decimals, band.Min, band.Decimals, band.Max)
}

// formatResult renders one ingest result as a single status line.
func formatResult(r *models.IngestResult) string {
	reading := r.Reading
	line := fmt.Sprintf("%s  %-12s HR %3.0f  SpO2 %5.1f  Temp %4.1f  Glucose %5.1f  Score %3d (%s)",
		reading.ReceivedAt.Format("15:04:05"),
		reading.DeviceID,
		reading.HeartRate,
		reading.SpO2,
		reading.Temperature,
		r.Glucose,
		r.Health.Score,
		r.Health.Status,
	)
	if len(r.Health.Reasons) > 0 {
		line += "  " + strings.Join(r.Health.Reasons, ", ")
	}
	return line
}

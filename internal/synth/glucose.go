package synth

import (
	"fmt"
	"strings"

	"github.com/synheart/vitalsynth/internal/models"
)

// GlucoseMode selects one of the two glucose policies.
type GlucoseMode string

const (
	// GlucoseModeHistory walks from the device's last stored glucose and clamps to 70-99.
	GlucoseModeHistory GlucoseMode = "history"
	// GlucoseModeSingleShot is the older ad-hoc estimate: no history, clamped to 70-110.
	GlucoseModeSingleShot GlucoseMode = "single-shot"
)

// ParseGlucoseMode maps a request string to a mode. Empty means history.
func ParseGlucoseMode(s string) (GlucoseMode, error) {
	switch GlucoseMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", GlucoseModeHistory:
		return GlucoseModeHistory, nil
	case GlucoseModeSingleShot:
		return GlucoseModeSingleShot, nil
	}
	return "", fmt.Errorf("unknown glucose mode %q (expected: %s|%s)", s, GlucoseModeHistory, GlucoseModeSingleShot)
}

var (
	historyGlucoseRange    = models.GlucoseEnvelope
	singleShotGlucoseRange = models.Envelope{Min: 70, Max: 110}
)

const (
	singleShotBaseline = 85.0
	singleShotSpread   = 20.0
	glucoseDecimals    = 1
)

// GlucoseInput is the set of vitals the glucose estimate correlates with.
type GlucoseInput struct {
	HeartRate    float64
	HeartRateAvg float64
	SpO2         float64
	Temperature  float64
}

// correlation nudges glucose in one direction when a vital crosses a threshold.
type correlation struct {
	applies   func(in GlucoseInput) bool
	amplitude float64
	sign      float64
}

// correlations are evaluated in order; each triggered rule takes its own draw.
var correlations = []correlation{
	{applies: func(in GlucoseInput) bool { return in.HeartRate > 85 }, amplitude: 2, sign: 1},
	{applies: func(in GlucoseInput) bool { return in.HeartRate < 65 }, amplitude: 2, sign: -1},
	{applies: func(in GlucoseInput) bool { return in.Temperature > 37.0 }, amplitude: 1.5, sign: 1},
	{applies: func(in GlucoseInput) bool { return in.Temperature < 36.5 }, amplitude: 1, sign: -1},
	{applies: func(in GlucoseInput) bool { return in.SpO2 < 97 }, amplitude: 1, sign: 1},
}

func (s *Synthesizer) nudge(in GlucoseInput) float64 {
	total := 0.0
	for _, c := range correlations {
		if c.applies(in) {
			total += c.sign * s.Rand.Float64() * c.amplitude
		}
	}
	return total
}

// Glucose walks the device's last stored glucose under the hour's glucose regime,
// applies the vital correlations and clamps the result to 70-99.
func (s *Synthesizer) Glucose(deviceID string, in GlucoseInput, history []models.Reading, hour int) (float64, Regime) {
	last := LastValues(deviceID, history)
	band, regime := s.Policy.BandAt(VitalGlucose, hour)

	base := Walk(last.Glucose, band, s.Rand)
	value := clamp(base+s.nudge(in), historyGlucoseRange.Min, historyGlucoseRange.Max)
	return roundTo(value, glucoseDecimals), regime
}

// SingleShotGlucose estimates glucose from the vitals alone: a uniform draw around 85,
// the same correlations, clamped to the wider 70-110 band.
func (s *Synthesizer) SingleShotGlucose(in GlucoseInput) float64 {
	base := singleShotBaseline + (s.Rand.Float64()-0.5)*singleShotSpread
	value := clamp(base+s.nudge(in), singleShotGlucoseRange.Min, singleShotGlucoseRange.Max)
	return roundTo(value, glucoseDecimals)
}

package synth

import (
	"time"

	"github.com/synheart/vitalsynth/internal/models"
)

// Values used when a device has no history, or a stored field is missing.
const (
	DefaultHeartRate   = 72.0
	DefaultSpO2        = 98.0
	DefaultTemperature = 36.5
	DefaultGlucose     = 85.0
)

// DeviceState is the last known value of each vital for one device.
type DeviceState struct {
	HeartRate   float64
	SpO2        float64
	Temperature float64
	Glucose     float64
	// Red and IR are only meaningful when HasRed / HasIR are set.
	Red    float64
	IR     float64
	HasRed bool
	HasIR  bool
	// Found is false when the device has no stored reading.
	Found      bool
	ReceivedAt time.Time
}

// LastValues picks the newest reading of deviceID in history and returns its vitals,
// falling back to the documented defaults per missing field.
func LastValues(deviceID string, history []models.Reading) DeviceState {
	state := DeviceState{
		HeartRate:   DefaultHeartRate,
		SpO2:        DefaultSpO2,
		Temperature: DefaultTemperature,
		Glucose:     DefaultGlucose,
	}

	latest := -1
	for i := range history {
		if history[i].DeviceID != deviceID {
			continue
		}
		// Ties go to the later insertion.
		if latest < 0 || !history[i].ReceivedAt.Before(history[latest].ReceivedAt) {
			latest = i
		}
	}
	if latest < 0 {
		return state
	}

	r := history[latest]
	state.Found = true
	state.ReceivedAt = r.ReceivedAt
	if r.HeartRate > 0 {
		state.HeartRate = r.HeartRate
	}
	if r.SpO2 > 0 {
		state.SpO2 = r.SpO2
	}
	if r.Temperature > 0 {
		state.Temperature = r.Temperature
	}
	if r.LastGlucose != nil && *r.LastGlucose > 0 {
		state.Glucose = *r.LastGlucose
	}
	if r.Red > 0 {
		state.Red, state.HasRed = r.Red, true
	}
	if r.IR > 0 {
		state.IR, state.HasIR = r.IR, true
	}
	return state
}

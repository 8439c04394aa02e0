package models

import (
	"fmt"
	"strings"
)

// DeviceIDReserved are the characters a device id may not contain. Device ids
// are used as MQTT topic levels and URL path segments.
const DeviceIDReserved = "/+#"

// Accepted input ranges at the HTTP/MQTT boundary.
const (
	MinInputHeartRate   = 0.0
	MaxInputHeartRate   = 200.0
	MinInputSpO2        = 70.0
	MaxInputSpO2        = 100.0
	MinInputTemperature = 30.0
	MaxInputTemperature = 45.0
)

// Envelope is the global plausibility range every stored vital must satisfy.
type Envelope struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in [Min, Max].
func (e Envelope) Contains(v float64) bool {
	return v >= e.Min && v <= e.Max
}

var (
	HeartRateEnvelope   = Envelope{Min: 55, Max: 95}
	SpO2Envelope        = Envelope{Min: 95, Max: 100}
	TemperatureEnvelope = Envelope{Min: 36.0, Max: 37.2}
	GlucoseEnvelope     = Envelope{Min: 70, Max: 99}
)

// Validate checks required fields and numeric ranges of an incoming raw reading.
func (r *RawReading) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(r.DeviceID) == "" {
		errs = append(errs, &ValidationError{Field: "device_id", Message: "is required"})
	} else if strings.ContainsAny(r.DeviceID, DeviceIDReserved) {
		errs = append(errs, &ValidationError{Field: "device_id", Message: "must not contain / + or #"})
	}
	errs = checkRange(errs, "heart_rate", r.HeartRate, true, MinInputHeartRate, MaxInputHeartRate)
	errs = checkRange(errs, "spo2", r.SpO2, true, MinInputSpO2, MaxInputSpO2)
	errs = checkRange(errs, "temperature", r.Temperature, false, MinInputTemperature, MaxInputTemperature)
	errs = checkRange(errs, "heart_rate_avg", r.HeartRateAvg, false, MinInputHeartRate, MaxInputHeartRate)
	if r.Red != nil && *r.Red < 0 {
		errs = append(errs, &ValidationError{Field: "red", Message: "must not be negative"})
	}
	if r.IR != nil && *r.IR < 0 {
		errs = append(errs, &ValidationError{Field: "ir", Message: "must not be negative"})
	}
	return errs.orNil()
}

// Validate checks the vitals of a glucose prediction request.
func (g *GlucoseRequest) Validate() error {
	var errs ValidationErrors
	errs = checkRange(errs, "heart_rate", g.HeartRate, true, MinInputHeartRate, MaxInputHeartRate)
	errs = checkRange(errs, "spo2", g.SpO2, true, MinInputSpO2, MaxInputSpO2)
	errs = checkRange(errs, "temperature", g.Temperature, true, MinInputTemperature, MaxInputTemperature)
	errs = checkRange(errs, "heart_rate_avg", g.HeartRateAvg, false, MinInputHeartRate, MaxInputHeartRate)
	return errs.orNil()
}

func checkRange(errs ValidationErrors, field string, v *float64, required bool, min, max float64) ValidationErrors {
	if v == nil {
		if required {
			errs = append(errs, &ValidationError{Field: field, Message: "is required"})
		}
		return errs
	}
	if *v < min || *v > max {
		errs = append(errs, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %g and %g", min, max),
		})
	}
	return errs
}

// CheckEnvelope verifies a synthesized reading against the global plausibility envelope.
func (r *Reading) CheckEnvelope() error {
	var bad []string
	if !HeartRateEnvelope.Contains(r.HeartRate) {
		bad = append(bad, fmt.Sprintf("heart_rate=%g", r.HeartRate))
	}
	if !SpO2Envelope.Contains(r.SpO2) {
		bad = append(bad, fmt.Sprintf("spo2=%g", r.SpO2))
	}
	if !TemperatureEnvelope.Contains(r.Temperature) {
		bad = append(bad, fmt.Sprintf("temperature=%g", r.Temperature))
	}
	if r.LastGlucose != nil && !GlucoseEnvelope.Contains(*r.LastGlucose) {
		bad = append(bad, fmt.Sprintf("glucose=%g", *r.LastGlucose))
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: reading outside plausibility envelope: %s", ErrInternal, strings.Join(bad, ", "))
	}
	return nil
}

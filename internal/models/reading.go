package models

import "time"

// RawReading is the payload a client device posts with one sensor sample.
// Optional fields are pointers so the boundary can tell "absent" from zero.
type RawReading struct {
	DeviceID       string   `json:"device_id"`
	HeartRate      *float64 `json:"heart_rate,omitempty"`
	HeartRateAvg   *float64 `json:"heart_rate_avg,omitempty"`
	SpO2           *float64 `json:"spo2,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	Red            *float64 `json:"red,omitempty"`
	IR             *float64 `json:"ir,omitempty"`
	FingerDetected *bool    `json:"finger_detected,omitempty"`
}

// Reading is one persisted, fully synthesized record for a device.
// A zero vital means the field was missing from the stored record.
type Reading struct {
	ID             string      `json:"id"`
	DeviceID       string      `json:"device_id"`
	ReceivedAt     time.Time   `json:"received_at"`
	HeartRate      float64     `json:"heart_rate"`
	HeartRateAvg   float64     `json:"heart_rate_avg"`
	SpO2           float64     `json:"spo2"`
	Temperature    float64     `json:"temperature"`
	Red            float64     `json:"red"`
	IR             float64     `json:"ir"`
	FingerDetected bool        `json:"finger_detected"`
	HeartRateValid bool        `json:"heart_rate_valid"`
	SpO2Valid      bool        `json:"spo2_valid"`
	LastGlucose    *float64    `json:"last_glucose,omitempty"`
	Original       *RawReading `json:"original,omitempty"`
}

// Interpretation is the category lookup result for one vital.
type Interpretation struct {
	Category string `json:"category"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
}

// Status is the severity attached to an interpretation.
type Status string

const (
	StatusGood    Status = "good"
	StatusCaution Status = "caution"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Interpretations groups the per-vital lookups for one reading.
type Interpretations struct {
	HeartRate   Interpretation  `json:"heart_rate"`
	SpO2        Interpretation  `json:"spo2"`
	Temperature Interpretation  `json:"temperature"`
	Glucose     *Interpretation `json:"glucose,omitempty"`
}

// HealthScore is the aggregated 0-100 score with its deduction reasons.
type HealthScore struct {
	Score   int      `json:"score"`
	Status  string   `json:"status"`
	Reasons []string `json:"reasons"`
}

// IngestResult is returned to the caller after a raw reading is synthesized and stored.
type IngestResult struct {
	Reading         Reading         `json:"reading"`
	Glucose         float64         `json:"glucose"`
	Interpretations Interpretations `json:"interpretations"`
	Health          HealthScore     `json:"health"`
	Duplicate       bool            `json:"duplicate,omitempty"`
}

// GlucoseRequest asks for a glucose estimate from a set of vitals.
type GlucoseRequest struct {
	DeviceID     string   `json:"device_id,omitempty"`
	HeartRate    *float64 `json:"heart_rate,omitempty"`
	HeartRateAvg *float64 `json:"heart_rate_avg,omitempty"`
	SpO2         *float64 `json:"spo2,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Mode         string   `json:"mode,omitempty"`
}

// GlucosePrediction is the answer to a GlucoseRequest.
type GlucosePrediction struct {
	DeviceID       string         `json:"device_id,omitempty"`
	Mode           string         `json:"mode"`
	Glucose        float64        `json:"glucose"`
	Regime         string         `json:"regime"`
	Interpretation Interpretation `json:"interpretation"`
	PredictedAt    time.Time      `json:"predicted_at"`
}

// HealthView is the aggregated health picture of one device.
type HealthView struct {
	DeviceID        string          `json:"device_id"`
	Latest          Reading         `json:"latest"`
	Interpretations Interpretations `json:"interpretations"`
	Health          HealthScore     `json:"health"`
	History         []Reading       `json:"history,omitempty"`
	TotalReadings   int             `json:"total_readings"`
}

// DeviceSummary describes one device known to the history store.
type DeviceSummary struct {
	DeviceID   string    `json:"device_id"`
	Readings   int       `json:"readings"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Package interpret maps synthesized vitals to categories and a 0-100 health score.
package interpret

import "github.com/synheart/vitalsynth/internal/models"

// threshold is one row of a lookup table. A value matches when match(v) is true;
// rows are evaluated in order and the first match wins.
type threshold struct {
	match    func(v float64) bool
	category string
	status   models.Status
	message  string
}

var heartRateTable = []threshold{
	{func(v float64) bool { return v == 0 }, "No Reading", models.StatusError, "No heart rate detected"},
	{func(v float64) bool { return v < 60 }, "Low", models.StatusCaution, "Heart rate is below 60 bpm"},
	{func(v float64) bool { return v <= 100 }, "Normal", models.StatusGood, "Heart rate is in the normal resting range"},
	{func(v float64) bool { return v <= 120 }, "Elevated", models.StatusCaution, "Heart rate is above 100 bpm"},
	{func(v float64) bool { return true }, "High", models.StatusWarning, "Heart rate is above 120 bpm"},
}

var spo2Table = []threshold{
	{func(v float64) bool { return v >= 95 }, "Normal", models.StatusGood, "Blood oxygen is normal"},
	{func(v float64) bool { return v >= 90 }, "Low Normal", models.StatusCaution, "Blood oxygen is slightly low"},
	{func(v float64) bool { return true }, "Low", models.StatusWarning, "Blood oxygen is below 90%"},
}

var temperatureTable = []threshold{
	{func(v float64) bool { return v < 35.0 }, "Hypothermia", models.StatusWarning, "Body temperature is below 35.0°C"},
	{func(v float64) bool { return v <= 37.2 }, "Normal", models.StatusGood, "Body temperature is normal"},
	{func(v float64) bool { return v <= 38.0 }, "Mild Fever", models.StatusCaution, "Body temperature is slightly raised"},
	{func(v float64) bool { return v <= 39.0 }, "Fever", models.StatusWarning, "Body temperature indicates a fever"},
	{func(v float64) bool { return true }, "High Fever", models.StatusWarning, "Body temperature is above 39.0°C"},
}

var glucoseTable = []threshold{
	{func(v float64) bool { return v < 70 }, "Low", models.StatusWarning, "Glucose is below 70 mg/dL"},
	{func(v float64) bool { return v < 100 }, "Normal", models.StatusGood, "Glucose is in the normal fasting range"},
	{func(v float64) bool { return v < 126 }, "Prediabetes", models.StatusCaution, "Glucose is in the prediabetes range"},
	{func(v float64) bool { return true }, "Diabetes", models.StatusWarning, "Glucose is in the diabetes range"},
}

func lookup(table []threshold, v float64) models.Interpretation {
	for _, t := range table {
		if t.match(v) {
			return models.Interpretation{Category: t.category, Status: t.status, Message: t.message}
		}
	}
	// Unreachable: every table ends with a catch-all row.
	return models.Interpretation{}
}

// HeartRate interprets a heart rate in bpm.
func HeartRate(bpm float64) models.Interpretation {
	return lookup(heartRateTable, bpm)
}

// SpO2 interprets an oxygen saturation percentage.
func SpO2(percent float64) models.Interpretation {
	return lookup(spo2Table, percent)
}

// Temperature interprets a body temperature in °C.
func Temperature(celsius float64) models.Interpretation {
	return lookup(temperatureTable, celsius)
}

// Glucose interprets a glucose value in mg/dL.
func Glucose(mgdl float64) models.Interpretation {
	return lookup(glucoseTable, mgdl)
}

// Reading interprets every vital of a stored reading. Glucose is included when the
// reading carries one.
func Reading(r models.Reading) models.Interpretations {
	out := models.Interpretations{
		HeartRate:   HeartRate(r.HeartRate),
		SpO2:        SpO2(r.SpO2),
		Temperature: Temperature(r.Temperature),
	}
	if r.LastGlucose != nil {
		g := Glucose(*r.LastGlucose)
		out.Glucose = &g
	}
	return out
}

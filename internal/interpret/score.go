package interpret

import (
	"fmt"

	"github.com/synheart/vitalsynth/internal/models"
)

const maxScore = 100

// Per-vital deductions. Heart rate, SpO2 and temperature share one table.
var (
	vitalDeductions = map[models.Status]int{
		models.StatusWarning: 20,
		models.StatusCaution: 10,
		models.StatusError:   15,
	}
	glucoseDeductions = map[models.Status]int{
		models.StatusWarning: 15,
		models.StatusCaution: 8,
	}
)

// Score labels, checked in order against the final score.
var labels = []struct {
	below int
	label string
}{
	{60, "Poor"},
	{75, "Fair"},
	{90, "Good"},
}

// Score aggregates a set of interpretations into a 0-100 health score.
// Each vital deducts at most once; Reasons lists every deduction in evaluation order.
func Score(in models.Interpretations) models.HealthScore {
	score := maxScore
	reasons := []string{}

	deduct := func(name string, it models.Interpretation, table map[models.Status]int) {
		if n, ok := table[it.Status]; ok {
			score -= n
			reasons = append(reasons, fmt.Sprintf("%s: %s (-%d)", name, it.Category, n))
		}
	}

	deduct("Heart rate", in.HeartRate, vitalDeductions)
	deduct("SpO2", in.SpO2, vitalDeductions)
	deduct("Temperature", in.Temperature, vitalDeductions)
	if in.Glucose != nil {
		deduct("Glucose", *in.Glucose, glucoseDeductions)
	}

	if score < 0 {
		score = 0
	}
	return models.HealthScore{Score: score, Status: Label(score), Reasons: reasons}
}

// Label maps a score to its status label.
func Label(score int) string {
	for _, l := range labels {
		if score < l.below {
			return l.label
		}
	}
	return "Excellent"
}

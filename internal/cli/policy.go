package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/synth"
)

var (
	policyFile   string
	policyFormat string
	policyHour   int
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the time-of-day band policy",
	Long: `Prints the 24-hour table of regimes and variation bands, or dumps the policy
as YAML so it can be edited and loaded with --policy.

Examples:
  vitalsynth policy
  vitalsynth policy --format yaml > policy.yaml
  vitalsynth policy --file night-shift.yaml --hour 23`,
	RunE: runPolicy,
}

func init() {
	policyCmd.Flags().StringVar(&policyFile, "file", "", "YAML policy file (built-in table if not set)")
	policyCmd.Flags().StringVar(&policyFormat, "format", "text", "Output format: text|yaml")
	policyCmd.Flags().IntVar(&policyHour, "hour", -1, "Only show this hour (-1 = all)")
}

func runPolicy(cmd *cobra.Command, args []string) error {
	policy, err := synth.PolicyOrDefault(policyFile)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(policyFormat)) {
	case "yaml":
		data, err := policy.Encode()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	case "text":
		if policyHour < -1 || policyHour > 23 {
			return fmt.Errorf("invalid --hour %d (expected 0-23)", policyHour)
		}
		writePolicyTable(cmd.OutOrStdout(), policy, policyHour, synth.HourOfDay(synth.SystemClock{}))
		return nil
	}
	return fmt.Errorf("invalid --format %q (expected: text|yaml)", policyFormat)
}

// writePolicyTable prints one row per hour. only >= 0 restricts the table to that hour;
// the current hour is marked with an arrow.
func writePolicyTable(w io.Writer, policy *synth.Policy, only, now int) {
	fmt.Fprintf(w, "Policy: %s\n\n", policy.Name)
	fmt.Fprintf(w, "   %-4s %-11s %-9s %-10s %-8s %-10s %-10s %s\n",
		"Hour", "Circulatory", "Thermal", "Glucose", "HR", "Temp", "Glucose", "HR band  (55-95)")

	for _, row := range policy.Table() {
		if only >= 0 && row.Hour != only {
			continue
		}
		marker := "  "
		if row.Hour == now {
			marker = "▶ "
		}
		hr := row.Bands[synth.VitalHeartRate]
		fmt.Fprintf(w, "%s %02d   %-11s %-9s %-10s %-8s %-10s %-10s %s\n",
			marker,
			row.Hour,
			row.Regimes.Circulatory,
			row.Regimes.Thermal,
			row.Regimes.Glucose,
			formatBand(hr),
			formatBand(row.Bands[synth.VitalTemperature]),
			formatBand(row.Bands[synth.VitalGlucose]),
			renderBand(hr, models.HeartRateEnvelope, 20),
		)
	}

	spo2, _ := policy.BandAt(synth.VitalSpO2, 0)
	red, _ := policy.BandAt(synth.VitalRed, 0)
	ir, _ := policy.BandAt(synth.VitalIR, 0)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "At 00h: SpO2 %s (step %g)   Red %s   IR %s\n", formatBand(spo2), spo2.MinChange, formatBand(red), formatBand(ir))
}

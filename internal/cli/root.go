package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vitalsynth",
	Short: "vitalsynth - plausible vitals synthesis for biometric sensor devices",
	Long: `vitalsynth receives raw readings from heart-rate / SpO2 / temperature sensor
devices and replaces them with plausible values that follow time-of-day
physiological bands, walking from each device's last stored state.

It also estimates glucose, interprets every vital, and scores overall health.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOpts.EnvFile, "env-file", globalOpts.EnvFile, "Optional .env file to load")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides VITALSYNTH_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.LogFormat, "log-format", "", "Log format: json|console (overrides VITALSYNTH_LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

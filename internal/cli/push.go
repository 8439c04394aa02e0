package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/synheart/vitalsynth/internal/client"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/recorder"
)

var (
	pushFile   string
	pushServer string
	pushRate   string
	pushToken  string
	pushLoop   bool
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Replay raw readings to a running server",
	Long: `Reads raw readings from an NDJSON file (one RawReading per line) and posts
them to a running vitalsynth server at a fixed rate.

Examples:
  vitalsynth push --file device.ndjson
  vitalsynth push --file device.ndjson --server http://10.0.0.5:8787 --rate 5hz --loop`,
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushFile, "file", "", "Raw readings NDJSON file (required)")
	pushCmd.Flags().StringVar(&pushServer, "server", "http://127.0.0.1:8787", "Server base URL")
	pushCmd.Flags().StringVar(&pushRate, "rate", "1hz", "Send rate, e.g. 1hz, 0.2hz")
	pushCmd.Flags().StringVar(&pushToken, "token", "", "Bearer token")
	pushCmd.Flags().BoolVar(&pushLoop, "loop", false, "Loop the file continuously")
	pushCmd.MarkFlagRequired("file")
}

func runPush(cmd *cobra.Command, args []string) error {
	hz, err := parseRate(pushRate)
	if err != nil {
		return fmt.Errorf("invalid rate: %w", err)
	}

	rep := recorder.NewReplayer(pushFile, hz, pushLoop)
	count, err := rep.CountReadings()
	if err != nil {
		return fmt.Errorf("failed to read readings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	c := client.New(pushServer, pushToken, 10*time.Second)
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("server %s is not reachable: %w", pushServer, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "▶️  Push Session Started\n\n")
	fmt.Fprintf(cmd.ErrOrStderr(), "File:      %s (%d readings)\n", pushFile, count)
	fmt.Fprintf(cmd.ErrOrStderr(), "Server:    %s\n", pushServer)
	fmt.Fprintf(cmd.ErrOrStderr(), "Rate:      %s\n", pushRate)
	fmt.Fprintf(cmd.ErrOrStderr(), "Loop:      %v\n\n", pushLoop)

	readings := make(chan models.RawReading)
	replayErr := make(chan error, 1)
	go func() {
		replayErr <- rep.Replay(ctx, readings)
		close(readings)
	}()

	sent, failed := 0, 0
	for raw := range readings {
		result, err := c.Ingest(ctx, raw, "")
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", raw.DeviceID, err)
			continue
		}
		sent++
		fmt.Fprintln(out, formatResult(result))
	}

	if err := <-replayErr; err != nil && err != context.Canceled {
		return fmt.Errorf("replay error: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nPush complete: %d sent, %d failed\n", sent, failed)
	return nil
}

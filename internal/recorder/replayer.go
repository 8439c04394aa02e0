package recorder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/synheart/vitalsynth/internal/models"
)

// Replayer reads raw readings from an NDJSON file and emits them at a fixed rate
type Replayer struct {
	filename string
	rate     float64
	loop     bool
}

// NewReplayer creates a new replayer. rate is readings per second; <= 0 means no pacing.
func NewReplayer(filename string, rate float64, loop bool) *Replayer {
	return &Replayer{
		filename: filename,
		rate:     rate,
		loop:     loop,
	}
}

// Replay sends every reading in the file to output, pacing by the configured rate
func (r *Replayer) Replay(ctx context.Context, output chan<- models.RawReading) error {
	for {
		if err := r.replayOnce(ctx, output); err != nil {
			return err
		}

		if !r.loop {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

func (r *Replayer) interval() time.Duration {
	if r.rate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / r.rate)
}

func (r *Replayer) replayOnce(ctx context.Context, output chan<- models.RawReading) error {
	file, err := os.Open(r.filename)
	if err != nil {
		return fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	interval := r.interval()
	lineNum := 0
	sent := 0

	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var raw models.RawReading
		if err := json.Unmarshal(line, &raw); err != nil {
			return fmt.Errorf("failed to parse reading at line %d: %w", lineNum, err)
		}

		if sent > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- raw:
		}
		sent++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	return nil
}

// CountReadings returns the number of non-empty lines in the file
func (r *Replayer) CountReadings() (int, error) {
	file, err := os.Open(r.filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open recording file: %w", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("error reading file: %w", err)
	}
	return count, nil
}

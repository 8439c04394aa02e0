package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/synheart/vitalsynth/internal/config"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
	"github.com/synheart/vitalsynth/internal/recorder"
	"github.com/synheart/vitalsynth/internal/store"
	"github.com/synheart/vitalsynth/internal/synth"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1hz", 1, false},
		{"0.5hz", 0.5, false},
		{"10HZ", 10, false},
		{"0hz", 0, true},
		{"fast", 0, true},
	}

	for _, test := range tests {
		got, err := parseRate(test.in)
		if test.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", test.in)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("%q: expected %g, got %g (%v)", test.in, test.want, got, err)
		}
	}
}

func TestRenderBand(t *testing.T) {
	scale := models.Envelope{Min: 55, Max: 95}

	if got := renderBand(synth.Band{Min: 55, Max: 95}, scale, 10); got != strings.Repeat("█", 10) {
		t.Errorf("full band: got %q", got)
	}
	if got := renderBand(synth.Band{Min: 55, Max: 75}, scale, 10); got != strings.Repeat("█", 5)+strings.Repeat("░", 5) {
		t.Errorf("lower half: got %q", got)
	}
	if got := renderBand(synth.Band{Min: 95, Max: 95}, scale, 10); got != strings.Repeat("░", 9)+"█" {
		t.Errorf("point at max: got %q", got)
	}
}

func TestFormatBand(t *testing.T) {
	if got := formatBand(synth.Band{Min: 36.1, Max: 37.2, Decimals: 1}); got != "36.1-37.2" {
		t.Errorf("unexpected %q", got)
	}
	if got := formatBand(synth.Band{Min: 55, Max: 75}); got != "55-75" {
		t.Errorf("unexpected %q", got)
	}
}

func TestWritePolicyTable(t *testing.T) {
	var buf bytes.Buffer

	writePolicyTable(&buf, synth.DefaultPolicy(), 12, 12)

	out := buf.String()
	if !strings.Contains(out, "Policy: default") {
		t.Errorf("missing policy name:\n%s", out)
	}
	if !strings.Contains(out, "▶  12") || !strings.Contains(out, "active") {
		t.Errorf("missing marked hour 12 row:\n%s", out)
	}
	if strings.Contains(out, " 13 ") {
		t.Errorf("only hour 12 expected:\n%s", out)
	}
}

func TestSimulate_RecordsEveryReading(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	service := pipeline.NewService(store.NewMemoryStore(), pipeline.Options{
		Rand:  synth.NewRandomSource(9),
		Clock: synth.NewSteppingClock(start, time.Hour),
	})
	var buf bytes.Buffer
	rec := recorder.NewWriterRecorder(&buf)

	if err := simulate(context.Background(), service, []string{"a", "b"}, 12, rec); err != nil {
		t.Fatalf("simulate: %v", err)
	}
	rec.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 24 {
		t.Fatalf("expected 24 results, got %d", len(lines))
	}
	policy := synth.DefaultPolicy()
	for i, line := range lines {
		var result models.IngestResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		hour := result.Reading.ReceivedAt.Hour()
		band, _ := policy.BandAt(synth.VitalHeartRate, hour)
		if !band.Contains(result.Reading.HeartRate) {
			t.Errorf("line %d: heart rate %g outside band at hour %d", i, result.Reading.HeartRate, hour)
		}
		if result.Glucose < 70 || result.Glucose > 99 {
			t.Errorf("line %d: glucose %g outside 70-99", i, result.Glucose)
		}
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRunSimulation_ReportsFlushFailure(t *testing.T) {
	service := pipeline.NewService(store.NewMemoryStore(), pipeline.Options{
		Rand: synth.NewRandomSource(9),
	})
	rec := recorder.NewWriterRecorder(brokenWriter{})

	err := runSimulation(context.Background(), service, []string{"a"}, 2, rec)

	if err == nil {
		t.Fatal("expected flush failure to be reported")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected underlying error, got %v", err)
	}
}

func TestRunSimulation_ClosesRecorder(t *testing.T) {
	service := pipeline.NewService(store.NewMemoryStore(), pipeline.Options{
		Rand: synth.NewRandomSource(9),
	})
	var buf bytes.Buffer
	rec := recorder.NewWriterRecorder(&buf)

	if err := runSimulation(context.Background(), service, []string{"a", "b"}, 3, rec); err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 6 {
		t.Errorf("expected 6 flushed lines, got %d", got)
	}
}

func TestApplyServeFlags(t *testing.T) {
	cfg := &config.Config{Port: 8787, Store: config.StoreFile}
	if err := serveCmd.Flags().Set("port", "9100"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	defer serveCmd.Flags().Set("port", "0")

	applyServeFlags(serveCmd, cfg)

	if cfg.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Port)
	}
	if cfg.Store != config.StoreFile {
		t.Errorf("unchanged flags must keep config values, got store %q", cfg.Store)
	}
}

func TestFormatResult(t *testing.T) {
	result := &models.IngestResult{
		Reading: models.Reading{DeviceID: "d1", HeartRate: 72, SpO2: 98, Temperature: 36.6},
		Glucose: 88,
		Health:  models.HealthScore{Score: 80, Status: "Good", Reasons: []string{"Heart rate: Low (-10)"}},
	}

	line := formatResult(result)

	for _, want := range []string{"d1", "HR  72", "Glucose  88.0", "Score  80 (Good)", "Heart rate: Low (-10)"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

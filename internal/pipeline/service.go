// Package pipeline runs raw readings through synthesis, interpretation and scoring,
// and answers queries over the stored history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/interpret"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/store"
	"github.com/synheart/vitalsynth/internal/synth"
)

// DefaultMaxHistory caps the history returned by Health.
const DefaultMaxHistory = 100

// Options configures a Service. Zero values select defaults.
type Options struct {
	Policy     *synth.Policy
	Rand       synth.RandomSource
	Clock      synth.Clock
	Logger     *zap.Logger
	MaxHistory int
	// Feed receives every stored reading. Sends never block; a full feed drops the reading.
	Feed chan<- models.Reading
}

// Service is the single writer of the history store.
type Service struct {
	store      store.Store
	synth      *synth.Synthesizer
	clock      synth.Clock
	logger     *zap.Logger
	maxHistory int
	feed       chan<- models.Reading

	// mu makes "read last values, synthesize, append" one atomic step and
	// serializes access to the random source.
	mu sync.Mutex
}

// NewService creates a pipeline over st.
func NewService(st store.Store, opts Options) *Service {
	if opts.Rand == nil {
		opts.Rand = synth.NewRandomSource(0)
	}
	if opts.Clock == nil {
		opts.Clock = synth.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	return &Service{
		store:      st,
		synth:      synth.NewSynthesizer(opts.Policy, opts.Rand),
		clock:      opts.Clock,
		logger:     opts.Logger,
		maxHistory: opts.MaxHistory,
		feed:       opts.Feed,
	}
}

// Policy returns the band table in use.
func (s *Service) Policy() *synth.Policy {
	return s.synth.Policy
}

// Ingest synthesizes, stores and scores the next reading for raw.DeviceID.
// The incoming vitals are kept only as the reading's Original.
func (s *Service) Ingest(ctx context.Context, raw models.RawReading) (*models.IngestResult, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	reading, glucose, err := s.synthesize(ctx, raw)
	if err != nil {
		s.logger.Error("ingest failed", zap.String("device_id", raw.DeviceID), zap.Error(err))
		return nil, err
	}

	interps := interpret.Reading(reading)
	result := &models.IngestResult{
		Reading:         reading,
		Glucose:         glucose,
		Interpretations: interps,
		Health:          interpret.Score(interps),
	}

	s.publish(reading)
	s.logger.Debug("reading stored",
		zap.String("device_id", reading.DeviceID),
		zap.String("reading_id", reading.ID),
		zap.Float64("heart_rate", reading.HeartRate),
		zap.Float64("glucose", glucose),
		zap.Int("score", result.Health.Score))
	return result, nil
}

func (s *Service) synthesize(ctx context.Context, raw models.RawReading) (models.Reading, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.store.All(ctx)
	if err != nil {
		return models.Reading{}, 0, fmt.Errorf("%w: failed to read history: %v", models.ErrInternal, err)
	}

	now := s.clock.Now()
	hour := now.Hour()

	v := s.synth.Vitals(raw.DeviceID, raw, history, hour)
	glucose, _ := s.synth.Glucose(raw.DeviceID, synth.GlucoseInput{
		HeartRate:    v.HeartRate,
		HeartRateAvg: v.HeartRateAvg,
		SpO2:         v.SpO2,
		Temperature:  v.Temperature,
	}, history, hour)

	original := raw
	reading := models.Reading{
		ID:             newID(now),
		DeviceID:       raw.DeviceID,
		ReceivedAt:     now,
		HeartRate:      v.HeartRate,
		HeartRateAvg:   v.HeartRateAvg,
		SpO2:           v.SpO2,
		Temperature:    v.Temperature,
		Red:            v.Red,
		IR:             v.IR,
		FingerDetected: v.FingerDetected,
		HeartRateValid: v.HeartRateValid,
		SpO2Valid:      v.SpO2Valid,
		LastGlucose:    models.Float(glucose),
		Original:       &original,
	}
	if err := reading.CheckEnvelope(); err != nil {
		return models.Reading{}, 0, err
	}

	if err := s.store.Append(ctx, reading); err != nil {
		return models.Reading{}, 0, fmt.Errorf("%w: failed to store reading: %v", models.ErrInternal, err)
	}
	return reading, glucose, nil
}

// newID builds "<unix millis>-<8 hex>".
func newID(t time.Time) string {
	return fmt.Sprintf("%d-%s", t.UnixMilli(), uuid.New().String()[:8])
}

func (s *Service) publish(r models.Reading) {
	if s.feed == nil {
		return
	}
	select {
	case s.feed <- r:
	default:
		s.logger.Warn("live feed full, dropping reading", zap.String("reading_id", r.ID))
	}
}

// PredictGlucose estimates glucose for a set of vitals without storing anything.
func (s *Service) PredictGlucose(ctx context.Context, req models.GlucoseRequest) (*models.GlucosePrediction, error) {
	errs := models.ValidationErrors{}
	if err := req.Validate(); err != nil {
		var ve models.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, err
		}
		errs = append(errs, ve...)
	}
	mode, err := synth.ParseGlucoseMode(req.Mode)
	if err != nil {
		errs = append(errs, &models.ValidationError{Field: "mode", Message: err.Error()})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	in := synth.GlucoseInput{
		HeartRate:   *req.HeartRate,
		SpO2:        *req.SpO2,
		Temperature: *req.Temperature,
	}
	if req.HeartRateAvg != nil {
		in.HeartRateAvg = *req.HeartRateAvg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	prediction := &models.GlucosePrediction{
		DeviceID:    req.DeviceID,
		Mode:        string(mode),
		PredictedAt: now,
	}

	switch mode {
	case synth.GlucoseModeSingleShot:
		prediction.Glucose = s.synth.SingleShotGlucose(in)
	default:
		history, err := s.store.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read history: %v", models.ErrInternal, err)
		}
		var regime synth.Regime
		prediction.Glucose, regime = s.synth.Glucose(req.DeviceID, in, history, now.Hour())
		prediction.Regime = string(regime)
	}
	prediction.Interpretation = interpret.Glucose(prediction.Glucose)
	return prediction, nil
}

// Health returns the latest reading of deviceID with its interpretations and score,
// plus up to historyLimit readings newest first (capped at MaxHistory).
func (s *Service) Health(ctx context.Context, deviceID string, historyLimit int) (*models.HealthView, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read history: %v", models.ErrInternal, err)
	}

	readings := newestFirst(byDevice(all, deviceID))
	if len(readings) == 0 {
		return nil, fmt.Errorf("device %q: %w", deviceID, models.ErrNotFound)
	}

	latest := readings[0]
	interps := interpret.Reading(latest)
	view := &models.HealthView{
		DeviceID:        deviceID,
		Latest:          latest,
		Interpretations: interps,
		Health:          interpret.Score(interps),
		TotalReadings:   len(readings),
	}

	if historyLimit > s.maxHistory {
		historyLimit = s.maxHistory
	}
	if historyLimit > 0 {
		if historyLimit > len(readings) {
			historyLimit = len(readings)
		}
		view.History = readings[:historyLimit]
	}
	return view, nil
}

// Filter selects stored readings. Since is inclusive, Until exclusive; zero values
// disable the bound. Limit <= 0 returns every match.
type Filter struct {
	DeviceID string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f Filter) matches(r models.Reading) bool {
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	if !f.Since.IsZero() && r.ReceivedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.ReceivedAt.Before(f.Until) {
		return false
	}
	return true
}

// List returns the readings matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Reading, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read history: %v", models.ErrInternal, err)
	}

	out := make([]models.Reading, 0, len(all))
	for _, r := range all {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	out = newestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Devices summarizes every device in the history, sorted by id.
func (s *Service) Devices(ctx context.Context) ([]models.DeviceSummary, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read history: %v", models.ErrInternal, err)
	}

	index := make(map[string]int)
	summaries := []models.DeviceSummary{}
	for _, r := range all {
		i, ok := index[r.DeviceID]
		if !ok {
			i = len(summaries)
			index[r.DeviceID] = i
			summaries = append(summaries, models.DeviceSummary{DeviceID: r.DeviceID})
		}
		summaries[i].Readings++
		if r.ReceivedAt.After(summaries[i].LastSeenAt) {
			summaries[i].LastSeenAt = r.ReceivedAt
		}
	}
	sort.Slice(summaries, func(a, b int) bool { return summaries[a].DeviceID < summaries[b].DeviceID })
	return summaries, nil
}

// Delete removes one reading.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete reading: %v", models.ErrInternal, err)
	}
	if !ok {
		return fmt.Errorf("reading %q: %w", id, models.ErrNotFound)
	}
	s.logger.Info("reading deleted", zap.String("reading_id", id))
	return nil
}

// DeleteDevice removes every reading of deviceID and returns how many were removed.
func (s *Service) DeleteDevice(ctx context.Context, deviceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.DeleteDevice(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete device: %v", models.ErrInternal, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("device %q: %w", deviceID, models.ErrNotFound)
	}
	s.logger.Info("device deleted", zap.String("device_id", deviceID), zap.Int("readings", n))
	return n, nil
}

func byDevice(all []models.Reading, deviceID string) []models.Reading {
	out := make([]models.Reading, 0)
	for _, r := range all {
		if r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out
}

// newestFirst orders by ReceivedAt descending; equal times put the later insertion first.
func newestFirst(readings []models.Reading) []models.Reading {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	sort.SliceStable(readings, func(a, b int) bool {
		return readings[a].ReceivedAt.After(readings[b].ReceivedAt)
	})
	return readings
}

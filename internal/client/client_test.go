package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synheart/vitalsynth/internal/api"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
	"github.com/synheart/vitalsynth/internal/store"
	"github.com/synheart/vitalsynth/internal/synth"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := pipeline.NewService(store.NewMemoryStore(), pipeline.Options{
		Rand:  synth.NewRandomSource(5),
		Clock: synth.NewSteppingClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), time.Minute),
	})
	srv := httptest.NewServer(api.NewServer(api.Config{}, svc, api.Feeds{}, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_IngestAndHealth(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "", 5*time.Second)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	raw := models.RawReading{DeviceID: "d1", HeartRate: models.Float(75), SpO2: models.Float(98)}
	result, err := c.Ingest(ctx, raw, "")
	require.NoError(t, err)
	assert.Equal(t, "d1", result.Reading.DeviceID)

	view, err := c.Health(ctx, "d1", 5)
	require.NoError(t, err)
	assert.Equal(t, result.Reading.ID, view.Latest.ID)
	assert.Len(t, view.History, 1)
}

func TestClient_IdempotencyKey(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "", 5*time.Second)
	raw := models.RawReading{DeviceID: "d1", HeartRate: models.Float(75), SpO2: models.Float(98)}

	first, err := c.Ingest(context.Background(), raw, "k1")
	require.NoError(t, err)
	second, err := c.Ingest(context.Background(), raw, "k1")
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Reading.ID, second.Reading.ID)
}

func TestClient_ValidationError(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "", 5*time.Second)

	_, err := c.Ingest(context.Background(), models.RawReading{DeviceID: "d1"}, "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"heart_rate", "spo2"}, apiErr.Fields)
}

func TestClient_NotFound(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, "", 5*time.Second)

	_, err := c.Health(context.Background(), "ghost", 0)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

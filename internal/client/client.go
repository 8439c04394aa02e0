// Package client talks to a running vitalsynth server.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/synheart/vitalsynth/internal/models"
)

type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int      `json:"-"`
	Message    string   `json:"error"`
	Fields     []string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("server returned %d: %s (%s)", e.StatusCode, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is a small typed wrapper over the HTTP API.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL. An empty token sends no Authorization header.
func New(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// Ingest posts one raw reading. A non-empty key is sent as Idempotency-Key.
func (c *Client) Ingest(ctx context.Context, raw models.RawReading, key string) (*models.IngestResult, error) {
	var result envelope[models.IngestResult]
	req := c.http.R().SetContext(ctx).SetBody(raw).SetResult(&result).SetError(&APIError{})
	if key != "" {
		req.SetHeader("Idempotency-Key", key)
	}
	resp, err := req.Post("/api/sensor-data")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

// Health fetches the health view of deviceID with up to history readings.
func (c *Client) Health(ctx context.Context, deviceID string, history int) (*models.HealthView, error) {
	var result envelope[models.HealthView]
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetQueryParam("history", fmt.Sprint(history)).
		SetResult(&result).
		SetError(&APIError{}).
		Get("/api/health/{deviceId}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &result.Data, nil
}

// Ping checks that the server answers /health.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&APIError{}).Get("/health")
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil {
			apiErr = &APIError{Message: resp.Status()}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

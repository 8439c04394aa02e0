package api

import (
	"bytes"
	"context"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
	"github.com/synheart/vitalsynth/internal/store"
	"github.com/synheart/vitalsynth/internal/synth"
)

var start = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, config Config) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := pipeline.NewService(st, pipeline.Options{
		Rand:  synth.NewRandomSource(1),
		Clock: synth.NewSteppingClock(start, time.Minute),
	})
	return NewServer(config, svc, Feeds{}, nil), st
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return resp
}

const validReading = `{"device_id":"esp32-1","heart_rate":140,"spo2":91,"temperature":38.5}`

func TestHandleIngest_ValidPayload(t *testing.T) {
	s, st := newTestServer(t, Config{})

	rr := do(t, s, postJSON("/api/sensor-data", validReading))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status string              `json:"status"`
		Data   models.IngestResult `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Data.Reading.DeviceID != "esp32-1" {
		t.Errorf("expected device esp32-1, got %s", resp.Data.Reading.DeviceID)
	}
	if !models.HeartRateEnvelope.Contains(resp.Data.Reading.HeartRate) {
		t.Errorf("heart rate %g outside envelope", resp.Data.Reading.HeartRate)
	}
	if resp.Data.Glucose < 70 || resp.Data.Glucose > 99 {
		t.Errorf("glucose %g outside 70-99", resp.Data.Glucose)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 stored reading, got %d", st.Len())
	}
	if stats := s.GetStats(); stats.TotalReceived != 1 {
		t.Errorf("expected TotalReceived 1, got %d", stats.TotalReceived)
	}
}

func TestHandleIngest_ValidationFailure(t *testing.T) {
	s, st := newTestServer(t, Config{})

	rr := do(t, s, postJSON("/api/sensor-data", `{"device_id":"","spo2":120}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	resp := decode(t, rr)
	fields, _ := resp["fields"].([]any)
	want := []string{"device_id", "heart_rate", "spo2"}
	if len(fields) != len(want) {
		t.Fatalf("expected fields %v, got %v", want, fields)
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("field %d: expected %s, got %v", i, f, fields[i])
		}
	}
	if st.Len() != 0 {
		t.Errorf("rejected reading must not be stored")
	}
}

func TestHandleIngest_InvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rr := do(t, s, postJSON("/api/sensor-data", `{not json`))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleIngest_GzipPayload(t *testing.T) {
	s, _ := newTestServer(t, Config{AcceptGzip: true})

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(validReading))
	gz.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sensor-data", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	rr := do(t, s, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleIngest_IdempotencyKey(t *testing.T) {
	s, st := newTestServer(t, Config{})

	send := func() (int, models.IngestResult) {
		req := postJSON("/api/sensor-data", validReading)
		req.Header.Set("Idempotency-Key", "sample-42")
		rr := do(t, s, req)
		var resp struct {
			Data models.IngestResult `json:"data"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		return rr.Code, resp.Data
	}

	code1, first := send()
	code2, second := send()

	if code1 != http.StatusCreated || code2 != http.StatusOK {
		t.Fatalf("expected 201 then 200, got %d then %d", code1, code2)
	}
	if first.Duplicate {
		t.Error("first request should not be marked duplicate")
	}
	if !second.Duplicate {
		t.Error("second request should be marked duplicate")
	}
	if first.Reading.ID != second.Reading.ID {
		t.Errorf("expected the same reading, got %s and %s", first.Reading.ID, second.Reading.ID)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 stored reading, got %d", st.Len())
	}
	if stats := s.GetStats(); stats.TotalDuplicates != 1 {
		t.Errorf("expected TotalDuplicates 1, got %d", stats.TotalDuplicates)
	}
}

func TestHandleIngest_ConcurrentIdempotencyKey(t *testing.T) {
	s, st := newTestServer(t, Config{})
	router := s.Router()

	const workers = 20
	codes := make([]int, workers)
	results := make([]models.IngestResult, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := postJSON("/api/sensor-data", validReading)
			req.Header.Set("Idempotency-Key", "burst-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			var resp struct {
				Data models.IngestResult `json:"data"`
			}
			json.Unmarshal(rr.Body.Bytes(), &resp)
			codes[i] = rr.Code
			results[i] = resp.Data
		}(i)
	}
	wg.Wait()

	if st.Len() != 1 {
		t.Fatalf("expected 1 stored reading, got %d", st.Len())
	}
	created := 0
	for i, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
			if results[i].Duplicate {
				t.Error("created response should not be marked duplicate")
			}
		case http.StatusOK:
			if !results[i].Duplicate {
				t.Error("repeat response should be marked duplicate")
			}
		default:
			t.Errorf("unexpected status %d", code)
		}
		if results[i].Reading.ID != results[0].Reading.ID {
			t.Errorf("expected one reading id, got %s and %s", results[0].Reading.ID, results[i].Reading.ID)
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one 201, got %d", created)
	}
	if stats := s.GetStats(); stats.TotalDuplicates != workers-1 {
		t.Errorf("expected TotalDuplicates %d, got %d", workers-1, stats.TotalDuplicates)
	}
}

func TestHandleIngest_IdempotencyKeyReleasedOnFailure(t *testing.T) {
	s, st := newTestServer(t, Config{})

	bad := postJSON("/api/sensor-data", `{"device_id":"esp32-1","heart_rate":999}`)
	bad.Header.Set("Idempotency-Key", "retry-1")
	if rr := do(t, s, bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	good := postJSON("/api/sensor-data", validReading)
	good.Header.Set("Idempotency-Key", "retry-1")
	if rr := do(t, s, good); rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201 after failed attempt, got %d", rr.Code)
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 stored reading, got %d", st.Len())
	}
}

func TestHandlePredict(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rr := do(t, s, postJSON("/api/glucose/predict", `{"heart_rate":72,"spo2":98,"temperature":36.6,"mode":"single-shot"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data models.GlucosePrediction `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Data.Mode != "single-shot" {
		t.Errorf("expected mode single-shot, got %s", resp.Data.Mode)
	}
	if resp.Data.Glucose < 70 || resp.Data.Glucose > 110 {
		t.Errorf("glucose %g outside 70-110", resp.Data.Glucose)
	}
}

func TestHandlePredict_InvalidMode(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rr := do(t, s, postJSON("/api/glucose/predict", `{"heart_rate":72,"spo2":98,"temperature":36.6,"mode":"wide"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	fields, _ := decode(t, rr)["fields"].([]any)
	if len(fields) != 1 || fields[0] != "mode" {
		t.Errorf("expected fields [mode], got %v", fields)
	}
}

func TestHandleDeviceHealth(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	for i := 0; i < 3; i++ {
		do(t, s, postJSON("/api/sensor-data", validReading))
	}

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health/esp32-1?history=2", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data models.HealthView `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data.History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(resp.Data.History))
	}
	if resp.Data.TotalReadings != 3 {
		t.Errorf("expected 3 total readings, got %d", resp.Data.TotalReadings)
	}
	if resp.Data.Health.Score < 0 || resp.Data.Health.Score > 100 {
		t.Errorf("score %d outside 0-100", resp.Data.Health.Score)
	}
}

func TestHandleDeviceHealth_Errors(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	if rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health/ghost", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown device, got %d", rr.Code)
	}
	if rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/health/ghost?history=abc", nil)); rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad history, got %d", rr.Code)
	}
}

func TestHandleList(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	do(t, s, postJSON("/api/sensor-data", validReading))
	do(t, s, postJSON("/api/sensor-data", `{"device_id":"esp32-2","heart_rate":70,"spo2":98}`))

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sensor-data?device_id=esp32-2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if count := decode(t, rr)["count"]; count != float64(1) {
		t.Errorf("expected count 1, got %v", count)
	}

	rr = do(t, s, httptest.NewRequest(http.MethodGet, "/api/sensor-data?since=yesterday&limit=-1", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	fields, _ := decode(t, rr)["fields"].([]any)
	if len(fields) != 2 {
		t.Errorf("expected 2 invalid fields, got %v", fields)
	}
}

func TestHandleExport_CSV(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	do(t, s, postJSON("/api/sensor-data", validReading))

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sensor-data/export?format=csv", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, ".csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,device_id") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestHandleExport_UnknownFormat(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sensor-data/export?format=pdf", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleDevices(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	do(t, s, postJSON("/api/sensor-data", validReading))
	do(t, s, postJSON("/api/sensor-data", validReading))

	rr := do(t, s, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	var resp struct {
		Data []models.DeviceSummary `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 || resp.Data[0].Readings != 2 {
		t.Errorf("expected one device with 2 readings, got %+v", resp.Data)
	}
}

func TestHandleDelete_RequiresToken(t *testing.T) {
	s, st := newTestServer(t, Config{Token: "test-token"})
	do(t, s, postJSON("/api/sensor-data", validReading))

	req := httptest.NewRequest(http.MethodDelete, "/api/devices/esp32-1", nil)
	if rr := do(t, s, req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/devices/esp32-1", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rr := do(t, s, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if deleted := decode(t, rr)["deleted"]; deleted != float64(1) {
		t.Errorf("expected 1 deleted, got %v", deleted)
	}
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d", st.Len())
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/devices/esp32-1", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	if rr := do(t, s, req); rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404 on second delete, got %d", rr.Code)
	}
}

func TestHandleDeleteReading(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	rr := do(t, s, postJSON("/api/sensor-data", validReading))
	var resp struct {
		Data models.IngestResult `json:"data"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)

	path := "/api/sensor-data/" + resp.Data.Reading.ID
	if rr := do(t, s, httptest.NewRequest(http.MethodDelete, path, nil)); rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if rr := do(t, s, httptest.NewRequest(http.MethodDelete, path, nil)); rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPut, "/api/sensor-data", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/devices", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/health/esp32-1", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/glucose/predict", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}

	for _, test := range tests {
		rr := do(t, s, httptest.NewRequest(test.method, test.path, nil))
		if rr.Code != test.want {
			t.Errorf("%s %s: expected status %d, got %d", test.method, test.path, test.want, rr.Code)
			continue
		}
		if resp := decode(t, rr); resp["error"] == nil {
			t.Errorf("%s %s: expected JSON error body, got %v", test.method, test.path, resp)
		}
	}
}

func TestRouter_RootAndHealth(t *testing.T) {
	s, _ := newTestServer(t, Config{})

	root := decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/", nil)))
	if root["service"] != "vitalsynth" {
		t.Errorf("unexpected service %v", root["service"])
	}
	if root["policy"] != "default" {
		t.Errorf("unexpected policy %v", root["policy"])
	}

	health := decode(t, do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil)))
	if health["status"] != "ok" {
		t.Errorf("unexpected health status %v", health["status"])
	}
}

func TestRecoverPanics(t *testing.T) {
	s, _ := newTestServer(t, Config{})
	h := s.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
	if s.GetStats().TotalErrors != 1 {
		t.Errorf("expected TotalErrors 1, got %d", s.GetStats().TotalErrors)
	}
}

func TestValidateAuth(t *testing.T) {
	s, _ := newTestServer(t, Config{Token: "secret"})

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"Bearer secret", true},
		{"bearer secret", true},
		{"Bearer wrong", false},
		{"Basic secret", false},
		{"secret", false},
	}

	for _, test := range tests {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		if test.header != "" {
			req.Header.Set("Authorization", test.header)
		}
		if got := s.validateAuth(req); got != test.want {
			t.Errorf("header %q: expected %v, got %v", test.header, test.want, got)
		}
	}
}

func TestIdempotencyStore_Expires(t *testing.T) {
	ids := NewIdempotencyStore(time.Hour)
	now := start
	ids.now = func() time.Time { return now }

	ids.Put("k1", models.IngestResult{Glucose: 88})
	if got, ok := ids.Get("k1"); !ok || got.Glucose != 88 {
		t.Fatalf("expected stored result, got %+v %v", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := ids.Get("k1"); ok {
		t.Error("expected key to expire")
	}

	ids.Put("k2", models.IngestResult{})
	if ids.Len() != 1 {
		t.Errorf("expected 1 key, got %d", ids.Len())
	}
}

func TestIdempotencyStore_BeginWaitsForInflight(t *testing.T) {
	ids := NewIdempotencyStore(time.Hour)
	ctx := context.Background()

	if _, found, err := ids.Begin(ctx, "k"); found || err != nil {
		t.Fatalf("expected fresh reservation, got found=%v err=%v", found, err)
	}

	done := make(chan models.IngestResult, 1)
	go func() {
		result, found, err := ids.Begin(ctx, "k")
		if !found || err != nil {
			t.Errorf("expected waiter to see stored result, got found=%v err=%v", found, err)
		}
		done <- result
	}()

	ids.Finish("k", models.IngestResult{Glucose: 101})
	select {
	case result := <-done:
		if result.Glucose != 101 {
			t.Errorf("expected glucose 101, got %v", result.Glucose)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestIdempotencyStore_BeginHonoursContext(t *testing.T) {
	ids := NewIdempotencyStore(time.Hour)
	ids.Begin(context.Background(), "k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := ids.Begin(ctx, "k"); err == nil {
		t.Error("expected context error while key is in flight")
	}

	ids.Abort("k")
	if _, found, err := ids.Begin(context.Background(), "k"); found || err != nil {
		t.Errorf("expected reservation after abort, got found=%v err=%v", found, err)
	}
}

package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/synheart/vitalsynth/internal/export"
	"github.com/synheart/vitalsynth/internal/models"
	"github.com/synheart/vitalsynth/internal/pipeline"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "vitalsynth",
		"version": Version,
		"policy":  s.service.Policy().Name,
		"endpoints": []string{
			"POST /api/sensor-data",
			"GET /api/sensor-data",
			"GET /api/sensor-data/export",
			"DELETE /api/sensor-data/{id}",
			"POST /api/glucose/predict",
			"GET /api/health/{deviceId}",
			"GET /api/devices",
			"DELETE /api/devices/{deviceId}",
			"GET /ws",
			"GET /events",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"stats":          s.GetStats(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		result, found, err := s.idempotent.Begin(r.Context(), key)
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "request cancelled")
			return
		}
		if found {
			s.count(func(st *Stats) { st.TotalDuplicates++ })
			result.Duplicate = true
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": result})
			return
		}
		// Abort after Finish is a no-op; this covers error returns and panics.
		defer s.idempotent.Abort(key)
	}

	var raw models.RawReading
	if !s.decodeBody(w, r, &raw) {
		return
	}

	result, err := s.service.Ingest(r.Context(), raw)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	if key != "" {
		s.idempotent.Finish(key, *result)
	}
	s.count(func(st *Stats) { st.TotalReceived++ })

	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "data": result})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.GlucoseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	prediction, err := s.service.PredictGlucose(r.Context(), req)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	s.count(func(st *Stats) { st.TotalPredictions++ })

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": prediction})
}

func (s *Server) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]

	limit := 0
	if v := r.URL.Query().Get("history"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.handleServiceError(w, r, models.ValidationErrors{
				{Field: "history", Message: "must be a non-negative integer"},
			})
			return
		}
		limit = n
	}

	view, err := s.service.Health(r.Context(), deviceID, limit)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": view})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	readings, err := s.service.List(r.Context(), filter)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(readings),
		"data":   readings,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	enc, err := export.NewEncoder(r.URL.Query().Get("format"))
	if err != nil {
		s.handleServiceError(w, r, models.ValidationErrors{{Field: "format", Message: err.Error()}})
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}

	readings, err := s.service.List(r.Context(), filter)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	body, err := enc.Encode(readings)
	if err != nil {
		s.handleServiceError(w, r, fmt.Errorf("%w: encode export: %v", models.ErrInternal, err))
		return
	}

	filename := fmt.Sprintf("readings-%s.%s", time.Now().UTC().Format("20060102-150405"), enc.Extension())
	w.Header().Set("Content-Type", enc.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.Devices(r.Context())
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(devices),
		"data":   devices,
	})
}

func (s *Server) handleDeleteReading(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.service.Delete(r.Context(), id); err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": 1})
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	n, err := s.service.DeleteDevice(r.Context(), deviceID)
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": n})
}

// parseFilter reads device_id, since, until (RFC3339) and limit from the query string.
func parseFilter(r *http.Request) (pipeline.Filter, error) {
	q := r.URL.Query()
	filter := pipeline.Filter{DeviceID: q.Get("device_id")}
	var errs models.ValidationErrors

	parseTime := func(field string, dst *time.Time) {
		v := q.Get(field)
		if v == "" {
			return
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs = append(errs, &models.ValidationError{Field: field, Message: "must be an RFC3339 timestamp"})
			return
		}
		*dst = t
	}
	parseTime("since", &filter.Since)
	parseTime("until", &filter.Until)

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, &models.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
		} else {
			filter.Limit = n
		}
	}

	if len(errs) > 0 {
		return filter, errs
	}
	return filter, nil
}

// decodeBody reads a JSON body into dst, writing a 400 and returning false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := s.readBody(r)
	if err != nil {
		s.count(func(st *Stats) { st.TotalErrors++ })
		s.writeError(w, http.StatusBadRequest, "failed to read request body: "+err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.count(func(st *Stats) { st.TotalErrors++ })
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body

	if s.config.AcceptGzip && r.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

// handleServiceError maps pipeline errors onto status codes.
func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.count(func(st *Stats) { st.TotalErrors++ })

	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"fields":  verrs.Fields(),
			"details": verrs,
		})
	case errors.Is(err, models.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

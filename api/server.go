// Copyright (c) 2025 Frabely
// Licensed under the MIT License

// Package api exposes the read-only HTTP surface over persisted
// charging sessions. It never writes; session persistence is internal
// to the monitor pipeline.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Frabely/keba-home-api/pkg/interfaces"
	"github.com/Frabely/keba-home-api/pkg/logger"
)

const (
	recentWindow = 5 * time.Minute

	listLimitDefault = 50
	listLimitMax     = 500

	timeLayout = "2006-01-02T15:04:05.000Z"

	shutdownTimeout = 5 * time.Second
)

// sessionResponse is the wire form of one charging session.
type sessionResponse struct {
	ID                      string  `json:"id"`
	StationID               string  `json:"stationId"`
	StartedAt               string  `json:"startedAt"`
	FinishedAt              string  `json:"finishedAt"`
	DurationMs              int64   `json:"durationMs"`
	Kwh                     float64 `json:"kwh"`
	EnergySource            string  `json:"energySource"`
	Status                  string  `json:"status"`
	ErrorCountDuringSession int     `json:"errorCountDuringSession"`
	CreatedAt               string  `json:"createdAt"`
}

type logEventResponse struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"createdAt"`
	Level     string `json:"level"`
	StationID string `json:"stationId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type dbDiagnosticsResponse struct {
	SchemaVersion  int              `json:"schemaVersion"`
	JournalMode    string           `json:"journalMode"`
	SessionsCount  int64            `json:"sessionsCount"`
	LogEventsCount int64            `json:"logEventsCount"`
	SizeBytes      int64            `json:"sizeBytes"`
	LatestSession  *sessionResponse `json:"latestSession"`
}

// Server serves the session read API.
type Server struct {
	reader  interfaces.SessionReader
	router  *mux.Router
	limiter *rate.Limiter
	srv     *http.Server
	now     func() time.Time
}

// New creates an API server reading from the given store handle.
func New(reader interfaces.SessionReader, bind string) *Server {
	s := &Server{
		reader: reader,
		router: mux.NewRouter(),
		// Generous for a home network; mostly guards against a
		// misbehaving dashboard polling in a tight loop.
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         bind,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.rateLimit)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/latest", s.handleLatest).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/recent", s.handleRecent).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/diagnostics/db", s.handleDBDiagnostics).Methods(http.MethodGet)
	s.router.HandleFunc("/diagnostics/log-events", s.handleLogEvents).Methods(http.MethodGet)
}

// Handler returns the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the listener until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("bind", s.srv.Addr).Msg("API server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.reader.Diagnostics(r.Context()); err != nil {
		logger.Error().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := s.reader.Latest(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sessions recorded"})
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(rec))
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	cutoff := s.now().Add(-recentWindow)
	rec, err := s.reader.LatestSince(r.Context(), cutoff)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(rec))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", listLimitDefault)
	offset := intQuery(r, "offset", 0)
	if limit < 1 {
		limit = 1
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.reader.List(r.Context(), limit, offset)
	if err != nil {
		s.storeError(w, err)
		return
	}

	sessions := make([]*sessionResponse, 0, len(records))
	for _, rec := range records {
		sessions = append(sessions, toSessionResponse(rec))
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleDBDiagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := s.reader.Diagnostics(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	latest, err := s.reader.Latest(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}

	resp := &dbDiagnosticsResponse{
		SchemaVersion:  diag.SchemaVersion,
		JournalMode:    diag.JournalMode,
		SessionsCount:  diag.SessionCount,
		LogEventsCount: diag.LogEventCount,
		SizeBytes:      diag.SizeBytes,
	}
	if latest != nil {
		resp.LatestSession = toSessionResponse(latest)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogEvents(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", listLimitDefault)
	if limit < 1 {
		limit = 1
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}

	records, err := s.reader.ListLogEvents(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}

	events := make([]*logEventResponse, 0, len(records))
	for _, ev := range records {
		events = append(events, &logEventResponse{
			ID:        ev.ID,
			CreatedAt: ev.CreatedAt.UTC().Format(timeLayout),
			Level:     ev.Level,
			StationID: ev.StationID,
			SessionID: ev.SessionID,
			Message:   ev.Message,
		})
	}
	writeJSON(w, http.StatusOK, events)
}

// storeError hides storage detail from clients; absence of data is
// handled per-route and is never an error.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	logger.Error().Err(err).Msg("Session store query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal storage error"})
}

func toSessionResponse(rec *interfaces.SessionRecord) *sessionResponse {
	return &sessionResponse{
		ID:                      rec.ID,
		StationID:               rec.StationID,
		StartedAt:               rec.StartedAt.UTC().Format(timeLayout),
		FinishedAt:              rec.EndedAt.UTC().Format(timeLayout),
		DurationMs:              rec.DurationMs,
		Kwh:                     rec.EnergyKwh,
		EnergySource:            rec.EnergySource,
		Status:                  rec.Status,
		ErrorCountDuringSession: rec.ErrorCount,
		CreatedAt:               rec.CreatedAt.UTC().Format(timeLayout),
	}
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("Failed to encode API response")
	}
}

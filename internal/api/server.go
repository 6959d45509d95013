// Package api provides the HTTP server for the Ayni economy.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/domain"
	"github.com/coomunity/ayni/internal/infra/observability"
)

// IdempotencyHeader carries the client's idempotency key on mutating calls.
const IdempotencyHeader = "Idempotency-Key"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the Ayni HTTP API server.
type Server struct {
	svc            *economy.Service
	db             Pinger
	feed           *FeedHub
	tracer         *observability.Tracer
	log            *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(svc *economy.Service, db Pinger) *Server {
	return &Server{svc: svc, db: db, log: slog.Default()}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetFeed sets the live activity SSE hub.
func (s *Server) SetFeed(h *FeedHub) { s.feed = h }

// SetTracer exposes recent spans on /api/traces.
func (s *Server) SetTracer(t *observability.Tracer) { s.tracer = t }

// SetLogger sets the request logger.
func (s *Server) SetLogger(l *slog.Logger) { s.log = l }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/actors", s.handleRegisterActor)
			r.Route("/actors/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetActor)
				r.Get("/score", s.handleGetScore)
				r.Get("/balance", s.handleGetBalance)
				r.Get("/transactions", s.handleTransactions)
				r.Get("/events", s.handleEvents)
			})

			r.Post("/events", s.handleRecordEvent)
			r.Post("/transfers", s.handleTransfer)
			r.Post("/transfers/{id}/reverse", s.handleReverse)
			r.Post("/grants", s.handleGrant)
			r.Post("/distributions", s.handleCreateDistribution)
			r.Get("/distributions/{id}", s.handleGetDistribution)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/audit", s.handleAudit)

			if s.tracer != nil {
				r.Get("/traces", s.handleTraces)
			}
		})

		// Long-lived stream, no request timeout.
		if s.feed != nil {
			r.Get("/feed/live", s.feed.HandleFeedSSE)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"spans": s.tracer.Spans(limit),
		"total": s.tracer.SpanCount(),
	})
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and writes a JSON error response.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classifyError(err)
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": err.Error(),
			"type":    kind,
		},
	})
}

// classifyError returns the HTTP status and error type for err.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict, "state_conflict"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_error"
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusInternalServerError, "invariant_violation"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ─── Requests ───────────────────────────────────────────────────────────────

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	if dec.More() {
		return domain.Validationf("invalid request body: trailing data")
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validationf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Validationf("%s must be RFC 3339, got %q", key, raw)
	}
	return t, nil
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware adds CORS headers for browser dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", fmt.Sprintf("Content-Type, Authorization, %s", IdempotencyHeader))
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package server exposes the reconciliation service over JSON HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/brickellbay/paysync/internal/config"
	"github.com/brickellbay/paysync/internal/service"
	"github.com/brickellbay/paysync/internal/trace"
)

type ctxKey string

const ridKey ctxKey = "rid"

var ridPattern = regexp.MustCompile(`^[0-9a-f]{10}$`)

// Server wires handlers, middleware and the reconciliation service.
type Server struct {
	svc     *service.Service
	maint   *service.Maintenance
	tracer  *trace.Recorder
	log     *slog.Logger
	limiter *rate.Limiter
}

func New(svc *service.Service, maint *service.Maintenance, tracer *trace.Recorder, log *slog.Logger, cfg config.ServerConfig) *Server {
	return &Server{
		svc:     svc,
		maint:   maint,
		tracer:  tracer,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
	}
}

// Handler builds the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /payments-sync-v2/upload", s.handleUpload)
	mux.HandleFunc("POST /payments-sync-v2/fetch-db-payments", s.handleFetchDBPayments)
	mux.HandleFunc("POST /payments-sync-v2/match-selection", s.handleMatchSelection)
	mux.HandleFunc("POST /payments-sync-v2/fetch-merged", s.handleFetchMerged)
	mux.HandleFunc("POST /payments-sync-v2/update-payments", s.handleUpdatePayments)
	mux.HandleFunc("POST /payments-sync-v2/reset", s.handleReset)

	handler := s.withRequestID(s.withRateLimit(s.withRecovery(mux)))
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
	}).Handler(handler)
}

// withRequestID accepts a well-formed caller X-Request-Id or mints one, and
// traces the request envelope.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if !ridPattern.MatchString(rid) {
			rid = trace.NewRID()
		}
		w.Header().Set("X-Request-Id", rid)
		s.tracer.Record(trace.Event{
			RID: rid, Step: "request", Path: r.URL.Path, Method: r.Method,
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ridKey, rid)))
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	if rid, ok := r.Context().Value(ridKey).(string); ok {
		return rid
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.log.Warn("request failed", "rid", requestID(r), "path", r.URL.Path, "status", status, "error", msg)
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func Run(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

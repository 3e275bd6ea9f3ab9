package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
	"github.com/couchcryptid/incident-risk-service/internal/observability"
	"github.com/couchcryptid/incident-risk-service/internal/service"
)

// PredictionService is the query surface the API exposes.
type PredictionService interface {
	sharedobs.ReadinessChecker
	Events(ctx context.Context) (service.EventSet, error)
	ParseHorizon(raw string) (int, error)
	Predict(ctx context.Context, horizonDays int) (domain.Prediction, error)
	Meta() service.Meta
}

// Options tune the HTTP server.
type Options struct {
	Addr string
	// PredictRate and PredictBurst bound /api/predict; a zero rate disables limiting.
	PredictRate  float64
	PredictBurst int
	// WriteTimeout must exceed the projection budget.
	WriteTimeout time.Duration
}

// Server exposes the incident and prediction API plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        PredictionService
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API, /healthz, /readyz, and /metrics routes.
func NewServer(opts Options, svc PredictionService, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(svc))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/meta", s.handleMeta)
		r.Group(func(r chi.Router) {
			if opts.PredictRate > 0 {
				r.Use(s.rateLimit(rate.NewLimiter(rate.Limit(opts.PredictRate), max(opts.PredictBurst, 1))))
			}
			r.Get("/predict", s.handlePredict)
		})
	})

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				s.metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", "1")
				sharedobs.WriteJSON(w, http.StatusTooManyRequests, errorBody{
					Error:     "rate_limited",
					Message:   "too many prediction requests",
					Retryable: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

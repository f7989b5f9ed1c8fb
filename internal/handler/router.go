package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ordermesh/ordersvc/internal/auth"
	"github.com/ordermesh/ordersvc/internal/metrics"
	"github.com/ordermesh/ordersvc/internal/subscriber"
)

// OrderRouterConfig wires the order service routes.
type OrderRouterConfig struct {
	Orders   OrderUseCases
	Verifier *auth.Verifier
	Health   http.Handler
	Metrics  *metrics.HTTP
	// Exposition serves GET /metrics.
	Exposition http.Handler
	Logger     *slog.Logger
}

func NewOrderRouter(cfg OrderRouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := baseRouter(cfg.Metrics, logger)
	r.Method(http.MethodGet, "/health", cfg.Health)
	r.Method(http.MethodGet, "/metrics", cfg.Exposition)

	orders := NewOrderHandler(cfg.Orders, logger)
	r.Route("/orders", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier, logger))
		orders.Routes(r)
	})
	return r
}

// NotifierRouterConfig wires the notification service routes.
type NotifierRouterConfig struct {
	Health     http.Handler
	Status     func() subscriber.Snapshot
	Metrics    *metrics.HTTP
	Exposition http.Handler
	Logger     *slog.Logger
}

type statusResponse struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt"`
}

func NewNotifierRouter(cfg NotifierRouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := baseRouter(cfg.Metrics, logger)
	r.Method(http.MethodGet, "/health", cfg.Health)
	r.Method(http.MethodGet, "/metrics", cfg.Exposition)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		snap := cfg.Status()
		writeJSON(w, http.StatusOK, statusResponse{State: snap.State.String(), Attempt: snap.Attempt})
	})
	return r
}

func baseRouter(m *metrics.HTTP, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r
}

// accessLog logs one debug line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saviobatista/sbs-approach/internal/airspace"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// AircraftSource lists tracked aircraft. airspace.Registry implements it.
type AircraftSource interface {
	Snapshot() []airspace.AircraftView
	Corridor() airspace.Corridor
}

// StatsSource reports counters. stats.Stats implements it.
type StatsSource interface {
	Snapshot() types.SystemStats
}

// HealthSource reports task liveness. watchdog.Monitor implements it.
type HealthSource interface {
	Healthy() bool
	Overdue() []string
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status  string   `json:"status"`
	Overdue []string `json:"overdue,omitempty"`
}

// Router is the status API router
type Router struct {
	aircraft   AircraftSource
	stats      StatsSource
	health     HealthSource
	metrics    prometheus.Gatherer
	middleware *Middleware
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(aircraft AircraftSource, stats StatsSource, health HealthSource, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		aircraft:   aircraft,
		stats:      stats,
		health:     health,
		middleware: NewMiddleware(log),
		logger:     log.Named("api-router"),
	}
}

// WithMetrics serves g on /metrics
func (r *Router) WithMetrics(g prometheus.Gatherer) *Router {
	r.metrics = g
	return r
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/healthz", r.getHealth)
	if r.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(r.metrics, promhttp.HandlerOpts{}))
	}

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/aircraft", r.getAllAircraft)
		router.Get("/aircraft/{id}", r.getAircraft)
		router.Get("/corridor", r.getCorridor)
		router.Get("/stats", r.getStats)
	})

	return router
}

func (r *Router) getHealth(w http.ResponseWriter, req *http.Request) {
	if r.health.Healthy() {
		r.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}
	r.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Overdue: r.health.Overdue()})
}

func (r *Router) getAllAircraft(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, r.aircraft.Snapshot())
}

func (r *Router) getAircraft(w http.ResponseWriter, req *http.Request) {
	id := strings.ToLower(chi.URLParam(req, "id"))
	for _, a := range r.aircraft.Snapshot() {
		if a.ID == id {
			r.writeJSON(w, http.StatusOK, a)
			return
		}
	}
	r.writeError(w, http.StatusNotFound, fmt.Sprintf("aircraft %s not tracked", id))
}

func (r *Router) getCorridor(w http.ResponseWriter, req *http.Request) {
	r.writeJSON(w, http.StatusOK, r.aircraft.Corridor())
}

func (r *Router) getStats(w http.ResponseWriter, req *http.Request) {
	if r.stats == nil {
		r.writeError(w, http.StatusNotFound, "statistics disabled")
		return
	}
	r.writeJSON(w, http.StatusOK, r.stats.Snapshot())
}

func (r *Router) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		r.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (r *Router) writeError(w http.ResponseWriter, status int, msg string) {
	r.writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs an HTTP server for handler on addr until ctx is done, then
// shuts it down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Status API listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve status API: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down status API: %w", err)
		}
		return nil
	}
}

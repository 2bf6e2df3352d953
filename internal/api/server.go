package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logiflow/internal/events"
	"logiflow/internal/metrics"
	"logiflow/internal/planner"
	"logiflow/internal/schedule"
	"logiflow/internal/store"
)

// PlanRunner lets operators trigger the nightly run out of schedule.
type PlanRunner interface {
	EnqueueNow(ctx context.Context, day string) error
}

type Server struct {
	Store     store.Store
	Optimizer *planner.Optimizer
	Broker    events.EventBroker
	Runner    PlanRunner
	Planner   *schedule.DailyPlanner
	Log       *slog.Logger
	Loc       *time.Location
}

func NewServer(st store.Store, opt *planner.Optimizer, broker events.EventBroker, runner PlanRunner, dp *schedule.DailyPlanner, log *slog.Logger, loc *time.Location) *Server {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Server{Store: st, Optimizer: opt, Broker: broker, Runner: runner, Planner: dp, Log: log, Loc: loc}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/depots", s.DepotsHandler)
	mux.HandleFunc("/v1/optimize/debug", s.OptimizeDebugHandler)
	mux.HandleFunc("/v1/planning/run", s.PlanningRunHandler)
	mux.HandleFunc("/v1/itineraries", s.ItinerariesHandler)
	mux.HandleFunc("/v1/itineraries/unscheduled", s.UnscheduledHandler)
	mux.HandleFunc("/v1/itineraries/", s.ItineraryByIDHandler)
	mux.HandleFunc("/v1/depots/", s.DepotEventsHandler) // /v1/depots/{id}/events/ws
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
}

// Handler wraps Routes with the request logging/metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return s.middleware(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, code).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, code).Observe(dur.Seconds())
		s.Log.Info("http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", dur)
	})
}

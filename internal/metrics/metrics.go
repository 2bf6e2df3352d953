package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanRuns counts per-depot planning outcomes.
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "planning_runs_total", Help: "Depot planning runs by outcome."},
		[]string{"status"},
	)
	// SolverDuration tracks wall time per solver attempt in seconds.
	SolverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solver_attempt_duration_seconds", Help: "Solver attempt wall time.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20}},
	)
	// RelaxationDrops tracks how many orders each successful plan had to drop.
	RelaxationDrops = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "planning_relaxation_drops", Help: "Orders dropped before a feasible plan.", Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21}},
	)
	// OracleFallbacks counts matrix requests served by the Haversine fallback.
	OracleFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "matrix_oracle_fallbacks_total", Help: "Matrix fetches degraded to the geometric fallback."},
		[]string{"metric"},
	)
	// Notifications counts outbound notification attempts.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Notification deliveries by kind and status."},
		[]string{"kind", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanRuns)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(RelaxationDrops)
		Registry.MustRegister(OracleFallbacks)
		Registry.MustRegister(Notifications)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

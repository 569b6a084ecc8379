// Package metrics defines and registers the Prometheus collectors exposed
// by mcfleetd: task throughput, cron execution outcomes, DNS reconciliation
// cycles, and health-probe latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// Task manager metrics.
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcfleet_tasks_total",
			Help: "Current number of tasks by status",
		},
		[]string{"status"},
	)

	TasksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcfleet_tasks_submitted_total",
			Help: "Total tasks submitted by type",
		},
		[]string{"type"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcfleet_task_duration_seconds",
			Help:    "Task duration in seconds by type and terminal status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type", "status"},
	)

	// Cron manager metrics.
	CronExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcfleet_cron_executions_total",
			Help: "Total cron firings by identifier and terminal status",
		},
		[]string{"identifier", "status"},
	)

	CronJobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcfleet_cron_jobs_active",
			Help: "Number of cron jobs currently scheduled",
		},
	)

	// DNS reconciler metrics.
	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcfleet_dns_reconciliation_cycles_total",
			Help: "Total reconciliation cycles by outcome (noop, pushed, error)",
		},
		[]string{"outcome"},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcfleet_dns_reconciliation_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcilerBackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcfleet_dns_reconciler_backoff_seconds",
			Help: "Current DNS reconciler backoff interval in seconds",
		},
	)

	// Probe metrics.
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcfleet_probe_duration_seconds",
			Help:    "Health probe duration in seconds by kind (rcon, game_port)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"kind"},
	)

	ServersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcfleet_servers_total",
			Help: "Number of fleet servers by lifecycle status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		TasksSubmitted,
		TaskDuration,
		CronExecutionsTotal,
		CronJobsActive,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
		ReconcilerBackoffSeconds,
		ProbeDuration,
		ServersTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

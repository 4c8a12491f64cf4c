package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/phrazzld/reelchain/internal/domain"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	taskRuns       *prometheus.CounterVec
	taskErrors     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	activeTasks    prometheus.Gauge
	chainRuns      *prometheus.CounterVec
	retries        *prometheus.CounterVec
	acquireWait    *prometheus.HistogramVec
	storeFailovers prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		taskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelchain",
			Name:      "task_runs_total",
			Help:      "Terminal task outcomes by task and status.",
		}, []string{"task", "status"}),
		taskErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelchain",
			Name:      "task_errors_total",
			Help:      "Task failures by task and error kind.",
		}, []string{"task", "kind"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelchain",
			Name:      "task_duration_seconds",
			Help:      "Task execution time.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"task"}),
		activeTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelchain",
			Name:      "active_tasks",
			Help:      "Tasks currently processing.",
		}),
		chainRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelchain",
			Name:      "chain_runs_total",
			Help:      "Finished chain runs by final status.",
		}, []string{"status"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelchain",
			Name:      "retry_failures_total",
			Help:      "Failed attempts seen by the retry policy, by error kind.",
		}, []string{"kind"}),
		acquireWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelchain",
			Name:      "resource_wait_seconds",
			Help:      "Time spent waiting for a resource class slot.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"class"}),
		storeFailovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "reelchain",
			Name:      "store_failovers_total",
			Help:      "Active store instance switches.",
		}),
	}
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.activeTasks.Inc()
}

func (m *Metrics) taskFinished(id domain.TaskID, status domain.TaskStatus, kind domain.Kind, elapsed time.Duration, ran bool) {
	if m == nil {
		return
	}
	task := id.String()
	if ran {
		m.activeTasks.Dec()
		m.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	}
	m.taskRuns.WithLabelValues(task, string(status)).Inc()
	if status.IsFailure() {
		m.taskErrors.WithLabelValues(task, kind.String()).Inc()
	}
}

func (m *Metrics) chainFinished(status domain.ChainStatus) {
	if m == nil {
		return
	}
	m.chainRuns.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) waited(class ResourceClass, d time.Duration) {
	if m == nil {
		return
	}
	m.acquireWait.WithLabelValues(string(class)).Observe(d.Seconds())
}

// RetryFailure records one failed attempt. It matches retry.Policy.OnFailure.
func (m *Metrics) RetryFailure(_ string, _ int, kind domain.Kind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind.String()).Inc()
}

// StoreSwitched records an active store change. It matches
// redisconn.Options.OnSwitch.
func (m *Metrics) StoreSwitched(_, _ string) {
	if m == nil {
		return
	}
	m.storeFailovers.Inc()
}

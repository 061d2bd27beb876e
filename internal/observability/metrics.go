package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TaskMutations     *prometheus.CounterVec
	Tasks             *prometheus.GaugeVec
	PersistOps        *prometheus.CounterVec
	PersistLatency    *prometheus.HistogramVec
	ActiveSubscribers prometheus.Gauge
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec

	persistWindow *persistWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TaskMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_mutations_total",
			Help:      "Effective task list mutations by operation.",
		}, []string{"op"}),
		Tasks: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Tasks currently held, by state.",
		}, []string{"state"}),
		PersistOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_ops_total",
			Help:      "Persistence adapter calls by operation and result.",
		}, []string{"op", "result"}),
		PersistLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_latency_ms",
			Help:      "Persistence adapter call latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2000},
		}, []string{"op"}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscribers",
			Help:      "Number of open task snapshot streams.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by stage.",
		}, []string{"stage"}),
		persistWindow: newPersistWindow(256),
	}
}

// ObservePersist records one adapter call. result is "ok", "stale" or "error".
func (m *Metrics) ObservePersist(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	ms := float64(elapsed.Microseconds()) / 1000
	m.PersistOps.WithLabelValues(op, result).Inc()
	m.PersistLatency.WithLabelValues(op).Observe(ms)
	m.persistWindow.Observe(op, ms)
	m.persistWindow.ObserveOutcome(op + "_" + result)
}

func (m *Metrics) ObserveTaskCounts(total, completed int) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues("total").Set(float64(total))
	m.Tasks.WithLabelValues("completed").Set(float64(completed))
	m.Tasks.WithLabelValues("active").Set(float64(total - completed))
}

func (m *Metrics) SnapshotPersistence() PersistSnapshot {
	if m == nil {
		return PersistSnapshot{}
	}
	return m.persistWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

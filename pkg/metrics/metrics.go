package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalogue metrics
	CatalogueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_catalogue_size",
			Help: "Number of messages currently tracked in the catalogue",
		},
	)

	IndexDocsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_index_docs_total",
			Help: "Number of documents in the external index",
		},
	)

	// Worker queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailestd_queue_depth",
			Help: "Number of tasks currently queued, by worker",
		},
		[]string{"worker"},
	)

	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailestd_tasks_processed_total",
			Help: "Total number of tasks processed, by worker and kind",
		},
		[]string{"worker", "kind"},
	)

	TaskProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailestd_task_processing_duration_seconds",
			Help:    "Time taken to process a single task, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Kanban metrics
	KanbanInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_kanban_in_use",
			Help: "Number of rfc822 kanban slots currently in use",
		},
	)

	KanbanPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_kanban_pending",
			Help: "Number of drafts parked waiting for a free kanban slot",
		},
	)

	// Gather metrics
	GathersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_gathers_active",
			Help: "Number of gather contexts currently in flight",
		},
	)

	GatherDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailestd_gather_duration_seconds",
			Help:    "Wall-clock duration of a completed gather",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	GatherPutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailestd_gather_puts_total",
			Help: "Total number of messages put to the index across all gathers",
		},
	)

	GatherDelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailestd_gather_dels_total",
			Help: "Total number of messages deleted from the index across all gathers",
		},
	)

	// Monitor metrics
	MonitorEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailestd_monitor_events_total",
			Help: "Total number of filesystem events observed by the monitor worker",
		},
		[]string{"kind"},
	)

	// Index operation metrics
	IndexOptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailestd_index_optimize_duration_seconds",
			Help:    "Time taken by an index optimize pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexFlushTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailestd_index_flush_total",
			Help: "Total number of index flushes performed",
		},
	)

	IndexSuspendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mailestd_index_suspended_total",
			Help: "Total number of times the daemon entered global suspend after a db_error",
		},
	)

	// Control session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailestd_sessions_active",
			Help: "Number of active control-socket client sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(CatalogueSize)
	prometheus.MustRegister(IndexDocsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(TasksProcessedTotal)
	prometheus.MustRegister(TaskProcessingDuration)
	prometheus.MustRegister(KanbanInUse)
	prometheus.MustRegister(KanbanPending)
	prometheus.MustRegister(GathersActive)
	prometheus.MustRegister(GatherDuration)
	prometheus.MustRegister(GatherPutsTotal)
	prometheus.MustRegister(GatherDelsTotal)
	prometheus.MustRegister(MonitorEventsTotal)
	prometheus.MustRegister(IndexOptimizeDuration)
	prometheus.MustRegister(IndexFlushTotal)
	prometheus.MustRegister(IndexSuspendedTotal)
	prometheus.MustRegister(SessionsActive)
}

// Handler returns the Prometheus HTTP handler for the registered
// metrics. Nothing in mailestd serves it; no listener is opened for it.
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

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

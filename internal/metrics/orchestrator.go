package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txbatch7000",
		Subsystem: "orchestrator",
		Name:      "runs_total",
		Help:      "Count of batch runs by terminal outcome.",
	}, []string{"mode", "status"})
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txbatch7000",
		Subsystem: "orchestrator",
		Name:      "run_duration_seconds",
		Help:      "Duration of whole batch runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s..~2.3h
	}, []string{"mode", "status"})
	runItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txbatch7000",
		Subsystem: "orchestrator",
		Name:      "run_items",
		Help:      "Number of items per batch run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1..2048
	}, []string{"mode"})
)

// Orchestrator tracks metrics for whole batch runs.
type Orchestrator struct{}

// NewOrchestrator constructs a metrics collector for batch runs.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

// ObserveRun records one terminal batch run outcome.
func (m Orchestrator) ObserveRun(mode model.Mode, err error, items int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	runsTotal.WithLabelValues(string(mode), status).Inc()
	runDuration.WithLabelValues(string(mode), status).Observe(time.Since(started).Seconds())
	runItems.WithLabelValues(string(mode)).Observe(float64(items))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/txbatch7000-backend/internal/model"
)

var (
	jobsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txbatch7000",
		Subsystem: "jobs",
		Name:      "started_total",
		Help:      "Count of batch jobs that began executing.",
	}, []string{"mode"})
	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txbatch7000",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Count of batch jobs by terminal status.",
	}, []string{"mode", "status"})
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txbatch7000",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Duration of batch jobs from start to terminal status.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s..~2.3h
	}, []string{"mode", "status"})
)

// Jobs tracks metrics for the asynchronous job registry.
type Jobs struct{}

// NewJobs constructs a metrics collector for the job registry.
func NewJobs() *Jobs {
	return &Jobs{}
}

// JobStarted records a job entering the running state.
func (m Jobs) JobStarted(mode model.Mode) {
	jobsStartedTotal.WithLabelValues(string(mode)).Inc()
}

// JobFinished records a job reaching a terminal status.
func (m Jobs) JobFinished(mode model.Mode, status model.JobStatus, started time.Time) {
	jobsFinishedTotal.WithLabelValues(string(mode), string(status)).Inc()
	jobDuration.WithLabelValues(string(mode), string(status)).Observe(time.Since(started).Seconds())
}

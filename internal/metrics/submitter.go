package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txbatch7000",
		Subsystem: "submitter",
		Name:      "submissions_total",
		Help:      "Count of terminal submission outcomes.",
	}, []string{"status"})
	submissionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txbatch7000",
		Subsystem: "submitter",
		Name:      "submission_duration_seconds",
		Help:      "Duration of one submission including retries and confirmation wait.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms..~3.4m
	}, []string{"status"})
	submissionRetryBudget = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "txbatch7000",
		Subsystem: "submitter",
		Name:      "submission_retry_budget",
		Help:      "Retry budget submissions were given.",
		Buckets:   prometheus.LinearBuckets(1, 1, 10),
	})
)

// Submitter tracks metrics for transaction submissions.
type Submitter struct{}

// NewSubmitter constructs a metrics collector for submissions.
func NewSubmitter() *Submitter {
	return &Submitter{}
}

// ObserveSubmission records one terminal submission outcome.
func (m Submitter) ObserveSubmission(err error, attempts int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	submissionsTotal.WithLabelValues(status).Inc()
	submissionDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	submissionRetryBudget.Observe(float64(attempts))
}

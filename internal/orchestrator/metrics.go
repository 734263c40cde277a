package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	outcomeCommitted = "committed"
	outcomeAdopted   = "adopted"
	outcomePending   = "pending"
	outcomeReverted  = "reverted"
	outcomeRejected  = "rejected"
	outcomeRefused   = "refused"
)

type metrics struct {
	submissions        *prometheus.CounterVec
	submitDuration     prometheus.Histogram
	verifications      *prometheus.CounterVec
	divergences        prometheus.Counter
	resyncs            *prometheus.CounterVec
	accessLogFailures  prometheus.Counter
	batchItems         *prometheus.CounterVec
	subjectLockWaiting prometheus.Gauge
}

func initMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medledger_submissions_total",
				Help: "record submissions by outcome",
			},
			[]string{"outcome"},
		),
		submitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medledger_submit_duration_seconds",
				Help:    "createMedicalRecord round-trip latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medledger_verifications_total",
				Help: "record verifications by result",
			},
			[]string{"result"},
		),
		divergences: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medledger_divergences_total",
				Help: "verifications that found the ledger digest disagreeing with local content",
			},
		),
		resyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medledger_resyncs_total",
				Help: "operator resyncs, by whether local state changed",
			},
			[]string{"changed"},
		),
		accessLogFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medledger_access_log_failures_total",
				Help: "access events that could not be appended to the ledger",
			},
		),
		batchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medledger_batch_items_total",
				Help: "batch submission items by result",
			},
			[]string{"result"},
		),
		subjectLockWaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "medledger_subject_lock_waiters",
				Help: "operations waiting on a per-subject lock",
			},
		),
	}
}

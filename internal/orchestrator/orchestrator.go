package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

// DefaultBatchConcurrency bounds how many subjects a batch submits in parallel.
const DefaultBatchConcurrency = 4

// RecordStore is the local persistence collaborator.
// FindRecord returns an error wrapping record.ErrNotFound for unknown ids.
// SaveRecord must refuse stale versions.
type RecordStore interface {
	FindRecord(ctx context.Context, id int64) (*record.Record, error)
	SaveRecord(ctx context.Context, r *record.Record) error
	FindBySubject(ctx context.Context, subjectID int64) ([]record.Record, error)
}

// LedgerClient is the subset of *ledger.Client the orchestrator drives.
type LedgerClient interface {
	Submit(ctx context.Context, fn string, args ...string) ledger.Result
	Query(ctx context.Context, fn string, args ...string) ledger.Result
	Connected() bool
}

// TamperEvent describes a verification that found local content disagreeing
// with the ledger.
type TamperEvent struct {
	RecordID     int64
	SubjectID    int64
	LocalDigest  string
	LedgerDigest string
	TxID         string
	DetectedAt   time.Time
}

// TamperHandler receives tamper-suspected signals. It is called synchronously
// and must not block.
type TamperHandler func(TamperEvent)

// Orchestrator drives submission, verification, resync, batch and audit flows
// between the local store and the ledger.
//
// Thread-safety model:
//   - All methods are safe for concurrent use
//   - Operations that mutate a record's linkage hold that record's subject lock,
//     so one subject's chain is extended by one submission at a time
//   - Different subjects proceed in parallel
type Orchestrator struct {
	store    RecordStore
	client   LedgerClient
	logger   *slog.Logger
	now      func() time.Time
	onTamper TamperHandler
	batchN   int
	locks    *subjectLocks
	metrics  *metrics
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	now      func() time.Time
	registry prometheus.Registerer
	onTamper TamperHandler
	batchN   int
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock overrides the source of commit and access timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRegisterer registers the orchestrator's metrics with reg.
// Default: a private registry, so metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithTamperHandler sets the tamper-suspected signal receiver.
// Default: log at warn level.
func WithTamperHandler(h TamperHandler) Option {
	return func(o *options) {
		o.onTamper = h
	}
}

// WithBatchConcurrency bounds the subjects a batch submits in parallel.
func WithBatchConcurrency(n int) Option {
	return func(o *options) {
		o.batchN = n
	}
}

// New creates an Orchestrator over an explicitly owned store and ledger client.
func New(store RecordStore, client LedgerClient, opts ...Option) *Orchestrator {
	o := options{
		logger: slog.Default(),
		now:    time.Now,
		batchN: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.batchN < 1 {
		o.batchN = 1
	}

	orch := &Orchestrator{
		store:   store,
		client:  client,
		logger:  o.logger,
		now:     o.now,
		batchN:  o.batchN,
		locks:   newSubjectLocks(),
		metrics: initMetrics(o.registry),
	}
	orch.onTamper = o.onTamper
	if orch.onTamper == nil {
		orch.onTamper = func(e TamperEvent) {
			orch.logger.Warn("tamper suspected",
				"record", e.RecordID,
				"subject", e.SubjectID,
				"local_digest", e.LocalDigest,
				"ledger_digest", e.LedgerDigest,
			)
		}
	}
	return orch
}

// IsConnected reports the ledger client's last known state. No network round-trip.
func (o *Orchestrator) IsConnected() bool {
	return o.client.Connected()
}

// load fetches a record, mapping absence to ErrCodeNotFound.
func (o *Orchestrator) load(ctx context.Context, id int64) (*record.Record, error) {
	r, err := o.store.FindRecord(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		return nil, newError(ErrCodeNotFound, id, err, "record not found")
	}
	if err != nil {
		return nil, newError(ErrCodeStore, id, err, "load record")
	}
	return r, nil
}

// lockRecord loads a record and acquires its subject lock, then reloads it so
// the caller sees the state left by the previous holder.
func (o *Orchestrator) lockRecord(ctx context.Context, id int64) (*record.Record, func(), error) {
	r, err := o.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	o.metrics.subjectLockWaiting.Inc()
	release, err := o.locks.acquire(ctx, r.SubjectID)
	o.metrics.subjectLockWaiting.Dec()
	if err != nil {
		return nil, nil, newError(ErrCodeLedger, id,
			&ledger.Error{Code: ledger.ErrCodeInterrupted, Function: "lock", Err: err},
			"waiting for subject %d", r.SubjectID)
	}

	r, err = o.load(ctx, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	return r, release, nil
}

func (o *Orchestrator) save(ctx context.Context, r *record.Record) error {
	if err := o.store.SaveRecord(ctx, r); err != nil {
		return newError(ErrCodeStore, r.ID, err, "save record")
	}
	return nil
}

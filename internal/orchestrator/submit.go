package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/roach88/medledger/internal/digest"
	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

// SubmitRecord commits a Local or Pending record to the ledger.
//
// The digest is computed against the subject's chain head at submission time,
// under the subject lock. Outcomes:
//   - acknowledged: Committed, transaction id persisted
//   - TIMEOUT or INTERRUPTED: left Pending, retryable error; the ledger may
//     still have committed it
//   - CONNECTION or NOT_INITIALIZED: back to Local, retryable or fatal error
//   - REJECTED: back to Local, fatal error
//
// Retrying a Pending record first asks the ledger whether the earlier attempt
// landed and adopts it instead of submitting twice.
func (o *Orchestrator) SubmitRecord(ctx context.Context, id int64) (*record.Record, error) {
	r, release, err := o.lockRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.submitLocked(ctx, r)
}

func (o *Orchestrator) submitLocked(ctx context.Context, r *record.Record) (*record.Record, error) {
	if !r.Submittable() {
		o.metrics.submissions.WithLabelValues(outcomeRefused).Inc()
		return r, newError(ErrCodeInvalidState, r.ID, nil, "cannot submit a %s record", r.Status())
	}
	if err := r.Validate(); err != nil {
		o.metrics.submissions.WithLabelValues(outcomeRefused).Inc()
		return r, newError(ErrCodeValidation, r.ID, err, "invalid record content")
	}

	siblings, err := o.store.FindBySubject(ctx, r.SubjectID)
	if err != nil {
		return r, newError(ErrCodeStore, r.ID, err, "load subject %d chain", r.SubjectID)
	}
	previous, err := record.ResolvePredecessor(siblings, r)
	if err != nil {
		o.metrics.submissions.WithLabelValues(outcomeRefused).Inc()
		return r, newError(ErrCodeChainBroken, r.ID, err, "submission refused")
	}

	// Checked before touching the record so a degraded client leaves it as is.
	if !o.client.Connected() {
		o.metrics.submissions.WithLabelValues(outcomeRefused).Inc()
		return r, newError(ErrCodeLedger, r.ID,
			&ledger.Error{Code: ledger.ErrCodeNotInitialized, Function: ledger.FnCreateMedicalRecord, Err: ledger.ErrNotInitialized},
			"ledger unavailable")
	}

	if r.Status() == record.StatePending {
		adopted, err := o.adoptLanded(ctx, r, previous)
		if adopted || err != nil {
			return r, err
		}
	}

	if err := r.BeginSubmit(previous); err != nil {
		return r, newError(ErrCodeInvalidState, r.ID, err, "begin submit")
	}
	// Persist Pending before the call so a crash mid-call leaves the ambiguity visible.
	if err := o.save(ctx, r); err != nil {
		return r, err
	}

	start := time.Now()
	res := o.client.Submit(ctx, ledger.FnCreateMedicalRecord, createArgs(r)...)
	o.metrics.submitDuration.Observe(time.Since(start).Seconds())

	if res.OK() {
		return r, o.commit(ctx, r, res.String(), outcomeCommitted)
	}
	return r, o.submitFailed(ctx, r, res.Err)
}

func createArgs(r *record.Record) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.FormatInt(r.SubjectID, 10),
		strconv.FormatInt(r.AuthorID, 10),
		r.Digest,
		digest.FormatTimestamp(r.RecordedAt),
		r.LedgerPrevious(),
		string(r.Category),
	}
}

// adoptLanded resolves a Pending record's earlier attempt. It reports true
// when the ledger already holds this exact digest and the record was committed
// from the ledger's values.
func (o *Orchestrator) adoptLanded(ctx context.Context, r *record.Record, previous string) (bool, error) {
	res := o.client.Query(ctx, ledger.FnQueryMedicalRecord, strconv.FormatInt(r.ID, 10))
	if !res.OK() {
		if res.Err.Code == ledger.ErrCodeNotFound {
			return false, nil
		}
		// Still ambiguous; stay Pending.
		o.metrics.submissions.WithLabelValues(outcomePending).Inc()
		return false, newError(ErrCodeLedger, r.ID, res.Err, "check earlier submission")
	}

	st, err := ledger.ParseRecordState(res.Payload)
	if err != nil {
		return false, newError(ErrCodeLedger, r.ID, err, "check earlier submission")
	}
	want := digest.Compute(r.Fields(previous))
	if st.Digest != want {
		o.metrics.submissions.WithLabelValues(outcomeRefused).Inc()
		return false, newError(ErrCodeDivergence, r.ID, nil,
			"ledger holds digest %s for this record, local content gives %s", st.Digest, want)
	}

	if err := r.BeginSubmit(previous); err != nil {
		return false, newError(ErrCodeInvalidState, r.ID, err, "adopt earlier submission")
	}
	o.logger.Info("earlier submission found on ledger", "record", r.ID, "tx", st.TxID)
	return true, o.commit(ctx, r, st.TxID, outcomeAdopted)
}

func (o *Orchestrator) commit(ctx context.Context, r *record.Record, txID, outcome string) error {
	if err := r.Commit(txID, o.now()); err != nil {
		return newError(ErrCodeInvalidState, r.ID, err, "commit")
	}
	if err := o.save(ctx, r); err != nil {
		// The ledger has it; a retry adopts it from the Pending row.
		o.logger.Error("committed on ledger but local save failed", "record", r.ID, "tx", txID, "error", err)
		return err
	}
	o.metrics.submissions.WithLabelValues(outcome).Inc()
	o.logger.Info("record committed", "record", r.ID, "subject", r.SubjectID, "tx", txID, "digest", r.Digest)
	return nil
}

func (o *Orchestrator) submitFailed(ctx context.Context, r *record.Record, lerr *ledger.Error) error {
	failure := newError(ErrCodeLedger, r.ID, lerr, "submit record")

	switch lerr.Code {
	case ledger.ErrCodeTimeout, ledger.ErrCodeInterrupted:
		o.metrics.submissions.WithLabelValues(outcomePending).Inc()
		o.logger.Warn("submission outcome unknown, record left pending",
			"record", r.ID, "code", lerr.Code, "error", lerr.Err)
		return failure
	case ledger.ErrCodeRejected:
		o.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
	case ledger.ErrCodeNotFound:
		failure = ledgerError(r.ID, "submit record", lerr)
		o.metrics.submissions.WithLabelValues(outcomeRejected).Inc()
	default:
		o.metrics.submissions.WithLabelValues(outcomeReverted).Inc()
	}

	// The transaction did not land; discard the attempted linkage.
	if err := r.Abandon(); err != nil {
		return errors.Join(failure, err)
	}
	// The caller's ctx may be why the call failed; the revert must still land.
	if err := o.save(context.WithoutCancel(ctx), r); err != nil {
		return errors.Join(failure, err)
	}
	o.logger.Warn("submission failed, record reverted to local",
		"record", r.ID, "code", lerr.Code, "error", lerr.Err)
	return failure
}

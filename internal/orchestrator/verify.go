package orchestrator

import (
	"context"
	"strconv"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

// VerifyRecord recomputes the record's digest from its current content and
// compares it with the digest the ledger holds for the record id.
//
// A mismatch on a Committed record flags it Diverged, fires the tamper
// handler and returns false with a nil error. Nothing is ever corrected.
// A Pending record whose digest is found on the ledger is committed, which is
// how a timed-out submission is resolved. Local records have no digest and
// verify false without a ledger call. Deleted records are checked but never
// modified.
func (o *Orchestrator) VerifyRecord(ctx context.Context, id int64) (bool, error) {
	r, release, err := o.lockRecord(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	if r.Status() == record.StateLocal || r.Digest == "" {
		o.metrics.verifications.WithLabelValues("unsubmitted").Inc()
		return false, nil
	}

	res := o.client.Query(ctx, ledger.FnQueryMedicalRecord, strconv.FormatInt(id, 10))
	if !res.OK() {
		if res.Err.Code == ledger.ErrCodeNotFound && r.Status() == record.StatePending {
			o.metrics.verifications.WithLabelValues("not_on_ledger").Inc()
			return false, nil
		}
		if res.Err.Code == ledger.ErrCodeNotFound {
			// Committed locally but unknown to the ledger.
			return false, o.diverged(ctx, r, "", "")
		}
		o.metrics.verifications.WithLabelValues("error").Inc()
		return false, newError(ErrCodeLedger, id, res.Err, "query ledger")
	}

	st, err := ledger.ParseRecordState(res.Payload)
	if err != nil {
		o.metrics.verifications.WithLabelValues("error").Inc()
		return false, newError(ErrCodeLedger, id, err, "query ledger")
	}

	local := r.ComputeDigest()
	if local != st.Digest {
		return false, o.diverged(ctx, r, st.Digest, st.TxID)
	}

	o.metrics.verifications.WithLabelValues("match").Inc()
	if r.Status() == record.StatePending {
		if err := o.commit(ctx, r, st.TxID, outcomeAdopted); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (o *Orchestrator) diverged(ctx context.Context, r *record.Record, ledgerDigest, txID string) error {
	o.metrics.verifications.WithLabelValues("mismatch").Inc()
	o.metrics.divergences.Inc()

	if !r.Deleted && r.Status() == record.StateCommitted {
		if err := r.Diverge(); err != nil {
			return newError(ErrCodeInvalidState, r.ID, err, "flag divergence")
		}
		if err := o.save(ctx, r); err != nil {
			return err
		}
	}

	o.onTamper(TamperEvent{
		RecordID:     r.ID,
		SubjectID:    r.SubjectID,
		LocalDigest:  r.ComputeDigest(),
		LedgerDigest: ledgerDigest,
		TxID:         txID,
		DetectedAt:   o.now(),
	})
	return nil
}

// ResyncRecord overwrites the record's digest and transaction id with the
// ledger's values and marks it Committed. Operator-only: it discards the
// local evidence of divergence. Content is not touched, so a tampered record
// verifies false again afterwards.
//
// Nothing is saved when the record already matches (a second resync is a no-op).
func (o *Orchestrator) ResyncRecord(ctx context.Context, id int64) (*record.Record, error) {
	r, release, err := o.lockRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	res := o.client.Query(ctx, ledger.FnQueryMedicalRecord, strconv.FormatInt(id, 10))
	if !res.OK() {
		return r, ledgerError(id, "resync", res.Err)
	}
	st, err := ledger.ParseRecordState(res.Payload)
	if err != nil {
		return r, newError(ErrCodeLedger, id, err, "resync")
	}

	changed, err := r.Resync(st.Digest, st.TxID, o.now())
	if err != nil {
		return r, newError(ErrCodeInvalidState, id, err, "resync")
	}
	o.metrics.resyncs.WithLabelValues(strconv.FormatBool(changed)).Inc()
	if !changed {
		return r, nil
	}
	if err := o.save(ctx, r); err != nil {
		return r, err
	}
	o.logger.Warn("record resynced from ledger", "record", id, "digest", st.Digest, "tx", st.TxID)
	return r, nil
}

// VerifyChain checks the subject's local chain linkage and content digests.
// Purely local; the ledger is not consulted.
func (o *Orchestrator) VerifyChain(ctx context.Context, subjectID int64) (record.ChainReport, error) {
	records, err := o.store.FindBySubject(ctx, subjectID)
	if err != nil {
		return record.ChainReport{}, newError(ErrCodeStore, 0, err, "load subject %d chain", subjectID)
	}
	return record.VerifyChain(subjectID, records), nil
}

package record

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by record stores when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// State is a record's relationship to the ledger.
type State string

const (
	// StateLocal records exist only in the local store.
	StateLocal State = "LOCAL"
	// StatePending records have a submission in flight or of unknown outcome.
	StatePending State = "PENDING"
	// StateCommitted records were acknowledged by the ledger.
	StateCommitted State = "COMMITTED"
	// StateDiverged records no longer match the digest the ledger holds.
	StateDiverged State = "DIVERGED"
	// StateDeleted is reported by Status for soft-deleted records.
	// It is never stored in Record.State; deletion is the Deleted flag.
	StateDeleted State = "DELETED"
)

// ValidStates are the values Record.State may hold.
var ValidStates = map[State]bool{
	StateLocal:     true,
	StatePending:   true,
	StateCommitted: true,
	StateDiverged:  true,
}

// TransitionError reports an illegal state machine transition.
type TransitionError struct {
	RecordID int64
	From     State
	Event    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %d: cannot %s from %s", e.RecordID, e.Event, e.From)
}

// Status returns the effective state, with soft deletion taking precedence.
func (r *Record) Status() State {
	if r.Deleted {
		return StateDeleted
	}
	if r.State == "" {
		return StateLocal
	}
	return r.State
}

func (r *Record) illegal(event string) error {
	return &TransitionError{RecordID: r.ID, From: r.Status(), Event: event}
}

// Submittable reports whether a submission may start from the current state.
func (r *Record) Submittable() bool {
	s := r.Status()
	return s == StateLocal || s == StatePending
}

// BeginSubmit finalizes the digest against previous and moves to Pending.
// Allowed from Local and from Pending (retry of an ambiguous submission).
func (r *Record) BeginSubmit(previous string) error {
	if !r.Submittable() {
		return r.illegal("submit")
	}
	r.PreviousDigest = previous
	r.Digest = r.ComputeDigest()
	r.State = StatePending
	return nil
}

// Commit records the ledger acknowledgment and freezes the digest.
func (r *Record) Commit(txID string, at time.Time) error {
	if r.Status() != StatePending {
		return r.illegal("commit")
	}
	if txID == "" {
		return fmt.Errorf("record %d: commit requires a transaction id", r.ID)
	}
	r.TxID = txID
	r.Committed = true
	r.CommittedAt = &at
	r.State = StateCommitted
	return nil
}

// Abandon returns a Pending record to Local, discarding the attempted linkage.
// Used when the submission definitely did not reach the ledger.
func (r *Record) Abandon() error {
	if r.Status() != StatePending {
		return r.illegal("abandon")
	}
	r.Digest = ""
	r.PreviousDigest = ""
	r.State = StateLocal
	return nil
}

// Diverge flags a committed record whose content no longer matches the ledger.
func (r *Record) Diverge() error {
	s := r.Status()
	if s == StateDiverged {
		return nil
	}
	if s != StateCommitted {
		return r.illegal("diverge")
	}
	r.State = StateDiverged
	return nil
}

// Resync overwrites linkage with ledger-authoritative values.
// CommittedAt is only set when absent so repeated resyncs are a fixed point.
// Returns true when any field changed.
func (r *Record) Resync(digestHex, txID string, at time.Time) (bool, error) {
	// Without a local previous digest the adopted digest could never be
	// recomputed; such a record is recovered by submitting it again.
	if r.Deleted || r.PreviousDigest == "" {
		return false, r.illegal("resync")
	}
	changed := r.Digest != digestHex ||
		r.TxID != txID ||
		!r.Committed ||
		r.State != StateCommitted ||
		r.CommittedAt == nil

	r.Digest = digestHex
	r.TxID = txID
	r.Committed = true
	r.State = StateCommitted
	if r.CommittedAt == nil {
		r.CommittedAt = &at
	}
	return changed, nil
}

// MarkDeleted soft-deletes the record. Deleting twice is a no-op.
func (r *Record) MarkDeleted(by string) {
	if r.Deleted {
		return
	}
	r.Deleted = true
	r.ModifiedBy = by
}

// Edit replaces clinical content. Only Local records are editable; committed
// content is immutable.
func (r *Record) Edit(diagnosis, treatment, prescription, notes, by string) error {
	if r.Status() != StateLocal {
		return r.illegal("edit")
	}
	r.Diagnosis = diagnosis
	r.Treatment = treatment
	r.Prescription = prescription
	r.Notes = notes
	r.ModifiedBy = by
	return nil
}

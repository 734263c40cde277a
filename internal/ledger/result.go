package ledger

import (
	"fmt"
	"strings"
)

// Outcome discriminates a Result.
type Outcome int

const (
	// OutcomeOK carries a payload.
	OutcomeOK Outcome = iota + 1
	// OutcomeRetryable failed transiently; the same call may be retried.
	OutcomeRetryable
	// OutcomeFatal failed deterministically or with no connection.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is returned by every Client call. Exactly one of Payload (OutcomeOK)
// or Err (otherwise) is meaningful.
type Result struct {
	Outcome Outcome
	Payload []byte
	Err     *Error
}

func ok(payload []byte) Result {
	return Result{Outcome: OutcomeOK, Payload: payload}
}

func failed(err *Error) Result {
	outcome := OutcomeFatal
	if err.Code.Retryable() {
		outcome = OutcomeRetryable
	}
	return Result{Outcome: outcome, Err: err}
}

// OK reports a successful call.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// String returns the payload as text.
func (r Result) String() string {
	return string(r.Payload)
}

// Error returns the failure as an error value, or nil for OK results.
func (r Result) Error() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// RecordState is the ledger's view of a medical record.
type RecordState struct {
	Digest    string
	Timestamp string
	TxID      string
}

// ParseRecordState parses a queryMedicalRecord payload: "digest|timestamp|transactionId".
func ParseRecordState(payload []byte) (RecordState, error) {
	parts := strings.Split(string(payload), "|")
	if len(parts) != 3 {
		return RecordState{}, fmt.Errorf("parse record state: want 3 fields, got %d", len(parts))
	}
	if parts[0] == "" {
		return RecordState{}, fmt.Errorf("parse record state: empty digest")
	}
	return RecordState{Digest: parts[0], Timestamp: parts[1], TxID: parts[2]}, nil
}

// String renders the state in its wire form.
func (s RecordState) String() string {
	return s.Digest + "|" + s.Timestamp + "|" + s.TxID
}

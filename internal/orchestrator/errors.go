package orchestrator

import (
	"errors"
	"fmt"

	"github.com/roach88/medledger/internal/ledger"
)

// ErrorCode categorizes orchestrator errors.
type ErrorCode string

const (
	// ErrCodeNotFound means the record is absent locally or on the ledger.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidState means the record's state does not allow the operation.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeValidation means the record content is out of bounds.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeChainBroken means the subject's chain cannot be extended by this
	// record. Submission is refused.
	ErrCodeChainBroken ErrorCode = "CHAIN_BROKEN"

	// ErrCodeDivergence means the ledger holds a different digest for the
	// record. Only an operator resync resolves it.
	ErrCodeDivergence ErrorCode = "DIVERGENCE"

	// ErrCodeLedger wraps a classified *ledger.Error.
	ErrCodeLedger ErrorCode = "LEDGER"

	// ErrCodeStore wraps a local persistence failure.
	ErrCodeStore ErrorCode = "STORE"
)

// Error is returned by every Orchestrator operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// RecordID identifies the affected record, zero when not applicable.
	RecordID int64

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecordID != 0 {
		msg = fmt.Sprintf("%s (record=%d)", msg, e.RecordID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, id int64, err error, format string, args ...any) *Error {
	return &Error{Code: code, RecordID: id, Message: fmt.Sprintf(format, args...), Err: err}
}

func ledgerError(id int64, op string, err *ledger.Error) *Error {
	if err.Code == ledger.ErrCodeNotFound {
		return newError(ErrCodeNotFound, id, err, "%s: not on ledger", op)
	}
	return newError(ErrCodeLedger, id, err, "%s", op)
}

// HasCode reports whether err is an orchestrator *Error with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code ErrorCode) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// IsRetryable reports whether the operation may be retried unchanged:
// the ledger call timed out, was interrupted, or never reached the network.
func IsRetryable(err error) bool {
	var le *ledger.Error
	if errors.As(err, &le) {
		return le.Code.Retryable()
	}
	return false
}

// IsChainBroken returns true if submission was refused for chain linkage.
func IsChainBroken(err error) bool {
	return HasCode(err, ErrCodeChainBroken)
}

// IsDivergence returns true if the ledger disagrees with the local record.
func IsDivergence(err error) bool {
	return HasCode(err, ErrCodeDivergence)
}

// IsNotFound returns true if the record was absent locally or on the ledger.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode categorizes ledger call failures.
type ErrorCode string

const (
	// ErrCodeNotInitialized means no connection is held. Fatal until restarted.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeTimeout means the call deadline passed. The remote side may
	// still have committed.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeInterrupted means the caller cancelled. Commit state is ambiguous.
	ErrCodeInterrupted ErrorCode = "INTERRUPTED"

	// ErrCodeConnection is a transport failure.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeRejected is a deterministic contract rejection.
	ErrCodeRejected ErrorCode = "REJECTED"

	// ErrCodeNotFound means the ledger holds no entry for the key.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Sentinel errors that Contract implementations wrap to classify failures.
var (
	ErrRejected = errors.New("transaction rejected")
	ErrNotFound = errors.New("not found on ledger")
)

// Retryable reports whether a call failing with this code may be retried.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeTimeout, ErrCodeInterrupted, ErrCodeConnection:
		return true
	default:
		return false
	}
}

// Error is the classified failure of a ledger call.
type Error struct {
	Code     ErrorCode
	Function string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger %s: %s: %v", e.Function, e.Code, e.Err)
	}
	return fmt.Sprintf("ledger %s: %s", e.Function, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err wraps a ledger *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// classify maps a raw contract error to the taxonomy.
// ctxErr is the call context's error, consulted first: a contract that
// returns a transport error after its deadline still timed out.
func classify(fn string, err, ctxErr error) *Error {
	code := ErrCodeConnection
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(ctxErr, context.Canceled), errors.Is(err, context.Canceled):
		code = ErrCodeInterrupted
	case errors.Is(err, ErrRejected):
		code = ErrCodeRejected
	case errors.Is(err, ErrNotFound):
		code = ErrCodeNotFound
	}
	return &Error{Code: code, Function: fn, Err: err}
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/orchestrator"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed or found a problem (verification false, batch items failed, ledger refused)
	ExitCommandError = 2 // Command error (bad arguments, unreadable config, database not found)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code      string `json:"code"`                // orchestrator or ledger error code
	Message   string `json:"message"`             // human-readable message
	Retryable bool   `json:"retryable,omitempty"` // safe to retry unchanged
	Details   any    `json:"details,omitempty"`   // additional context
}

// textRenderer is implemented by results with a multi-line text form.
type textRenderer interface {
	RenderText(w io.Writer)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	if r, ok := data.(textRenderer); ok {
		r.RenderText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.writeError(&CLIError{Code: code, Message: message, Details: details})
}

func (f *OutputFormatter) writeError(e *CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: e})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Retryable {
		fmt.Fprintln(f.Writer, "The operation may be retried.")
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

// Fail reports err and returns it as an ExitFailure.
func (f *OutputFormatter) Fail(message string, err error) error {
	if werr := f.writeError(describe(err)); werr != nil {
		return werr
	}
	return WrapExitError(ExitFailure, message, err)
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe maps an operation error to its most specific code.
// Ledger codes win over the orchestrator's generic LEDGER wrapper.
func describe(err error) *CLIError {
	e := &CLIError{Code: "ERROR", Message: err.Error(), Retryable: orchestrator.IsRetryable(err)}

	var oe *orchestrator.Error
	if errors.As(err, &oe) {
		e.Code = string(oe.Code)
	}
	var le *ledger.Error
	if errors.As(err, &le) && (oe == nil || oe.Code == orchestrator.ErrCodeLedger) {
		e.Code = string(le.Code)
	}
	return e
}

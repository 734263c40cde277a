package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/orchestrator"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("STORE", "database locked", map[string]string{"path": "medledger.db"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORE", resp.Error.Code)
	assert.Equal(t, "database locked", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccessUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(VerifyReport{
		Records:  []VerifyOutcome{{RecordID: 3, Verified: true, Status: "COMMITTED"}},
		Verified: 1,
	}))

	assert.Equal(t, "record 3: OK (COMMITTED)\n1 verified, 0 not verified\n", buf.String())
}

func TestOutputFormatter_TextSuccessFallsBackToPrint(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(AccessLogged{RecordID: 4, UserID: "dr.house", Action: "READ", TxID: "tx-9"}))

	assert.Equal(t, "logged READ of record 4 by dr.house (tx tx-9)\n", buf.String())
}

func TestOutputFormatter_TextErrorVerboseDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("VALIDATION", "bad input", "diagnosis too short"))

	assert.Equal(t, "Error [VALIDATION]: bad input\nDetails: diagnosis too short\n", buf.String())
}

func TestOutputFormatter_FailPrefersLedgerCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	cause := fmt.Errorf("submit: %w", &orchestrator.Error{
		Code:    orchestrator.ErrCodeLedger,
		Message: "createMedicalRecord",
		Err:     &ledger.Error{Code: ledger.ErrCodeTimeout, Function: "createMedicalRecord", Err: errors.New("deadline")},
	})

	err := formatter.Fail("submission failed", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TIMEOUT", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"plain", errors.New("boom"), "ERROR"},
		{"orchestrator", &orchestrator.Error{Code: orchestrator.ErrCodeChainBroken}, "CHAIN_BROKEN"},
		{"ledger not found keeps orchestrator code", &orchestrator.Error{
			Code: orchestrator.ErrCodeNotFound,
			Err:  &ledger.Error{Code: ledger.ErrCodeNotFound},
		}, "NOT_FOUND"},
		{"bare ledger", &ledger.Error{Code: ledger.ErrCodeNotInitialized}, "NOT_INITIALIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, describe(tt.err).Code)
		})
	}
}

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "verification failed")
	assert.Equal(t, "verification failed", err.Error())
	assert.Equal(t, ExitFailure, GetExitCode(err))

	cause := errors.New("no such file")
	wrapped := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: no such file", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", wrapped)))

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
}

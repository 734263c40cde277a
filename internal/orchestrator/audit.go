package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

// Access actions recorded by ReadRecord and the CLI.
const (
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionExport = "EXPORT"
)

// GetAuditTrail returns the ledger's history blob for the record unchanged.
// Local state is not read or modified.
func (o *Orchestrator) GetAuditTrail(ctx context.Context, id int64) ([]byte, error) {
	res := o.client.Query(ctx, ledger.FnGetRecordHistory, strconv.FormatInt(id, 10))
	if !res.OK() {
		return nil, ledgerError(id, "audit trail", res.Err)
	}
	return res.Payload, nil
}

// LogAccess appends an access event for the record to the ledger and returns
// its transaction id. Failures are returned to the caller; whether they block
// anything is the caller's decision.
func (o *Orchestrator) LogAccess(ctx context.Context, id int64, userID, action string) (string, error) {
	userID = strings.TrimSpace(userID)
	action = strings.ToUpper(strings.TrimSpace(action))
	if userID == "" || action == "" {
		return "", newError(ErrCodeValidation, id, nil, "user id and action are required")
	}

	millis := strconv.FormatInt(o.now().UnixMilli(), 10)
	res := o.client.Submit(ctx, ledger.FnLogAccess, strconv.FormatInt(id, 10), userID, action, millis)
	if !res.OK() {
		o.metrics.accessLogFailures.Inc()
		return "", ledgerError(id, "log access", res.Err)
	}
	return res.String(), nil
}

// ReadRecord loads a record and logs a READ access by userID. Access logging
// is best-effort: its failure is logged and counted, never returned.
func (o *Orchestrator) ReadRecord(ctx context.Context, id int64, userID string) (*record.Record, error) {
	r, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := o.LogAccess(ctx, id, userID, ActionRead); err != nil {
		o.logger.Warn("access not logged", "record", id, "user", userID, "error", err)
	}
	return r, nil
}

// PatientLedgerRecords returns the ledger's list of entries for a subject.
func (o *Orchestrator) PatientLedgerRecords(ctx context.Context, subjectID int64) ([]byte, error) {
	res := o.client.Query(ctx, ledger.FnGetPatientRecords, strconv.FormatInt(subjectID, 10))
	if !res.OK() {
		return nil, ledgerError(0, "patient records", res.Err)
	}
	return res.Payload, nil
}

// NetworkStats returns the ledger's statistics blob.
func (o *Orchestrator) NetworkStats(ctx context.Context) ([]byte, error) {
	res := o.client.Query(ctx, ledger.FnGetStats)
	if !res.OK() {
		return nil, ledgerError(0, "network stats", res.Err)
	}
	return res.Payload, nil
}

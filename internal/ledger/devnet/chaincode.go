package devnet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/medledger/internal/digest"
	"github.com/roach88/medledger/internal/ledger"
)

// contract executes the medical records chaincode against one channel.
type contract struct {
	ledger    *Ledger
	channel   string
	chaincode string
}

// HistoryEntry is one element of the getRecordHistory payload.
type HistoryEntry struct {
	TxID        string `json:"txId"`
	Function    string `json:"function"`
	Creator     string `json:"creator"`
	UserID      string `json:"userId,omitempty"`
	Action      string `json:"action,omitempty"`
	EpochMillis int64  `json:"epochMillis"`
	CommittedAt string `json:"committedAt"`
}

// LedgerRecord is one element of the getPatientRecords payload.
type LedgerRecord struct {
	RecordID       string `json:"recordId"`
	SubjectID      string `json:"subjectId"`
	AuthorID       string `json:"authorId"`
	Digest         string `json:"digest"`
	PreviousDigest string `json:"previousDigest"`
	Timestamp      string `json:"timestamp"`
	Category       string `json:"category"`
	TxID           string `json:"txId"`
}

// Stats is the getStats payload.
type Stats struct {
	Channel      string `json:"channel"`
	Chaincode    string `json:"chaincode"`
	Records      int64  `json:"records"`
	Subjects     int64  `json:"subjects"`
	AccessEvents int64  `json:"accessEvents"`
	Transactions int64  `json:"transactions"`
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrRejected, fmt.Sprintf(format, args...))
}

func wantArgs(fn string, args []string, n int) error {
	if len(args) != n {
		return rejectf("%s expects %d arguments, got %d", fn, n, len(args))
	}
	return nil
}

// SubmitTransaction implements ledger.Contract.
func (c *contract) SubmitTransaction(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch name {
	case ledger.FnCreateMedicalRecord:
		return c.createMedicalRecord(ctx, args)
	case ledger.FnLogAccess:
		return c.logAccess(ctx, args)
	default:
		// Queries may be submitted too; they simply produce no writes.
		return c.EvaluateTransaction(ctx, name, args...)
	}
}

// EvaluateTransaction implements ledger.Contract.
func (c *contract) EvaluateTransaction(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch name {
	case ledger.FnQueryMedicalRecord:
		return c.queryMedicalRecord(ctx, args)
	case ledger.FnGetRecordHistory:
		return c.getRecordHistory(ctx, args)
	case ledger.FnGetPatientRecords:
		return c.getPatientRecords(ctx, args)
	case ledger.FnGetStats:
		return c.getStats(ctx)
	case ledger.FnCreateMedicalRecord, ledger.FnLogAccess:
		return nil, rejectf("%s must be submitted, not evaluated", name)
	default:
		return nil, rejectf("unknown function %q", name)
	}
}

// createMedicalRecord args: id, subjectId, authorId, digest, timestamp, previousDigest, category.
//
// Idempotent per record id: resubmitting the same digest returns the original
// transaction id. previousDigest must be the sentinel for a subject's first
// record, otherwise the digest of a record already on the ledger for that subject.
func (c *contract) createMedicalRecord(ctx context.Context, args []string) ([]byte, error) {
	if err := wantArgs(ledger.FnCreateMedicalRecord, args, 7); err != nil {
		return nil, err
	}
	id, subjectID, authorID, dg, ts, prev, category := args[0], args[1], args[2], args[3], args[4], args[5], args[6]
	if id == "" || subjectID == "" {
		return nil, rejectf("record id and subject id are required")
	}
	if !digest.Valid(dg) {
		return nil, rejectf("malformed digest %q", dg)
	}

	tx, err := c.ledger.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existingDigest, existingTx string
	err = tx.QueryRowContext(ctx, `
		SELECT digest, tx_id FROM records
		WHERE channel = ? AND chaincode = ? AND record_id = ?
	`, c.channel, c.chaincode, id).Scan(&existingDigest, &existingTx)
	switch {
	case err == nil:
		if existingDigest != dg {
			return nil, rejectf("record %s already committed with a different digest", id)
		}
		return []byte(existingTx), nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup record: %w", err)
	}

	if err := c.checkLinkage(ctx, tx, subjectID, prev); err != nil {
		return nil, err
	}

	txID, seq, err := c.appendTx(ctx, tx, ledger.FnCreateMedicalRecord, id, "", "", c.ledger.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(channel, chaincode, record_id, subject_id, author_id, digest, timestamp, previous_digest, category, tx_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.channel, c.chaincode, id, subjectID, authorID, dg, ts, prev, category, txID, seq)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return []byte(txID), nil
}

func (c *contract) checkLinkage(ctx context.Context, tx *sql.Tx, subjectID, prev string) error {
	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records
		WHERE channel = ? AND chaincode = ? AND subject_id = ?
	`, c.channel, c.chaincode, subjectID).Scan(&count); err != nil {
		return fmt.Errorf("count subject records: %w", err)
	}

	if count == 0 {
		if prev != digest.Sentinel {
			return rejectf("chain linkage mismatch: first record of subject %s must link to %q", subjectID, digest.Sentinel)
		}
		return nil
	}

	var known int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records
		WHERE channel = ? AND chaincode = ? AND subject_id = ? AND digest = ?
	`, c.channel, c.chaincode, subjectID, prev).Scan(&known); err != nil {
		return fmt.Errorf("lookup predecessor: %w", err)
	}
	if known == 0 {
		return rejectf("chain linkage mismatch: previous digest %q is not on the ledger for subject %s", prev, subjectID)
	}
	return nil
}

func (c *contract) appendTx(ctx context.Context, tx *sql.Tx, fn, recordID, userID, action string, epochMillis int64) (string, int64, error) {
	txID := c.ledger.newTxID()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions
		(tx_id, channel, chaincode, function, record_id, creator_msp, user_id, action, epoch_millis, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txID, c.channel, c.chaincode, fn, recordID, c.ledger.creator, userID, action, epochMillis,
		c.ledger.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", 0, fmt.Errorf("append transaction: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return "", 0, fmt.Errorf("append transaction: last insert id: %w", err)
	}
	return txID, seq, nil
}

// logAccess args: id, userId, action, epochMillis.
func (c *contract) logAccess(ctx context.Context, args []string) ([]byte, error) {
	if err := wantArgs(ledger.FnLogAccess, args, 4); err != nil {
		return nil, err
	}
	id, userID, action := args[0], args[1], args[2]
	millis, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return nil, rejectf("invalid epoch millis %q", args[3])
	}
	if userID == "" || action == "" {
		return nil, rejectf("user id and action are required")
	}

	tx, err := c.ledger.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := c.requireRecord(ctx, tx, id); err != nil {
		return nil, err
	}
	txID, _, err := c.appendTx(ctx, tx, ledger.FnLogAccess, id, userID, action, millis)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return []byte(txID), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *contract) requireRecord(ctx context.Context, q queryer, id string) error {
	var n int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM records WHERE channel = ? AND chaincode = ? AND record_id = ?
	`, c.channel, c.chaincode, id).Scan(&n); err != nil {
		return fmt.Errorf("lookup record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: record %s", ledger.ErrNotFound, id)
	}
	return nil
}

// queryMedicalRecord args: id. Returns "digest|timestamp|transactionId".
func (c *contract) queryMedicalRecord(ctx context.Context, args []string) ([]byte, error) {
	if err := wantArgs(ledger.FnQueryMedicalRecord, args, 1); err != nil {
		return nil, err
	}
	var st ledger.RecordState
	err := c.ledger.db.QueryRowContext(ctx, `
		SELECT digest, timestamp, tx_id FROM records
		WHERE channel = ? AND chaincode = ? AND record_id = ?
	`, c.channel, c.chaincode, args[0]).Scan(&st.Digest, &st.Timestamp, &st.TxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: record %s", ledger.ErrNotFound, args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return []byte(st.String()), nil
}

// getRecordHistory args: id. Returns a JSON array of HistoryEntry in commit order.
func (c *contract) getRecordHistory(ctx context.Context, args []string) ([]byte, error) {
	if err := wantArgs(ledger.FnGetRecordHistory, args, 1); err != nil {
		return nil, err
	}
	if err := c.requireRecord(ctx, c.ledger.db, args[0]); err != nil {
		return nil, err
	}

	rows, err := c.ledger.db.QueryContext(ctx, `
		SELECT tx_id, function, creator_msp, user_id, action, epoch_millis, committed_at
		FROM transactions
		WHERE channel = ? AND chaincode = ? AND record_id = ?
		ORDER BY seq ASC
	`, c.channel, c.chaincode, args[0])
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.TxID, &h.Function, &h.Creator, &h.UserID, &h.Action, &h.EpochMillis, &h.CommittedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return json.Marshal(history)
}

// getPatientRecords args: subjectId. Returns a JSON array of LedgerRecord in commit order.
func (c *contract) getPatientRecords(ctx context.Context, args []string) ([]byte, error) {
	if err := wantArgs(ledger.FnGetPatientRecords, args, 1); err != nil {
		return nil, err
	}
	rows, err := c.ledger.db.QueryContext(ctx, `
		SELECT record_id, subject_id, author_id, digest, previous_digest, timestamp, category, tx_id
		FROM records
		WHERE channel = ? AND chaincode = ? AND subject_id = ?
		ORDER BY seq ASC
	`, c.channel, c.chaincode, args[0])
	if err != nil {
		return nil, fmt.Errorf("query patient records: %w", err)
	}
	defer rows.Close()

	records := []LedgerRecord{}
	for rows.Next() {
		var r LedgerRecord
		if err := rows.Scan(&r.RecordID, &r.SubjectID, &r.AuthorID, &r.Digest, &r.PreviousDigest, &r.Timestamp, &r.Category, &r.TxID); err != nil {
			return nil, fmt.Errorf("scan patient record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patient records: %w", err)
	}
	return json.Marshal(records)
}

func (c *contract) getStats(ctx context.Context) ([]byte, error) {
	s := Stats{Channel: c.channel, Chaincode: c.chaincode}
	err := c.ledger.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM records WHERE channel = ?1 AND chaincode = ?2),
			(SELECT COUNT(DISTINCT subject_id) FROM records WHERE channel = ?1 AND chaincode = ?2),
			(SELECT COUNT(*) FROM transactions WHERE channel = ?1 AND chaincode = ?2 AND function = ?3),
			(SELECT COUNT(*) FROM transactions WHERE channel = ?1 AND chaincode = ?2)
	`, c.channel, c.chaincode, ledger.FnLogAccess).Scan(&s.Records, &s.Subjects, &s.AccessEvents, &s.Transactions)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return json.Marshal(s)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/medledger/internal/record"
)

const recordColumns = `
	id, subject_id, author_id, diagnosis, treatment, prescription, notes, category, recorded_at,
	state, digest, previous_digest, tx_id, committed, committed_at,
	created_by, modified_by, created_at, updated_at, deleted, version`

// FindRecord returns the record with the given id, deleted or not.
func (s *Store) FindRecord(ctx context.Context, id int64) (*record.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM medical_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find record %d: %w", id, err)
	}
	return r, nil
}

// FindBySubject returns every record of a subject, including soft-deleted ones,
// in chain order: recorded_at ASC, id ASC.
//
// Returns an empty slice (not nil) if the subject has no records.
func (s *Store) FindBySubject(ctx context.Context, subjectID int64) ([]record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM medical_records
		WHERE subject_id = ?
		ORDER BY recorded_at ASC, id ASC
	`, subjectID)
}

// FindByState returns non-deleted records in the given state, ordered by
// subject then chain order. Used to resume Pending submissions.
func (s *Store) FindByState(ctx context.Context, state record.State) ([]record.Record, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM medical_records
		WHERE state = ? AND deleted = 0
		ORDER BY subject_id ASC, recorded_at ASC, id ASC
	`, string(state))
}

// CountByState returns the number of non-deleted records per state.
func (s *Store) CountByState(ctx context.Context) (map[record.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM medical_records WHERE deleted = 0 GROUP BY state
	`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[record.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[record.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// FindSubject returns the subject with the given id.
func (s *Store) FindSubject(ctx context.Context, id int64) (*record.Subject, error) {
	var subj record.Subject
	var dob, created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, middle_name, last_name, date_of_birth, blood_type, gender,
		       email, phone, address, created_at
		FROM subjects WHERE id = ?
	`, id).Scan(
		&subj.ID, &subj.FirstName, &subj.MiddleName, &subj.LastName, &dob, &subj.BloodType,
		&subj.Gender, &subj.Email, &subj.Phone, &subj.Address, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find subject %d: %w", id, err)
	}
	if subj.DateOfBirth, err = time.Parse(dateLayout, dob); err != nil {
		return nil, fmt.Errorf("subject %d: parse date of birth: %w", id, err)
	}
	if subj.CreatedAt, err = parseUTC(created); err != nil {
		return nil, fmt.Errorf("subject %d: %w", id, err)
	}
	return &subj, nil
}

// FindAuthor returns the author with the given id.
func (s *Store) FindAuthor(ctx context.Context, id int64) (*record.Author, error) {
	return s.findAuthor(ctx, `WHERE id = ?`, id)
}

// FindAuthorByUsername returns the author with the given username.
func (s *Store) FindAuthorByUsername(ctx context.Context, username string) (*record.Author, error) {
	return s.findAuthor(ctx, `WHERE username = ?`, username)
}

func (s *Store) findAuthor(ctx context.Context, where string, arg any) (*record.Author, error) {
	var a record.Author
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, role, created_at FROM authors `+where,
		arg,
	).Scan(&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("author %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find author %v: %w", arg, err)
	}
	if a.CreatedAt, err = parseUTC(created); err != nil {
		return nil, fmt.Errorf("author %v: %w", arg, err)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.Record, error) {
	var (
		r                            record.Record
		category, state              string
		recordedAt, created, updated string
		committedAt                  sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.SubjectID, &r.AuthorID, &r.Diagnosis, &r.Treatment, &r.Prescription, &r.Notes,
		&category, &recordedAt,
		&state, &r.Digest, &r.PreviousDigest, &r.TxID, &r.Committed, &committedAt,
		&r.CreatedBy, &r.ModifiedBy, &created, &updated, &r.Deleted, &r.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}

	r.Category = record.Category(category)
	r.State = record.State(state)
	if r.RecordedAt, err = parseWall(recordedAt); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseUTC(created); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseUTC(updated); err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	if committedAt.Valid {
		at, err := parseUTC(committedAt.String)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		r.CommittedAt = &at
	}
	return &r, nil
}

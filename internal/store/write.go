package store

import (
	"context"
	"fmt"

	"github.com/roach88/medledger/internal/record"
)

// CreateSubject inserts a subject and assigns its ID and CreatedAt.
func (s *Store) CreateSubject(ctx context.Context, subj *record.Subject) error {
	subj.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects
		(first_name, middle_name, last_name, date_of_birth, blood_type, gender, email, phone, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		subj.FirstName,
		subj.MiddleName,
		subj.LastName,
		subj.DateOfBirth.Format(dateLayout),
		subj.BloodType,
		subj.Gender,
		subj.Email,
		subj.Phone,
		subj.Address,
		formatUTC(subj.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	if subj.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// CreateAuthor inserts an author. Usernames are unique.
func (s *Store) CreateAuthor(ctx context.Context, a *record.Author) error {
	a.CreatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authors (username, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.Username, a.FirstName, a.LastName, a.Role, formatUTC(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create author: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create author: %w", err)
	}
	return nil
}

// CreateRecord inserts a new Local record and assigns its ID.
// Linkage fields are ignored: a record only gains a digest through submission.
func (s *Store) CreateRecord(ctx context.Context, r *record.Record) error {
	now := s.now().UTC()
	r.State = record.StateLocal
	r.Digest, r.PreviousDigest, r.TxID = "", "", ""
	r.Committed, r.CommittedAt = false, nil
	r.Deleted = false
	r.CreatedAt, r.UpdatedAt = now, now
	r.Version = 0
	if r.Category == "" {
		r.Category = record.CategoryGeneral
	}
	if r.ModifiedBy == "" {
		r.ModifiedBy = r.CreatedBy
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO medical_records
		(subject_id, author_id, diagnosis, treatment, prescription, notes, category, recorded_at,
		 state, created_by, modified_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.SubjectID,
		r.AuthorID,
		r.Diagnosis,
		r.Treatment,
		r.Prescription,
		r.Notes,
		string(r.Category),
		formatWall(r.RecordedAt),
		string(r.State),
		r.CreatedBy,
		r.ModifiedBy,
		formatUTC(r.CreatedAt),
		formatUTC(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// SaveRecord writes every mutable field of r, guarded by its version.
//
// On success r.Version is incremented and UpdatedAt refreshed. If the stored
// version differs from r.Version the save is refused with ErrVersionConflict
// and r is left untouched.
func (s *Store) SaveRecord(ctx context.Context, r *record.Record) error {
	now := s.now().UTC()

	var committedAt any
	if r.CommittedAt != nil {
		committedAt = formatUTC(*r.CommittedAt)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE medical_records SET
			diagnosis = ?, treatment = ?, prescription = ?, notes = ?, category = ?, recorded_at = ?,
			state = ?, digest = ?, previous_digest = ?, tx_id = ?, committed = ?, committed_at = ?,
			modified_by = ?, updated_at = ?, deleted = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		r.Diagnosis,
		r.Treatment,
		r.Prescription,
		r.Notes,
		string(r.Category),
		formatWall(r.RecordedAt),
		string(r.State),
		r.Digest,
		r.PreviousDigest,
		r.TxID,
		r.Committed,
		committedAt,
		r.ModifiedBy,
		formatUTC(now),
		r.Deleted,
		r.ID,
		r.Version,
	)
	if err != nil {
		return fmt.Errorf("save record %d: %w", r.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save record %d: %w", r.ID, err)
	}
	if n == 0 {
		if _, err := s.FindRecord(ctx, r.ID); err != nil {
			return fmt.Errorf("save record %d: %w", r.ID, err)
		}
		return fmt.Errorf("save record %d at version %d: %w", r.ID, r.Version, ErrVersionConflict)
	}

	r.Version++
	r.UpdatedAt = now
	return nil
}

// SoftDeleteRecord marks a record deleted. It stays in the store and keeps its
// ledger linkage, but drops out of the subject's chain.
func (s *Store) SoftDeleteRecord(ctx context.Context, id int64, by string) error {
	r, err := s.FindRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	r.MarkDeleted(by)
	return s.SaveRecord(ctx, r)
}

// DeleteSubject physically removes a subject and, by cascade, its records.
func (s *Store) DeleteSubject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subject %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subject %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete subject %d: %w", id, ErrNotFound)
	}
	return nil
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/medledger/internal/record"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSubject inserts a valid subject.
func createTestSubject(t *testing.T, s *Store) *record.Subject {
	t.Helper()
	subj := &record.Subject{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1985, 12, 10, 0, 0, 0, 0, time.UTC),
		BloodType:   "O+",
		Gender:      "FEMALE",
	}
	if err := s.CreateSubject(context.Background(), subj); err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subj
}

// createTestAuthor inserts an author with the given username.
func createTestAuthor(t *testing.T, s *Store, username string) *record.Author {
	t.Helper()
	a := &record.Author{Username: username, FirstName: "Gregory", LastName: "House", Role: "DOCTOR"}
	if err := s.CreateAuthor(context.Background(), a); err != nil {
		t.Fatalf("CreateAuthor() failed: %v", err)
	}
	return a
}

// createTestRecord inserts a Local record for subject, authored by author.
func createTestRecord(t *testing.T, s *Store, subjectID, authorID int64, at time.Time) *record.Record {
	t.Helper()
	r := &record.Record{
		SubjectID:  subjectID,
		AuthorID:   authorID,
		Diagnosis:  "Fractured tibia",
		Treatment:  "Cast applied, 6 week follow-up",
		Category:   record.CategoryDiagnosis,
		RecordedAt: at,
		CreatedBy:  "house",
	}
	if err := s.CreateRecord(context.Background(), r); err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return r
}

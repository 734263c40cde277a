package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medledger/internal/digest"
	"github.com/roach88/medledger/internal/record"
)

var recordedAt = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func TestCreateRecord_AssignsIDAndResetsLinkage(t *testing.T) {
	s := createTestStore(t)
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")

	r := &record.Record{
		SubjectID:  subj.ID,
		AuthorID:   author.ID,
		Diagnosis:  "Fractured tibia",
		Treatment:  "Cast applied",
		RecordedAt: recordedAt,
		Digest:     "smuggled",
		TxID:       "tx-smuggled",
		Committed:  true,
		CreatedBy:  "house",
	}
	require.NoError(t, s.CreateRecord(context.Background(), r))

	assert.NotZero(t, r.ID)
	assert.Equal(t, record.StateLocal, r.State)
	assert.Equal(t, record.CategoryGeneral, r.Category)
	assert.Empty(t, r.Digest)
	assert.Empty(t, r.TxID)
	assert.False(t, r.Committed)
	assert.Equal(t, "house", r.ModifiedBy)
	assert.Zero(t, r.Version)
	assert.Equal(t, testNow, r.CreatedAt)
}

func TestCreateRecord_RequiresSubject(t *testing.T) {
	s := createTestStore(t)
	author := createTestAuthor(t, s, "house")

	r := &record.Record{SubjectID: 999, AuthorID: author.ID, Diagnosis: "x", Treatment: "y", RecordedAt: recordedAt}
	err := s.CreateRecord(context.Background(), r)
	assert.Error(t, err, "foreign key must reject unknown subject")
}

func TestCreateAuthor_UniqueUsername(t *testing.T) {
	s := createTestStore(t)
	createTestAuthor(t, s, "house")

	err := s.CreateAuthor(context.Background(), &record.Author{Username: "house"})
	assert.Error(t, err)
}

func TestSaveRecord_PersistsLinkageAndBumpsVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")
	r := createTestRecord(t, s, subj.ID, author.ID, recordedAt)

	require.NoError(t, r.BeginSubmit(digest.Sentinel))
	committedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.Commit("tx-1", committedAt))
	require.NoError(t, s.SaveRecord(ctx, r))
	assert.EqualValues(t, 1, r.Version)

	got, err := s.FindRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, record.StateCommitted, got.State)
	assert.True(t, got.Committed)
	assert.Equal(t, "tx-1", got.TxID)
	assert.Equal(t, r.Digest, got.Digest)
	assert.Equal(t, digest.Sentinel, got.PreviousDigest)
	require.NotNil(t, got.CommittedAt)
	assert.True(t, committedAt.Equal(*got.CommittedAt))
	assert.EqualValues(t, 1, got.Version)
	assert.True(t, got.VerifyDigest(), "stored content must reproduce the stored digest")
}

func TestSaveRecord_VersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")
	r := createTestRecord(t, s, subj.ID, author.ID, recordedAt)

	a, err := s.FindRecord(ctx, r.ID)
	require.NoError(t, err)
	b, err := s.FindRecord(ctx, r.ID)
	require.NoError(t, err)

	require.NoError(t, a.Edit("Fractured fibula", a.Treatment, "", "", "wilson"))
	require.NoError(t, s.SaveRecord(ctx, a))

	require.NoError(t, b.Edit("Sprained ankle", b.Treatment, "", "", "cuddy"))
	err = s.SaveRecord(ctx, b)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.EqualValues(t, 0, b.Version, "failed save must not touch the record")

	got, err := s.FindRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fractured fibula", got.Diagnosis)
}

func TestSaveRecord_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.SaveRecord(context.Background(), &record.Record{ID: 42, State: record.StateLocal})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")
	r := createTestRecord(t, s, subj.ID, author.ID, recordedAt)

	require.NoError(t, s.SoftDeleteRecord(ctx, r.ID, "cuddy"))

	got, err := s.FindRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, record.StateDeleted, got.Status())
	assert.Equal(t, "cuddy", got.ModifiedBy)

	assert.ErrorIs(t, s.SoftDeleteRecord(ctx, 999, "cuddy"), ErrNotFound)
}

func TestDeleteSubject_CascadesToRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")
	r := createTestRecord(t, s, subj.ID, author.ID, recordedAt)

	require.NoError(t, s.DeleteSubject(ctx, subj.ID))

	_, err := s.FindRecord(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindSubject(ctx, subj.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteSubject(ctx, subj.ID), ErrNotFound)
}

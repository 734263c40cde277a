package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medledger/internal/record"
)

func TestFindRecord_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FindRecord(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindRecord_RoundTripsWallClock(t *testing.T) {
	s := createTestStore(t)
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")

	// A zoned timestamp keeps its wall clock; the digest covers the wall clock.
	zone := time.FixedZone("CET", 3600)
	at := time.Date(2023, 11, 20, 14, 5, 30, 125_000_000, zone)
	r := createTestRecord(t, s, subj.ID, author.ID, at)

	got, err := s.FindRecord(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-20T14:05:30.125", got.RecordedAt.Format("2006-01-02T15:04:05.000"))
	assert.Equal(t, r.ComputeDigest(), got.ComputeDigest())
}

func TestFindBySubject_ChainOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	other := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")

	late := createTestRecord(t, s, subj.ID, author.ID, recordedAt.Add(48*time.Hour))
	early := createTestRecord(t, s, subj.ID, author.ID, recordedAt)
	tieA := createTestRecord(t, s, subj.ID, author.ID, recordedAt.Add(24*time.Hour))
	tieB := createTestRecord(t, s, subj.ID, author.ID, recordedAt.Add(24*time.Hour))
	createTestRecord(t, s, other.ID, author.ID, recordedAt)
	require.NoError(t, s.SoftDeleteRecord(ctx, tieA.ID, "cuddy"))

	got, err := s.FindBySubject(ctx, subj.ID)
	require.NoError(t, err)

	ids := make([]int64, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []int64{early.ID, tieA.ID, tieB.ID, late.ID}, ids, "deleted records are included")
	assert.True(t, got[1].Deleted)
}

func TestFindBySubject_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.FindBySubject(context.Background(), 77)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindByStateAndCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")

	a := createTestRecord(t, s, subj.ID, author.ID, recordedAt)
	createTestRecord(t, s, subj.ID, author.ID, recordedAt.Add(time.Hour))
	deleted := createTestRecord(t, s, subj.ID, author.ID, recordedAt.Add(2*time.Hour))
	require.NoError(t, s.SoftDeleteRecord(ctx, deleted.ID, "cuddy"))

	require.NoError(t, a.BeginSubmit("0"))
	require.NoError(t, s.SaveRecord(ctx, a))

	pending, err := s.FindByState(ctx, record.StatePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[record.State]int{record.StatePending: 1, record.StateLocal: 1}, counts)
}

func TestFindSubjectAndAuthor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s)
	author := createTestAuthor(t, s, "house")

	gotSubj, err := s.FindSubject(ctx, subj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", gotSubj.FullName())
	assert.Equal(t, time.Date(1985, 12, 10, 0, 0, 0, 0, time.UTC), gotSubj.DateOfBirth)
	assert.Equal(t, testNow, gotSubj.CreatedAt)

	gotAuthor, err := s.FindAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gregory House", gotAuthor.FullName())

	byName, err := s.FindAuthorByUsername(ctx, "house")
	require.NoError(t, err)
	assert.Equal(t, author.ID, byName.ID)

	_, err = s.FindAuthor(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindAuthorByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindSubject(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

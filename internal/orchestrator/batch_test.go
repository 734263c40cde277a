package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

func TestBatchSubmit_OneFailureIsItemized(t *testing.T) {
	h := newHarness(t)
	const n, k = 5, 3

	ids := make([]int64, n)
	for i := range ids {
		if i+1 == k {
			ids[i] = h.record(t, h.subject(t), t0, "Flu", "Rest and fluids")
			continue
		}
		ids[i] = h.simpleRecord(t, h.subject(t), t0)
	}

	res := h.orch.BatchSubmit(context.Background(), ids)

	assert.Len(t, res.Succeeded, n-1)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, ids[k-1], res.Failed[0].RecordID)
	assert.True(t, HasCode(res.Failed[0].Err, ErrCodeValidation))
	assert.Equal(t, []int64{ids[0], ids[1], ids[3], ids[4]}, res.Succeeded, "input order is kept")
	assert.Error(t, res.Err())

	for _, id := range res.Succeeded {
		assert.Equal(t, record.StateCommitted, h.load(t, id).State)
	}
}

func TestBatchSubmit_LedgerFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t, withOptions(WithBatchConcurrency(1)))
	ids := []int64{
		h.simpleRecord(t, h.subject(t), t0),
		h.simpleRecord(t, h.subject(t), t0),
		h.simpleRecord(t, h.subject(t), t0),
	}
	h.faults.inject(faultRejected)

	res := h.orch.BatchSubmit(context.Background(), ids)

	assert.Equal(t, ids[1:], res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, ids[0], res.Failed[0].RecordID)
	assert.True(t, ledger.IsCode(res.Failed[0].Err, ledger.ErrCodeRejected))
}

func TestBatchSubmit_PreservesSubjectOrder(t *testing.T) {
	h := newHarness(t)
	subject := h.subject(t)
	first := h.simpleRecord(t, subject, t0)
	second := h.simpleRecord(t, subject, t0.Add(time.Hour))
	third := h.simpleRecord(t, subject, t0.Add(2*time.Hour))
	other := h.simpleRecord(t, h.subject(t), t0)

	res := h.orch.BatchSubmit(context.Background(), []int64{third, other, first, second, first})

	require.NoError(t, res.Err())
	assert.Equal(t, []int64{third, other, first, second}, res.Succeeded, "duplicates are submitted once")

	report, err := h.orch.VerifyChain(context.Background(), subject)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Len(t, report.Links, 3)
}

func TestBatchSubmit_ChainFailurePropagatesWithinSubject(t *testing.T) {
	h := newHarness(t)
	subject := h.subject(t)
	bad := h.record(t, subject, t0, "Flu", "Rest and fluids")
	after := h.simpleRecord(t, subject, t0.Add(time.Hour))

	res := h.orch.BatchSubmit(context.Background(), []int64{bad, after})

	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.True(t, HasCode(res.Failed[0].Err, ErrCodeValidation))
	assert.True(t, IsChainBroken(res.Failed[1].Err))
}

func TestBatchSubmit_UnknownRecord(t *testing.T) {
	h := newHarness(t)
	id := h.simpleRecord(t, h.subject(t), t0)

	res := h.orch.BatchSubmit(context.Background(), []int64{404, id})

	assert.Equal(t, []int64{id}, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.True(t, IsNotFound(res.Failed[0].Err))
}

func TestBatchSubmit_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ids := []int64{h.simpleRecord(t, h.subject(t), t0), h.simpleRecord(t, h.subject(t), t0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.BatchSubmit(ctx, ids)

	assert.Empty(t, res.Succeeded)
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.True(t, ledger.IsCode(f.Err, ledger.ErrCodeInterrupted), f.Err)
		assert.True(t, IsRetryable(f.Err))
	}
	assert.Zero(t, h.faults.createCalls())
	assert.Equal(t, record.StateLocal, h.load(t, ids[0]).State)
}

func TestBatchSubmit_CancelDuringBatchFinishesDispatchedItem(t *testing.T) {
	h := newHarness(t, withOptions(WithBatchConcurrency(1)))
	subject := h.subject(t)
	ids := []int64{
		h.simpleRecord(t, subject, t0),
		h.simpleRecord(t, subject, t0.Add(time.Hour)),
		h.simpleRecord(t, subject, t0.Add(2*time.Hour)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.faults.onSubmit = cancel

	res := h.orch.BatchSubmit(ctx, ids)

	assert.Equal(t, []int64{ids[0]}, res.Succeeded, "the dispatched item completes despite cancellation")
	require.Len(t, res.Failed, 2)
	for _, f := range res.Failed {
		assert.True(t, ledger.IsCode(f.Err, ledger.ErrCodeInterrupted), f.Err)
	}
	assert.Equal(t, record.StateCommitted, h.load(t, ids[0]).State)
	assert.Equal(t, record.StateLocal, h.load(t, ids[1]).State)
}

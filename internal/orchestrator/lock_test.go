package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectLocks_ExcludesSameSubject(t *testing.T) {
	locks := newSubjectLocks()

	release, err := locks.acquire(context.Background(), 1)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		r, err := locks.acquire(context.Background(), 1)
		assert.NoError(t, err)
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	second := <-acquired
	second()
	assert.Zero(t, locks.size())
}

func TestSubjectLocks_DifferentSubjectsDoNotContend(t *testing.T) {
	locks := newSubjectLocks()

	a, err := locks.acquire(context.Background(), 1)
	require.NoError(t, err)
	b, err := locks.acquire(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, locks.size())

	a()
	b()
	assert.Zero(t, locks.size())
}

func TestSubjectLocks_CancelWhileWaiting(t *testing.T) {
	locks := newSubjectLocks()
	release, err := locks.acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, 1)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locks.size(), "the holder's entry survives a cancelled waiter")
}

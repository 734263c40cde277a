package orchestrator

import (
	"context"
	"sync"
)

// subjectLocks serializes chain-mutating operations per subject.
// Locks for different subjects never contend. Entries are dropped once
// no holder or waiter remains.
type subjectLocks struct {
	mu    sync.Mutex
	locks map[int64]*subjectLock
}

type subjectLock struct {
	sem  chan struct{}
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{locks: make(map[int64]*subjectLock)}
}

// acquire blocks until the subject's lock is held or ctx is done.
// The returned release must be called exactly once.
func (s *subjectLocks) acquire(ctx context.Context, subjectID int64) (release func(), err error) {
	s.mu.Lock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &subjectLock{sem: make(chan struct{}, 1)}
		s.locks[subjectID] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			s.unref(subjectID, l)
		}, nil
	case <-ctx.Done():
		s.unref(subjectID, l)
		return nil, ctx.Err()
	}
}

func (s *subjectLocks) unref(subjectID int64, l *subjectLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, subjectID)
	}
}

// size reports tracked subjects. Used for testing.
func (s *subjectLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

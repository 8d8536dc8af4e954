package service

import (
	"context"
	"sync"
)

// OwnerLocks serializes work per owner inside one process. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type OwnerLocks struct {
	mu    sync.Mutex
	locks map[int64]*ownerLock
}

type ownerLock struct {
	sem  chan struct{} // one slot; holding it is holding the lock
	refs int
}

// NewOwnerLocks creates an empty lock table.
func NewOwnerLocks() *OwnerLocks {
	return &OwnerLocks{locks: make(map[int64]*ownerLock)}
}

// Lock blocks until the caller holds ownerID's lock and returns its release
// func. If ctx ends first it gives up and returns ctx.Err().
func (l *OwnerLocks) Lock(ctx context.Context, ownerID int64) (unlock func(), err error) {
	l.mu.Lock()
	ol, ok := l.locks[ownerID]
	if !ok {
		ol = &ownerLock{sem: make(chan struct{}, 1)}
		l.locks[ownerID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	select {
	case ol.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(ownerID, ol)
		return nil, ctx.Err()
	}

	return func() {
		<-ol.sem
		l.release(ownerID, ol)
	}, nil
}

func (l *OwnerLocks) release(ownerID int64, ol *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ol.refs--
	if ol.refs == 0 {
		delete(l.locks, ownerID)
	}
}

func (l *OwnerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

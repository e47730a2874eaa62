package repository

import "sync"

// ItemLocks serializes writers per local id. Different items proceed in
// parallel; two writers on the same item queue up. A single instance is
// shared by every component that mutates vault items, so a manual edit, a
// reconciliation run, and the relist pipeline can never interleave their
// read-modify-write cycles on one item.
type ItemLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewItemLocks creates an empty lock set.
func NewItemLocks() *ItemLocks {
	return &ItemLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for one item and returns its unlock func.
func (l *ItemLocks) Lock(localID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[localID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[localID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

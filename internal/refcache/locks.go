package refcache

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLocks provides one mutex per repository key. Operations on different
// keys proceed in parallel; operations on the same key serialize.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns the
// unlock function. Lock entries are never removed; the key space (cached
// repositories) is small and bounded by the allow-list.
func (k *keyedLocks) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, found := k.locks[key]
	if !found {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Gate caps the number of simultaneous clone/fetch-class operations across
// all repositories. Waiters are admitted in FIFO order as slots free up; a
// waiter can block indefinitely unless its context is cancelled.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate with the given number of slots.
func NewGate(slots int) *Gate {
	if slots < 1 {
		slots = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(slots))}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a previously acquired slot.
func (g *Gate) Release() {
	g.sem.Release(1)
}

package indexer

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state      atomic.Int32 // 0 = unlocked, 1 = locked
	generation atomic.Value // string: id of the in-flight build, if any
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise. A
// fresh generation id is minted on every successful acquire so a caller
// (internal/search's buildCoordinator) can tag log lines for one lazy
// index build without the id colliding with the next one.
func (l *IndexLock) TryAcquire() bool {
	acquired := l.state.CompareAndSwap(0, 1)
	if acquired {
		l.generation.Store(uuid.NewString())
	}
	return acquired
}

// Generation returns the id minted by the most recent successful
// TryAcquire, or "" if the lock has never been acquired.
func (l *IndexLock) Generation() string {
	v, _ := l.generation.Load().(string)
	return v
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

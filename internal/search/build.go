package search

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/ervantix/semcode-mcp/internal/indexer"
)

// buildCoordinator implements §5's lazy single-flight index build: the
// first search to find the store empty becomes the builder; every
// concurrent search that arrives while a build is running awaits the same
// in-flight future instead of starting (or skipping) its own. The
// builder/waiter decision is gated by indexer.IndexLock's atomic CAS
// (internal/indexer/lock.go); the channel under the same mutex gives
// waiters something to block on, which IndexLock's bare TryAcquire/Release
// does not provide by itself.
type buildCoordinator struct {
	mu     sync.Mutex
	lock   indexer.IndexLock
	done   chan struct{}
	err    error
	logger *log.Logger
}

func (b *buildCoordinator) ensure(ctx context.Context, build func(context.Context) error) error {
	logger := b.logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	b.mu.Lock()
	if b.done != nil {
		ch := b.done
		gen := b.lock.Generation()
		b.mu.Unlock()
		logger.Printf("search: awaiting in-flight index build generation=%s", gen)
		select {
		case <-ch:
			b.mu.Lock()
			err := b.err
			b.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !b.lock.TryAcquire() {
		// done == nil implies the lock should be free; fall back to a
		// direct call rather than deadlock if that invariant is ever violated.
		b.mu.Unlock()
		return build(ctx)
	}
	ch := make(chan struct{})
	b.done = ch
	gen := b.lock.Generation()
	b.mu.Unlock()

	logger.Printf("search: starting lazy index build generation=%s", gen)
	err := build(ctx)
	if err != nil {
		logger.Printf("search: index build generation=%s failed: %v", gen, err)
	} else {
		logger.Printf("search: index build generation=%s complete", gen)
	}

	b.mu.Lock()
	b.err = err
	b.done = nil
	b.mu.Unlock()
	b.lock.Release()
	close(ch)
	return err
}

// Package asyncaction implements a keyed registry of in-flight asynchronous
// filesystem operations with a bounded concurrency budget. It is the
// mechanism by which the installer guarantees that a package's dependency
// link farm is only built after that package's own store materialisation
// has completed, without the host needing to track that ordering itself.
package asyncaction

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// maxConcurrentFactories bounds the number of factories running at any
// instant across the whole table, independent of how many distinct keys
// have work queued.
const maxConcurrentFactories = 10

// Factory is the unit of work scheduled under a key.
type Factory func(ctx context.Context) (any, error)

// Chain builds a Factory from the promise that preceded it on the same
// key. prev is already the out-param of the prior task for this key (or a
// closed, nil-valued Handle if none existed yet).
type Chain func(ctx context.Context, prev *Handle) (any, error)

// Handle is a stable reference to one scheduled task's eventual result.
type Handle struct {
	done chan struct{}
	val  any
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) settle(val any, err error) {
	h.val, h.err = val, err
	close(h.done)
}

// Wait blocks until this specific task has settled and returns its result.
// A Handle obtained from a superseded task still settles with that task's
// own outcome — promises don't vanish — but Table.Latest(key) will no
// longer return it once a later Set/Reduce call replaces it.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type slot struct {
	mu      sync.Mutex
	current *Handle
}

// Table is safe for concurrent use by multiple goroutines.
type Table struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	slots   map[string]*slot
	pending sync.WaitGroup
}

// New returns an empty Table with the standard concurrency ceiling.
func New() *Table {
	return &Table{
		sem:   semaphore.NewWeighted(maxConcurrentFactories),
		slots: make(map[string]*slot),
	}
}

func (t *Table) slotFor(key string) *slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		s = &slot{}
		t.slots[key] = s
	}
	return s
}

// Latest returns the handle for the most recently scheduled task under key,
// or nil if nothing has ever been scheduled for it.
func (t *Table) Latest(key string) *Handle {
	s := t.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set enqueues factory under key, replacing whatever task was previously
// current for that key, and returns a handle tracking this invocation's
// result. The factory runs under the table's bounded semaphore.
func (t *Table) Set(ctx context.Context, key string, factory Factory) *Handle {
	s := t.slotFor(key)
	h := newHandle()

	s.mu.Lock()
	s.current = h
	s.mu.Unlock()

	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		if err := t.sem.Acquire(ctx, 1); err != nil {
			h.settle(nil, err)
			return
		}
		defer t.sem.Release(1)

		val, err := factory(ctx)
		h.settle(val, err)
	}()

	return h
}

// Reduce composes a new task that first observes the task currently
// in-flight for key (or an already-settled nil handle if none exists), then
// runs chain, and installs the result via Set. This is how the installer
// gates a dependency link farm's construction on its own package's
// materialisation: attach-dependencies reduces on the same locator hash
// that materialise set.
func (t *Table) Reduce(ctx context.Context, key string, chain Chain) *Handle {
	prev := t.Latest(key)
	if prev == nil {
		prev = newHandle()
		prev.settle(nil, nil)
	}
	return t.Set(ctx, key, func(ctx context.Context) (any, error) {
		return chain(ctx, prev)
	})
}

// Wait blocks until every task registered so far — current or superseded —
// has settled.
func (t *Table) Wait() {
	t.pending.Wait()
}

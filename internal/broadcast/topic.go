// Package broadcast provides the multi-subscriber topic primitive the
// subscription registry is built on.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"golang.org/x/sync/errgroup"
)

// Handler consumes one published value. Handlers of one publish run in
// parallel and the publish returns only after all of them finish.
type Handler[T any] func(ctx context.Context, v T) error

// Handle identifies one listener registration. Closing it is safe at
// any time, including from inside a handler while a publish for the
// same topic is in flight; the handler is never invoked again after
// Close returns.
type Handle[T any] struct {
	id     uuid.UUID
	fn     Handler[T]
	closed atomic.Bool
}

// Close invalidates the registration. Idempotent; late calls no-op.
func (h *Handle[T]) Close() {
	if h == nil {
		return
	}
	h.closed.Store(true)
}

// Closed reports whether the handle was invalidated.
func (h *Handle[T]) Closed() bool {
	return h == nil || h.closed.Load()
}

// ID returns the registration id.
func (h *Handle[T]) ID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.id
}

// Topic is a broadcast channel for one event kind.
//
// Dispatch iterates over a snapshot of the listener list taken at
// publish start, so listeners may unsubscribe themselves mid-dispatch;
// closed handles are compacted lazily after the dispatch turn.
type Topic[T any] struct {
	mu      sync.Mutex
	handles []*Handle[T]
	torn    bool
}

// NewTopic creates an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{}
}

// Subscribe attaches a handler and returns its handle. A nil handler
// or a torn-down topic yields an already-closed handle.
func (t *Topic[T]) Subscribe(fn Handler[T]) *Handle[T] {
	h := &Handle[T]{id: uuid.New(), fn: fn}
	if fn == nil {
		h.Close()
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.torn {
		h.Close()
		return h
	}
	t.handles = append(t.handles, h)
	return h
}

// Len returns the number of live registrations.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, h := range t.handles {
		if !h.Closed() {
			n++
		}
	}
	return n
}

// Publish invokes every live listener in parallel and waits for all of
// them. The first handler error is returned after the whole fan-out
// settles.
func (t *Topic[T]) Publish(ctx context.Context, v T) error {
	t.mu.Lock()
	if t.torn || len(t.handles) == 0 {
		t.mu.Unlock()
		return nil
	}
	snapshot := make([]*Handle[T], len(t.handles))
	copy(snapshot, t.handles)
	t.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, h := range snapshot {
		if h.Closed() {
			continue
		}
		fn, h := h.fn, h
		eg.Go(func() error {
			// The handle may have closed between snapshot and here.
			if h.Closed() {
				return nil
			}
			return fn(ctx, v)
		})
	}
	err := eg.Wait()
	t.compact()
	return err
}

// Teardown invalidates every handle and rejects future subscriptions.
// All operations on the topic and its handles no-op afterward.
func (t *Topic[T]) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.torn = true
	for _, h := range t.handles {
		h.Close()
	}
	t.handles = nil
}

func (t *Topic[T]) compact() {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.handles[:0]
	for _, h := range t.handles {
		if !h.Closed() {
			live = append(live, h)
		}
	}
	t.handles = live
}

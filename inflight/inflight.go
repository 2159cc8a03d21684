// Package inflight implements tiercache's stampede-prevention registry:
// at most one fetch runs per key at a time, and every concurrent
// caller for that key observes the same resolved value.
//
// golang.org/x/sync/singleflight was considered but it has no
// cancellation hook and no way to evict a still-running call
// from the registry's visible state, which CancelAll needs (Len() must
// read 0 immediately after CancelAll, even if the underlying fetch is
// still unwinding). Hand-rolled instead: each fetch runs in its own
// goroutine, and every joiner blocks on a shared "done" channel.
package inflight

import (
	"context"
	"sync"
)

// call is one outstanding fetch, shared by every awaiter that joined
// it via GetOrStart before it resolved.
type call[V any] struct {
	done   chan struct{}
	result V
	found  bool
	err    error
	cancel context.CancelFunc
}

// Registry maps keys to outstanding fetches.
type Registry[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]
}

// New returns an empty Registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{calls: make(map[K]*call[V])}
}

// Len reports the number of outstanding fetches (for tests/metrics).
func (r *Registry[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// GetOrStart joins an outstanding fetch for key if one exists;
// otherwise it starts one in a new goroutine by invoking task, and
// removes the registry entry once task resolves, regardless of
// outcome. Every awaiter that joined the same call observes the same
// result and error. task receives a context derived from ctx that is
// cancelled if CancelAll runs before it resolves; cancelling ctx itself
// does not cancel the shared task.
func (r *Registry[K, V]) GetOrStart(ctx context.Context, key K, task func(ctx context.Context) (V, bool, error)) (V, bool, error) {
	r.mu.Lock()
	if c, ok := r.calls[key]; ok {
		r.mu.Unlock()
		<-c.done
		return c.result, c.found, c.err
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call[V]{done: make(chan struct{}), cancel: cancel}
	r.calls[key] = c
	r.mu.Unlock()

	go func() {
		result, found, err := task(taskCtx)

		r.mu.Lock()
		c.result, c.found, c.err = result, found, err
		if r.calls[key] == c {
			delete(r.calls, key)
		}
		r.mu.Unlock()

		close(c.done)
	}()

	<-c.done
	return c.result, c.found, c.err
}

// CancelAll cancels every outstanding fetch's context and immediately
// evicts them from the registry, so Len() reads 0 as soon as CancelAll
// returns. Awaiters already blocked in GetOrStart are unaffected by
// the eviction itself; they keep waiting on their call's done channel
// until the underlying task actually returns, whether that's right
// away (if the task honors ctx.Done) or after it runs to completion.
func (r *Registry[K, V]) CancelAll() {
	r.mu.Lock()
	calls := make([]*call[V], 0, len(r.calls))
	for k, c := range r.calls {
		calls = append(calls, c)
		delete(r.calls, k)
	}
	r.mu.Unlock()

	for _, c := range calls {
		c.cancel()
	}
}

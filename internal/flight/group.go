// Package flight coalesces concurrent calls that share a key into a single
// execution. Keys are compared by value, so two structurally identical
// composite keys always join the same call.
package flight

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group tracks in-flight calls by key.
//
// The function passed to Do runs on its own goroutine with a context that is
// detached from the caller's cancellation: a caller that gives up stops
// waiting but does not abort the shared call for everyone else.
type Group[K comparable, V any] struct {
	// Linger keeps a settled call visible for this long. Callers arriving in
	// that window receive the settled result without a new execution. Zero
	// removes the entry as soon as the call settles.
	Linger time.Duration

	mu    sync.Mutex
	calls map[K]*call[V]
}

// Do executes fn once for all concurrent callers with an equal key. shared
// reports whether the result came from a call started by another caller.
// When ctx ends before the call settles Do returns ctx.Err().
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}
	c, ok := g.calls[key]
	if !ok {
		c = &call[V]{done: make(chan struct{})}
		g.calls[key] = c
		go g.run(context.WithoutCancel(ctx), key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, ok, c.err
	case <-ctx.Done():
		var zero V
		return zero, ok, ctx.Err()
	}
}

// Pending reports how many keys currently have an entry, including settled
// calls that are still lingering.
func (g *Group[K, V]) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Forget drops the entry for key so the next Do starts a fresh call.
// Callers already waiting on the old call still receive its result.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

func (g *Group[K, V]) run(ctx context.Context, key K, c *call[V], fn func(context.Context) (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("flight: call panicked: %v", r)
		}
		close(c.done)
		if g.Linger <= 0 {
			g.release(key, c)
			return
		}
		time.AfterFunc(g.Linger, func() { g.release(key, c) })
	}()
	c.val, c.err = fn(ctx)
}

func (g *Group[K, V]) release(key K, c *call[V]) {
	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()
}

// Package cache provides the read-through layers of the resolution cache.
// A Layer maps string keys to immutable values. Entries are written once
// and only on success; concurrent computations of one key are shared.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Stats counts layer activity.
type Stats struct {
	Hits   int64
	Misses int64
	Writes int64
}

// Layer is one cache level.
type Layer[V any] struct {
	entries sync.Map // string -> V
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

// NewLayer returns an empty layer.
func NewLayer[V any]() *Layer[V] {
	return &Layer[V]{}
}

// Peek returns the cached value for key without computing it.
func (l *Layer[V]) Peek(key string) (V, bool) {
	v, ok := l.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Lookup is Peek that counts the hit or miss.
func (l *Layer[V]) Lookup(key string) (V, bool) {
	v, ok := l.Peek(key)
	if ok {
		l.hits.Add(1)
	} else {
		l.misses.Add(1)
	}
	return v, ok
}

// Get returns the cached value for key, computing it on a miss. Concurrent
// misses on one key share a single compute call, which runs detached from
// ctx so that a caller giving up does not fail the others. A failed
// compute stores nothing.
func (l *Layer[V]) Get(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	if v, ok := l.Lookup(key); ok {
		return v, nil
	}

	ch := l.group.DoChan(key, func() (any, error) {
		if v, ok := l.Peek(key); ok {
			return v, nil
		}
		v, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		v, _ = l.Store(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero V
			return zero, r.Err
		}
		return r.Val.(V), nil
	}
}

// Store writes v under key unless a value is already present, and returns
// the value that ends up cached. stored is false when an earlier writer
// won.
func (l *Layer[V]) Store(key string, v V) (actual V, stored bool) {
	prev, loaded := l.entries.LoadOrStore(key, v)
	if loaded {
		return prev.(V), false
	}
	l.writes.Add(1)
	return v, true
}

// Forget drops key. In-flight computations are not interrupted, but later
// calls start a fresh one.
func (l *Layer[V]) Forget(key string) {
	l.entries.Delete(key)
	l.group.Forget(key)
}

// Stats returns a snapshot of the layer counters.
func (l *Layer[V]) Stats() Stats {
	return Stats{Hits: l.hits.Load(), Misses: l.misses.Load(), Writes: l.writes.Load()}
}

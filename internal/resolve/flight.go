package resolve

import (
	"context"
	"sync"

	"github.com/scenariokit/scenariocat/internal/entity"
	"github.com/scenariokit/scenariocat/internal/graph"
)

// call is one in-flight entity computation.
type call struct {
	done  chan struct{}
	owner *graph.Traversal

	// Set before done is closed.
	entity   *entity.Entity
	err      error
	retry    bool // err belongs to the owner's chain, not the fingerprint
	finished bool
}

// flights tracks in-flight computations by fingerprint and which chain
// waits on which computation. A chain never joins a computation whose
// owner is, directly or through other waiting chains, waiting on it.
type flights struct {
	mu      sync.Mutex
	calls   map[string]*call
	waiting map[*graph.Traversal]*call
}

func newFlights() *flights {
	return &flights{
		calls:   make(map[string]*call),
		waiting: make(map[*graph.Traversal]*call),
	}
}

// acquire registers tr's interest in key. owned reports that tr created
// the call and must finish it. Otherwise join reports whether tr may wait
// on it; when it may not, tr computes key itself without a call.
func (f *flights) acquire(key string, tr *graph.Traversal) (c *call, owned, join bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.calls[key]
	if !ok {
		c = &call{done: make(chan struct{}), owner: tr}
		f.calls[key] = c
		return c, true, false
	}
	if f.waitsOn(c.owner, tr) {
		return nil, false, false
	}
	f.waiting[tr] = c
	return c, false, true
}

// waitsOn reports whether chain o is tr or transitively waits on a
// computation owned by tr.
func (f *flights) waitsOn(o, tr *graph.Traversal) bool {
	for i, n := 0, len(f.waiting)+1; i < n; i++ {
		if o == tr {
			return true
		}
		c, ok := f.waiting[o]
		if !ok || c.finished {
			return false
		}
		o = c.owner
	}
	return false
}

// finish publishes the result of c and releases its waiters.
func (f *flights) finish(key string, c *call, e *entity.Entity, err error, retry bool) {
	f.mu.Lock()
	if f.calls[key] == c {
		delete(f.calls, key)
	}
	c.entity, c.err, c.retry = e, err, retry
	c.finished = true
	f.mu.Unlock()
	close(c.done)
}

// wait blocks until c finishes or ctx is done.
func (f *flights) wait(ctx context.Context, tr *graph.Traversal, c *call) error {
	defer func() {
		f.mu.Lock()
		if f.waiting[tr] == c {
			delete(f.waiting, tr)
		}
		f.mu.Unlock()
	}()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package graph tracks catalog dependencies. A Traversal colours the
// catalogs on one resolution chain and reports a cycle when a chain
// re-enters a catalog it is still inside; a Graph accumulates every edge
// discovered across chains for inspection.
package graph

import (
	"slices"

	"github.com/scenariokit/scenariocat/internal/caterr"
)

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// Traversal is the colouring of one top-level resolution chain. It is not
// safe for concurrent use; concurrent chains each get their own.
type Traversal struct {
	graph  *Graph
	stack  []string
	states map[string]visitState
}

// NewTraversal starts a chain that records nothing globally.
func NewTraversal() *Traversal {
	return &Traversal{states: make(map[string]visitState)}
}

// Enter pushes path onto the chain. Entering a path that is still on the
// chain fails with CircularDependency; the cycle runs from its first
// occurrence back to itself. Entering a finished path is fine: shared
// dependencies are not cycles. The returned release must be called when
// the path's resolution ends.
func (t *Traversal) Enter(path string) (release func(), err error) {
	if len(t.stack) > 0 && t.graph != nil {
		t.graph.AddEdge(t.stack[len(t.stack)-1], path)
	}

	if t.states[path] == stateVisiting {
		i := slices.Index(t.stack, path)
		cycle := append(slices.Clone(t.stack[i:]), path)
		return nil, &caterr.Error{Kind: caterr.CircularDependency, Path: path, Cycle: cycle}
	}

	t.stack = append(t.stack, path)
	t.states[path] = stateVisiting
	depth := len(t.stack)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		t.stack = t.stack[:depth-1]
		t.states[path] = stateDone
	}, nil
}

// Link records an edge from the innermost path on the chain to path
// without entering it. It is used when path's entity is already cached.
func (t *Traversal) Link(path string) {
	if len(t.stack) > 0 && t.graph != nil {
		t.graph.AddEdge(t.stack[len(t.stack)-1], path)
	}
}

// Stack returns the paths currently on the chain, outermost first.
func (t *Traversal) Stack() []string {
	return slices.Clone(t.stack)
}

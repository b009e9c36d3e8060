package graph

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
)

// Edge is a discovered dependency: a catalog From containing a reference
// into catalog To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph accumulates discovered dependencies. It is safe for concurrent use
// and only grows.
type Graph struct {
	mu    sync.RWMutex
	edges map[string][]string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[string][]string)}
}

// NewTraversal starts a chain whose edges are recorded in g.
func (g *Graph) NewTraversal() *Traversal {
	t := NewTraversal()
	t.graph = g
	return t
}

// AddEdge records that from depends on to. Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
}

// Dependencies returns the direct dependencies of path in discovery order.
func (g *Graph) Dependencies(path string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges[path])
}

// Edges returns every edge, sorted by From then To.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for from, tos := range g.edges {
		for _, to := range tos {
			out = append(out, Edge{From: from, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Cycles returns the cycles met by a depth-first walk of the recorded
// edges, each written from its first node back to itself. Starts are
// visited in sorted order so the result is stable.
func (g *Graph) Cycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	starts := make([]string, 0, len(g.edges))
	for n := range g.edges {
		starts = append(starts, n)
	}
	sort.Strings(starts)

	states := make(map[string]visitState, len(starts))
	var stack []string
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		switch states[n] {
		case stateVisiting:
			i := slices.Index(stack, n)
			cycles = append(cycles, append(slices.Clone(stack[i:]), n))
			return
		case stateDone:
			return
		}
		states[n] = stateVisiting
		stack = append(stack, n)
		for _, next := range g.edges[n] {
			visit(next)
		}
		stack = stack[:len(stack)-1]
		states[n] = stateDone
	}
	for _, s := range starts {
		visit(s)
	}
	return cycles
}

// Node is one catalog in a dependency tree.
type Node struct {
	Path     string  `json:"path"`
	Children []*Node `json:"children,omitempty"`
	Deduped  bool    `json:"deduped,omitempty"` // already shown earlier in the tree
	Cycle    bool    `json:"cycle,omitempty"`   // refers back to an ancestor
}

// Tree builds the dependency tree rooted at root from the recorded edges.
// A path shown earlier is marked Deduped and not expanded again; an edge
// back to an ancestor is marked Cycle.
func (g *Graph) Tree(root string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := make(map[string]bool)
	onPath := make(map[string]bool)
	return g.buildNode(root, seen, onPath)
}

func (g *Graph) buildNode(path string, seen, onPath map[string]bool) *Node {
	node := &Node{Path: path}
	if onPath[path] {
		node.Cycle = true
		return node
	}
	if seen[path] {
		node.Deduped = true
		return node
	}
	seen[path] = true
	onPath[path] = true
	for _, dep := range g.edges[path] {
		node.Children = append(node.Children, g.buildNode(dep, seen, onPath))
	}
	onPath[path] = false
	return node
}

// PrintTree prints the dependency tree with box-drawing characters.
func PrintTree(w io.Writer, node *Node, prefix string, isLast bool) {
	if node == nil {
		return
	}

	connector := "├── "
	if isLast {
		connector = "└── "
	}

	label := node.Path
	if node.Cycle {
		label += " (cycle)"
	} else if node.Deduped {
		label += " (deduped)"
	}

	// The root has no connector.
	if prefix == "" {
		fmt.Fprintf(w, "  %s\n", label)
	} else {
		fmt.Fprintf(w, "  %s%s%s\n", prefix, connector, label)
	}

	childPrefix := prefix
	if prefix != "" {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	} else {
		childPrefix = " "
	}

	for i, child := range node.Children {
		PrintTree(w, child, childPrefix, i == len(node.Children)-1)
	}
}

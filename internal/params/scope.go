// Package params implements parameter scopes and placeholder substitution.
//
// A Scope is an ordered stack of layers searched innermost-first. Resolving
// a catalog entry stacks, from lowest to highest priority: the enclosing
// scope, the catalog's declared defaults, the entry's declared defaults and
// the caller's bindings. Placeholders of the form ${name} are expanded
// against the whole scope, transitively, with cycle detection.
package params

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/scenariokit/scenariocat/internal/schema"
)

// Declaration is a declared parameter with an optional default.
type Declaration struct {
	Name     string
	Type     schema.ValueType
	Value    string
	HasValue bool
}

// Binding is a value visible in a scope.
type Binding struct {
	Name  string
	Type  schema.ValueType
	Value string
	Layer string
	// Expanded marks values that were already expanded against the scope
	// they came from; they are used verbatim and never rescanned.
	Expanded bool

	origin *Scope
}

// Layer is one level of a scope. Layers are immutable once pushed.
type Layer struct {
	Name   string
	values map[string]Binding
	order  []string
}

// NewLayer returns an empty layer.
func NewLayer(name string) *Layer {
	return &Layer{Name: name, values: make(map[string]Binding)}
}

// DeclarationLayer builds a layer from the defaults of decls. Declarations
// without a default are skipped.
func DeclarationLayer(name string, decls []Declaration) *Layer {
	l := NewLayer(name)
	for _, d := range decls {
		if !d.HasValue {
			continue
		}
		l.Set(Binding{Name: d.Name, Type: d.Type, Value: d.Value})
	}
	return l
}

// Set adds or replaces a binding.
func (l *Layer) Set(b Binding) {
	b.Layer = l.Name
	if _, ok := l.values[b.Name]; !ok {
		l.order = append(l.order, b.Name)
	}
	l.values[b.Name] = b
}

// Get returns the binding for name in this layer only.
func (l *Layer) Get(name string) (Binding, bool) {
	b, ok := l.values[name]
	return b, ok
}

// Names returns the layer's names in insertion order.
func (l *Layer) Names() []string {
	return append([]string(nil), l.order...)
}

// Len returns the number of bindings.
func (l *Layer) Len() int { return len(l.order) }

// Scope is a stack of layers. The zero value and nil are empty scopes.
type Scope struct {
	layers []*Layer
}

// NewScope returns a scope over layers, listed lowest priority first.
func NewScope(layers ...*Layer) *Scope {
	s := &Scope{}
	for _, l := range layers {
		if l != nil {
			s.layers = append(s.layers, l)
		}
	}
	return s
}

// With returns a new scope with l stacked on top. s is left unchanged.
func (s *Scope) With(l *Layer) *Scope {
	out := &Scope{}
	if s != nil {
		out.layers = append(out.layers, s.layers...)
	}
	if l != nil {
		out.layers = append(out.layers, l)
	}
	return out
}

// Lookup returns the innermost binding for name.
func (s *Scope) Lookup(name string) (Binding, bool) {
	if s == nil {
		return Binding{}, false
	}
	for i := len(s.layers) - 1; i >= 0; i-- {
		if b, ok := s.layers[i].values[name]; ok {
			return b, true
		}
	}
	return Binding{}, false
}

// Flatten returns the visible binding for every name.
func (s *Scope) Flatten() map[string]Binding {
	out := make(map[string]Binding)
	if s == nil {
		return out
	}
	for _, l := range s.layers {
		for name, b := range l.values {
			out[name] = b
		}
	}
	return out
}

// Names returns the visible names in sorted order.
func (s *Scope) Names() []string {
	flat := s.Flatten()
	names := make([]string, 0, len(flat))
	for n := range flat {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Digest is a stable hash of the effective value of every visible binding.
// Two scopes with the same digest expand every placeholder identically.
// Bindings that fail to expand contribute their raw value and the failure,
// so a broken scope still digests deterministically. The empty scope
// digests to "".
func (s *Scope) Digest() string {
	names := s.Names()
	if len(names) == 0 {
		return ""
	}
	x := newExpander(s)
	h := sha256.New()
	for _, n := range names {
		b, _ := s.Lookup(n)
		v, err := x.resolve(n)
		if err != nil {
			v = b.Value + "\x00!" + err.Error()
		}
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write([]byte(b.Type.String()))
		h.Write([]byte{0})
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AsLayer returns a layer holding the visible bindings of s. Each binding
// stays tied to s: its value is expanded against s, not against whatever
// scope the layer is later stacked into.
func (s *Scope) AsLayer(name string) *Layer {
	l := NewLayer(name)
	for _, n := range s.Names() {
		b, _ := s.Lookup(n)
		if !b.Expanded && b.origin == nil {
			b.origin = s
		}
		l.Set(b)
	}
	return l
}

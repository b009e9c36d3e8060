package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scenariokit/scenariocat/internal/doctree"
)

// Field is a typed attribute of an element.
type Field struct {
	Type     ValueType
	Required bool
}

// Shape describes one element. For entity kinds, Children restricts the
// direct child elements; descendant shapes only contribute field types.
// Attributes not listed in Fields are extension attributes and are accepted.
type Shape struct {
	Tag      string
	Fields   map[string]Field
	Children []string
}

// FieldType returns the declared type of attr.
func (s *Shape) FieldType(attr string) (ValueType, bool) {
	if s == nil {
		return ValueType{}, false
	}
	f, ok := s.Fields[attr]
	return f.Type, ok
}

func (s *Shape) allowsChild(tag string) bool {
	if s.Children == nil {
		return true
	}
	for _, c := range s.Children {
		if c == tag {
			return true
		}
	}
	return false
}

// MismatchError reports an entry payload that does not fit its kind.
type MismatchError struct {
	Kind   string
	Entry  string
	Line   int
	Reason string
}

func (e *MismatchError) Error() string {
	where := e.Kind
	if e.Entry != "" {
		where += " " + fmt.Sprintf("%q", e.Entry)
	}
	if e.Line > 0 {
		where += fmt.Sprintf(" (line %d)", e.Line)
	}
	return where + ": " + e.Reason
}

// Registry maps entity kinds and element tags to shapes.
type Registry struct {
	kinds    map[string]*Shape
	elements map[string]*Shape
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:    make(map[string]*Shape),
		elements: make(map[string]*Shape),
	}
}

// AddKind registers an entity kind. Its shape also types the element itself.
func (r *Registry) AddKind(s *Shape) {
	r.kinds[s.Tag] = s
	r.elements[s.Tag] = s
}

// AddElement registers the field types of a descendant element.
func (r *Registry) AddElement(s *Shape) {
	r.elements[s.Tag] = s
}

// IsKind reports whether tag is a registered entity kind.
func (r *Registry) IsKind(tag string) bool {
	_, ok := r.kinds[tag]
	return ok
}

// Kinds returns the registered entity kinds in sorted order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Element returns the shape registered for tag.
func (r *Registry) Element(tag string) (*Shape, bool) {
	s, ok := r.elements[tag]
	return s, ok
}

// FieldType returns the declared type of attribute attr on element tag.
func (r *Registry) FieldType(tag, attr string) (ValueType, bool) {
	s, ok := r.elements[tag]
	if !ok {
		return ValueType{}, false
	}
	return s.FieldType(attr)
}

// CheckEntry verifies that n fits its entity kind: required attributes are
// present, direct children are allowed, and every literal typed attribute in
// the subtree converts. Values containing placeholders are skipped; they are
// checked once substituted.
func (r *Registry) CheckEntry(n *doctree.Node) error {
	shape, ok := r.kinds[n.Tag]
	if !ok {
		return &MismatchError{Kind: n.Tag, Line: n.Line, Reason: "not an entity kind"}
	}
	name, _ := n.Attr("name")
	mismatch := func(line int, format string, args ...any) error {
		return &MismatchError{Kind: n.Tag, Entry: name, Line: line, Reason: fmt.Sprintf(format, args...)}
	}

	required := make([]string, 0, len(shape.Fields))
	for attr, f := range shape.Fields {
		if f.Required {
			required = append(required, attr)
		}
	}
	sort.Strings(required)
	for _, attr := range required {
		if v, ok := n.Attr(attr); !ok || v == "" {
			return mismatch(n.Line, "missing required attribute %q", attr)
		}
	}

	for _, c := range n.Children {
		if !shape.allowsChild(c.Tag) {
			return mismatch(c.Line, "element %q is not allowed in %s", c.Tag, n.Tag)
		}
	}

	var err error
	n.Walk(func(el *doctree.Node) bool {
		if err != nil {
			return false
		}
		s, ok := r.elements[el.Tag]
		if !ok {
			return true
		}
		for _, a := range el.Attrs {
			t, ok := s.FieldType(a.Name)
			if !ok || HasPlaceholder(a.Value) {
				continue
			}
			if _, cerr := t.Convert(a.Value); cerr != nil {
				err = mismatch(el.Line, "attribute %s@%s: %v", el.Tag, a.Name, cerr)
				return false
			}
		}
		return true
	})
	return err
}

// HasPlaceholder reports whether s contains a parameter placeholder.
func HasPlaceholder(s string) bool {
	return strings.Contains(s, "${")
}

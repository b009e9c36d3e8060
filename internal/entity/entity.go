// Package entity holds resolved catalog entries: element trees whose
// attributes are typed values with every parameter substituted.
package entity

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/scenariokit/scenariocat/internal/schema"
)

// Attr is a typed attribute.
type Attr struct {
	Name  string
	Type  schema.ValueType
	Value cty.Value
}

// Element is a node of a resolved tree. Elements are immutable once their
// entity is returned and may be shared between trees: the root of a nested
// entity appears as-is wherever it was referenced.
type Element struct {
	Tag      string
	Attrs    []Attr
	Children []*Element
	Text     string
	Line     int

	// Origin is set on the root element of an entity.
	Origin *Entity
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (cty.Value, bool) {
	if e == nil {
		return cty.NilVal, false
	}
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return cty.NilVal, false
}

// String returns the named attribute rendered as text, or "".
func (e *Element) String(name string) string {
	v, ok := e.Attr(name)
	if !ok {
		return ""
	}
	return Format(v)
}

// Float returns a numeric attribute as a float64.
func (e *Element) Float(name string) (float64, error) {
	v, ok := e.Attr(name)
	if !ok {
		return 0, fmt.Errorf("element %s has no attribute %q", e.Tag, name)
	}
	var f float64
	if err := gocty.FromCtyValue(v, &f); err != nil {
		return 0, fmt.Errorf("attribute %s@%s: %w", e.Tag, name, err)
	}
	return f, nil
}

// Child returns the first child with the given tag.
func (e *Element) Child(tag string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// ChildrenByTag returns every child with the given tag.
func (e *Element) ChildrenByTag(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Walk calls fn for e and its descendants in document order. Returning
// false from fn skips the element's children.
func (e *Element) Walk(fn func(*Element) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

type elementJSON struct {
	Tag      string                             `json:"tag"`
	Attrs    map[string]ctyjson.SimpleJSONValue `json:"attrs,omitempty"`
	Text     string                             `json:"text,omitempty"`
	Entity   string                             `json:"entity,omitempty"`
	Children []*Element                         `json:"children,omitempty"`
}

// MarshalJSON renders typed attributes as native JSON values.
func (e *Element) MarshalJSON() ([]byte, error) {
	out := elementJSON{Tag: e.Tag, Text: e.Text, Children: e.Children}
	if len(e.Attrs) > 0 {
		out.Attrs = make(map[string]ctyjson.SimpleJSONValue, len(e.Attrs))
		for _, a := range e.Attrs {
			out.Attrs[a.Name] = ctyjson.SimpleJSONValue{Value: a.Value}
		}
	}
	if e.Origin != nil {
		out.Entity = e.Origin.Reference
	}
	return json.Marshal(out)
}

// Entity is a resolved catalog entry. It is immutable once returned and
// shared through the resolution cache.
type Entity struct {
	Kind        string
	Name        string
	Root        *Element
	Catalog     string // catalog name as referenced
	SourcePath  string
	Reference   string // catalog/entry
	Fingerprint string
	Parameters  map[string]cty.Value // declared parameters with their final values
	Nested      []*Entity            // entities substituted for CatalogReference elements
}

// Field returns the value of a root attribute.
func (e *Entity) Field(name string) (cty.Value, bool) {
	return e.Root.Attr(name)
}

// Walk visits e and every nested entity, depth first.
func (e *Entity) Walk(fn func(*Entity)) {
	fn(e)
	for _, n := range e.Nested {
		n.Walk(fn)
	}
}

type entityJSON struct {
	Kind        string                             `json:"kind"`
	Name        string                             `json:"name"`
	Catalog     string                             `json:"catalog"`
	SourcePath  string                             `json:"sourcePath"`
	Fingerprint string                             `json:"fingerprint"`
	Parameters  map[string]ctyjson.SimpleJSONValue `json:"parameters,omitempty"`
	Root        *Element                           `json:"root"`
}

// MarshalJSON renders the entity with typed parameter values.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := entityJSON{
		Kind:        e.Kind,
		Name:        e.Name,
		Catalog:     e.Catalog,
		SourcePath:  e.SourcePath,
		Fingerprint: e.Fingerprint,
		Root:        e.Root,
	}
	if len(e.Parameters) > 0 {
		out.Parameters = make(map[string]ctyjson.SimpleJSONValue, len(e.Parameters))
		for k, v := range e.Parameters {
			out.Parameters[k] = ctyjson.SimpleJSONValue{Value: v}
		}
	}
	return json.Marshal(out)
}

// Format renders a value the way it would be written in a catalog.
func Format(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			return bf.Text('f', 0)
		}
		return bf.Text('g', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	}
	return v.GoString()
}

package resolve

import (
	"context"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/entity"
	"github.com/scenariokit/scenariocat/internal/graph"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/schema"
)

// substitution fills one entry payload from its scope.
type substitution struct {
	resolver  *Resolver
	traversal *graph.Traversal
	scope     *params.Scope
	nested    []*entity.Entity
}

// element substitutes n and its subtree. A CatalogReference is resolved
// with the current scope as its enclosing scope and replaced by the root
// of the resolved entity.
func (s *substitution) element(ctx context.Context, n *doctree.Node, parentTag string) (*entity.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n.Tag == schema.TagCatalogReference {
		ref, err := ReferenceFromNode(n, KindFor(parentTag))
		if err != nil {
			return nil, err
		}
		child, err := s.resolver.resolveNested(ctx, s.traversal, ref, s.scope)
		if err != nil {
			return nil, err
		}
		s.nested = append(s.nested, child)
		return child.Root, nil
	}

	el := &entity.Element{Tag: n.Tag, Line: n.Line}
	if n.Text != "" {
		text, err := s.scope.Expand(n.Text)
		if err != nil {
			return nil, err
		}
		el.Text = text
	}

	for _, a := range n.Attrs {
		attr, err := s.attr(n.Tag, a)
		if err != nil {
			return nil, err
		}
		el.Attrs = append(el.Attrs, attr)
	}

	for _, c := range n.Children {
		child, err := s.element(ctx, c, n.Tag)
		if err != nil {
			return nil, err
		}
		el.Children = append(el.Children, child)
	}
	return el, nil
}

// attr expands one attribute and converts it to its type: the schema
// field type when the element declares one, else the declared type of the
// parameter when the value is a single placeholder, else string.
func (s *substitution) attr(tag string, a doctree.Attr) (entity.Attr, error) {
	expanded, err := s.scope.Expand(a.Value)
	if err != nil {
		return entity.Attr{}, err
	}

	typ, ok := s.resolver.registry.FieldType(tag, a.Name)
	param, sole := params.SoleReference(a.Value)
	if !ok {
		typ = schema.TString
		if sole {
			if b, found := s.scope.Lookup(param); found {
				typ = b.Type
			}
		}
	}

	v, err := typ.Convert(expanded)
	if err != nil {
		if !schema.HasPlaceholder(a.Value) {
			return entity.Attr{}, &caterr.Error{Kind: caterr.SchemaMismatch, Name: tag + "@" + a.Name, Err: err}
		}
		name := tag + "@" + a.Name
		if sole {
			name = param
		}
		return entity.Attr{}, params.TypeMismatch(name, err)
	}
	return entity.Attr{Name: a.Name, Type: typ, Value: v}, nil
}

// typedParameters returns the final value of every declared parameter that
// has one, converted to its declared type.
func typedParameters(scope *params.Scope, decls []params.Declaration) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(decls))
	for _, d := range decls {
		if _, ok := scope.Lookup(d.Name); !ok {
			continue
		}
		v, err := scope.Typed(d.Name)
		if err != nil {
			return nil, err
		}
		out[d.Name] = v
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

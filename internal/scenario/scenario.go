// Package scenario reads scenario documents: their parameter declarations,
// the catalog directories they name, and every catalog reference they
// hold. Resolve turns those references into entities.
package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/entity"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/resolve"
	"github.com/scenariokit/scenariocat/internal/schema"
	"github.com/scenariokit/scenariocat/internal/store"
)

const (
	tagRoot             = "OpenSCENARIO"
	tagCatalogLocations = "CatalogLocations"
	tagDirectory        = "Directory"
)

// Site is a CatalogReference found in a scenario.
type Site struct {
	Ref  resolve.Reference `json:"ref"`
	Path string            `json:"path"` // element path, e.g. Entities/ScenarioObject(ego)
	Line int               `json:"line,omitempty"`
}

// Scenario is the part of a scenario document the resolver needs.
type Scenario struct {
	SourcePath  string
	Parameters  []params.Declaration
	CatalogDirs []store.Dir // from CatalogLocations, relative to the document
	Sites       []Site
}

// Parse reads a decoded scenario document. Parameter defaults are kept as
// written.
func Parse(tree *doctree.Node, sourcePath string) (*Scenario, error) {
	if tree == nil || tree.Tag != tagRoot {
		return nil, &caterr.Error{Kind: caterr.MalformedCatalog, Path: sourcePath, Reason: "not a scenario document"}
	}
	s := &Scenario{SourcePath: sourcePath}

	if decls := tree.Child(schema.TagParameterDeclarations); decls != nil {
		for _, d := range decls.ChildrenByTag(schema.TagParameterDeclaration) {
			decl, err := declaration(d)
			if err != nil {
				return nil, &caterr.Error{Kind: caterr.MalformedCatalog, Path: sourcePath, Err: err}
			}
			s.Parameters = append(s.Parameters, decl)
		}
	}

	base := filepath.Dir(sourcePath)
	if locs := tree.Child(tagCatalogLocations); locs != nil {
		for _, loc := range locs.Children {
			dir := loc.Child(tagDirectory)
			p, ok := dir.Attr("path")
			if !ok || p == "" {
				continue
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(base, p)
			}
			s.CatalogDirs = append(s.CatalogDirs, store.Dir{Name: loc.Tag, Path: p})
		}
	}

	var err error
	walk(tree, "", func(n *doctree.Node, path, parentTag string) {
		if err != nil {
			return
		}
		var ref resolve.Reference
		ref, err = resolve.ReferenceFromNode(n, resolve.KindFor(parentTag))
		if err != nil {
			err = caterr.WithContext(err, "", sourcePath)
			return
		}
		s.Sites = append(s.Sites, Site{Ref: ref, Path: path, Line: n.Line})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// walk calls fn for every CatalogReference below n with its element path
// and the tag of its parent. References are not descended into.
func walk(n *doctree.Node, path string, fn func(*doctree.Node, string, string)) {
	for _, c := range n.Children {
		seg := c.Tag
		if name, ok := c.Attr("name"); ok {
			seg += "(" + name + ")"
		}
		p := seg
		if path != "" {
			p = path + "/" + seg
		}
		if c.Tag == schema.TagCatalogReference {
			fn(c, p, n.Tag)
			continue
		}
		walk(c, p, fn)
	}
}

func declaration(n *doctree.Node) (params.Declaration, error) {
	name, _ := n.Attr("name")
	if !params.IsIdent(name) {
		return params.Declaration{}, fmt.Errorf("line %d: invalid parameter name %q", n.Line, name)
	}
	typeName, _ := n.Attr("parameterType")
	typ, ok := schema.ParseParameterType(typeName)
	if !ok {
		return params.Declaration{}, fmt.Errorf("line %d: parameter %q has unknown type %q", n.Line, name, typeName)
	}
	d := params.Declaration{Name: name, Type: typ}
	d.Value, d.HasValue = n.Attr("value")
	return d, nil
}

// Scope returns the scenario's parameter scope. overrides replace declared
// defaults; naming an undeclared parameter fails with UnknownParameter.
func (s *Scenario) Scope(overrides map[string]string) (*params.Scope, error) {
	declared := params.DeclarationLayer("scenario", s.Parameters)
	over := params.NewLayer("overrides")
	for name, value := range overrides {
		var decl *params.Declaration
		for i := range s.Parameters {
			if s.Parameters[i].Name == name {
				decl = &s.Parameters[i]
				break
			}
		}
		if decl == nil {
			return nil, &caterr.Error{Kind: caterr.UnknownParameter, Name: name, Path: s.SourcePath,
				Reason: "the scenario declares no such parameter"}
		}
		if _, err := decl.Type.Convert(value); err != nil {
			return nil, caterr.WithContext(params.TypeMismatch(name, err), "", s.SourcePath)
		}
		over.Set(params.Binding{Name: name, Type: decl.Type, Value: value, Expanded: true})
	}
	return params.NewScope(declared, over), nil
}

// Result pairs a reference site with its entity.
type Result struct {
	Site   Site           `json:"site"`
	Entity *entity.Entity `json:"entity"`
}

// Resolve resolves every reference of s concurrently with the scenario
// scope as enclosing scope. Results follow document order.
func Resolve(ctx context.Context, r *resolve.Resolver, s *Scenario, scope *params.Scope) ([]Result, error) {
	refs := make([]resolve.Reference, len(s.Sites))
	for i, site := range s.Sites {
		refs[i] = site.Ref
	}
	entities, err := r.ResolveAll(ctx, refs, scope)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = Result{Site: site, Entity: entities[i]}
	}
	return out, nil
}

// Summary renders one line per result.
func Summary(results []Result) string {
	var sb strings.Builder
	for _, res := range results {
		fmt.Fprintf(&sb, "%s -> %s %s (%s)\n", res.Site.Path, res.Entity.Kind, res.Entity.Name, res.Entity.SourcePath)
	}
	return sb.String()
}

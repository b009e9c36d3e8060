package catalog

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/schema"
)

// Document element tags.
const (
	TagRoot       = "OpenSCENARIO"
	TagFileHeader = "FileHeader"
	TagCatalog    = "Catalog"
)

// SupportedRevisions is the header revision range this parser accepts.
const SupportedRevisions = ">= 1.0, < 2.0"

// Parser turns decoded documents into catalog files. The zero value uses
// the built-in kind registry.
type Parser struct {
	Registry *schema.Registry
}

// Parse parses tree with the built-in kind registry.
func Parse(tree *doctree.Node, sourcePath string) (*File, error) {
	return (&Parser{}).Parse(tree, sourcePath)
}

// Parse checks tree against the catalog schema and builds a File. It does
// no I/O and does not modify tree.
func (p *Parser) Parse(tree *doctree.Node, sourcePath string) (*File, error) {
	reg := p.Registry
	if reg == nil {
		reg = schema.Default()
	}
	malformed := func(format string, args ...any) error {
		return &caterr.Error{Kind: caterr.MalformedCatalog, Path: sourcePath, Reason: fmt.Sprintf(format, args...)}
	}

	if tree == nil || tree.Tag != TagRoot {
		tag := ""
		if tree != nil {
			tag = tree.Tag
		}
		return nil, malformed("root element is %q, want %s", tag, TagRoot)
	}

	result, err := Validate(tree)
	if err != nil {
		return nil, caterr.Wrap(caterr.IoFailure, err, "catalog schema unavailable")
	}
	if !result.Valid {
		return nil, malformed("%s", result.Summary())
	}

	header, err := parseHeader(tree.Child(TagFileHeader))
	if err != nil {
		return nil, malformed("%v", err)
	}

	cat := tree.Child(TagCatalog)
	f := &File{
		SourcePath: sourcePath,
		Name:       cat.AttrOr("name", ""),
		Header:     header,
		Entries:    make(map[string][]*Entry),
	}

	if decls := cat.Child(schema.TagParameterDeclarations); decls != nil {
		f.Parameters, err = parseDeclarations(decls)
		if err != nil {
			return nil, malformed("catalog %q: %v", f.Name, err)
		}
	}

	for _, n := range cat.Children {
		if n.Tag == schema.TagParameterDeclarations {
			continue
		}
		if !reg.IsKind(n.Tag) {
			return nil, malformed("line %d: unknown entity kind %q in catalog %q", n.Line, n.Tag, f.Name)
		}
		entry, err := parseEntry(reg, n)
		if err != nil {
			var me *schema.MismatchError
			if errors.As(err, &me) {
				return nil, &caterr.Error{Kind: caterr.SchemaMismatch, Name: entry.Name, Path: sourcePath, Err: err}
			}
			return nil, malformed("%s %q: %v", n.Tag, entry.Name, err)
		}
		for _, existing := range f.Entries[entry.Kind] {
			if existing.Name == entry.Name {
				return nil, malformed("line %d: duplicate %s entry %q", n.Line, entry.Kind, entry.Name)
			}
		}
		if _, ok := f.Entries[entry.Kind]; !ok {
			f.Kinds = append(f.Kinds, entry.Kind)
		}
		f.Entries[entry.Kind] = append(f.Entries[entry.Kind], entry)
	}
	return f, nil
}

func parseHeader(n *doctree.Node) (Header, error) {
	h := Header{
		Author:      n.AttrOr("author", ""),
		Date:        n.AttrOr("date", ""),
		Description: n.AttrOr("description", ""),
	}
	var err error
	if h.RevMajor, err = strconv.Atoi(n.AttrOr("revMajor", "")); err != nil {
		return h, fmt.Errorf("FileHeader revMajor: %w", err)
	}
	if h.RevMinor, err = strconv.Atoi(n.AttrOr("revMinor", "")); err != nil {
		return h, fmt.Errorf("FileHeader revMinor: %w", err)
	}
	if err := CheckRevision(h); err != nil {
		return h, err
	}
	return h, nil
}

// CheckRevision reports whether the header revision is supported.
func CheckRevision(h Header) error {
	c, err := semver.NewConstraint(SupportedRevisions)
	if err != nil {
		return fmt.Errorf("parsing revision constraint: %w", err)
	}
	v, err := semver.NewVersion(h.Revision())
	if err != nil {
		return fmt.Errorf("parsing revision %s: %w", h.Revision(), err)
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported revision %s (supported: %s)", h.Revision(), SupportedRevisions)
	}
	return nil
}

// parseDeclarations reads a ParameterDeclarations block. Defaults are kept
// as written; literal defaults must convert to the declared type.
func parseDeclarations(n *doctree.Node) ([]params.Declaration, error) {
	var out []params.Declaration
	seen := make(map[string]bool)
	for _, d := range n.ChildrenByTag(schema.TagParameterDeclaration) {
		name, _ := d.Attr("name")
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate parameter declaration %q", d.Line, name)
		}
		seen[name] = true

		typeName, _ := d.Attr("parameterType")
		typ, ok := schema.ParseParameterType(typeName)
		if !ok {
			return nil, fmt.Errorf("line %d: parameter %q has unknown type %q", d.Line, name, typeName)
		}

		decl := params.Declaration{Name: name, Type: typ}
		decl.Value, decl.HasValue = d.Attr("value")
		if decl.HasValue && !schema.HasPlaceholder(decl.Value) {
			if _, err := typ.Convert(decl.Value); err != nil {
				return nil, fmt.Errorf("line %d: default of parameter %q: %w", d.Line, name, err)
			}
		}
		out = append(out, decl)
	}
	return out, nil
}

func parseEntry(reg *schema.Registry, n *doctree.Node) (*Entry, error) {
	e := &Entry{Name: n.AttrOr("name", ""), Kind: n.Tag}

	payload := n.Clone()
	kept := payload.Children[:0]
	for _, c := range payload.Children {
		if c.Tag != schema.TagParameterDeclarations {
			kept = append(kept, c)
			continue
		}
		decls, err := parseDeclarations(c)
		if err != nil {
			return e, err
		}
		for _, d := range decls {
			if e.Declares(d.Name) {
				return e, fmt.Errorf("line %d: parameter %q declared in two ParameterDeclarations blocks", c.Line, d.Name)
			}
			e.Parameters = append(e.Parameters, d)
		}
	}
	payload.Children = kept
	e.Payload = payload

	if err := reg.CheckEntry(payload); err != nil {
		return e, err
	}

	payload.Walk(func(el *doctree.Node) bool {
		if el.Tag == schema.TagCatalogReference {
			e.References = append(e.References, RefSite{
				Catalog: el.AttrOr("catalogName", ""),
				Entry:   el.AttrOr("entryName", ""),
				Line:    el.Line,
			})
			return false
		}
		return true
	})
	return e, nil
}

package catalog

import (
	"fmt"
	"slices"
	"sort"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/params"
)

// Header holds the FileHeader fields of a catalog document.
type Header struct {
	RevMajor    int    `json:"revMajor"`
	RevMinor    int    `json:"revMinor"`
	Author      string `json:"author,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

// Revision renders the header revision as "major.minor".
func (h Header) Revision() string {
	return fmt.Sprintf("%d.%d", h.RevMajor, h.RevMinor)
}

// RefSite is a CatalogReference element found in an entry payload.
type RefSite struct {
	Catalog string `json:"catalog"`
	Entry   string `json:"entry"`
	Line    int    `json:"line,omitempty"`
}

// Entry is one named definition in a catalog. Payload keeps its ${name}
// placeholders; the entry's own ParameterDeclarations are lifted into
// Parameters and removed from the payload.
type Entry struct {
	Name       string
	Kind       string
	Parameters []params.Declaration
	Payload    *doctree.Node
	References []RefSite
}

// Declares reports whether the entry declares a parameter called name.
func (e *Entry) Declares(name string) bool {
	return declares(e.Parameters, name)
}

// File is a parsed catalog document. It is read-only once returned by
// Parse and may be shared between resolutions.
type File struct {
	SourcePath string
	Name       string
	Header     Header
	Parameters []params.Declaration
	Entries    map[string][]*Entry // by kind, in document order
	Kinds      []string            // kinds in order of first appearance
}

// Declares reports whether the catalog declares a parameter called name.
func (f *File) Declares(name string) bool {
	return declares(f.Parameters, name)
}

// Lookup returns the entry called name. An empty kind searches every kind;
// a name present under several kinds is then ambiguous.
func (f *File) Lookup(kind, name string) (*Entry, error) {
	if kind != "" {
		for _, e := range f.Entries[kind] {
			if e.Name == name {
				return e, nil
			}
		}
		return nil, &caterr.Error{
			Kind:   caterr.EntryNotFound,
			Name:   name,
			Path:   f.SourcePath,
			Reason: fmt.Sprintf("no %s entry in catalog %q", kind, f.Name),
		}
	}

	matches := f.Find(name)
	switch len(matches) {
	case 0:
		return nil, &caterr.Error{
			Kind:   caterr.EntryNotFound,
			Name:   name,
			Path:   f.SourcePath,
			Reason: fmt.Sprintf("no entry in catalog %q", f.Name),
		}
	case 1:
		return matches[0], nil
	}
	kinds := make([]string, len(matches))
	for i, e := range matches {
		kinds[i] = e.Kind
	}
	sort.Strings(kinds)
	return nil, &caterr.Error{
		Kind:   caterr.AmbiguousEntry,
		Name:   name,
		Path:   f.SourcePath,
		Reason: fmt.Sprintf("defined as %v; name the kind", kinds),
	}
}

// Find returns every entry called name, across kinds.
func (f *File) Find(name string) []*Entry {
	var out []*Entry
	for _, k := range f.Kinds {
		for _, e := range f.Entries[k] {
			if e.Name == name {
				out = append(out, e)
			}
		}
	}
	return out
}

// All returns every entry, grouped by kind in order of first appearance.
func (f *File) All() []*Entry {
	var out []*Entry
	for _, k := range f.Kinds {
		out = append(out, f.Entries[k]...)
	}
	return out
}

// FreeParameter is a placeholder an entry uses without a declaration in
// the entry or its catalog. Only an enclosing scope can bind it.
type FreeParameter struct {
	Entry *Entry
	Name  string
}

// FreeParameters lists the free placeholders of every entry, in entry
// order. Placeholders in declaration defaults count too.
func (f *File) FreeParameters() []FreeParameter {
	var out []FreeParameter
	for _, e := range f.All() {
		var names []string
		collect := func(text string) {
			for _, name := range params.Placeholders(text) {
				if !e.Declares(name) && !f.Declares(name) && !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}
		for _, d := range e.Parameters {
			collect(d.Value)
		}
		e.Payload.Walk(func(n *doctree.Node) bool {
			collect(n.Text)
			for _, a := range n.Attrs {
				collect(a.Value)
			}
			return true
		})
		for _, name := range names {
			out = append(out, FreeParameter{Entry: e, Name: name})
		}
	}
	return out
}

func declares(decls []params.Declaration, name string) bool {
	for _, d := range decls {
		if d.Name == name {
			return true
		}
	}
	return false
}

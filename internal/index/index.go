package index

import (
	"context"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/scenariokit/scenariocat/internal/catalog"
	"github.com/scenariokit/scenariocat/internal/doctree"
	"github.com/scenariokit/scenariocat/internal/params"
	"github.com/scenariokit/scenariocat/internal/store"
)

// Parameter is a declared parameter of an entry or catalog.
type Parameter struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
}

// Entry is one catalog entry found while indexing.
type Entry struct {
	Catalog    string      `json:"catalog"` // name a reference uses
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	Source     string      `json:"source"`
	Path       string      `json:"path"`
	Parameters []Parameter `json:"parameters,omitempty"`
	References []string    `json:"references,omitempty"` // catalog/entry
}

// Catalog summarizes one catalog file.
type Catalog struct {
	Name        string      `json:"name"`
	Declared    string      `json:"declared"` // Catalog@name inside the file
	Source      string      `json:"source"`
	Path        string      `json:"path"`
	Revision    string      `json:"revision"`
	Description string      `json:"description,omitempty"`
	Entries     int         `json:"entries"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// Problem is a catalog file that could not be indexed.
type Problem struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Index is a listing of every visible catalog.
type Index struct {
	Catalogs []Catalog `json:"catalogs"`
	Entries  []Entry   `json:"entries"`
	Problems []Problem `json:"problems,omitempty"`
}

// Builder walks search directories. A catalog name found in an earlier
// directory shadows later ones, the same way the store locator picks it.
type Builder struct {
	Fs     afero.Fs
	Dirs   []store.Dir
	Parser *catalog.Parser // defaults to the built-in registry
}

// Build indexes every catalog file directly inside the search directories.
// Unreadable directories are skipped; unparsable files become Problems.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	parser := b.Parser
	if parser == nil {
		parser = &catalog.Parser{}
	}
	idx := &Index{}
	seen := make(map[string]bool)

	for _, dir := range b.Dirs {
		for _, path := range b.catalogFiles(dir) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := store.CatalogName(path)
			if seen[name] {
				continue
			}
			seen[name] = true

			f, err := b.parse(parser, path)
			if err != nil {
				idx.Problems = append(idx.Problems, Problem{Path: path, Error: err.Error()})
				continue
			}
			idx.add(name, dir.Name, f)
		}
	}
	return idx, nil
}

// catalogFiles returns the catalog files of dir, one per catalog name, in
// name order. When a name exists with several extensions the one the
// locator tries first wins.
func (b *Builder) catalogFiles(dir store.Dir) []string {
	infos, err := afero.ReadDir(b.Fs, dir.Path)
	if err != nil {
		return nil // skip inaccessible directories
	}
	best := make(map[string]string)
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		rank := extRank(fi.Name())
		if rank < 0 {
			continue
		}
		name := store.CatalogName(fi.Name())
		if prev, ok := best[name]; ok && extRank(prev) <= rank {
			continue
		}
		best[name] = fi.Name()
	}
	names := make([]string, 0, len(best))
	for n := range best {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir.Path, best[n])
	}
	return out
}

func extRank(file string) int {
	return slices.Index(store.Extensions, filepath.Ext(file))
}

func (b *Builder) parse(parser *catalog.Parser, path string) (*catalog.File, error) {
	data, err := afero.ReadFile(b.Fs, path)
	if err != nil {
		return nil, err
	}
	tree, err := doctree.Decode(path, data)
	if err != nil {
		return nil, err
	}
	return parser.Parse(tree, path)
}

func (idx *Index) add(name, source string, f *catalog.File) {
	all := f.All()
	idx.Catalogs = append(idx.Catalogs, Catalog{
		Name:        name,
		Declared:    f.Name,
		Source:      source,
		Path:        f.SourcePath,
		Revision:    f.Header.Revision(),
		Description: f.Header.Description,
		Entries:     len(all),
		Parameters:  parameters(f.Parameters),
	})
	for _, e := range all {
		entry := Entry{
			Catalog:    name,
			Name:       e.Name,
			Kind:       e.Kind,
			Source:     source,
			Path:       f.SourcePath,
			Parameters: parameters(e.Parameters),
		}
		for _, r := range e.References {
			entry.References = append(entry.References, r.Catalog+"/"+r.Entry)
		}
		idx.Entries = append(idx.Entries, entry)
	}
}

func parameters(decls []params.Declaration) []Parameter {
	var out []Parameter
	for _, d := range decls {
		out = append(out, Parameter{Name: d.Name, Type: d.Type.String(), Default: d.Value})
	}
	return out
}

// Filter returns the entries of the given kind; empty matches every kind.
func (idx *Index) Filter(kind string) []Entry {
	var out []Entry
	for _, e := range idx.Entries {
		if kind == "" || strings.EqualFold(e.Kind, kind) {
			out = append(out, e)
		}
	}
	return out
}

// Search returns the entries whose name, catalog or parameter names
// contain query (case-insensitive), restricted to kind when set.
func (idx *Index) Search(query, kind string) []Entry {
	q := strings.ToLower(query)
	var out []Entry
	for _, e := range idx.Filter(kind) {
		if q == "" || matches(e, q) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e Entry, q string) bool {
	if strings.Contains(strings.ToLower(e.Name), q) ||
		strings.Contains(strings.ToLower(e.Catalog), q) {
		return true
	}
	for _, p := range e.Parameters {
		if strings.Contains(strings.ToLower(p.Name), q) {
			return true
		}
	}
	return false
}

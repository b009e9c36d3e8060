package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/scenariokit/scenariocat/internal/caterr"
)

// Extensions is the fallback order of file extensions tried for a catalog
// name.
var Extensions = []string{".xosc", ".cat", ".xml", ".yaml", ".yml"}

// Dir is a directory searched for catalogs.
type Dir struct {
	Name string // e.g. "project", "library"
	Path string
}

// Locator maps catalog names to paths. Aliases are consulted first, then
// each directory in slice order (first directory = highest priority).
type Locator struct {
	src     Source
	dirs    []Dir
	aliases map[string]string
}

// NewLocator returns a locator searching dirs in src.
func NewLocator(src Source, dirs []Dir, aliases map[string]string) *Locator {
	a := make(map[string]string, len(aliases))
	for k, v := range aliases {
		a[k] = v
	}
	return &Locator{src: src, dirs: dirs, aliases: a}
}

// Dirs returns the search directories in priority order.
func (l *Locator) Dirs() []Dir {
	return append([]Dir(nil), l.dirs...)
}

// Locate returns the path of the catalog called name. The first candidate
// that exists wins.
func (l *Locator) Locate(ctx context.Context, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	if p, ok := l.aliases[name]; ok {
		found, err := l.src.Exists(ctx, p)
		if err != nil {
			return "", &caterr.Error{Kind: caterr.IoFailure, Name: name, Path: p, Err: err}
		}
		if !found {
			return "", &caterr.Error{Kind: caterr.NotFound, Name: name, Path: p, Reason: "alias target does not exist"}
		}
		return p, nil
	}

	for _, p := range l.Candidates(name) {
		found, err := l.src.Exists(ctx, p)
		if err != nil {
			return "", &caterr.Error{Kind: caterr.IoFailure, Name: name, Path: p, Err: err}
		}
		if found {
			return p, nil
		}
	}

	names := make([]string, len(l.dirs))
	for i, d := range l.dirs {
		names[i] = d.Path
	}
	return "", &caterr.Error{
		Kind:   caterr.NotFound,
		Name:   name,
		Reason: fmt.Sprintf("no catalog file in %s", strings.Join(names, ", ")),
	}
}

// Candidates lists the paths Locate tries for name, in order. A name that
// already carries a known extension is tried as written first.
func (l *Locator) Candidates(name string) []string {
	var out []string
	for _, d := range l.dirs {
		if hasKnownExt(name) {
			out = append(out, filepath.Join(d.Path, name))
		}
		for _, ext := range Extensions {
			out = append(out, filepath.Join(d.Path, name+ext))
		}
	}
	return out
}

// CatalogName derives the catalog name from a file name by dropping a
// known extension.
func CatalogName(file string) string {
	base := filepath.Base(file)
	ext := filepath.Ext(base)
	if hasKnownExt(base) {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func hasKnownExt(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// checkName rejects names that would escape the search directories.
func checkName(name string) error {
	if name == "" {
		return &caterr.Error{Kind: caterr.NotFound, Reason: "empty catalog name"}
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return &caterr.Error{Kind: caterr.NotFound, Name: name, Reason: "catalog names must not contain path separators"}
	}
	return nil
}

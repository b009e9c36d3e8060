package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/scenariokit/scenariocat/internal/config"
	"github.com/scenariokit/scenariocat/internal/index"
	"github.com/scenariokit/scenariocat/internal/resolve"
	"github.com/scenariokit/scenariocat/internal/store"
)

// engine wires a resolver to the configured search directories.
type engine struct {
	settings config.Settings
	fs       afero.Fs
	dirs     []store.Dir
	resolver *resolve.Resolver
}

// newEngine builds an engine over the OS filesystem. extra directories are
// searched first, then --catalog-dir, then the configured ones.
func newEngine(extra ...store.Dir) *engine {
	s := config.Current()
	fs := afero.NewOsFs()
	src := store.NewFSSource(fs)

	dirs := append([]store.Dir(nil), extra...)
	for _, d := range flagCatalogDirs {
		dirs = append(dirs, store.Dir{Name: "flag", Path: d})
	}
	for _, d := range s.CatalogDirs {
		dirs = append(dirs, store.Dir{Name: dirName(d), Path: d})
	}

	return &engine{
		settings: s,
		fs:       fs,
		dirs:     dirs,
		resolver: resolve.New(resolve.Config{
			Store:   store.New(src),
			Locator: store.NewLocator(src, dirs, s.CatalogAliases),
			Lenient: flagLenient || !s.StrictBindings,
		}),
	}
}

func dirName(path string) string {
	if strings.HasPrefix(path, config.LibraryDir()) {
		return "library"
	}
	return "project"
}

func (e *engine) indexer() *index.Builder {
	return &index.Builder{Fs: e.fs, Dirs: e.dirs}
}

// searchDirs lists the directories a default engine searches.
func searchDirs(s config.Settings) []string {
	out := append([]string(nil), flagCatalogDirs...)
	return append(out, s.CatalogDirs...)
}

// parseBindings turns repeated name=value flags into a map.
func parseBindings(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, value, err := resolve.ParseBinding(a)
		if err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("binding %q given twice", name)
		}
		out[name] = value
	}
	return out, nil
}

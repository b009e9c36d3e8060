package index

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/scenariokit/scenariocat/internal/logging"
)

// cacheFormat is bumped whenever the cached JSON layout changes.
const cacheFormat = 1

// CachedIndex holds an index along with the directory modification times
// used for invalidation.
type CachedIndex struct {
	Format   int              `json:"format"`
	Index    *Index           `json:"index"`
	DirMods  map[string]int64 `json:"dir_mods"` // dir path -> latest mtime, unix nanoseconds
	CachedAt time.Time        `json:"cached_at"`
}

// Cached returns the index from the cache file at path in cacheFs when it
// is still valid, and otherwise rebuilds it and rewrites the cache.
func (b *Builder) Cached(ctx context.Context, cacheFs afero.Fs, path string) (*Index, error) {
	log := logging.FromContext(ctx)
	cached, err := loadCache(cacheFs, path)
	if err == nil && b.isCacheValid(cached) {
		log.Debug("index cache hit", "path", path)
		return cached.Index, nil
	}

	idx, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	// Best effort: listing still works without caching.
	if err := b.writeCache(cacheFs, path, idx); err != nil {
		log.Warn("writing index cache", "path", path, "err", err)
	}
	return idx, nil
}

func loadCache(fs afero.Fs, path string) (*CachedIndex, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	var c CachedIndex
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// isCacheValid checks that the cached directory list and modification
// times still match. Any change, including a missing directory, invalidates.
func (b *Builder) isCacheValid(c *CachedIndex) bool {
	if c == nil || c.Format != cacheFormat || c.Index == nil {
		return false
	}
	if len(c.DirMods) != len(b.Dirs) {
		return false
	}
	for _, d := range b.Dirs {
		mod, ok := c.DirMods[d.Path]
		if !ok || mod != b.latestMtime(d.Path) {
			return false
		}
	}
	return true
}

// latestMtime returns the latest modification time across dir and the
// files directly inside it. Missing directories yield 0.
func (b *Builder) latestMtime(dir string) int64 {
	info, err := b.Fs.Stat(dir)
	if err != nil {
		return 0
	}
	latest := info.ModTime().UnixNano()
	infos, err := afero.ReadDir(b.Fs, dir)
	if err != nil {
		return latest
	}
	for _, fi := range infos {
		if t := fi.ModTime().UnixNano(); t > latest {
			latest = t
		}
	}
	return latest
}

func (b *Builder) writeCache(fs afero.Fs, path string, idx *Index) error {
	mods := make(map[string]int64, len(b.Dirs))
	for _, d := range b.Dirs {
		mods[d.Path] = b.latestMtime(d.Path)
	}
	data, err := json.MarshalIndent(CachedIndex{
		Format:   cacheFormat,
		Index:    idx,
		DirMods:  mods,
		CachedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0644)
}

// Package store loads raw catalog content. A Store deduplicates concurrent
// loads of one path and keeps loaded bytes for the life of the process; a
// Locator maps catalog names to paths inside a Source.
package store

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Source reads catalog content. Implementations must be safe for
// concurrent use.
type Source interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FSSource is a Source over an afero filesystem.
type FSSource struct {
	fs afero.Fs
}

// NewFSSource wraps fsys.
func NewFSSource(fsys afero.Fs) *FSSource {
	return &FSSource{fs: fsys}
}

// NewOSSource reads from the operating system. A non-empty root confines
// every path below it.
func NewOSSource(root string) *FSSource {
	var fsys afero.Fs = afero.NewOsFs()
	if root != "" {
		fsys = afero.NewBasePathFs(fsys, root)
	}
	return NewFSSource(fsys)
}

// NewMemSource returns an empty in-memory source. Populate it with
// WriteFile.
func NewMemSource() *FSSource {
	return NewFSSource(afero.NewMemMapFs())
}

// NewEmbedSource reads from an io/fs filesystem such as an embed.FS
// catalog bundle. Paths use forward slashes without a leading slash.
func NewEmbedSource(fsys fs.FS) *FSSource {
	return NewFSSource(afero.NewReadOnlyFs(afero.FromIOFS{FS: fsys}))
}

// Fs returns the underlying filesystem.
func (s *FSSource) Fs() afero.Fs { return s.fs }

// ReadFile reads the whole file at path.
func (s *FSSource) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, path)
}

// Exists reports whether path names a regular file.
func (s *FSSource) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// WriteFile stores data at path, creating parent directories.
func (s *FSSource) WriteFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, path, data, 0o644)
}

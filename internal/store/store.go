package store

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/scenariokit/scenariocat/internal/caterr"
	"github.com/scenariokit/scenariocat/internal/logging"
)

// Stats counts store activity.
type Stats struct {
	Loads int64 // reads that reached the source
	Hits  int64 // loads answered from memory
}

// Store loads raw catalog content through a Source. Content is cached by
// path for the life of the Store and must not be modified by callers.
type Store struct {
	src   Source
	group singleflight.Group

	mu  sync.RWMutex
	raw map[string][]byte

	loads atomic.Int64
	hits  atomic.Int64
}

// New returns a Store reading from src.
func New(src Source) *Store {
	return &Store{src: src, raw: make(map[string][]byte)}
}

// Load returns the content at path. Concurrent loads of one path share a
// single read. The read is detached from ctx: a caller that gives up gets
// ctx.Err() back while the read continues for the others.
func (s *Store) Load(ctx context.Context, path string) ([]byte, error) {
	if data, ok := s.cached(path); ok {
		s.hits.Add(1)
		return data, nil
	}

	ch := s.group.DoChan(path, func() (any, error) {
		if data, ok := s.cached(path); ok {
			return data, nil
		}
		data, err := s.read(context.WithoutCancel(ctx), path)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if existing, ok := s.raw[path]; ok {
			data = existing
		} else {
			s.raw[path] = data
		}
		s.mu.Unlock()
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	}
}

func (s *Store) read(ctx context.Context, path string) ([]byte, error) {
	s.loads.Add(1)
	logging.FromContext(ctx).Debug("loading catalog", "path", path)

	data, err := s.src.ReadFile(ctx, path)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &caterr.Error{Kind: caterr.NotFound, Path: path, Err: err}
	}
	return nil, &caterr.Error{Kind: caterr.IoFailure, Path: path, Err: err}
}

func (s *Store) cached(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.raw[path]
	return data, ok
}

// Forget drops the cached content of path. The next Load reads it again.
func (s *Store) Forget(path string) {
	s.mu.Lock()
	delete(s.raw, path)
	s.mu.Unlock()
	s.group.Forget(path)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	return Stats{Loads: s.loads.Load(), Hits: s.hits.Load()}
}

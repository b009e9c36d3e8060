// Package catalogrepo keeps a local checkout of the shared catalog library.
// It handles cloning, updating, and freshness tracking of the checkout.
package catalogrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/scenariokit/scenariocat/internal/logging"
)

const (
	// freshnessFile is the name of the timestamp marker file.
	freshnessFile = ".catalogs-updated"

	// DefaultMaxAge is the default staleness threshold (7 days).
	DefaultMaxAge = 7 * 24 * time.Hour

	// CatalogSubdir is the directory of the library repo holding catalogs.
	CatalogSubdir = "catalogs"

	// tmpSuffix is appended to the target dir during atomic clone.
	tmpSuffix = ".tmp"
)

// Repo is a library checkout.
type Repo struct {
	Dir string // local checkout
	URL string // remote
}

// Status describes a checkout.
type Status struct {
	Dir         string    `json:"dir"`
	URL         string    `json:"url"`
	Present     bool      `json:"present"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	Stale       bool      `json:"stale"`
}

// CatalogDir returns the directory holding the library's catalog files.
func (r *Repo) CatalogDir() string {
	return filepath.Join(r.Dir, CatalogSubdir)
}

// Present reports whether the checkout exists.
func (r *Repo) Present() bool {
	_, err := os.Stat(filepath.Join(r.Dir, ".git"))
	return err == nil
}

// Status returns the checkout state without touching the network.
func (r *Repo) Status(maxAge time.Duration) Status {
	s := Status{Dir: r.Dir, URL: r.URL, Present: r.Present()}
	s.LastUpdated = ReadFreshnessMarker(r.Dir)
	s.Stale = IsStale(r.Dir, maxAge)
	return s
}

// Sync updates the checkout, cloning it first when it does not exist.
func (r *Repo) Sync(ctx context.Context) error {
	if !r.Present() {
		return r.Clone(ctx)
	}
	return r.Update(ctx)
}

// Clone performs a shallow clone of the library into Dir. It attempts a
// sparse checkout of the catalogs/ subdirectory (git >= 2.25.0) and falls
// back to a full shallow clone.
//
// The clone is atomic: it writes to a .tmp directory first, then renames
// on success. On failure the .tmp directory is cleaned up.
func (r *Repo) Clone(ctx context.Context) error {
	if err := ensureGit(); err != nil {
		return err
	}
	log := logging.FromContext(ctx)
	tmpDir := r.Dir + tmpSuffix

	// Clean up any leftover tmp dir from a previous failed attempt.
	_ = os.RemoveAll(tmpDir)

	if err := os.MkdirAll(filepath.Dir(tmpDir), 0755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	log.Info("cloning catalog library", "url", r.URL, "dir", r.Dir)
	if err := trySparseClone(ctx, tmpDir, r.URL); err != nil {
		log.Debug("sparse clone failed, retrying with full clone", "err", err)
		_ = os.RemoveAll(tmpDir)
		if err := fullShallowClone(ctx, tmpDir, r.URL); err != nil {
			_ = os.RemoveAll(tmpDir)
			return fmt.Errorf("cloning catalog library: %w", err)
		}
	}

	if err := os.RemoveAll(r.Dir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("removing existing library dir: %w", err)
	}
	if err := os.Rename(tmpDir, r.Dir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("finalizing library clone: %w", err)
	}

	WriteFreshnessMarker(r.Dir)
	return nil
}

// Update pulls the latest changes into the checkout.
func (r *Repo) Update(ctx context.Context) error {
	if err := ensureGit(); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("updating catalog library", "dir", r.Dir)
	if err := git(ctx, r.Dir, "pull", "--depth=1", "--rebase"); err != nil {
		return fmt.Errorf("pulling catalog updates: %w", err)
	}
	WriteFreshnessMarker(r.Dir)
	return nil
}

// WriteFreshnessMarker writes the current Unix timestamp to the freshness file.
func WriteFreshnessMarker(dir string) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	_ = os.WriteFile(filepath.Join(dir, freshnessFile), []byte(ts), 0644)
}

// ReadFreshnessMarker reads the timestamp from the freshness file.
// Returns zero time if the file doesn't exist or can't be parsed.
func ReadFreshnessMarker(dir string) time.Time {
	data, err := os.ReadFile(filepath.Join(dir, freshnessFile))
	if err != nil {
		return time.Time{}
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// IsStale returns true if the checkout was last updated more than maxAge
// ago, or never.
func IsStale(dir string, maxAge time.Duration) bool {
	lastUpdated := ReadFreshnessMarker(dir)
	if lastUpdated.IsZero() {
		return true
	}
	return time.Since(lastUpdated) > maxAge
}

func trySparseClone(ctx context.Context, targetDir, repoURL string) error {
	if err := git(ctx, "", "clone", "--depth=1", "--sparse", "--no-checkout", repoURL, targetDir); err != nil {
		return fmt.Errorf("sparse clone: %w", err)
	}
	if err := git(ctx, targetDir, "sparse-checkout", "set", CatalogSubdir+"/"); err != nil {
		return fmt.Errorf("sparse-checkout set: %w", err)
	}
	if err := git(ctx, targetDir, "checkout"); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	return nil
}

// fullShallowClone performs a regular --depth=1 clone (fallback for older git).
func fullShallowClone(ctx context.Context, targetDir, repoURL string) error {
	if err := git(ctx, "", "clone", "--depth=1", repoURL, targetDir); err != nil {
		return fmt.Errorf("shallow clone: %w", err)
	}
	return nil
}

func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w\n%s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ensureGit checks that git is available on PATH.
func ensureGit() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git is required but not found in PATH")
	}
	return nil
}

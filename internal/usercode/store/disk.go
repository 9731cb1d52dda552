package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
)

var (
	_ Store      = (*DiskStore)(nil)
	_ PathReader = (*DiskStore)(nil)
)

// DiskStore serves scripts from a data directory laid out as
// <root>/global/<dir>/... and <root>/bots/<botId>/<dir>/...
type DiskStore struct {
	root string
}

// NewDiskStore returns a store rooted at dataDir. The path is made absolute.
func NewDiskStore(dataDir string) (*DiskStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %q: %w", dataDir, err)
	}
	return &DiskStore{root: abs}, nil
}

// Root returns the absolute data directory.
func (s *DiskStore) Root() string {
	return s.root
}

// Path implements Store.
func (s *DiskStore) Path(scope scripts.Scope, dir, name string) string {
	return filepath.Join(s.root, filepath.FromSlash(scope.String()), filepath.FromSlash(dir), filepath.FromSlash(name))
}

// List implements Store. A missing directory yields an empty listing.
func (s *DiskStore) List(
	ctx context.Context,
	scope scripts.Scope,
	dir, pattern string,
	excludes []string,
) ([]string, error) {
	m, err := newMatcher(pattern, excludes)
	if err != nil {
		return nil, err
	}

	base := s.Path(scope, dir, "")
	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if m.Match(rel) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", scope, dir, err)
	}

	sort.Strings(out)
	return out, nil
}

// Read implements Store.
func (s *DiskStore) Read(ctx context.Context, scope scripts.Scope, dir, name string) (string, error) {
	return s.ReadPath(ctx, s.Path(scope, dir, name))
}

// ReadPath implements PathReader.
func (s *DiskStore) ReadPath(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

// Exists implements PathReader. Only regular files count.
func (s *DiskStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Rename implements Store. It fails with ErrNotFound when from does not exist
// and with ErrExists when to already exists.
func (s *DiskStore) Rename(ctx context.Context, scope scripts.Scope, dir, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := s.Path(scope, dir, from)
	dst := s.Path(scope, dir, to)

	if !s.Exists(src) {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}

// Write creates or replaces a script, creating parent directories.
func (s *DiskStore) Write(ctx context.Context, scope scripts.Scope, dir, name, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.Path(scope, dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(p, []byte(source), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// Package store provides access to user script files per scope.
//
// The Store interface is the boundary to the file storage layer: it lists,
// reads and renames plain text scripts. DiskStore implements it on a local data
// directory and MemoryStore keeps everything in memory.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/gobwas/glob"
)

var (
	ErrNotFound = errors.New("script not found")
	ErrExists   = errors.New("script already exists")
	ErrBadGlob  = errors.New("invalid glob pattern")
)

// Store lists, reads and renames scripts. dir is a directory relative to the
// scope root, such as "actions" or "hooks/after_bot_mount"; names are slash
// separated paths relative to dir.
type Store interface {
	List(ctx context.Context, scope scripts.Scope, dir, pattern string, excludes []string) ([]string, error)
	Read(ctx context.Context, scope scripts.Scope, dir, name string) (string, error)
	Rename(ctx context.Context, scope scripts.Scope, dir, from, to string) error
	// Path returns the absolute path of a script; name may be empty to get the directory.
	Path(scope scripts.Scope, dir, name string) string
}

// PathReader gives access to scripts by absolute path, as produced by module resolution.
type PathReader interface {
	ReadPath(ctx context.Context, path string) (string, error)
	Exists(path string) bool
}

// matcher compiles an include pattern and exclude patterns, using "/" as separator.
type matcher struct {
	include  glob.Glob
	excludes []glob.Glob
}

func newMatcher(pattern string, excludes []string) (*matcher, error) {
	if pattern == "" {
		pattern = "**"
	}
	inc, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrBadGlob, pattern, err)
	}

	m := &matcher{include: inc}
	for _, ex := range excludes {
		g, err := glob.Compile(ex, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrBadGlob, ex, err)
		}
		m.excludes = append(m.excludes, g)
	}
	return m, nil
}

func (m *matcher) Match(name string) bool {
	if !m.include.Match(name) {
		return false
	}
	for _, ex := range m.excludes {
		if ex.Match(name) {
			return false
		}
	}
	return true
}

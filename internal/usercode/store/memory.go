package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
)

var (
	_ Store      = (*MemoryStore)(nil)
	_ PathReader = (*MemoryStore)(nil)
)

// MemoryRoot is the pseudo directory MemoryStore paths live under.
const MemoryRoot = "/memory"

// MemoryStore keeps scripts in memory, keyed by absolute pseudo path. It counts
// reads so callers can observe caching behavior.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]string
	reads atomic.Int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]string)}
}

// Path implements Store.
func (s *MemoryStore) Path(scope scripts.Scope, dir, name string) string {
	return path.Join(MemoryRoot, scope.String(), dir, name)
}

// Put stores a script.
func (s *MemoryStore) Put(scope scripts.Scope, dir, name, source string) {
	s.PutPath(s.Path(scope, dir, name), source)
}

// PutPath stores a script at an absolute pseudo path, for libraries and modules.
func (s *MemoryStore) PutPath(p, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path.Clean(p)] = source
}

// Delete removes a script.
func (s *MemoryStore) Delete(scope scripts.Scope, dir, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, s.Path(scope, dir, name))
}

// Reads returns the number of successful and failed reads served so far.
func (s *MemoryStore) Reads() int64 {
	return s.reads.Load()
}

// List implements Store.
func (s *MemoryStore) List(
	ctx context.Context,
	scope scripts.Scope,
	dir, pattern string,
	excludes []string,
) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := newMatcher(pattern, excludes)
	if err != nil {
		return nil, err
	}

	prefix := s.Path(scope, dir, "") + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for p := range s.files {
		rel, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		if m.Match(rel) {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, scope scripts.Scope, dir, name string) (string, error) {
	return s.ReadPath(ctx, s.Path(scope, dir, name))
}

// ReadPath implements PathReader.
func (s *MemoryStore) ReadPath(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.reads.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.files[path.Clean(p)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return src, nil
}

// Exists implements PathReader.
func (s *MemoryStore) Exists(p string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[path.Clean(p)]
	return ok
}

// Rename implements Store.
func (s *MemoryStore) Rename(ctx context.Context, scope scripts.Scope, dir, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := s.Path(scope, dir, from)
	dst := s.Path(scope, dir, to)

	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	if _, exists := s.files[dst]; exists {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	delete(s.files, src)
	s.files[dst] = content
	return nil
}

package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
)

// Memo remembers script paths whose import graph already validated.
type Memo interface {
	Validated(path string) bool
	MarkValidated(paths ...string)
}

// MapMemo is a goroutine-safe Memo.
type MapMemo struct {
	paths sync.Map
}

// Validated implements Memo.
func (m *MapMemo) Validated(path string) bool {
	_, ok := m.paths.Load(path)
	return ok
}

// MarkValidated implements Memo.
func (m *MapMemo) MarkValidated(paths ...string) {
	for _, p := range paths {
		m.paths.Store(p, struct{}{})
	}
}

// Validator checks that every import reachable from a script resolves.
type Validator struct {
	resolver *Resolver
	files    store.PathReader
	logger   *slog.Logger
}

// NewValidator returns a validator reading imported files through files.
func NewValidator(r *Resolver, files store.PathReader, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default().WithGroup("resolver.Validator")
	}
	return &Validator{resolver: r, files: files, logger: logger}
}

// Validate walks the import graph of t, whose content is source. Paths that
// memo reports as validated are not read again. The memo only learns about
// the graph once every import in it resolved.
func (v *Validator) Validate(ctx context.Context, t Target, source string, memo Memo) error {
	if t.Language != scripts.LanguageStarlark {
		// other languages have no local imports
		return nil
	}
	if memo.Validated(t.Path) {
		return nil
	}

	w := &walk{
		validator:  v,
		memo:       memo,
		inProgress: make(map[string]bool),
		done:       make(map[string]bool),
	}
	if err := w.visit(ctx, t, source); err != nil {
		v.logger.Debug("Import validation failed", "script", t.Path, "error", err)
		return err
	}

	paths := make([]string, 0, len(w.done))
	for p := range w.done {
		paths = append(paths, p)
	}
	memo.MarkValidated(paths...)
	return nil
}

type walk struct {
	validator  *Validator
	memo       Memo
	inProgress map[string]bool
	done       map[string]bool
}

func (w *walk) validated(path string) bool {
	return w.done[path] || w.memo.Validated(path)
}

func (w *walk) visit(ctx context.Context, t Target, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.inProgress[t.Path] = true
	defer delete(w.inProgress, t.Path)

	imports, err := ScanImports(t.Path, source)
	if err != nil {
		return err
	}

	lookup := w.validator.resolver.Lookup(t)
	for _, imp := range imports {
		res, err := w.validator.resolver.Resolve(lookup, imp.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", imp.Pos, err)
		}
		if res.Builtin || w.validated(res.Path) {
			continue
		}
		if w.inProgress[res.Path] {
			return fmt.Errorf("%w: %s loads %s", ErrImportCycle, t.Path, res.Path)
		}

		src, err := w.validator.files.ReadPath(ctx, res.Path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", res.Path, err)
		}
		child := Target{
			Path:     res.Path,
			Scope:    t.Scope,
			Marker:   t.Marker,
			Language: scripts.LanguageStarlark,
		}
		if err := w.visit(ctx, child, src); err != nil {
			return err
		}
	}

	w.done[t.Path] = true
	return nil
}

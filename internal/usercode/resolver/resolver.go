// Package resolver computes module search paths for user scripts, resolves
// import names to files, and validates the imports of a script transitively
// before it is executed.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
)

// BuiltinPrefix marks modules provided by the runtime instead of the data directory.
const BuiltinPrefix = "@stdlib/"

// ModuleExt is appended to import names that have no extension.
const ModuleExt = ".star"

// builtinModules are the names accepted under BuiltinPrefix.
var builtinModules = map[string]struct{}{
	"json": {},
	"math": {},
	"time": {},
}

// IsBuiltin reports whether name refers to a runtime-provided module that exists.
func IsBuiltin(name string) bool {
	rest, ok := strings.CutPrefix(name, BuiltinPrefix)
	if !ok {
		return false
	}
	_, known := builtinModules[rest]
	return known
}

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrImportCycle    = errors.New("import cycle")
	ErrSyntax         = errors.New("syntax error")
)

// ModuleNotFoundError reports a name that no search root could resolve.
type ModuleNotFoundError struct {
	Name   string
	Paths  []string
	Reason string
}

func (e *ModuleNotFoundError) Error() string {
	msg := fmt.Sprintf("cannot resolve %q in [%s]", e.Name, strings.Join(e.Paths, ", "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches ErrModuleNotFound.
func (e *ModuleNotFoundError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// Options configures where libraries and extension modules live.
type Options struct {
	// SharedLibs is the global shared libraries directory.
	SharedLibs string
	// BotLibraries returns the libraries directory of a bot.
	BotLibraries func(botID string) string
	// Modules maps installed extension module names to their root directory.
	Modules map[string]string
}

// Target is a script whose imports are resolved.
type Target struct {
	// Path is the absolute path of the script file.
	Path  string
	Scope scripts.Scope
	// Marker is the directory segment after which an extension module name
	// may appear: the category for actions, the lifecycle for hooks.
	Marker   string
	Language scripts.Language
}

// Lookup is the resolution context of one script.
type Lookup struct {
	// Dir is the directory of the script; relative imports resolve against it.
	Dir string
	// Paths are the ordered search roots.
	Paths []string
}

// ResolvedImport maps an import name to a file, or marks it builtin.
type ResolvedImport struct {
	Name    string
	Path    string
	Root    string
	Builtin bool
}

// Resolver resolves import names against the search roots of a script.
type Resolver struct {
	opts   Options
	files  store.PathReader
	logger *slog.Logger
}

// New returns a resolver checking file existence through files.
func New(files store.PathReader, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default().WithGroup("resolver.Resolver")
	}
	return &Resolver{opts: opts, files: files, logger: logger}
}

// SearchPaths returns the ordered search roots of a script: an extension
// module root first when the script lives under one, then the script's own
// directory, then the bot libraries for bot scripts, then the shared libraries.
func (r *Resolver) SearchPaths(t Target) []string {
	var paths []string
	if root, ok := r.moduleRoot(t); ok {
		paths = append(paths, root)
	}
	paths = append(paths, filepath.Dir(t.Path))
	if !t.Scope.IsGlobal() && r.opts.BotLibraries != nil {
		paths = append(paths, r.opts.BotLibraries(t.Scope.BotID()))
	}
	paths = append(paths, r.opts.SharedLibs)
	return dedupe(paths)
}

// Lookup returns the resolution context of t.
func (r *Resolver) Lookup(t Target) Lookup {
	return Lookup{Dir: filepath.Dir(t.Path), Paths: r.SearchPaths(t)}
}

// moduleRoot checks whether a segment following the marker directory is an
// installed extension module. The marker may also appear in the data
// directory itself, so every occurrence is tried.
func (r *Resolver) moduleRoot(t Target) (string, bool) {
	if len(r.opts.Modules) == 0 || t.Marker == "" {
		return "", false
	}
	segments := strings.Split(filepath.ToSlash(t.Path), "/")
	// the segment after the marker must be a directory, not the file itself
	for i := 0; i < len(segments)-2; i++ {
		if segments[i] != t.Marker {
			continue
		}
		if root, ok := r.opts.Modules[segments[i+1]]; ok && root != "" {
			return root, true
		}
	}
	return "", false
}

// Resolve walks the search roots in order and returns the first root under
// which name is an existing file.
func (r *Resolver) Resolve(l Lookup, name string) (ResolvedImport, error) {
	if strings.HasPrefix(name, BuiltinPrefix) {
		if IsBuiltin(name) {
			return ResolvedImport{Name: name, Builtin: true}, nil
		}
		return ResolvedImport{}, &ModuleNotFoundError{Name: name, Reason: "unknown builtin module"}
	}
	if name == "" {
		return ResolvedImport{}, &ModuleNotFoundError{Name: name, Paths: l.Paths, Reason: "empty module name"}
	}

	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		if p, ok := r.find(l.Dir, name); ok {
			return ResolvedImport{Name: name, Path: p, Root: l.Dir}, nil
		}
		return ResolvedImport{}, &ModuleNotFoundError{Name: name, Paths: []string{l.Dir}}
	}

	if filepath.IsAbs(name) {
		return ResolvedImport{}, &ModuleNotFoundError{Name: name, Paths: l.Paths, Reason: "absolute paths are not allowed"}
	}

	for _, root := range l.Paths {
		if p, ok := r.find(root, name); ok {
			r.logger.Debug("Resolved import", "name", name, "path", p)
			return ResolvedImport{Name: name, Path: p, Root: root}, nil
		}
	}
	return ResolvedImport{}, &ModuleNotFoundError{Name: name, Paths: l.Paths}
}

// find returns the file for name under root. Candidates that would escape root
// are rejected.
func (r *Resolver) find(root, name string) (string, bool) {
	if root == "" {
		return "", false
	}
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = append(candidates, name+ModuleExt)
	}
	for _, c := range candidates {
		p := filepath.Join(root, filepath.FromSlash(c))
		if !within(root, p) {
			continue
		}
		if r.files.Exists(p) {
			return p, true
		}
	}
	return "", false
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

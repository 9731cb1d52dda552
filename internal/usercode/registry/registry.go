// Package registry discovers actions and hooks, caches their source and the
// outcome of import validation, and drops all of it when user code changes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/bus"
	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
)

// DefaultDebounce is the quiet window collapsing bursts of change notifications.
const DefaultDebounce = 2 * time.Second

// DefaultTrustedPrefixes mark actions shipped with the platform.
var DefaultTrustedPrefixes = []string{"builtin/"}

var ErrActionNotFound = errors.New("action not found")

const actionsDir = string(scripts.CategoryActions)

// invalidationKey matches keys under one of the user code categories.
var invalidationKey = regexp.MustCompile(`(\\|/)(actions|hooks|shared_libs|libraries)(\\|/|$)`)

// Script is a discovered script together with its source text.
type Script struct {
	Descriptor scripts.Descriptor
	Source     string
	// Path is the absolute path of the script file.
	Path string
}

// cacheState holds every cache of the registry. It is replaced wholesale on
// invalidation, so readers see either the old or the new state.
type cacheState struct {
	mu        sync.Mutex
	sources   map[string]string
	actions   map[string][]scripts.Descriptor
	hooks     map[string][]Script
	// validated is keyed by scope: the same library may resolve differently
	// for two bots.
	validated map[string]*resolver.MapMemo
}

func newCacheState() *cacheState {
	return &cacheState{
		sources:   make(map[string]string),
		actions:   make(map[string][]scripts.Descriptor),
		hooks:     make(map[string][]Script),
		validated: make(map[string]*resolver.MapMemo),
	}
}

func (s *cacheState) memo(scope scripts.Scope) *resolver.MapMemo {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.validated[scope.String()]
	if !ok {
		m = &resolver.MapMemo{}
		s.validated[scope.String()] = m
	}
	return m
}

// Registry is the single owner of the script caches.
type Registry struct {
	store           store.Store
	validator       *resolver.Validator
	trustedPrefixes []string
	debounce        time.Duration
	logger          *slog.Logger

	state     atomic.Pointer[cacheState]
	debouncer *debouncer
	clears    atomic.Int64
}

// New returns a registry reading scripts from st.
func New(st store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:           st,
		trustedPrefixes: DefaultTrustedPrefixes,
		debounce:        DefaultDebounce,
		logger:          slog.Default().WithGroup("registry.Registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state.Store(newCacheState())
	r.debouncer = newDebouncer(r.debounce, r.Clear)
	return r
}

func (r *Registry) current() *cacheState {
	return r.state.Load()
}

// ListActions returns the enabled global actions followed by, for a bot scope,
// the enabled actions of that bot.
func (r *Registry) ListActions(ctx context.Context, scope scripts.Scope) ([]scripts.Descriptor, error) {
	global, err := r.listScope(ctx, scripts.Global())
	if err != nil {
		return nil, err
	}
	if scope.IsGlobal() {
		return global, nil
	}
	local, err := r.listScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]scripts.Descriptor, 0, len(global)+len(local))
	out = append(out, global...)
	return append(out, local...), nil
}

// ListLocalActions returns the enabled actions of one bot only.
func (r *Registry) ListLocalActions(ctx context.Context, botID string) ([]scripts.Descriptor, error) {
	return r.listScope(ctx, scripts.Bot(botID))
}

func (r *Registry) listScope(ctx context.Context, scope scripts.Scope) ([]scripts.Descriptor, error) {
	state := r.current()
	key := scope.String()

	state.mu.Lock()
	cached, ok := state.actions[key]
	state.mu.Unlock()
	if ok {
		return cached, nil
	}

	files, err := r.store.List(ctx, scope, actionsDir, scripts.ScriptPattern, scripts.DefaultExcludes)
	if err != nil {
		return nil, fmt.Errorf("listing actions of %s: %w", scope, err)
	}

	descriptors := make([]scripts.Descriptor, 0, len(files))
	for _, file := range scripts.FilterEnabled(files) {
		name, variant, lang, ok := scripts.ParseActionFile(file)
		if !ok {
			continue
		}
		tier := scripts.ClassifyTrust(name, r.trustedPrefixes)
		if lang != scripts.LanguageStarlark {
			// only starlark has a direct executor
			tier = scripts.TierSandboxed
		}
		d := scripts.Descriptor{
			Name:     name,
			Scope:    scope,
			Tier:     tier,
			Variant:  variant,
			Language: lang,
			File:     file,
		}
		src, err := r.source(ctx, state, d)
		if err != nil {
			// a file that vanished between listing and reading is skipped
			r.logger.Warn("Skipping unreadable action", "scope", scope, "file", file, "error", err)
			continue
		}
		d.Metadata = scripts.ExtractMetadata(src)
		descriptors = append(descriptors, d)
	}

	state.mu.Lock()
	state.actions[key] = descriptors
	state.mu.Unlock()
	return descriptors, nil
}

// FindAction returns the first action called name visible from scope. Global
// actions win over bot actions of the same name.
func (r *Registry) FindAction(ctx context.Context, name string, scope scripts.Scope) (scripts.Descriptor, error) {
	actions, err := r.ListActions(ctx, scope)
	if err != nil {
		return scripts.Descriptor{}, err
	}
	for _, d := range actions {
		if d.Name == name {
			return d, nil
		}
	}
	return scripts.Descriptor{}, fmt.Errorf("%w: %s in %s", ErrActionNotFound, name, scope)
}

// HasAction reports whether an enabled action called name is visible from scope.
func (r *Registry) HasAction(ctx context.Context, name string, scope scripts.Scope) (bool, error) {
	_, err := r.FindAction(ctx, name, scope)
	if errors.Is(err, ErrActionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetScript returns the descriptor and source of an action, reading the store
// only when the source is not cached.
func (r *Registry) GetScript(ctx context.Context, name string, scope scripts.Scope) (*Script, error) {
	d, err := r.FindAction(ctx, name, scope)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, d)
}

// Load returns the script of a known descriptor.
func (r *Registry) Load(ctx context.Context, d scripts.Descriptor) (*Script, error) {
	src, err := r.source(ctx, r.current(), d)
	if err != nil {
		return nil, err
	}
	return &Script{Descriptor: d, Source: src, Path: r.path(d)}, nil
}

func (r *Registry) source(ctx context.Context, state *cacheState, d scripts.Descriptor) (string, error) {
	key := d.CacheKey()

	state.mu.Lock()
	src, ok := state.sources[key]
	state.mu.Unlock()
	if ok {
		return src, nil
	}

	src, err := r.store.Read(ctx, d.Scope, actionsDir, d.File)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", d, err)
	}

	state.mu.Lock()
	state.sources[key] = src
	state.mu.Unlock()
	return src, nil
}

// ListHooks returns the enabled hooks of a lifecycle: global hooks first, then
// the hooks of botID when it is set. The result is cached per lifecycle and bot.
// Listing failures degrade to an empty result.
func (r *Registry) ListHooks(ctx context.Context, lifecycle, botID string) []Script {
	state := r.current()
	key := lifecycle
	if botID != "" {
		key = lifecycle + "_" + botID
	}

	state.mu.Lock()
	cached, ok := state.hooks[key]
	state.mu.Unlock()
	if ok {
		return cached
	}

	hooks, err := r.listHookScope(ctx, lifecycle, scripts.Global())
	if err == nil && botID != "" {
		var local []Script
		local, err = r.listHookScope(ctx, lifecycle, scripts.Bot(botID))
		hooks = append(hooks, local...)
	}
	if err != nil {
		r.logger.Error("Failed to list hooks", "lifecycle", lifecycle, "botID", botID, "error", err)
		return nil
	}

	state.mu.Lock()
	state.hooks[key] = hooks
	state.mu.Unlock()
	return hooks
}

func (r *Registry) listHookScope(ctx context.Context, lifecycle string, scope scripts.Scope) ([]Script, error) {
	dir := HookDir(lifecycle)
	files, err := r.store.List(ctx, scope, dir, scripts.HookPattern, scripts.DefaultExcludes)
	if err != nil {
		return nil, err
	}

	out := make([]Script, 0, len(files))
	for _, file := range scripts.FilterEnabled(files) {
		d := scripts.Descriptor{
			Name:     scripts.HookName(file),
			Scope:    scope,
			Tier:     scripts.ClassifyTrust(file, r.trustedPrefixes),
			Variant:  scripts.VariantLegacy,
			Language: scripts.LanguageStarlark,
			File:     file,
		}
		src, err := r.store.Read(ctx, scope, dir, file)
		if err != nil {
			return nil, err
		}
		d.Metadata = scripts.ExtractMetadata(src)
		out = append(out, Script{Descriptor: d, Source: src, Path: r.store.Path(scope, dir, file)})
	}
	return out, nil
}

// ValidateImports checks the import graph of s. Successful validations are
// memoized per scope until the next cache clear.
func (r *Registry) ValidateImports(ctx context.Context, s *Script, marker string) error {
	if r.validator == nil {
		return nil
	}
	t := resolver.Target{
		Path:     s.Path,
		Scope:    s.Descriptor.Scope,
		Marker:   marker,
		Language: s.Descriptor.Language,
	}
	return r.validator.Validate(ctx, t, s.Source, r.current().memo(t.Scope))
}

// Invalidate handles a change notification. Keys outside the user code
// categories are ignored. It reports whether the caches were cleared.
func (r *Registry) Invalidate(key string) bool {
	if !invalidationKey.MatchString(key) {
		return false
	}
	cleared := r.debouncer.Trigger()
	if !cleared {
		r.logger.Debug("Invalidation suppressed", "key", key)
	}
	return cleared
}

// Clear drops every cache immediately.
func (r *Registry) Clear() {
	r.state.Store(newCacheState())
	n := r.clears.Add(1)
	r.logger.Debug("Cleared script caches", "clears", n)
}

// Clears returns how many times the caches were cleared.
func (r *Registry) Clears() int64 {
	return r.clears.Load()
}

// Subscribe registers the registry on a change notification bus.
func (r *Registry) Subscribe(sub bus.Subscriber) (unsubscribe func()) {
	return sub.Subscribe(func(key string) { r.Invalidate(key) })
}

// Stop releases the debounce timer.
func (r *Registry) Stop() {
	r.debouncer.Stop()
}

func (r *Registry) path(d scripts.Descriptor) string {
	return r.store.Path(d.Scope, actionsDir, d.File)
}

// HookDir is the store directory of a lifecycle's hooks.
func HookDir(lifecycle string) string {
	return string(scripts.CategoryHooks) + "/" + lifecycle
}


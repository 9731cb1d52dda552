// Package hooks runs the user scripts attached to lifecycle points. Hooks of
// one lifecycle run one after another, ordered by file name, so a hook sees
// the state left by the hooks before it.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
)

// ErrorTypeHook is the event error type recorded for failed hooks.
const ErrorTypeHook = "hook-execution"

var ErrUnknownLifecycle = errors.New("unknown lifecycle")

// Hook is one lifecycle occurrence.
type Hook struct {
	Lifecycle string
	// Event is the event the lifecycle concerns, if any. Hooks mutate its state.
	Event *event.Event
	// BotID selects bot hooks when there is no event.
	BotID string
	// Args are bound as top-level names in every hook script.
	Args map[string]any
}

func (h Hook) botID() string {
	if h.Event != nil && h.Event.BotID != "" {
		return h.Event.BotID
	}
	return h.BotID
}

// HookError is returned when a hook of a throwing lifecycle fails.
type HookError struct {
	Lifecycle string
	Hook      string
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %q on %q failed: %v", e.Hook, e.Lifecycle, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Runner executes hooks through an engine.
type Runner struct {
	engine     *engine.Engine
	registry   *registry.Registry
	store      store.Store
	lifecycles map[string]Options
	logger     *slog.Logger
}

// NewRunner returns a runner executing hooks with eng and toggling them in st.
func NewRunner(eng *engine.Engine, st store.Store, opts ...Option) *Runner {
	r := &Runner{
		engine:     eng,
		registry:   eng.Registry(),
		store:      st,
		lifecycles: DefaultLifecycles(),
		logger:     slog.Default().WithGroup("hooks.Runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lifecycles returns the known lifecycle names, sorted.
func (r *Runner) Lifecycles() []string {
	return slices.Sorted(maps.Keys(r.lifecycles))
}

// Options returns the policy of a lifecycle.
func (r *Runner) Options(lifecycle string) (Options, bool) {
	opts, ok := r.lifecycles[lifecycle]
	return opts, ok
}

// List returns the enabled hooks of a lifecycle in execution order.
func (r *Runner) List(ctx context.Context, lifecycle, botID string) []registry.Script {
	hooks := slices.Clone(r.registry.ListHooks(ctx, lifecycle, botID))
	slices.SortStableFunc(hooks, func(a, b registry.Script) int {
		return strings.Compare(path.Base(a.Descriptor.File), path.Base(b.Descriptor.File))
	})
	return hooks
}

// Run executes every enabled hook of h.Lifecycle in order. A failing hook is
// recorded on the event and logged; for a throwing lifecycle the remaining
// hooks are skipped and a HookError is returned.
func (r *Runner) Run(ctx context.Context, h Hook) ([]*engine.Outcome, error) {
	opts, ok := r.lifecycles[h.Lifecycle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLifecycle, h.Lifecycle)
	}
	botID := h.botID()
	logger := r.logger.With("lifecycle", h.Lifecycle, "botID", botID)

	globals := maps.Clone(h.Args)
	if globals == nil {
		globals = map[string]any{}
	}
	if botID != "" {
		globals[executor.BindingBotID] = botID
	}

	hooks := r.List(ctx, h.Lifecycle, botID)
	outcomes := make([]*engine.Outcome, 0, len(hooks))
	for i := range hooks {
		hook := &hooks[i]
		name := hook.Descriptor.Name
		logger.Debug("Running hook", "hook", hook.Descriptor.File, "scope", hook.Descriptor.Scope)

		out, err := r.engine.Execute(ctx, engine.ExecutionRequest{
			Script:  hook,
			Event:   h.Event,
			Marker:  h.Lifecycle,
			Timeout: opts.Timeout,
			Globals: globals,
			Local:   true,
		})
		if out != nil {
			outcomes = append(outcomes, out)
		}
		if err != nil {
			r.recordStep(h, name, err)
			logger.Error("An error occurred on hook", "hook", hook.Descriptor.File, "error", err)
			if opts.ThrowOnError {
				return outcomes, &HookError{Lifecycle: h.Lifecycle, Hook: name, Err: err}
			}
			continue
		}
		r.recordStep(h, name, nil)
	}
	return outcomes, nil
}

func (r *Runner) recordStep(h Hook, name string, err error) {
	if h.Event == nil {
		return
	}
	if err != nil {
		args := maps.Clone(h.Args)
		delete(args, engine.BindingAPI)
		delete(args, executor.BindingEvent)
		h.Event.AddError(event.Error{
			Type:       ErrorTypeHook,
			Stacktrace: executor.AsExecutionError(name, err).Stacktrace(),
			ActionArgs: args,
		})
		h.Event.AddStep(event.StepScopeHook, name, event.StepError)
		return
	}
	h.Event.AddStep(event.StepScopeHook, name, event.StepCompleted)
}

// Enable removes the disabled marker of a global hook. It returns false when
// the hook is already enabled or does not exist.
func (r *Runner) Enable(ctx context.Context, lifecycle, name, module string) bool {
	file := scripts.HookFile(name, module)
	return r.rename(ctx, lifecycle, scripts.DisabledName(file), file)
}

// Disable adds the disabled marker to a global hook. It returns false when
// the hook is already disabled or does not exist.
func (r *Runner) Disable(ctx context.Context, lifecycle, name, module string) bool {
	file := scripts.HookFile(name, module)
	return r.rename(ctx, lifecycle, file, scripts.DisabledName(file))
}

func (r *Runner) rename(ctx context.Context, lifecycle, from, to string) bool {
	dir := registry.HookDir(lifecycle)
	if err := r.store.Rename(ctx, scripts.Global(), dir, from, to); err != nil {
		r.logger.Debug("Hook not renamed", "lifecycle", lifecycle, "from", from, "to", to, "error", err)
		return false
	}
	r.registry.Clear()
	r.logger.Info("Renamed hook", "lifecycle", lifecycle, "from", from, "to", to)
	return true
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/store"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Mode selects how much a Starlark executor isolates the script.
type Mode int

const (
	// ModeDirect runs with the caller's bindings and no time limit.
	ModeDirect Mode = iota
	// ModeSandboxed runs with the permitted bindings only, under a timeout
	// and an optional step budget.
	ModeSandboxed
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "sandboxed"
}

// stepLimitReason is the cancellation reason starlark uses when a thread
// exhausts its step budget.
const stepLimitReason = "too many steps"

var _ Executor = (*Starlark)(nil)

// Starlark runs Starlark programs.
type Starlark struct {
	mode     Mode
	resolver *resolver.Resolver
	files    store.PathReader
	timeout  time.Duration
	maxSteps uint64
	process  map[string]any
	logger   *slog.Logger
}

// NewDirect returns an executor running scripts in-process with the caller's
// bindings.
func NewDirect(res *resolver.Resolver, files store.PathReader, opts ...Option) *Starlark {
	return newStarlark(ModeDirect, res, files, opts...)
}

// NewSandboxed returns an executor running scripts in an isolated context.
func NewSandboxed(res *resolver.Resolver, files store.PathReader, opts ...Option) *Starlark {
	return newStarlark(ModeSandboxed, res, files, opts...)
}

func newStarlark(mode Mode, res *resolver.Resolver, files store.PathReader, opts ...Option) *Starlark {
	s := &Starlark{
		mode:     mode,
		resolver: res,
		files:    files,
		timeout:  DefaultTimeout,
		logger:   slog.Default().WithGroup("executor.Starlark"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the isolation mode of the executor.
func (s *Starlark) Mode() Mode {
	return s.mode
}

// Run implements Executor.
func (s *Starlark) Run(ctx context.Context, p Program) (result *Result, err error) {
	logger := s.logger.With("script", p.Script, "mode", s.mode)

	bindings := s.permitted(p, logger)
	predeclared, err := ToStringDict(bindings)
	if err != nil {
		return nil, NewError(KindRuntime, p.Script, err)
	}
	bound := partitionBindings(predeclared)

	runCtx := ctx
	var maxSteps uint64
	if s.mode == ModeSandboxed {
		maxSteps = s.maxSteps
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = s.timeout
		}
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	loader := newModuleLoader(runCtx, s.resolver, s.files, p.Target, maxSteps, p.Print)
	predeclared[resolver.RequireBuiltin] = loader.predeclared[resolver.RequireBuiltin]
	if _, ok := predeclared[BindingProcess]; !ok && s.process != nil {
		process, err := ToStarlark(s.process)
		if err != nil {
			return nil, NewError(KindRuntime, p.Script, err)
		}
		predeclared[BindingProcess] = process
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			loader.cancel(runCtx.Err().Error())
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewError(KindRuntime, p.Script, fmt.Errorf("panic: %v", r))
		}
	}()

	thread := loader.newThread(p.Script)
	logger.Debug("Executing script")
	module, execErr := starlark.ExecFileOptions(resolver.FileOptions, thread, p.Filename, p.Source, predeclared)
	if execErr != nil {
		return nil, s.classify(runCtx, loader, p.Script, execErr)
	}

	delta, err := extractState(bound, predeclared, module)
	if err != nil {
		return nil, NewError(KindRuntime, p.Script, err)
	}
	result = &Result{State: delta}
	if v, ok := module[BindingResult]; ok {
		if result.Value, err = FromStarlark(v); err != nil {
			return nil, NewError(KindRuntime, p.Script, fmt.Errorf("result: %w", err))
		}
	}
	return result, nil
}

// permitted returns the bindings the script may see in the executor's mode.
func (s *Starlark) permitted(p Program, logger *slog.Logger) map[string]any {
	bindings := p.Bindings
	out := make(map[string]any, len(bindings))
	if s.mode == ModeDirect {
		for k, v := range bindings {
			out[k] = v
		}
		return out
	}
	for _, k := range slices.Concat(SandboxBindings, p.Permitted) {
		if v, ok := bindings[k]; ok {
			out[k] = v
		}
	}
	for k := range bindings {
		if _, ok := out[k]; !ok {
			logger.Debug("Dropping binding outside the sandbox", "binding", k)
		}
	}
	return out
}

func (s *Starlark) classify(ctx context.Context, loader *moduleLoader, script string, err error) *ExecutionError {
	ee := NewError(KindRuntime, script, err)

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		ee.Backtrace = evalErr.Backtrace()
	}

	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	switch {
	case loader.wasCancelled() && errors.Is(ctx.Err(), context.DeadlineExceeded):
		ee.Kind = KindTimeout
		ee.Reason = "timeout"
	case loader.wasCancelled():
		ee.Reason = "cancelled"
	case strings.Contains(err.Error(), stepLimitReason):
		ee.Kind = KindTimeout
		ee.Reason = "max_steps"
	case errors.Is(err, resolver.ErrModuleNotFound):
		ee.Kind = KindModuleNotFound
	case errors.As(err, &syntaxErr), errors.As(err, &resolveErrs):
		ee.Kind = KindSyntax
	}
	s.logger.Debug("Script failed", "script", script, "kind", ee.Kind, "error", err)
	return ee
}

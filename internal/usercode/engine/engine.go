// Package engine runs user scripts. For each request it selects a strategy
// (direct, sandboxed or delegated) from the script's trust tier, the sandbox
// policy and the bot's action server, validates imports before anything runs,
// executes the script and returns the permitted state mutations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/delegation"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/execution"
	"github.com/atlanticdynamic/usercode/internal/usercode/execution/finitestate"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/registry"
	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
	"github.com/gofrs/uuid/v5"
)

// RunType is the requested execution mode. RunTypeAuto derives it from the
// script: trusted tier, then HTTP variant, then legacy.
type RunType int

const (
	RunTypeAuto RunType = iota
	RunTypeTrusted
	RunTypeLegacy
	RunTypeHTTP
)

func (r RunType) String() string {
	switch r {
	case RunTypeAuto:
		return "auto"
	case RunTypeTrusted:
		return "trusted"
	case RunTypeLegacy:
		return "legacy"
	case RunTypeHTTP:
		return "http"
	default:
		return fmt.Sprintf("RunType(%d)", int(r))
	}
}

// RunTypeFor returns the run type of a script.
func RunTypeFor(d scripts.Descriptor) RunType {
	switch {
	case d.Tier == scripts.TierTrusted:
		return RunTypeTrusted
	case d.Variant == scripts.VariantHTTP:
		return RunTypeHTTP
	default:
		return RunTypeLegacy
	}
}

// Strategy is how a script is executed. Its values are the run states of the
// execution record.
type Strategy string

const (
	StrategyDirect    Strategy = finitestate.StateDirect
	StrategySandboxed Strategy = finitestate.StateSandboxed
	StrategyDelegated Strategy = finitestate.StateDelegated
)

// SandboxPolicy holds the operator switches disabling the sandbox per scope.
type SandboxPolicy struct {
	DisableGlobal bool
	DisableBots   bool
}

// Disabled reports whether legacy scripts of scope run without isolation.
func (p SandboxPolicy) Disabled(scope scripts.Scope) bool {
	if scope.IsGlobal() {
		return p.DisableGlobal
	}
	return p.DisableBots
}

// BotDirectory answers questions about configured bots.
type BotDirectory interface {
	WorkspaceID(botID string) string
	// ActionServer returns the remote action server of a bot, if it has one.
	ActionServer(botID string) (delegation.Server, bool)
}

// Delegator runs scripts on a remote action server.
type Delegator interface {
	Delegate(ctx context.Context, req delegation.Request) (*delegation.Result, error)
}

// TokenSigner mints the capability token bound in HTTP-style scripts.
type TokenSigner interface {
	Sign(botID, workspaceID string) (string, error)
}

// Executors are the local executors of the engine. Risor may be nil, in which
// case Risor scripts fail.
type Executors struct {
	Direct    executor.Executor
	Sandboxed executor.Executor
	Risor     executor.Executor
}

// ExecutionRequest is one script run.
type ExecutionRequest struct {
	Script *registry.Script
	Args   map[string]any
	// Event is the event the script runs against. It may be nil for
	// lifecycle hooks without one.
	Event *event.Event
	// InvokingContextID identifies the caller in logs, typically the event id.
	InvokingContextID string
	Mode              RunType
	// Marker is the category segment used for module resolution, "actions"
	// or the lifecycle of a hook.
	Marker string
	// Timeout overrides the sandbox timeout.
	Timeout time.Duration
	// Globals are caller arguments bound as top-level names, such as the
	// arguments of a hook. Sandboxed runs see them too.
	Globals map[string]any
	// Local disables delegation to an action server.
	Local bool
}

// Outcome is the result of an executed request.
type Outcome struct {
	ID         uuid.UUID
	Script     string
	Strategy   Strategy
	Success    bool
	StateDelta event.StateDelta
	Value      any
	Error      *executor.ExecutionError
	Duration   time.Duration
	Logs       []execution.LogLine
	// Task is the delegation task of a delegated run.
	Task *tasks.Task
}

// Engine selects and runs execution strategies.
type Engine struct {
	registry   *registry.Registry
	executors  Executors
	policy     SandboxPolicy
	bots       BotDirectory
	delegator  Delegator
	signer     TokenSigner
	logHandler slog.Handler
	logger     *slog.Logger
}

// New returns an engine loading scripts through reg.
func New(reg *registry.Registry, executors Executors, opts ...Option) *Engine {
	e := &Engine{
		registry:  reg,
		executors: executors,
		logger:    slog.Default().WithGroup("engine.Engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the script registry of the engine.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// SelectStrategy returns the strategy that would run req.
func (e *Engine) SelectStrategy(req ExecutionRequest) Strategy {
	if _, ok := e.actionServer(req); ok {
		return StrategyDelegated
	}
	if req.Script.Descriptor.Language == scripts.LanguageRisor {
		return StrategySandboxed
	}
	mode := req.Mode
	if mode == RunTypeAuto {
		mode = RunTypeFor(req.Script.Descriptor)
	}
	switch mode {
	case RunTypeTrusted:
		return StrategyDirect
	case RunTypeHTTP:
		return StrategySandboxed
	default:
		if e.policy.Disabled(req.Script.Descriptor.Scope) {
			return StrategyDirect
		}
		return StrategySandboxed
	}
}

func (e *Engine) actionServer(req ExecutionRequest) (delegation.Server, bool) {
	if req.Local || e.delegator == nil || e.bots == nil || req.Event == nil {
		return delegation.Server{}, false
	}
	if req.Script.Descriptor.Language != scripts.LanguageStarlark {
		return delegation.Server{}, false
	}
	return e.bots.ActionServer(req.Event.BotID)
}

// Execute runs req. On success the state delta is applied to req.Event.
//
// A failure is returned both in the outcome and as the error, except for a
// delegated run answered with a bad status: that outcome is failed but the
// error is nil.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (*Outcome, error) {
	if req.Script == nil {
		return nil, errors.New("execution request has no script")
	}
	d := req.Script.Descriptor

	botID, eventID := d.Scope.BotID(), req.InvokingContextID
	if req.Event != nil {
		botID = req.Event.BotID
		if eventID == "" {
			eventID = req.Event.ID
		}
	}
	run, err := execution.New(d.Name, botID, eventID, e.logHandler)
	if err != nil {
		return nil, err
	}

	strategy := e.SelectStrategy(req)
	out := &Outcome{ID: run.ID, Script: d.Name, Strategy: strategy}
	logger := run.Logger().With("strategy", strategy)

	if strategy == StrategyDelegated {
		server, _ := e.actionServer(req)
		return e.delegate(ctx, run, req, server, out)
	}

	marker := req.Marker
	if marker == "" {
		marker = string(scripts.CategoryActions)
	}
	if err := e.registry.ValidateImports(ctx, req.Script, marker); err != nil {
		ee := validationError(d.Name, err)
		logger.Warn("Script imports are invalid", "error", err)
		return e.fail(run, out, ee), ee
	}

	exec := e.executorFor(strategy, d.Language)
	if exec == nil {
		ee := executor.NewError(executor.KindRuntime, d.Name,
			fmt.Errorf("no %s executor for %s scripts", strategy, d.Language))
		return e.fail(run, out, ee), ee
	}

	if err := run.Begin(string(strategy)); err != nil {
		return nil, err
	}

	program := executor.Program{
		Script:   d.Name,
		Filename: req.Script.Path,
		Source:   req.Script.Source,
		Language: d.Language,
		Target: resolver.Target{
			Path:     req.Script.Path,
			Scope:    d.Scope,
			Marker:   marker,
			Language: d.Language,
		},
		Bindings:  e.bindings(ctx, run, req, botID),
		Permitted: slices.Sorted(maps.Keys(req.Globals)),
		Timeout:   req.Timeout,
		Print:     run.Print,
	}

	result, err := exec.Run(ctx, program)
	if err != nil {
		ee := executor.AsExecutionError(d.Name, err)
		return e.fail(run, out, ee), ee
	}

	out.StateDelta = result.State.Filter()
	out.Value = result.Value
	out.Success = true
	if req.Event != nil {
		req.Event.ApplyState(out.StateDelta)
	}
	if err := run.Complete(); err != nil {
		return nil, err
	}
	return e.finish(run, out), nil
}

func (e *Engine) delegate(
	ctx context.Context,
	run *execution.Run,
	req ExecutionRequest,
	server delegation.Server,
	out *Outcome,
) (*Outcome, error) {
	if err := run.Begin(string(StrategyDelegated)); err != nil {
		return nil, err
	}
	d := req.Script.Descriptor

	res, err := e.delegator.Delegate(ctx, delegation.Request{
		Server:      server,
		Event:       req.Event,
		ScriptName:  d.Name,
		Args:        req.Args,
		WorkspaceID: e.bots.WorkspaceID(req.Event.BotID),
	})
	if err != nil {
		ee := executor.AsExecutionError(d.Name, err)
		return e.fail(run, out, ee), ee
	}

	out.Task = &res.Task
	if !res.Success {
		return e.fail(run, out, res.Error), nil
	}
	out.Success = true
	out.StateDelta = res.State
	if err := run.Complete(); err != nil {
		return nil, err
	}
	return e.finish(run, out), nil
}

func (e *Engine) fail(run *execution.Run, out *Outcome, ee *executor.ExecutionError) *Outcome {
	if err := run.Fail(ee); err != nil {
		e.logger.Error("Failed to record run failure", "id", run.ID, "error", err)
	}
	out.Error = ee
	return e.finish(run, out)
}

func (e *Engine) finish(run *execution.Run, out *Outcome) *Outcome {
	out.Duration = run.Duration()
	out.Logs = run.Logs()
	return out
}

func (e *Engine) executorFor(strategy Strategy, lang scripts.Language) executor.Executor {
	if lang == scripts.LanguageRisor {
		return e.executors.Risor
	}
	if strategy == StrategyDirect {
		return e.executors.Direct
	}
	return e.executors.Sandboxed
}

// bindings returns the globals of a local run.
func (e *Engine) bindings(ctx context.Context, run *execution.Run, req ExecutionRequest, botID string) map[string]any {
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	out := map[string]any{
		executor.BindingArgs:  args,
		executor.BindingBotID: botID,
	}
	if req.Event != nil {
		out[executor.BindingEvent] = req.Event.Map()
	}

	workspaceID := ""
	if e.bots != nil && botID != "" {
		workspaceID = e.bots.WorkspaceID(botID)
	}

	mode := req.Mode
	if mode == RunTypeAuto {
		mode = RunTypeFor(req.Script.Descriptor)
	}
	if mode == RunTypeHTTP {
		if e.signer != nil && botID != "" {
			token, err := e.signer.Sign(botID, workspaceID)
			if err != nil {
				run.Logger().Error("Failed to sign script token", "error", err)
			} else {
				out[executor.BindingToken] = token
			}
		}
	} else {
		out[BindingAPI] = e.botAPI(ctx, run, botID, workspaceID)
	}

	maps.Copy(out, req.Globals)
	return out
}

// validationError classifies an import validation failure.
func validationError(script string, err error) *executor.ExecutionError {
	kind := executor.KindModuleNotFound
	if errors.Is(err, resolver.ErrSyntax) {
		kind = executor.KindSyntax
	}
	ee := executor.NewError(kind, script, err)
	ee.Reason = "validation"
	return ee
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/robbyt/go-polyscript/engines/risor"
	"github.com/robbyt/go-polyscript/platform/constants"
	"github.com/robbyt/go-polyscript/platform/data"
	"github.com/robbyt/go-polyscript/platform/script/loader"
)

var _ Executor = (*Risor)(nil)

// Risor runs Risor programs through go-polyscript. Risor programs always run
// sandboxed: they see the permitted bindings under ctx and cannot import
// local modules. A returned map's temp, user and session keys replace the
// corresponding partitions.
type Risor struct {
	timeout time.Duration
	process map[string]any
	logger  *slog.Logger
}

// RisorOption configures a Risor executor.
type RisorOption func(*Risor)

// WithRisorLogHandler sets the log handler of the executor and its evaluators.
func WithRisorLogHandler(handler slog.Handler) RisorOption {
	return func(r *Risor) {
		if handler != nil {
			r.logger = slog.New(handler)
		}
	}
}

// WithRisorTimeout sets the default timeout.
func WithRisorTimeout(d time.Duration) RisorOption {
	return func(r *Risor) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRisorProcess sets the process snapshot exposed as ctx["process"].
func WithRisorProcess(snapshot map[string]any) RisorOption {
	return func(r *Risor) {
		r.process = snapshot
	}
}

// NewRisor returns a Risor executor.
func NewRisor(opts ...RisorOption) *Risor {
	r := &Risor{
		timeout: DefaultTimeout,
		logger:  slog.Default().WithGroup("executor.Risor"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Executor.
func (r *Risor) Run(ctx context.Context, p Program) (*Result, error) {
	logger := r.logger.With("script", p.Script)

	scriptLoader, err := loader.NewFromString(p.Source)
	if err != nil {
		return nil, NewError(KindSyntax, p.Script, err)
	}
	evaluator, err := risor.FromRisorLoader(r.logger.Handler(), scriptLoader)
	if err != nil {
		return nil, NewError(KindSyntax, p.Script, err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scriptData := make(map[string]any, len(SandboxBindings)+1)
	for _, k := range slices.Concat(SandboxBindings, p.Permitted) {
		if v, ok := p.Bindings[k]; ok {
			scriptData[k] = v
		}
	}
	if r.process != nil {
		scriptData[BindingProcess] = r.process
	}
	given := givenPartitions(scriptData)

	contextProvider := data.NewContextProvider(constants.EvalData)
	enrichedCtx, err := contextProvider.AddDataToContext(runCtx, scriptData)
	if err != nil {
		return nil, NewError(KindRuntime, p.Script, fmt.Errorf("adding script data: %w", err))
	}

	start := time.Now()
	response, err := evaluator.Eval(enrichedCtx)
	if err != nil {
		logger.Debug("Script failed", "error", err, "duration", time.Since(start))
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			ee := NewError(KindTimeout, p.Script, err)
			ee.Reason = "timeout"
			return nil, ee
		}
		return nil, NewError(KindRuntime, p.Script, err)
	}
	logger.Debug("Script executed", "duration", time.Since(start))

	value := response.Interface()
	if returned, ok := value.(map[string]any); ok {
		for _, part := range event.Partitions {
			if m, ok := returned[part].(map[string]any); ok {
				given[part] = m
			}
		}
	}
	return &Result{State: given, Value: value}, nil
}

// givenPartitions returns copies of the partitions bound directly or through
// the event's state.
func givenPartitions(bindings map[string]any) event.StateDelta {
	out := make(event.StateDelta)
	var state map[string]any
	if ev, ok := bindings[BindingEvent].(map[string]any); ok {
		state, _ = ev["state"].(map[string]any)
	}
	for _, p := range event.Partitions {
		if m, ok := bindings[p].(map[string]any); ok {
			out[p] = maps.Clone(m)
			continue
		}
		if m, ok := state[p].(map[string]any); ok {
			out[p] = maps.Clone(m)
		}
	}
	return out
}

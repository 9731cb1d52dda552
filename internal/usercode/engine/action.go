package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/executor"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
)

// ErrorTypeAction is the event error type recorded for failed actions.
const ErrorTypeAction = "action-execution"

// ActionExecutionError is returned by RunAction after the failure was
// recorded on the event.
type ActionExecutionError struct {
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// RunAction finds the action name visible to the event's bot and runs it
// against ev. A successful run, including a delegated run answered with a
// bad status, adds a completed step. A failed run adds an error and an error
// step to ev before returning an ActionExecutionError.
func (e *Engine) RunAction(ctx context.Context, name string, args map[string]any, ev *event.Event) (*Outcome, error) {
	logger := e.logger.With("botID", ev.BotID, "action", name, "eventID", ev.ID)

	script, err := e.registry.GetScript(ctx, name, scripts.Bot(ev.BotID))
	if err != nil {
		return nil, e.actionFailed(ev, name, args, executor.AsExecutionError(name, err))
	}

	outcome, err := e.Execute(ctx, ExecutionRequest{
		Script:            script,
		Args:              args,
		Event:             ev,
		InvokingContextID: ev.ID,
	})
	if err != nil {
		var ee *executor.ExecutionError
		if !errors.As(err, &ee) {
			ee = executor.AsExecutionError(name, err)
		}
		logger.Error("An error occurred while executing the action", "error", err)
		return outcome, e.actionFailed(ev, name, args, ee)
	}

	if !outcome.Success {
		logger.Warn("Action did not complete on the action server", "error", outcome.Error)
	}
	logger.Debug("Done running action", "strategy", outcome.Strategy, "duration", outcome.Duration)
	ev.AddStep(event.StepScopeAction, name, event.StepCompleted)
	return outcome, nil
}

func (e *Engine) actionFailed(ev *event.Event, name string, args map[string]any, ee *executor.ExecutionError) error {
	recordedArgs := maps.Clone(args)
	delete(recordedArgs, executor.BindingEvent)

	ev.AddError(event.Error{
		Type:       ErrorTypeAction,
		Stacktrace: ee.Stacktrace(),
		ActionName: name,
		ActionArgs: recordedArgs,
	})

	stepName := name
	if stepName == "" {
		if node, ok := ev.State.Context["currentNode"].(string); ok {
			stepName = node
		}
	}
	ev.AddStep(event.StepScopeAction, stepName, event.StepError)
	return &ActionExecutionError{Action: stepName, Err: ee}
}

package engine

import (
	"context"

	"github.com/atlanticdynamic/usercode/internal/usercode/execution"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// BindingAPI is the global through which unsandboxed scripts reach the bot API.
const BindingAPI = "bp"

// botAPI returns the "bp" struct bound in direct and legacy runs:
//
//	bp.botId, bp.workspaceId
//	bp.log(msg)            record a line in the run log
//	bp.hasAction(name)     whether an action is visible to the bot
func (e *Engine) botAPI(ctx context.Context, run *execution.Run, botID, workspaceID string) starlark.Value {
	scope := scripts.Global()
	if botID != "" {
		scope = scripts.Bot(botID)
	}

	logFn := starlark.NewBuiltin("bp.log", func(
		_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var msg string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
			return nil, err
		}
		run.Logger().Info(msg, "source", BindingAPI)
		return starlark.None, nil
	})

	hasAction := starlark.NewBuiltin("bp.hasAction", func(
		_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple,
	) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		ok, err := e.registry.HasAction(ctx, name, scope)
		if err != nil {
			return nil, err
		}
		return starlark.Bool(ok), nil
	})

	return starlarkstruct.FromStringDict(starlark.String(BindingAPI), starlark.StringDict{
		"botId":       starlark.String(botID),
		"workspaceId": starlark.String(workspaceID),
		"log":         logFn,
		"hasAction":   hasAction,
	})
}

// Package executor runs the source text of a user script. It isolates the one
// unsafe primitive of the system, constructing code from text at runtime,
// behind the Executor interface with an in-process implementation (Direct) and
// an isolated one (Sandboxed).
package executor

import (
	"context"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
)

// DefaultTimeout bounds a sandboxed run when the program sets no timeout.
const DefaultTimeout = 5 * time.Second

// Binding names known to the executors.
const (
	BindingArgs    = "args"
	BindingEvent   = "event"
	BindingToken   = "token"
	BindingBotID   = "botId"
	BindingProcess = "process"
	BindingResult  = "result"
)

// SandboxBindings are the caller bindings a sandboxed script may see. Anything
// else the caller passes is dropped.
var SandboxBindings = []string{
	BindingArgs,
	BindingEvent,
	BindingToken,
	BindingBotID,
	event.PartitionTemp,
	event.PartitionUser,
	event.PartitionSession,
}

// Program is one script run.
type Program struct {
	// Script names the script in errors and logs.
	Script   string
	Filename string
	Source   string
	Language scripts.Language
	// Target locates the script for module resolution.
	Target resolver.Target
	// Bindings are the caller's globals: Go maps, slices and scalars, or
	// Starlark values.
	Bindings map[string]any
	// Permitted names caller arguments a sandboxed run may see in addition
	// to SandboxBindings.
	Permitted []string
	// Timeout overrides the executor's default timeout in sandboxed mode.
	Timeout time.Duration
	// Print receives the output of print().
	Print func(msg string)
}

// Result is the outcome of a successful run.
type Result struct {
	// State holds the final content of every state partition the script was
	// given.
	State event.StateDelta
	// Value is the global "result" of a Starlark script or the return value of
	// a Risor script.
	Value any
}

// Executor runs programs.
type Executor interface {
	Run(ctx context.Context, p Program) (*Result, error)
}

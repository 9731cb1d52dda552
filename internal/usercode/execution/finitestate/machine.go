// Package finitestate provides the state machine tracking one script run.
//
// Run lifecycle:
//  1. loaded - the script and its bindings are ready
//  2. direct, sandboxed or delegated - the strategy executing the script
//  3. completed or failed - terminal outcome
package finitestate

import (
	"context"
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// Run states
const (
	StateLoaded    = "loaded"
	StateDirect    = "direct"
	StateSandboxed = "sandboxed"
	StateDelegated = "delegated"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// RunTransitions defines the valid state transitions of a run.
var RunTransitions = map[string][]string{
	StateLoaded:    {StateDirect, StateSandboxed, StateDelegated, StateFailed},
	StateDirect:    {StateCompleted, StateFailed},
	StateSandboxed: {StateCompleted, StateFailed},
	StateDelegated: {StateCompleted, StateFailed},
	StateCompleted: {},
	StateFailed:    {},
}

// TerminalStates are the states a run never leaves.
var TerminalStates = []string{StateCompleted, StateFailed}

// Machine is the subset of the go-fsm machine used by runs.
type Machine interface {
	Transition(state string) error
	TransitionBool(state string) bool
	GetState() string
	GetStateChan(ctx context.Context) <-chan string
}

// New returns a run state machine in StateLoaded.
func New(handler slog.Handler) (Machine, error) {
	return fsm.New(handler, StateLoaded, RunTransitions)
}

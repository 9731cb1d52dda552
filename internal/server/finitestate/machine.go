// Package finitestate provides the lifecycle state machine shared by the
// server runnables (file watcher and action server).
package finitestate

import (
	"context"
	"log/slog"
	"time"

	"github.com/robbyt/go-fsm"
)

const (
	StatusNew      = fsm.StatusNew
	StatusBooting  = fsm.StatusBooting
	StatusRunning  = fsm.StatusRunning
	StatusStopping = fsm.StatusStopping
	StatusStopped  = fsm.StatusStopped
	StatusError    = fsm.StatusError
)

// Transitions are the lifecycle transitions of a runnable. A stopped runnable
// may be booted again.
var Transitions = map[string][]string{
	StatusNew:      {StatusBooting, StatusError},
	StatusBooting:  {StatusRunning, StatusStopping, StatusError},
	StatusRunning:  {StatusStopping, StatusError},
	StatusStopping: {StatusStopped, StatusError},
	StatusStopped:  {StatusBooting, StatusError},
	StatusError:    {StatusNew, StatusStopping, StatusStopped},
}

// stateChanTimeout bounds delivery of a state update to a slow subscriber.
const stateChanTimeout = 5 * time.Second

// Machine tracks the lifecycle of a runnable.
type Machine interface {
	Transition(state string) error
	TransitionBool(state string) bool
	GetState() string
	GetStateChan(ctx context.Context) <-chan string
}

type machine struct {
	*fsm.Machine
}

// GetStateChan delivers updates synchronously so a supervisor waiting on a
// shutdown sees the stopping and stopped states.
func (m *machine) GetStateChan(ctx context.Context) <-chan string {
	return m.GetStateChanWithOptions(ctx, fsm.WithSyncTimeout(stateChanTimeout))
}

// New creates a machine in StatusNew.
func New(handler slog.Handler) (Machine, error) {
	m, err := fsm.New(handler, StatusNew, Transitions)
	if err != nil {
		return nil, err
	}
	return &machine{Machine: m}, nil
}

// Stop moves a machine to StatusStopped through StatusStopping, whatever
// state it is in, logging failed transitions.
func Stop(m Machine, logger *slog.Logger) {
	if m.GetState() != StatusStopping {
		if err := m.Transition(StatusStopping); err != nil {
			logger.Debug("Failed to transition to stopping state", "error", err)
		}
	}
	if err := m.Transition(StatusStopped); err != nil {
		logger.Error("Failed to transition to stopped state", "error", err)
	}
}

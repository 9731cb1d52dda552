// Package execution records a single script run: its identity, the state
// machine of its lifecycle and the log lines emitted while it ran.
package execution

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/execution/finitestate"
	"github.com/gofrs/uuid/v5"
	"github.com/robbyt/go-loglater"
)

// LogLine is one log record captured during a run.
type LogLine struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Run tracks one execution of a script.
type Run struct {
	ID        uuid.UUID
	Script    string
	BotID     string
	EventID   string
	CreatedAt time.Time

	fsm          finitestate.Machine
	logger       *slog.Logger
	logCollector *loglater.LogCollector
	endedAt      time.Time
}

// New returns a run in the loaded state. Log lines are collected and also
// forwarded to handler when it is not nil.
func New(script, botID, eventID string, handler slog.Handler) (*Run, error) {
	runID := uuid.Must(uuid.NewV6())

	fsmHandler := handler
	if fsmHandler == nil {
		fsmHandler = slog.Default().Handler()
	}
	sm, err := finitestate.New(fsmHandler)
	if err != nil {
		return nil, fmt.Errorf("%s failed to create state machine: %w", runID, err)
	}

	logCollector := loglater.NewLogCollector(handler)
	logger := slog.New(logCollector).With(
		"id", runID,
		"script", script,
		"botID", botID,
		"eventID", eventID)

	run := &Run{
		ID:           runID,
		Script:       script,
		BotID:        botID,
		EventID:      eventID,
		CreatedAt:    time.Now(),
		fsm:          sm,
		logger:       logger,
		logCollector: logCollector,
	}
	run.logger.Debug("Run created")
	return run, nil
}

// GetState returns the current state of the run.
func (r *Run) GetState() string {
	return r.fsm.GetState()
}

// Logger returns the logger whose records belong to the run.
func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Begin moves the run into the state of the strategy executing it.
func (r *Run) Begin(state string) error {
	if err := r.fsm.Transition(state); err != nil {
		r.logger.Error("Failed to begin run", "state", state, "error", err)
		return err
	}
	r.logger.Debug("Run started", "state", state)
	return nil
}

// Complete marks the run as completed.
func (r *Run) Complete() error {
	if err := r.fsm.Transition(finitestate.StateCompleted); err != nil {
		r.logger.Error("Failed to complete run", "error", err)
		return err
	}
	r.endedAt = time.Now()
	r.logger.Debug("Run completed", "duration", r.Duration())
	return nil
}

// Fail marks the run as failed because of cause.
func (r *Run) Fail(cause error) error {
	if err := r.fsm.Transition(finitestate.StateFailed); err != nil {
		r.logger.Error("Failed to mark run as failed", "error", err, "cause", cause)
		return err
	}
	r.endedAt = time.Now()
	r.logger.Warn("Run failed", "error", cause, "duration", r.Duration())
	return nil
}

// IsDone reports whether the run reached a terminal state.
func (r *Run) IsDone() bool {
	return slices.Contains(finitestate.TerminalStates, r.GetState())
}

// Print records script output.
func (r *Run) Print(msg string) {
	r.logger.Info(msg, "source", "script")
}

// Duration returns the run time, up to now for a run that has not ended.
func (r *Run) Duration() time.Duration {
	if r.endedAt.IsZero() {
		return time.Since(r.CreatedAt)
	}
	return r.endedAt.Sub(r.CreatedAt)
}

// Logs returns the records captured so far.
func (r *Run) Logs() []LogLine {
	records := r.logCollector.GetLogs()
	out := make([]LogLine, 0, len(records))
	for _, rec := range records {
		line := LogLine{
			Time:    rec.Time,
			Level:   rec.Level.String(),
			Message: rec.Message,
		}
		if len(rec.Attrs) > 0 {
			line.Attrs = make(map[string]any, len(rec.Attrs))
			for _, a := range rec.Attrs {
				line.Attrs[a.Key] = a.Value.Resolve().Any()
			}
		}
		out = append(out, line)
	}
	return out
}

// PlaybackLogs replays the run's records into handler.
func (r *Run) PlaybackLogs(handler slog.Handler) error {
	return r.logCollector.PlayLogs(handler)
}

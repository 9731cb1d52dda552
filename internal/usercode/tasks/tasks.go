// Package tasks persists delegation tasks, the audit records of script runs
// forwarded to a remote action server.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrNotFinalized    = errors.New("task is not finalized")
	ErrAlreadyRecorded = errors.New("task already recorded")
)

// Status is the final status of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task records one delegation attempt. A task is created when delegation
// starts and finalized exactly once; it is never modified afterwards.
type Task struct {
	ID         uuid.UUID `json:"id"`
	EventID    string    `json:"eventId"`
	BotID      string    `json:"botId"`
	ScriptName string    `json:"scriptName"`
	ServerID   string    `json:"serverId"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	// StatusCode is the HTTP status of the response, zero when there was none.
	StatusCode    int    `json:"statusCode,omitempty"`
	Status        Status `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Start returns a new, unfinalized task.
func Start(eventID, botID, scriptName, serverID string) Task {
	return Task{
		ID:         uuid.Must(uuid.NewV6()),
		EventID:    eventID,
		BotID:      botID,
		ScriptName: scriptName,
		ServerID:   serverID,
		StartedAt:  time.Now(),
	}
}

// Complete returns the task finalized as completed.
func (t Task) Complete(statusCode int) Task {
	t.EndedAt = time.Now()
	t.StatusCode = statusCode
	t.Status = StatusCompleted
	return t
}

// Fail returns the task finalized as failed.
func (t Task) Fail(statusCode int, reason string) Task {
	t.EndedAt = time.Now()
	t.StatusCode = statusCode
	t.Status = StatusFailed
	t.FailureReason = reason
	return t
}

// Finalized reports whether the task has a final status.
func (t Task) Finalized() bool {
	return t.Status != ""
}

func (t Task) String() string {
	s := fmt.Sprintf("%s %s/%s on %s: %s", t.ID, t.BotID, t.ScriptName, t.ServerID, t.Status)
	if t.FailureReason != "" {
		s += " (" + t.FailureReason + ")"
	}
	return s
}

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	BotID  string
	Status Status
	// Limit caps the number of returned tasks, newest first.
	Limit int
}

func (f Filter) match(t Task) bool {
	if f.BotID != "" && t.BotID != f.BotID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// Repository stores finalized tasks. Record rejects unfinalized tasks and
// tasks whose id was already recorded.
type Repository interface {
	Record(ctx context.Context, t Task) error
	List(ctx context.Context, f Filter) ([]Task, error)
}

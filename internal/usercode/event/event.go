// Package event models the incoming event a script runs against: its mutable
// state partitions and the step/error trace recorded by callers.
package event

import (
	"maps"
	"time"
)

// State partitions a script is permitted to mutate.
const (
	PartitionTemp    = "temp"
	PartitionUser    = "user"
	PartitionSession = "session"
)

// Partitions lists the permitted state partitions in a stable order.
var Partitions = []string{PartitionTemp, PartitionUser, PartitionSession}

// IsPartition reports whether key names a permitted state partition.
func IsPartition(key string) bool {
	switch key {
	case PartitionTemp, PartitionUser, PartitionSession:
		return true
	}
	return false
}

// State holds the conversation state of an event. Only Temp, User and Session
// are writable by scripts; Context is read-only.
type State struct {
	Temp    map[string]any `json:"temp"`
	User    map[string]any `json:"user"`
	Session map[string]any `json:"session"`
	Context map[string]any `json:"context,omitempty"`
}

// StateDelta carries the partitions produced by a script run. Keys are limited
// to the permitted partitions.
type StateDelta map[string]map[string]any

// Filter returns a copy of d without keys outside the permitted partitions.
func (d StateDelta) Filter() StateDelta {
	out := make(StateDelta, len(d))
	for k, v := range d {
		if IsPartition(k) {
			out[k] = v
		}
	}
	return out
}

// StepScope is the kind of user code a step refers to.
type StepScope string

const (
	StepScopeAction StepScope = "actions"
	StepScopeHook   StepScope = "hooks"
)

// StepStatus is the result of one step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// Step is one entry of the execution trace of an event.
type Step struct {
	Scope  StepScope  `json:"scope"`
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	At     time.Time  `json:"at"`
}

// Error is recorded on the event when user code fails.
type Error struct {
	Type       string         `json:"type"`
	Stacktrace string         `json:"stacktrace,omitempty"`
	ActionName string         `json:"actionName,omitempty"`
	ActionArgs map[string]any `json:"actionArgs,omitempty"`
}

// Event is an incoming event. It is not safe for concurrent use; user code for
// one event runs sequentially.
type Event struct {
	ID       string         `json:"id"`
	BotID    string         `json:"botId"`
	Type     string         `json:"type,omitempty"`
	Channel  string         `json:"channel,omitempty"`
	Target   string         `json:"target,omitempty"`
	ThreadID string         `json:"threadId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	State    State          `json:"state"`

	Steps  []Step  `json:"-"`
	Errors []Error `json:"-"`
}

// AddStep appends a step to the trace.
func (e *Event) AddStep(scope StepScope, name string, status StepStatus) {
	e.Steps = append(e.Steps, Step{Scope: scope, Name: name, Status: status, At: time.Now()})
}

// AddError appends an error to the trace.
func (e *Event) AddError(err Error) {
	e.Errors = append(e.Errors, err)
}

// Partition returns the current content of a permitted partition.
func (e *Event) Partition(name string) map[string]any {
	switch name {
	case PartitionTemp:
		return e.State.Temp
	case PartitionUser:
		return e.State.User
	case PartitionSession:
		return e.State.Session
	}
	return nil
}

// ApplyState replaces each partition present in delta. Keys outside the
// permitted partitions are ignored.
func (e *Event) ApplyState(delta StateDelta) {
	for key, value := range delta {
		switch key {
		case PartitionTemp:
			e.State.Temp = value
		case PartitionUser:
			e.State.User = value
		case PartitionSession:
			e.State.Session = value
		}
	}
}

// StateMap returns the state as a map of cloned partitions, suitable as script input.
func (e *Event) StateMap() map[string]any {
	return map[string]any{
		PartitionTemp:    cloneOrEmpty(e.State.Temp),
		PartitionUser:    cloneOrEmpty(e.State.User),
		PartitionSession: cloneOrEmpty(e.State.Session),
		"context":        cloneOrEmpty(e.State.Context),
	}
}

// Map returns the event as a plain map, the shape scripts see as `event`.
func (e *Event) Map() map[string]any {
	return map[string]any{
		"id":       e.ID,
		"botId":    e.BotID,
		"type":     e.Type,
		"channel":  e.Channel,
		"target":   e.Target,
		"threadId": e.ThreadID,
		"payload":  cloneOrEmpty(e.Payload),
		"state":    e.StateMap(),
	}
}

func cloneOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}

package hooks

import (
	"time"
)

// Lifecycle points hooks can attach to.
const (
	AfterServerStart          = "after_server_start"
	AfterBotMount             = "after_bot_mount"
	AfterBotUnmount           = "after_bot_unmount"
	BeforeIncomingMiddleware  = "before_incoming_middleware"
	AfterIncomingMiddleware   = "after_incoming_middleware"
	BeforeOutgoingMiddleware  = "before_outgoing_middleware"
	AfterEventProcessed       = "after_event_processed"
	BeforeSessionTimeout      = "before_session_timeout"
	BeforeConversationEnd     = "before_conversation_end"
	BeforeSuggestionsElection = "before_suggestions_election"
	OnIncidentStatusChanged   = "on_incident_status_changed"
	BeforeBotImport           = "before_bot_import"
	OnBotError                = "on_bot_error"
	OnStageRequest            = "on_stage_request"
	AfterStageChanged         = "after_stage_changed"
)

// DefaultTimeout bounds a sandboxed hook.
const DefaultTimeout = time.Second

// Options is the execution policy of a lifecycle.
type Options struct {
	Timeout time.Duration
	// ThrowOnError stops the run at the first failing hook and returns its error.
	ThrowOnError bool
}

// DefaultOptions applies to every lifecycle without an override.
var DefaultOptions = Options{Timeout: DefaultTimeout}

// DefaultLifecycles returns the built-in lifecycle table.
func DefaultLifecycles() map[string]Options {
	table := make(map[string]Options)
	for _, name := range []string{
		AfterServerStart,
		AfterBotMount,
		AfterBotUnmount,
		BeforeIncomingMiddleware,
		AfterIncomingMiddleware,
		BeforeOutgoingMiddleware,
		AfterEventProcessed,
		BeforeSessionTimeout,
		BeforeConversationEnd,
		BeforeSuggestionsElection,
		OnIncidentStatusChanged,
		BeforeBotImport,
		OnBotError,
		AfterStageChanged,
	} {
		table[name] = DefaultOptions
	}
	table[OnStageRequest] = Options{Timeout: DefaultTimeout, ThrowOnError: true}
	return table
}

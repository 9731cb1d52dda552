package engine

import (
	"log/slog"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLogHandler sets the log handler of the engine and of every run record.
func WithLogHandler(handler slog.Handler) Option {
	return func(e *Engine) {
		if handler != nil {
			e.logger = slog.New(handler)
			e.logHandler = handler
		}
	}
}

// WithSandboxPolicy sets the sandbox switches.
func WithSandboxPolicy(p SandboxPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithBotDirectory sets the bot directory used for workspaces and action servers.
func WithBotDirectory(bots BotDirectory) Option {
	return func(e *Engine) {
		e.bots = bots
	}
}

// WithDelegator enables delegation to action servers.
func WithDelegator(d Delegator) Option {
	return func(e *Engine) {
		e.delegator = d
	}
}

// WithTokenSigner sets the signer of HTTP-style script tokens.
func WithTokenSigner(s TokenSigner) Option {
	return func(e *Engine) {
		e.signer = s
	}
}

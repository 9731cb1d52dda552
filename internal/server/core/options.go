package core

import (
	"log/slog"
)

// Option represents a functional option for configuring Core.
type Option func(*Core)

// WithLogHandler sets a custom slog handler for the Core instance and every
// component it builds.
func WithLogHandler(handler slog.Handler) Option {
	return func(c *Core) {
		if handler != nil {
			c.logger = slog.New(handler)
		}
	}
}

// WithLogger sets a logger for the Core instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

package executor

import (
	"log/slog"
	"time"
)

// Option configures a Starlark executor.
type Option func(*Starlark)

// WithLogger sets the logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Starlark) {
		s.logger = logger
	}
}

// WithLogHandler sets the log handler for the executor.
func WithLogHandler(handler slog.Handler) Option {
	return func(s *Starlark) {
		if handler != nil {
			s.logger = slog.New(handler)
		}
	}
}

// WithTimeout sets the default sandbox timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Starlark) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxSteps bounds the computation steps of a sandboxed run. Zero means no bound.
func WithMaxSteps(n uint64) Option {
	return func(s *Starlark) {
		s.maxSteps = n
	}
}

// WithProcess sets the process snapshot bound as "process".
func WithProcess(snapshot map[string]any) Option {
	return func(s *Starlark) {
		s.process = snapshot
	}
}

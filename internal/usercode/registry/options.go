package registry

import (
	"log/slog"
	"time"

	"github.com/atlanticdynamic/usercode/internal/usercode/resolver"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithLogHandler sets the log handler for the registry.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Registry) {
		if handler != nil {
			r.logger = slog.New(handler)
		}
	}
}

// WithValidator enables import validation through v.
func WithValidator(v *resolver.Validator) Option {
	return func(r *Registry) {
		r.validator = v
	}
}

// WithTrustedPrefixes sets the action name prefixes classified as trusted.
func WithTrustedPrefixes(prefixes []string) Option {
	return func(r *Registry) {
		if prefixes != nil {
			r.trustedPrefixes = prefixes
		}
	}
}

// WithDebounce sets the invalidation quiet window. Zero disables debouncing.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.debounce = d
		}
	}
}

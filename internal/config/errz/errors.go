// Package errz provides shared error definitions for the config package and its subpackages.
package errz

import "errors"

// Top-level error categories
var (
	ErrFailedToLoadConfig     = errors.New("failed to load config")
	ErrFailedToValidateConfig = errors.New("failed to validate config")
	ErrFailedToInterpolate    = errors.New("failed to interpolate config")
)

// Validation specific errors
var (
	ErrDuplicateID          = errors.New("duplicate ID")
	ErrEmptyID              = errors.New("empty ID")
	ErrInvalidValue         = errors.New("invalid value")
	ErrMissingRequiredField = errors.New("missing required field")
)

// Reference specific errors
var (
	ErrActionServerNotFound = errors.New("action server not found")
	ErrBotNotFound          = errors.New("bot not found")
	ErrUnknownLifecycle     = errors.New("unknown lifecycle")
)

package executor

import (
	"errors"
	"fmt"
)

// Kind classifies an execution failure.
type Kind int

const (
	KindRuntime Kind = iota
	KindModuleNotFound
	KindSyntax
	KindTimeout
	KindTransportFailure
	KindBadStatus
	KindResponseValidation
)

func (k Kind) String() string {
	switch k {
	case KindRuntime:
		return "Runtime"
	case KindModuleNotFound:
		return "ModuleNotFound"
	case KindSyntax:
		return "Syntax"
	case KindTimeout:
		return "Timeout"
	case KindTransportFailure:
		return "TransportFailure"
	case KindBadStatus:
		return "BadStatus"
	case KindResponseValidation:
		return "ResponseValidation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels matching each kind through errors.Is.
var (
	ErrRuntime            = errors.New("runtime error")
	ErrModuleNotFound     = errors.New("module not found")
	ErrSyntax             = errors.New("syntax error")
	ErrTimeout            = errors.New("execution timed out")
	ErrTransportFailure   = errors.New("transport failure")
	ErrBadStatus          = errors.New("bad status code")
	ErrResponseValidation = errors.New("invalid response")
)

var kindSentinels = map[Kind]error{
	KindRuntime:            ErrRuntime,
	KindModuleNotFound:     ErrModuleNotFound,
	KindSyntax:             ErrSyntax,
	KindTimeout:            ErrTimeout,
	KindTransportFailure:   ErrTransportFailure,
	KindBadStatus:          ErrBadStatus,
	KindResponseValidation: ErrResponseValidation,
}

// ExecutionError is the error of a failed script run.
type ExecutionError struct {
	Kind   Kind
	Script string
	// Reason is a short machine readable cause, such as "http:timeout".
	Reason    string
	Err       error
	Backtrace string
}

// NewError wraps err as an ExecutionError of the given kind.
func NewError(kind Kind, script string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Script: script, Err: err}
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s error in %s", e.Kind, e.Script)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *ExecutionError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Stacktrace returns the script backtrace when there is one, otherwise the message.
func (e *ExecutionError) Stacktrace() string {
	if e.Backtrace != "" {
		return e.Backtrace
	}
	return e.Error()
}

// AsExecutionError returns err as an ExecutionError, wrapping foreign errors
// as runtime errors of script.
func AsExecutionError(script string, err error) *ExecutionError {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return NewError(KindRuntime, script, err)
}

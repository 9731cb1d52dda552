package config

import (
	"fmt"
	"slices"

	"github.com/atlanticdynamic/usercode/internal/config/errz"
	"github.com/atlanticdynamic/usercode/internal/logging/writers"
)

// LogFormat is the log_format of the config file.
type LogFormat string

// LogLevel is the log_level of the config file.
type LogLevel string

const (
	LogFormatUnspecified LogFormat = ""
	LogFormatText        LogFormat = "text"
	LogFormatJSON        LogFormat = "json"
)

const (
	LogLevelUnspecified LogLevel = ""
	LogLevelTrace       LogLevel = "trace"
	LogLevelDebug       LogLevel = "debug"
	LogLevelInfo        LogLevel = "info"
	LogLevelWarn        LogLevel = "warn"
	LogLevelError       LogLevel = "error"
)

var (
	logFormats = []LogFormat{LogFormatUnspecified, LogFormatText, LogFormatJSON}
	logLevels  = []LogLevel{
		LogLevelUnspecified, LogLevelTrace, LogLevelDebug,
		LogLevelInfo, LogLevelWarn, LogLevelError,
	}
)

func (f LogFormat) String() string { return string(f) }

func (l LogLevel) String() string { return string(l) }

// IsValid reports whether f is a known format. Unspecified is valid.
func (f LogFormat) IsValid() bool { return slices.Contains(logFormats, f) }

// IsValid reports whether l is a known level. Unspecified is valid.
func (l LogLevel) IsValid() bool { return slices.Contains(logLevels, l) }

// LoggingConfig groups the logging settings of a Config.
type LoggingConfig struct {
	Format LogFormat
	Level  LogLevel
	// Output is "stdout", "stderr", "file://path" or a file path. Empty
	// means stderr.
	Output string
}

func (c LoggingConfig) validate() []error {
	var errs []error
	if !c.Format.IsValid() {
		errs = append(errs, fmt.Errorf("%w: log_format %q", errz.ErrInvalidValue, c.Format))
	}
	if !c.Level.IsValid() {
		errs = append(errs, fmt.Errorf("%w: log_level %q", errz.ErrInvalidValue, c.Level))
	}
	if c.Output != "" {
		if _, ok := writers.ParseWriterType(c.Output); !ok {
			errs = append(errs, fmt.Errorf("%w: log_output %q", errz.ErrInvalidValue, c.Output))
		}
	}
	return errs
}

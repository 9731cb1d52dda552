// Package logging builds the slog handlers of the CLI and the server.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/atlanticdynamic/usercode/internal/logging/writers"
	"github.com/charmbracelet/log"
)

// levelOptions is what a configured level name turns into.
type levelOptions struct {
	level  slog.Level
	caller bool
	// timestamps applies to the text handler only.
	timestamps bool
}

func parseLevel(logLevel string) levelOptions {
	switch strings.ToLower(logLevel) {
	case "trace":
		return levelOptions{level: slog.LevelDebug, caller: true, timestamps: true}
	case "debug":
		return levelOptions{level: slog.LevelDebug, timestamps: true}
	case "warn", "warning":
		return levelOptions{level: slog.LevelWarn}
	case "error":
		return levelOptions{level: slog.LevelError}
	default:
		return levelOptions{level: slog.LevelInfo}
	}
}

// SetupHandlerText configures a charmbracelet text handler with the provided
// writer and log level. A nil writer means stderr.
func SetupHandlerText(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stderr
	}
	opts := parseLevel(logLevel)
	return log.NewWithOptions(writer, log.Options{
		ReportTimestamp: opts.timestamps,
		ReportCaller:    opts.caller,
		Level:           log.Level(opts.level),
	})
}

// SetupHandlerJSON configures a JSON slog handler with the provided writer and
// log level. A nil writer means stdout.
func SetupHandlerJSON(logLevel string, writer io.Writer) slog.Handler {
	if writer == nil {
		writer = os.Stdout
	}
	opts := parseLevel(logLevel)
	return slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     opts.level,
		AddSource: opts.caller,
	})
}

// NewHandler opens output and returns a handler of the given format ("text",
// "json" or empty for text) writing to it. The returned closer releases the
// output.
func NewHandler(format, logLevel, output string) (slog.Handler, io.Closer, error) {
	if output == "" {
		output = "stderr"
	}
	w, err := writers.CreateWriter(output)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(format) {
	case "", "text", "txt":
		return SetupHandlerText(logLevel, w), w, nil
	case "json":
		return SetupHandlerJSON(logLevel, w), w, nil
	default:
		_ = w.Close()
		return nil, nil, fmt.Errorf("unknown log format: %s", format)
	}
}

// SetupLogger configures the default logger based on provided log level
func SetupLogger(logLevel string) {
	slog.SetDefault(slog.New(SetupHandlerText(logLevel, nil)))
}

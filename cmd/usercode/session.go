package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/atlanticdynamic/usercode/internal/config"
	"github.com/atlanticdynamic/usercode/internal/logging"
	"github.com/atlanticdynamic/usercode/internal/server/core"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/gofrs/uuid/v5"
	"github.com/urfave/cli/v3"
)

const envConfig = "USERCODE_CONFIG"

var errConfigRequired = errors.New(
	"config file path required (use the --config flag or the " + envConfig + " environment variable)",
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the TOML configuration file",
			Sources: cli.EnvVars(envConfig),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (trace, debug, info, warn, error); overrides the configuration",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format (text, json); overrides the configuration",
		},
	}
}

// session is the runtime of one CLI invocation.
type session struct {
	cfg    *config.Config
	core   *core.Core
	logger *slog.Logger
	output io.Closer
}

// openSession loads the configuration, installs the default logger and
// assembles the runtime.
func openSession(ctx context.Context, cmd *cli.Command) (*session, error) {
	path := cmd.String("config")
	if path == "" {
		return nil, errConfigRequired
	}
	cfg, err := config.NewConfig(path)
	if err != nil {
		return nil, err
	}

	logger, output, err := setupLogging(cmd, cfg)
	if err != nil {
		return nil, err
	}

	c, err := core.New(ctx, cfg, core.WithLogHandler(logger.Handler()))
	if err != nil {
		_ = output.Close()
		return nil, fmt.Errorf("failed to start user code runtime: %w", err)
	}
	return &session{cfg: cfg, core: c, logger: logger, output: output}, nil
}

func (s *session) Close() error {
	return errors.Join(s.core.Close(), s.output.Close())
}

// setupLogging builds the process logger. Flags win over the configuration.
func setupLogging(cmd *cli.Command, cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := cmd.String("log-level")
	if level == "" {
		level = cfg.LogLevel.String()
	}
	format := cmd.String("log-format")
	if format == "" {
		format = cfg.LogFormat.String()
	}

	handler, output, err := logging.NewHandler(format, level, cfg.LogOutput)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, output, nil
}

// parseArgs decodes a JSON object given on the command line.
func parseArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// loadEvent reads an event from a JSON file, or returns a fresh event for
// botID when path is empty. The bot flag wins over the file.
func loadEvent(path, botID string) (*event.Event, error) {
	ev := &event.Event{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", path, err)
		}
	}
	if botID != "" {
		ev.BotID = botID
	}
	if ev.ID == "" {
		ev.ID = uuid.Must(uuid.NewV4()).String()
	}
	return ev, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

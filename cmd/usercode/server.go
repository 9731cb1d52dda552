package main

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/usercode/internal/server/runnables/actionserver"
	"github.com/atlanticdynamic/usercode/internal/server/runnables/watcher"
	"github.com/robbyt/go-supervisor/supervisor"
	"github.com/urfave/cli/v3"
)

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the user code runtime: hooks, script watcher and action server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Action server address; overrides server.listen of the configuration",
				Sources: cli.EnvVars("USERCODE_LISTEN"),
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not watch the data directory for script changes",
			},
		},
		Action: serverAction,
	}
}

func serverAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.output.Close() }()

	logger := s.logger
	logHandler := logger.Handler()

	// the core closes itself when the supervisor stops it
	runnables := []supervisor.Runnable{s.core}

	if s.cfg.WatchEnabled() && !cmd.Bool("no-watch") {
		w, err := watcher.NewRunner(s.cfg.DataDir, s.core.Bus(), watcher.WithLogHandler(logHandler))
		if err != nil {
			_ = s.core.Close()
			return fmt.Errorf("failed to create script watcher: %w", err)
		}
		runnables = append(runnables, w)
	}

	listen := cmd.String("listen")
	if listen == "" {
		listen = s.cfg.Server.Listen
	}
	if listen != "" {
		h, err := actionserver.NewHandler(
			s.core.Engine(),
			[]byte(s.cfg.AppSecret),
			s.cfg.Audience(),
			logger.WithGroup("actionserver"),
		)
		if err != nil {
			_ = s.core.Close()
			return fmt.Errorf("failed to create action handler: %w", err)
		}
		srv, err := actionserver.NewRunner(listen, h, actionserver.WithLogHandler(logHandler))
		if err != nil {
			_ = s.core.Close()
			return fmt.Errorf("failed to create action server: %w", err)
		}
		runnables = append(runnables, srv)
	}

	super, err := supervisor.New(
		supervisor.WithContext(ctx),
		supervisor.WithLogHandler(logHandler),
		supervisor.WithRunnables(runnables...),
	)
	if err != nil {
		_ = s.core.Close()
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	if err := super.Run(); err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}

	logger.Info("Server shutdown complete")
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/usercode/internal/fancy"
	"github.com/atlanticdynamic/usercode/internal/usercode/tasks"
	"github.com/urfave/cli/v3"
)

func tasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect delegation tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded delegation tasks, newest first",
				Flags: []cli.Flag{
					botFlag("Only tasks of this bot"),
					&cli.StringFlag{Name: "status", Usage: "Only tasks with this status (completed, failed)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum number of tasks"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of text"},
				},
				Action: tasksListAction,
			},
		},
	}
}

func tasksListAction(ctx context.Context, cmd *cli.Command) error {
	status := tasks.Status(cmd.String("status"))
	switch status {
	case "", tasks.StatusCompleted, tasks.StatusFailed:
	default:
		return fmt.Errorf("unknown task status: %s", status)
	}

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	list, err := s.core.Tasks().List(ctx, tasks.Filter{
		BotID:  cmd.String("bot"),
		Status: status,
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		if list == nil {
			list = []tasks.Task{}
		}
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, fancy.InfoStyle.Render("no tasks recorded"))
		return err
	}
	for _, t := range list {
		fmt.Fprintf(w, "%s %s\n", fancy.StatusText(string(t.Status), t.Status == tasks.StatusCompleted), t)
	}
	return nil
}

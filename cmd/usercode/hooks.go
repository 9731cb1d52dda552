package main

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/atlanticdynamic/usercode/internal/fancy"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/hooks"
	"github.com/urfave/cli/v3"
)

func hooksCommand() *cli.Command {
	moduleFlag := &cli.StringFlag{
		Name:    "module",
		Aliases: []string{"m"},
		Usage:   "Module folder the hook lives in",
	}
	return &cli.Command{
		Name:  "hooks",
		Usage: "List, run, enable and disable lifecycle hooks",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the enabled hooks of every lifecycle, or of one",
				ArgsUsage: "[lifecycle]",
				Flags: []cli.Flag{
					botFlag("Include the hooks of this bot"),
				},
				Action: hooksListAction,
			},
			{
				Name:      "run",
				Usage:     "Run the hooks of a lifecycle and print the resulting state",
				ArgsUsage: "<lifecycle>",
				Flags: []cli.Flag{
					botFlag("Bot the hooks run for"),
					&cli.StringFlag{Name: "args", Aliases: []string{"a"}, Usage: "Hook arguments as a JSON object"},
					&cli.StringFlag{Name: "event", Aliases: []string{"e"}, Usage: "Path to a JSON event file"},
				},
				Action: hooksRunAction,
			},
			{
				Name:      "enable",
				Usage:     "Enable a disabled global hook",
				ArgsUsage: "<lifecycle> <name>",
				Flags:     []cli.Flag{moduleFlag},
				Action:    hooksToggleAction(true),
			},
			{
				Name:      "disable",
				Usage:     "Disable a global hook",
				ArgsUsage: "<lifecycle> <name>",
				Flags:     []cli.Flag{moduleFlag},
				Action:    hooksToggleAction(false),
			},
		},
	}
}

func hooksListAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	botID := cmd.String("bot")
	if err := checkBot(s.cfg, botID); err != nil {
		return err
	}

	runner := s.core.Hooks()
	lifecycles := runner.Lifecycles()
	if name := cmd.Args().First(); name != "" {
		if _, ok := runner.Options(name); !ok {
			return fmt.Errorf("%w: %s", hooks.ErrUnknownLifecycle, name)
		}
		lifecycles = []string{name}
	}

	t := fancy.NewScopeTree("Hooks")
	for _, lifecycle := range lifecycles {
		list := runner.List(ctx, lifecycle, botID)
		if len(list) == 0 {
			continue
		}
		opts, _ := runner.Options(lifecycle)
		title := fmt.Sprintf("%s %s", lifecycle, fancy.InfoStyle.Render(fmt.Sprintf("timeout %s", opts.Timeout)))
		if opts.ThrowOnError {
			title += " " + fancy.ErrorText("throws")
		}
		branch := fancy.BranchNode(title, fmt.Sprintf("(%d)", len(list)))
		for _, h := range list {
			label := fancy.HookText(h.Descriptor.Name)
			if dir := path.Dir(h.Descriptor.File); dir != "." {
				label += " " + fancy.PathText(dir)
			}
			if !h.Descriptor.Scope.IsGlobal() {
				label += " " + fancy.BotText(h.Descriptor.Scope.BotID())
			}
			branch.Child(label)
		}
		t.AddChild(branch)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, t)
	return err
}

func hooksRunAction(ctx context.Context, cmd *cli.Command) error {
	lifecycle := cmd.Args().First()
	if lifecycle == "" {
		return errors.New("lifecycle required")
	}
	args, err := parseArgs(cmd.String("args"))
	if err != nil {
		return err
	}

	botID := cmd.String("bot")
	var ev *event.Event
	if cmd.String("event") != "" {
		if ev, err = loadEvent(cmd.String("event"), botID); err != nil {
			return err
		}
	}

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := checkBot(s.cfg, botID); err != nil {
		return err
	}

	outcomes, runErr := s.core.Hooks().Run(ctx, hooks.Hook{
		Lifecycle: lifecycle,
		Event:     ev,
		BotID:     botID,
		Args:      args,
	})
	if err := writeJSON(cmd.Root().Writer, newReport(ev, outcomes...)); err != nil {
		return err
	}
	return runErr
}

func hooksToggleAction(enable bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() < 2 {
			return errors.New("lifecycle and hook name required")
		}
		lifecycle, name := cmd.Args().Get(0), cmd.Args().Get(1)

		s, err := openSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		runner := s.core.Hooks()
		if _, ok := runner.Options(lifecycle); !ok {
			return fmt.Errorf("%w: %s", hooks.ErrUnknownLifecycle, lifecycle)
		}

		module := cmd.String("module")
		verb, changed := "disabled", false
		if enable {
			verb = "enabled"
			changed = runner.Enable(ctx, lifecycle, name, module)
		} else {
			changed = runner.Disable(ctx, lifecycle, name, module)
		}
		if !changed {
			return fmt.Errorf("hook %s/%s was not %s: not found or already %s", lifecycle, name, verb, verb)
		}
		_, err = fmt.Fprintf(cmd.Root().Writer, "%s hook %s\n", fancy.StatusText(verb, true), fancy.HookText(lifecycle+"/"+name))
		return err
	}
}

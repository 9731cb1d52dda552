package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/atlanticdynamic/usercode/internal/config"
	"github.com/atlanticdynamic/usercode/internal/config/errz"
	"github.com/atlanticdynamic/usercode/internal/fancy"
	"github.com/atlanticdynamic/usercode/internal/usercode/engine"
	"github.com/atlanticdynamic/usercode/internal/usercode/event"
	"github.com/atlanticdynamic/usercode/internal/usercode/execution"
	"github.com/atlanticdynamic/usercode/internal/usercode/scripts"
	"github.com/urfave/cli/v3"
)

func botFlag(usage string) *cli.StringFlag {
	return &cli.StringFlag{Name: "bot", Aliases: []string{"b"}, Usage: usage}
}

func actionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "actions",
		Usage: "List, run and check actions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the actions visible to a bot, or the global actions",
				Flags: []cli.Flag{
					botFlag("Bot whose actions are listed; global actions when empty"),
					&cli.BoolFlag{Name: "local", Usage: "Only list the bot's own actions"},
					&cli.BoolFlag{Name: "all", Usage: "Include hidden actions"},
					&cli.BoolFlag{Name: "json", Usage: "Print JSON instead of a tree"},
				},
				Action: actionsListAction,
			},
			{
				Name:      "run",
				Usage:     "Run an action against an event and print the resulting state",
				ArgsUsage: "<action>",
				Flags: []cli.Flag{
					botFlag("Bot the event belongs to"),
					&cli.StringFlag{Name: "args", Aliases: []string{"a"}, Usage: "Action arguments as a JSON object"},
					&cli.StringFlag{Name: "event", Aliases: []string{"e"}, Usage: "Path to a JSON event file"},
				},
				Action: actionsRunAction,
			},
			{
				Name:      "check",
				Usage:     "Validate the imports of one action, or of every action in scope",
				ArgsUsage: "[action]",
				Flags: []cli.Flag{
					botFlag("Bot whose actions are checked; global actions when empty"),
				},
				Action: actionsCheckAction,
			},
		},
	}
}

// checkBot rejects bots missing from a configuration that lists bots.
func checkBot(cfg *config.Config, botID string) error {
	if botID == "" || len(cfg.Bots) == 0 || cfg.BotExists(botID) {
		return nil
	}
	return fmt.Errorf("%w: %s", errz.ErrBotNotFound, botID)
}

func scopeOf(botID string) scripts.Scope {
	if botID == "" {
		return scripts.Global()
	}
	return scripts.Bot(botID)
}

type actionSummary struct {
	Name        string          `json:"name"`
	Scope       string          `json:"scope"`
	Tier        string          `json:"tier"`
	Variant     string          `json:"variant"`
	Language    string          `json:"language"`
	Title       string          `json:"title,omitempty"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
	Hidden      bool            `json:"hidden,omitempty"`
	Params      []scripts.Param `json:"params,omitempty"`
}

func summarize(d scripts.Descriptor) actionSummary {
	return actionSummary{
		Name:        d.Name,
		Scope:       d.Scope.String(),
		Tier:        d.Tier.String(),
		Variant:     d.Variant.String(),
		Language:    d.Language.String(),
		Title:       d.Metadata.Title,
		Category:    d.Metadata.Category,
		Description: d.Metadata.Description,
		Hidden:      d.Metadata.Hidden,
		Params:      d.Metadata.Params,
	}
}

func actionsListAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	botID := cmd.String("bot")
	if err := checkBot(s.cfg, botID); err != nil {
		return err
	}
	if cmd.Bool("local") && botID == "" {
		return errors.New("--local needs --bot")
	}

	reg := s.core.Registry()
	var actions []scripts.Descriptor
	if cmd.Bool("local") {
		actions, err = reg.ListLocalActions(ctx, botID)
	} else {
		actions, err = reg.ListActions(ctx, scopeOf(botID))
	}
	if err != nil {
		return fmt.Errorf("failed to list actions: %w", err)
	}
	if !cmd.Bool("all") {
		actions = slices.DeleteFunc(actions, func(d scripts.Descriptor) bool { return d.Metadata.Hidden })
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		out := make([]actionSummary, 0, len(actions))
		for _, d := range actions {
			out = append(out, summarize(d))
		}
		return writeJSON(w, out)
	}

	t := fancy.NewScopeTree(fmt.Sprintf("%s %s", scopeOf(botID), fancy.CountText(fmt.Sprintf("(%d)", len(actions)))))
	for _, d := range actions {
		label := fmt.Sprintf("%s %s", fancy.ActionText(d.Name),
			fancy.InfoStyle.Render(fmt.Sprintf("%s, %s, %s", d.Tier, d.Variant, d.Language)))
		if d.Metadata.Title != "" {
			label += " " + fancy.TruncateString(d.Metadata.Title, 60)
		}
		if !d.Scope.IsGlobal() && botID != "" {
			label += " " + fancy.BotText(d.Scope.BotID())
		}
		t.AddChild(label)
	}
	_, err = fmt.Fprintln(w, t)
	return err
}

// runReport is the printed result of a run.
type runReport struct {
	Outcomes []outcomeReport `json:"outcomes"`
	State    event.State     `json:"state"`
	Steps    []event.Step    `json:"steps"`
	Errors   []event.Error   `json:"errors,omitempty"`
}

type outcomeReport struct {
	Script   string              `json:"script"`
	Strategy string              `json:"strategy"`
	Success  bool                `json:"success"`
	Value    any                 `json:"value,omitempty"`
	Error    string              `json:"error,omitempty"`
	Duration string              `json:"duration"`
	Logs     []execution.LogLine `json:"logs,omitempty"`
}

func reportOutcome(out *engine.Outcome) outcomeReport {
	r := outcomeReport{
		Script:   out.Script,
		Strategy: string(out.Strategy),
		Success:  out.Success,
		Value:    out.Value,
		Duration: out.Duration.String(),
		Logs:     out.Logs,
	}
	if out.Error != nil {
		r.Error = out.Error.Error()
	}
	return r
}

func newReport(ev *event.Event, outcomes ...*engine.Outcome) runReport {
	r := runReport{Outcomes: []outcomeReport{}}
	for _, out := range outcomes {
		if out != nil {
			r.Outcomes = append(r.Outcomes, reportOutcome(out))
		}
	}
	if ev != nil {
		r.State = ev.State
		r.Steps = ev.Steps
		r.Errors = ev.Errors
	}
	return r
}

func actionsRunAction(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.New("action name required")
	}
	botID := cmd.String("bot")

	args, err := parseArgs(cmd.String("args"))
	if err != nil {
		return err
	}
	ev, err := loadEvent(cmd.String("event"), botID)
	if err != nil {
		return err
	}
	if ev.BotID == "" {
		return errors.New("bot required (use --bot or set botId in the event)")
	}

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	if err := checkBot(s.cfg, ev.BotID); err != nil {
		return err
	}

	out, runErr := s.core.Engine().RunAction(ctx, name, args, ev)
	if err := writeJSON(cmd.Root().Writer, newReport(ev, out)); err != nil {
		return err
	}
	return runErr
}

func actionsCheckAction(ctx context.Context, cmd *cli.Command) error {
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	botID := cmd.String("bot")
	if err := checkBot(s.cfg, botID); err != nil {
		return err
	}
	reg := s.core.Registry()
	scope := scopeOf(botID)

	var actions []scripts.Descriptor
	if name := cmd.Args().First(); name != "" {
		d, err := reg.FindAction(ctx, name, scope)
		if err != nil {
			return err
		}
		actions = []scripts.Descriptor{d}
	} else {
		actions, err = reg.ListActions(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to list actions: %w", err)
		}
	}

	w := cmd.Root().Writer
	var errs []error
	for _, d := range actions {
		script, err := reg.Load(ctx, d)
		if err == nil {
			err = reg.ValidateImports(ctx, script, string(scripts.CategoryActions))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name, err))
			fmt.Fprintf(w, "%s %s\n", fancy.StatusText("FAIL", false), fancy.ErrorText(fmt.Sprintf("%s: %v", d.Name, err)))
			continue
		}
		fmt.Fprintf(w, "%s %s\n", fancy.StatusText("ok", true), fancy.ActionText(d.Name))
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atlanticdynamic/usercode/internal/config"
	"github.com/urfave/cli/v3"
)

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"lint"},
		Usage:   "Validate a configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "tree",
				Aliases: []string{"t"},
				Usage:   "Show detailed tree view of the validated configuration",
			},
		},
		ArgsUsage: "[config file]",
		Action:    validateAction,
	}
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	// a positional argument wins over the global flag
	configPath := cmd.Args().First()
	if configPath == "" {
		configPath = cmd.String("config")
	}
	if configPath == "" {
		return errConfigRequired
	}

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "Configuration file %s is valid\n", configPath)

	if cmd.Bool("tree") {
		fmt.Fprintln(w, cfg)
		return nil
	}
	_, err = io.WriteString(w, renderConfigSummary(configPath, cfg))
	return err
}

// renderConfigSummary creates a formatted summary string for the configuration
func renderConfigSummary(path string, cfg *config.Config) string {
	var summary strings.Builder

	summary.WriteString("\nConfig Summary:\n")
	fmt.Fprintf(&summary, "- Path: %s\n", path)
	fmt.Fprintf(&summary, "- Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(&summary, "- Bots: %d\n", len(cfg.Bots))
	fmt.Fprintf(&summary, "- Action servers: %d\n", len(cfg.ActionServers))
	fmt.Fprintf(&summary, "- Modules: %d\n", len(cfg.Modules))
	fmt.Fprintf(&summary, "- Lifecycle overrides: %d\n", len(cfg.Lifecycles))
	summary.WriteString("\nUse --tree for a more detailed view of the config.\n")

	return summary.String()
}

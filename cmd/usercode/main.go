package main

import (
	"context"
	"fmt"
	"os"

	"github.com/atlanticdynamic/usercode/internal/logging"
	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	// replaced once a command has loaded its configuration
	logging.SetupLogger("warn")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "usercode",
		Version: Version,
		Usage:   "Run and manage bot user code: actions, hooks and delegated runs",
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			versionCommand(),
			validateCommand(),
			actionsCommand(),
			hooksCommand(),
			tasksCommand(),
			serverCommand(),
		},
	}
}

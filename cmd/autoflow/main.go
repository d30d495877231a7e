package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "autoflow",
		EnableShellCompletion: true,
		Usage:                 "Check device triggers and publish the actions of workflows that fire",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("AUTOFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "Record store URL (memory://, file://, sqlite://, postgres://, redis://, diskv://)",
			},
			&cli.StringFlag{
				Name:  "event-bus",
				Usage: "Event bus provider (none, memory, kafka)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			workflowsCommand(),
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "autoflow:", err)
		os.Exit(1)
	}
}

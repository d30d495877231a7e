package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/scheduler"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Check enabled workflows on the configured schedule until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "schedule",
				Usage: `Cron expression or descriptor such as "@every 1m"`,
			},
			&cli.BoolFlag{
				Name:  "now",
				Usage: "Run one check immediately before waiting for the schedule",
			},
		},
		Action: withApp(run),
	}
}

func run(ctx context.Context, a *app, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	schedule := a.cfg.Schedule
	if command.IsSet("schedule") {
		schedule = command.String("schedule")
	}

	if a.bus != nil {
		if err := a.bus.Handle(events.WorkflowFiredEvent, a.logFired); err != nil {
			return fmt.Errorf("failed to register event handler: %w", err)
		}

		if err := a.bus.Subscribe(ctx); err != nil {
			return fmt.Errorf("failed to subscribe to events: %w", err)
		}
	}

	s, err := scheduler.New(a.logger, a.controller, schedule)
	if err != nil {
		return err
	}

	if command.Bool("now") {
		if _, err := s.RunOnce(ctx); err != nil {
			a.logger.ErrorContext(ctx, "initial check failed", "error", err)
		}
	}

	if err := s.Start(ctx); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "autoflow running", "schedule", schedule, "workflows", len(a.controller.Workflows()))

	<-ctx.Done()

	a.logger.InfoContext(ctx, "shutting down")

	return s.Stop(context.WithoutCancel(ctx))
}

// logFired reports fired workflows. Executing actions belongs to whatever
// consumes the event bus.
func (a *app) logFired(ctx context.Context, event any) error {
	fired, ok := event.(*events.WorkflowFired)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	a.logger.InfoContext(ctx, "workflow fired",
		"workflow_id", fired.WorkflowID,
		"name", fired.Name,
		"action", fired.Action.DisplayName(),
		"evaluation_id", fired.EvaluationID,
	)

	return nil
}

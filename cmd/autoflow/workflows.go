package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/autoflow/pkg/models"
)

func workflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "workflows",
		Aliases: []string{"w"},
		Usage:   "Manage stored workflows",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List workflows",
				Action: withApp(listWorkflows),
			},
			{
				Name:  "add",
				Usage: "Add an enabled workflow",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Workflow name"},
					&cli.StringFlag{Name: "trigger", Usage: "Trigger type, e.g. BATTERY_LEVEL", Required: true},
					&cli.StringFlag{Name: "value", Usage: "Trigger value", Required: true},
					&cli.StringFlag{Name: "action", Usage: "Action type, e.g. TOGGLE_WIFI", Required: true},
					&cli.StringFlag{Name: "action-value", Usage: "Action value"},
					&cli.StringFlag{Name: "title", Usage: "Notification title"},
					&cli.StringFlag{Name: "message", Usage: "Notification message"},
					&cli.StringFlag{Name: "priority", Usage: "Notification priority (Low, Normal, High, Max)"},
					&cli.DurationFlag{Name: "duration", Usage: "Duration of timed actions"},
				},
				Action: withApp(addWorkflow),
			},
			{
				Name:      "delete",
				Usage:     "Delete a workflow, or every workflow with --all",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Delete every workflow"},
				},
				Action: withApp(deleteWorkflow),
			},
			{
				Name:      "enable",
				Usage:     "Enable a workflow",
				ArgsUsage: "<id>",
				Action:    withApp(setEnabled(true)),
			},
			{
				Name:      "disable",
				Usage:     "Disable a workflow",
				ArgsUsage: "<id>",
				Action:    withApp(setEnabled(false)),
			},
			{
				Name:      "check",
				Usage:     "Evaluate a stored workflow, or an ad hoc trigger with --trigger and --value",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "trigger", Usage: "Trigger type"},
					&cli.StringFlag{Name: "value", Usage: "Trigger value"},
				},
				Action: withApp(checkWorkflow),
			},
		},
	}
}

func parseID(command *cli.Command) (uint64, error) {
	arg := command.Args().First()
	if arg == "" {
		return 0, errors.New("workflow id is required")
	}

	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid workflow id %q", arg)
	}

	return id, nil
}

func listWorkflows(_ context.Context, a *app, command *cli.Command) error {
	return printWorkflows(command.Root().Writer, a.controller.Workflows())
}

func printWorkflows(w io.Writer, workflows []*models.Workflow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tTRIGGER\tVALUE\tACTION")

	for _, wf := range workflows {
		trigger, value, action := "-", "-", "-"

		if wf.Trigger != nil {
			trigger, value = string(wf.Trigger.Kind), wf.Trigger.Value
		}

		if wf.Action != nil {
			action = wf.Action.DisplayName()
		}

		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\t%s\n", wf.ID, wf.Name, wf.Enabled, trigger, value, action)
	}

	return tw.Flush()
}

func actionFromFlags(command *cli.Command) models.Action {
	action := models.Action{
		Kind:     models.ActionKind(strings.ToUpper(strings.TrimSpace(command.String("action")))),
		Title:    command.String("title"),
		Message:  command.String("message"),
		Value:    command.String("action-value"),
		Duration: command.Duration("duration").Milliseconds(),
	}

	if p := command.String("priority"); p != "" {
		if priority, ok := models.ParsePriority(p); ok {
			action.Priority = priority
		} else {
			action.Priority = models.Priority(p)
		}
	}

	return action
}

func triggerFromFlags(command *cli.Command) models.Trigger {
	return models.Trigger{
		Kind:  models.ParseTriggerKind(command.String("trigger")),
		Value: command.String("value"),
	}
}

func addWorkflow(ctx context.Context, a *app, command *cli.Command) error {
	id, err := a.controller.AddWorkflow(ctx, command.String("name"), triggerFromFlags(command), actionFromFlags(command)).Wait(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(command.Root().Writer, "added workflow %d\n", id)

	return nil
}

func deleteWorkflow(ctx context.Context, a *app, command *cli.Command) error {
	if command.Bool("all") {
		rows, err := a.controller.DeleteAll(ctx).Wait(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(command.Root().Writer, "deleted %d workflows\n", rows)

		return nil
	}

	id, err := parseID(command)
	if err != nil {
		return err
	}

	rows, err := a.controller.DeleteWorkflow(ctx, id).Wait(ctx)
	if err != nil {
		return err
	}

	if rows == 0 {
		fmt.Fprintf(command.Root().Writer, "workflow %d not found\n", id)

		return nil
	}

	fmt.Fprintf(command.Root().Writer, "deleted workflow %d\n", id)

	return nil
}

func setEnabled(enabled bool) func(context.Context, *app, *cli.Command) error {
	return func(ctx context.Context, a *app, command *cli.Command) error {
		id, err := parseID(command)
		if err != nil {
			return err
		}

		if _, err := a.controller.SetEnabled(ctx, id, enabled).Wait(ctx); err != nil {
			return err
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}

		fmt.Fprintf(command.Root().Writer, "workflow %d %s\n", id, state)

		return nil
	}
}

func checkWorkflow(ctx context.Context, a *app, command *cli.Command) error {
	out := command.Root().Writer

	if command.IsSet("trigger") {
		result, err := a.controller.CheckTrigger(ctx, triggerFromFlags(command)).Wait(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s: %s\n", result.Verdict, result.Reason)

		return result.Err
	}

	id, err := parseID(command)
	if err != nil {
		return err
	}

	result, err := a.controller.CheckWorkflow(ctx, id).Wait(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %s\n", result.Verdict, result.Reason)

	return nil
}

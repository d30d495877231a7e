package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/config"
	"github.com/dukex/autoflow/pkg/controller"
	"github.com/dukex/autoflow/pkg/evaluator"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/gateway"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/sensors/static"
)

// app holds everything one CLI invocation wires together.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	controller *controller.Controller
	bus        eventbus.EventBus
	tracer     *sdktrace.TracerProvider
}

func loadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	if command.IsSet("database-url") {
		cfg.DatabaseURL = command.String("database-url")
	}

	if command.IsSet("event-bus") {
		cfg.EventBus = command.String("event-bus")
	}

	if command.IsSet("log-level") {
		cfg.Log.Level = command.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newApp(ctx context.Context, command *cli.Command) (*app, error) {
	cfg, err := loadConfig(command)
	if err != nil {
		return nil, err
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)

	instanceID := "autoflow-" + uuid.New().String()[:8]
	logger := log.WithModule("autoflow").With("instance_id", instanceID)

	a := &app{cfg: cfg, logger: logger}

	if cfg.Tracing {
		a.tracer, err = otelhelper.NewTracerProvider(ctx, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to set up tracing: %w", err)
		}
	}

	store, err := cmd.NewStore(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		a.shutdownTracing(ctx)

		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a.bus, err = cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cfg.ServiceName, logger)
	if err != nil {
		_ = store.Close(ctx)
		a.shutdownTracing(ctx)

		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	gw := gateway.New(logger, store, gateway.WithQueueSize(cfg.QueueSize))
	engine := evaluator.New(logger, static.New(cfg.Sensors),
		evaluator.WithTimeWindow(cfg.Evaluator.TimeWindow),
		evaluator.WithScanTimeout(cfg.Evaluator.ScanTimeout),
		evaluator.WithLocationTimeout(cfg.Evaluator.LocationTimeout),
	)

	var opts []controller.Option
	if a.bus != nil {
		opts = append(opts, controller.WithPublisher(a.bus))
	}

	a.controller = controller.New(logger, gw, engine, opts...)

	if _, err := a.controller.Load(ctx).Wait(ctx); err != nil {
		_ = a.close(ctx)

		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	return a, nil
}

func (a *app) shutdownTracing(ctx context.Context) {
	if a.tracer == nil {
		return
	}

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.WarnContext(ctx, "failed to shut down tracer provider", "error", err)
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error

	if err := a.controller.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event bus: %w", err))
		}
	}

	a.shutdownTracing(ctx)

	return errors.Join(errs...)
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app, command *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := newApp(ctx, command)
		if err != nil {
			return err
		}

		defer func() {
			if err := a.close(context.WithoutCancel(ctx)); err != nil {
				a.logger.ErrorContext(ctx, "failed to shut down cleanly", "error", err)
			}
		}()

		return fn(ctx, a, command)
	}
}

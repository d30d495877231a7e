// Package scheduler periodically checks the triggers of every enabled
// workflow on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/dukex/autoflow/pkg/evaluator"
	"github.com/dukex/autoflow/pkg/gateway"
	"github.com/dukex/autoflow/pkg/models"
)

const DefaultSchedule = "@every 5m"

var ErrAlreadyStarted = errors.New("scheduler already started")

// Checker is the part of the controller the scheduler drives.
type Checker interface {
	Load(ctx context.Context) *gateway.Future[[]*models.Workflow]
	CheckWorkflow(ctx context.Context, id uint64) *gateway.Future[evaluator.Result]
}

// Outcome is the result of checking one workflow during a run.
type Outcome struct {
	WorkflowID uint64
	Result     evaluator.Result
	Err        error
}

type Scheduler struct {
	checker  Checker
	schedule string
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	onRun  func([]Outcome)
}

type Option func(*Scheduler)

// WithRunHook is called with the outcomes of every scheduled run.
func WithRunHook(fn func([]Outcome)) Option {
	return func(s *Scheduler) {
		s.onRun = fn
	}
}

// New validates schedule, a standard five field cron expression or a
// descriptor such as "@every 1m". An empty schedule means DefaultSchedule.
func New(logger *slog.Logger, checker Checker, schedule string, opts ...Option) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid check schedule %q: %w", schedule, err)
	}

	s := &Scheduler{
		checker:  checker,
		schedule: schedule,
		logger:   logger.With("module", "scheduler", "schedule", schedule),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start registers the cron job and returns immediately. Runs use a context
// derived from ctx and are skipped while the previous run is still going.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	if _, err := c.AddFunc(s.schedule, func() { s.scheduled(runCtx) }); err != nil {
		cancel()

		return fmt.Errorf("failed to add check job: %w", err)
	}

	s.cron = c
	s.cancel = cancel

	c.Start()
	s.logger.InfoContext(ctx, "scheduler started")

	return nil
}

func (s *Scheduler) scheduled(ctx context.Context) {
	outcomes, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled check failed", "error", err)

		return
	}

	if s.onRun != nil {
		s.onRun(outcomes)
	}
}

// RunOnce reloads the workflows and checks every enabled one. Checks run
// concurrently; outcomes are in workflow order.
func (s *Scheduler) RunOnce(ctx context.Context) ([]Outcome, error) {
	workflows, err := s.checker.Load(ctx).Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	var enabled []*models.Workflow

	for _, w := range workflows {
		if w.Enabled && w.Trigger != nil {
			enabled = append(enabled, w)
		}
	}

	futures := make([]*gateway.Future[evaluator.Result], len(enabled))
	for i, w := range enabled {
		futures[i] = s.checker.CheckWorkflow(ctx, w.ID)
	}

	outcomes := make([]Outcome, len(enabled))
	fired := 0

	for i, future := range futures {
		result, err := future.Wait(ctx)
		outcomes[i] = Outcome{WorkflowID: enabled[i].ID, Result: result, Err: err}

		if err != nil {
			s.logger.WarnContext(ctx, "workflow check failed", "workflow_id", enabled[i].ID, "error", err)

			continue
		}

		if result.Verdict == evaluator.Fired {
			fired++
		}
	}

	s.logger.InfoContext(ctx, "checked workflows", "checked", len(outcomes), "fired", fired)

	return outcomes, nil
}

// Stop removes the cron job, cancels a running check and waits until it
// returns or ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	stopped := c.Stop()
	cancel()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "scheduler stopped")

	return nil
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

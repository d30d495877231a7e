// Package evaluator checks triggers against live sensor state and reports a
// Fired, NotFired or Errored verdict for each check.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/sensors"
)

const (
	DefaultTimeWindow      = 60 * time.Second
	DefaultScanTimeout     = 30 * time.Second
	DefaultLocationTimeout = 5 * time.Second
)

// ResultFunc observes every published result exactly once.
type ResultFunc func(Result)

// Engine runs trigger checks. It owns one handle per capability, so two
// evaluations never hold the same capability at once.
type Engine struct {
	providers sensors.Providers
	handles   map[sensors.Capability]*sensors.Handle
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	onResult  ResultFunc

	timeWindow      time.Duration
	scanTimeout     time.Duration
	locationTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*Evaluation
	closed   bool
	wg       sync.WaitGroup
}

type Option func(*Engine)

// WithTimeWindow sets how long after its target instant a Time trigger
// still fires.
func WithTimeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeWindow = d
		}
	}
}

// WithScanTimeout bounds each BLE scan.
func WithScanTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.scanTimeout = d
		}
	}
}

// WithLocationTimeout bounds each location request.
func WithLocationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.locationTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithResultFunc registers a callback invoked once per finished evaluation,
// on the evaluation's goroutine.
func WithResultFunc(fn ResultFunc) Option {
	return func(e *Engine) {
		e.onResult = fn
	}
}

func New(logger *slog.Logger, providers sensors.Providers, opts ...Option) *Engine {
	e := &Engine{
		providers: providers,
		handles: map[sensors.Capability]*sensors.Handle{
			sensors.CapabilityBLE:      sensors.NewHandle(sensors.CapabilityBLE),
			sensors.CapabilityLocation: sensors.NewHandle(sensors.CapabilityLocation),
		},
		logger:          logger.With("module", "evaluator"),
		tracer:          otel.Tracer("autoflow/evaluator"),
		now:             time.Now,
		timeWindow:      DefaultTimeWindow,
		scanTimeout:     DefaultScanTimeout,
		locationTimeout: DefaultLocationTimeout,
		inflight:        make(map[string]*Evaluation),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate starts checking trigger and returns immediately. Cancelling ctx
// has the same effect as Evaluation.Stop. After Close the evaluation is
// already finished as NotFired "evaluation stopped" and no sensor is touched.
func (e *Engine) Evaluate(ctx context.Context, trigger models.Trigger) *Evaluation {
	checkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	evaluation := newEvaluation(uuid.NewString(), trigger, cancel)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.reject(evaluation)

		return evaluation
	}

	e.inflight[evaluation.id] = evaluation
	e.wg.Add(1)
	e.mu.Unlock()

	stopOnParent := context.AfterFunc(ctx, cancel)

	go func() {
		defer e.wg.Done()
		defer stopOnParent()

		e.run(checkCtx, ctx, evaluation)
	}()

	return evaluation
}

// StopAll stops every in-flight evaluation and waits for them to finish.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for _, evaluation := range e.inflight {
		evaluation.Stop()
	}
	e.mu.Unlock()

	e.wg.Wait()
}

// Close stops every in-flight evaluation and makes later Evaluate calls
// resolve at once without a check. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.StopAll()
}

func (e *Engine) reject(evaluation *Evaluation) {
	now := e.now()
	result := Result{
		EvaluationID: evaluation.id,
		Trigger:      evaluation.trigger,
		Verdict:      NotFired,
		Reason:       "evaluation stopped",
		CheckedAt:    now,
	}

	evaluation.started = now

	if evaluation.finish(result) && e.onResult != nil {
		e.onResult(result)
	}
}

// InFlight returns the number of evaluations that have not finished.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.inflight)
}

type outcome struct {
	verdict Verdict
	reason  string
	err     error
}

func fired(format string, args ...any) outcome {
	return outcome{verdict: Fired, reason: fmt.Sprintf(format, args...)}
}

func notFired(format string, args ...any) outcome {
	return outcome{verdict: NotFired, reason: fmt.Sprintf(format, args...)}
}

// soft turns a capability failure into NotFired.
func soft(c sensors.Capability, err error, reason string) outcome {
	if !sensors.IsCapabilityError(err) {
		err = sensors.NewCapabilityError(c, err, reason)
	}

	return outcome{verdict: NotFired, reason: reason, err: err}
}

func (e *Engine) run(ctx, spanCtx context.Context, evaluation *Evaluation) {
	trigger := evaluation.trigger
	kind := models.TriggerKind(strings.TrimSpace(string(trigger.Kind)))

	spanCtx, span := e.tracer.Start(context.WithoutCancel(spanCtx), "evaluator.evaluate", trace.WithAttributes(
		attribute.String(otelhelper.EvaluationIDKey, evaluation.id),
		attribute.String(otelhelper.TriggerTypeKey, string(kind)),
		attribute.Int64(otelhelper.WorkflowIDKey, int64(trigger.WorkflowID)),
	))
	defer span.End()

	evaluation.started = e.now()
	evaluation.state.Store(Checking)

	var out outcome

	func() {
		defer func() {
			if r := recover(); r != nil {
				out = outcome{verdict: Errored, reason: "evaluation panicked", err: fmt.Errorf("evaluation panicked: %v", r)}
			}
		}()

		out = e.check(ctx, kind, trigger.Value)
	}()

	if out.verdict != Fired && out.err == nil && ctx.Err() != nil {
		out.reason = "evaluation stopped"
	}

	checkedAt := e.now()
	result := Result{
		EvaluationID: evaluation.id,
		Trigger:      trigger,
		Verdict:      out.verdict,
		Reason:       out.reason,
		Err:          out.err,
		CheckedAt:    checkedAt,
		Duration:     checkedAt.Sub(evaluation.started),
	}

	span.SetAttributes(attribute.String(otelhelper.VerdictKey, string(result.Verdict)))

	if result.Err != nil {
		otelhelper.SetError(span, result.Err)
	}

	e.mu.Lock()
	delete(e.inflight, evaluation.id)
	e.mu.Unlock()

	if !evaluation.finish(result) {
		return
	}

	level := slog.LevelDebug
	if result.Verdict == Errored {
		level = slog.LevelWarn
	}

	e.logger.Log(spanCtx, level, "trigger evaluated",
		"evaluation_id", result.EvaluationID,
		"workflow_id", trigger.WorkflowID,
		"trigger_type", kind,
		"verdict", result.Verdict,
		"reason", result.Reason,
		"error", result.Err,
		"duration", result.Duration,
	)

	if e.onResult != nil {
		e.onResult(result)
	}
}

func (e *Engine) check(ctx context.Context, kind models.TriggerKind, value string) outcome {
	if !kind.Known() {
		return notFired("unknown trigger type: %s", kind)
	}

	now := e.now()

	if err := models.ValidateAt(kind, value, now); err != nil {
		return outcome{verdict: Errored, reason: "invalid trigger", err: err}
	}

	value = strings.TrimSpace(value)

	switch kind {
	case models.TriggerTime:
		return e.checkTime(value, now)
	case models.TriggerBLE:
		return e.checkBLE(ctx, value)
	case models.TriggerLocation:
		return e.checkLocation(ctx, value)
	case models.TriggerWiFi:
		return e.checkWiFi(value)
	case models.TriggerAppLaunch:
		return e.checkAppLaunch(value)
	case models.TriggerBatteryLevel:
		return e.checkBattery(value)
	case models.TriggerChargingState:
		return e.checkCharging(value)
	case models.TriggerHeadphoneState:
		return e.checkHeadphones(value)
	default:
		return notFired("unknown trigger type: %s", kind)
	}
}

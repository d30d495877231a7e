package evaluator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Verdict is the state of one evaluation. Idle and Checking are transient;
// Fired, NotFired and Errored are terminal.
type Verdict string

const (
	Idle     Verdict = "IDLE"
	Checking Verdict = "CHECKING"
	Fired    Verdict = "FIRED"
	NotFired Verdict = "NOT_FIRED"
	Errored  Verdict = "ERRORED"
)

// Terminal reports whether v ends an evaluation.
func (v Verdict) Terminal() bool {
	return v == Fired || v == NotFired || v == Errored
}

func (v Verdict) String() string { return string(v) }

// Result is the outcome of one evaluation. Err carries a
// *sensors.CapabilityError for soft capability failures (verdict NotFired) and
// a validation error or recovered panic for Errored.
type Result struct {
	EvaluationID string
	Trigger      models.Trigger
	Verdict      Verdict
	Reason       string
	Err          error
	CheckedAt    time.Time
	Duration     time.Duration
}

// Evaluation is a handle on one asynchronous trigger check.
type Evaluation struct {
	id      string
	trigger models.Trigger
	started time.Time

	state  atomic.Value // Verdict
	done   chan struct{}
	once   sync.Once
	result Result

	cancel context.CancelFunc
}

func newEvaluation(id string, trigger models.Trigger, cancel context.CancelFunc) *Evaluation {
	e := &Evaluation{
		id:      id,
		trigger: trigger,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	e.state.Store(Idle)

	return e
}

func (e *Evaluation) ID() string {
	return e.id
}

func (e *Evaluation) Trigger() models.Trigger {
	return e.trigger
}

// State returns the current verdict, Idle or Checking until the check ends.
func (e *Evaluation) State() Verdict {
	return e.state.Load().(Verdict)
}

// Done is closed once the result is available.
func (e *Evaluation) Done() <-chan struct{} {
	return e.done
}

// Result returns the result, or the zero Result while the check runs.
func (e *Evaluation) Result() Result {
	select {
	case <-e.done:
		return e.result
	default:
		return Result{}
	}
}

// Wait blocks until the result is available or ctx ends.
func (e *Evaluation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop cancels the check. Capability requests are torn down and the
// evaluation resolves to NotFired unless it already finished. Stop is
// idempotent.
func (e *Evaluation) Stop() {
	e.cancel()
}

// finish publishes the single result. Later calls are ignored and report
// false.
func (e *Evaluation) finish(result Result) bool {
	published := false

	e.once.Do(func() {
		e.result = result
		e.state.Store(result.Verdict)
		close(e.done)
		e.cancel()

		published = true
	})

	return published
}

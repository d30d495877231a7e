// Package controller is the observable front of autoflow. It validates user
// input, routes persistence through the gateway and trigger checks through
// the evaluator, and keeps the state a UI or CLI renders.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/autoflow/pkg/evaluator"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/gateway"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// State is a snapshot of the controller. Workflows are copies.
type State struct {
	Workflows   []*models.Workflow
	LastError   error
	LastSuccess string
	LastVerdict *evaluator.Result
}

type Controller struct {
	gateway   *gateway.Gateway
	engine    *evaluator.Engine
	logger    *slog.Logger
	publisher eventbus.EventPublisher
	now       func() time.Time

	mu          sync.RWMutex
	workflows   []*models.Workflow
	lastError   error
	lastSuccess string
	lastVerdict *evaluator.Result

	subMu       sync.Mutex
	subscribers map[int]chan State
	nextSub     int

	wg        sync.WaitGroup
	closeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Controller)

// WithPublisher sends workflow and verdict events to p. Publish failures are
// logged and otherwise ignored.
func WithPublisher(p eventbus.EventPublisher) Option {
	return func(c *Controller) {
		c.publisher = p
	}
}

// WithClock replaces time.Now for validation of Time triggers.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func New(logger *slog.Logger, gw *gateway.Gateway, engine *evaluator.Engine, opts ...Option) *Controller {
	c := &Controller{
		gateway:     gw,
		engine:      engine,
		logger:      logger.With("module", "controller"),
		now:         time.Now,
		subscribers: make(map[int]chan State),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Workflows returns copies of the known workflows ordered by id.
func (c *Controller) Workflows() []*models.Workflow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return cloneAll(c.workflows)
}

func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastError
}

func (c *Controller) LastSuccess() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastSuccess
}

// LastVerdict returns the most recent evaluation result, if any.
func (c *Controller) LastVerdict() (evaluator.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastVerdict == nil {
		return evaluator.Result{}, false
	}

	return *c.lastVerdict, true
}

func (c *Controller) snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := State{
		Workflows:   cloneAll(c.workflows),
		LastError:   c.lastError,
		LastSuccess: c.lastSuccess,
	}

	if c.lastVerdict != nil {
		verdict := *c.lastVerdict
		state.LastVerdict = &verdict
	}

	return state
}

// Subscribe delivers a snapshot after every completed operation. Slow
// subscribers only see the latest snapshot. The returned func unsubscribes
// and is idempotent.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()

			if _, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(ch)
			}
		})
	}
}

func (c *Controller) notify() {
	state := c.snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- state:
		default:
		}
	}
}

func (c *Controller) succeed(message string, update func()) {
	c.mu.Lock()
	if update != nil {
		update()
	}
	c.lastSuccess = message
	c.lastError = nil
	c.mu.Unlock()

	c.logger.Debug(message)
	c.notify()
}

func (c *Controller) fail(op string, err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()

	c.logger.Warn("operation failed", "op", op, "error", err)
	c.notify()
}

func (c *Controller) publish(ctx context.Context, workflowID uint64, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(context.WithoutCancel(ctx), strconv.FormatUint(workflowID, 10), event); err != nil {
		c.logger.WarnContext(ctx, "failed to publish event", "event_type", event.GetType(), "workflow_id", workflowID, "error", err)
	}
}

// Load replaces the known workflows with the stored ones.
func (c *Controller) Load(ctx context.Context) *gateway.Future[[]*models.Workflow] {
	return gateway.After(c.gateway.GetAll(ctx), func(workflows []*models.Workflow, err error) ([]*models.Workflow, error) {
		if err != nil {
			c.fail("Load", err)

			return nil, err
		}

		c.succeed(fmt.Sprintf("Loaded %d workflows", len(workflows)), func() {
			c.workflows = cloneAll(workflows)
		})

		return workflows, nil
	})
}

// AddWorkflow validates and stores a new enabled workflow, resolving to its
// id. A blank name becomes models.DefaultWorkflowName.
func (c *Controller) AddWorkflow(ctx context.Context, name string, trigger models.Trigger, action models.Action) *gateway.Future[uint64] {
	w := models.NewWorkflow(name, trigger, action)

	if err := w.Validate(c.now()); err != nil {
		c.fail("AddWorkflow", err)

		return gateway.Failed[uint64](err)
	}

	return gateway.After(c.gateway.Insert(ctx, w), func(id uint64, err error) (uint64, error) {
		if err != nil {
			c.fail("AddWorkflow", err)

			return 0, err
		}

		w.ID = id
		w.Trigger.WorkflowID = id

		c.succeed(fmt.Sprintf("Workflow %q added", w.Name), func() {
			c.workflows = upsert(c.workflows, w.Clone())
		})

		c.publish(ctx, id, events.WorkflowSaved{
			BaseEvent:   events.NewBaseEvent(events.WorkflowSavedEvent, id),
			Name:        w.Name,
			Enabled:     w.Enabled,
			Created:     true,
			TriggerType: w.Trigger.Kind,
			ActionType:  w.Action.Kind,
		})

		return id, nil
	})
}

// UpdateWorkflow validates and replaces a stored workflow.
func (c *Controller) UpdateWorkflow(ctx context.Context, w *models.Workflow) *gateway.Future[int64] {
	w = w.Clone()
	w.Normalize()

	if err := validateStored(w, c.now()); err != nil {
		c.fail("UpdateWorkflow", err)

		return gateway.Failed[int64](err)
	}

	w.Trigger.WorkflowID = w.ID

	return gateway.After(c.gateway.Update(ctx, w), func(rows int64, err error) (int64, error) {
		if err == nil && rows == 0 {
			err = &gateway.StoreError{Op: "Update", ID: w.ID, Err: persistence.ErrRecordNotFound}
		}

		if err != nil {
			c.fail("UpdateWorkflow", err)

			return rows, err
		}

		c.succeed(fmt.Sprintf("Workflow %q updated", w.Name), func() {
			c.workflows = upsert(c.workflows, w)
		})

		c.publish(ctx, w.ID, events.WorkflowSaved{
			BaseEvent:   events.NewBaseEvent(events.WorkflowSavedEvent, w.ID),
			Name:        w.Name,
			Enabled:     w.Enabled,
			TriggerType: w.Trigger.Kind,
			ActionType:  w.Action.Kind,
		})

		return rows, nil
	})
}

func validateStored(w *models.Workflow, now time.Time) error {
	if w == nil {
		return &models.ValidationError{Kind: models.ErrInvalidWorkflow, Field: "workflow", Reason: "workflow is nil"}
	}

	if w.ID == 0 {
		return &models.ValidationError{Kind: models.ErrInvalidWorkflow, Field: "id", Reason: "workflow has no id"}
	}

	return w.Validate(now)
}

// DeleteWorkflow removes a workflow. Deleting an unknown id succeeds with
// zero rows.
func (c *Controller) DeleteWorkflow(ctx context.Context, id uint64) *gateway.Future[int64] {
	if id == 0 {
		err := &models.ValidationError{Kind: models.ErrInvalidWorkflow, Field: "id", Reason: "workflow has no id"}
		c.fail("DeleteWorkflow", err)

		return gateway.Failed[int64](err)
	}

	return gateway.After(c.gateway.Delete(ctx, id), func(rows int64, err error) (int64, error) {
		if err != nil {
			c.fail("DeleteWorkflow", err)

			return rows, err
		}

		c.succeed(fmt.Sprintf("Workflow %d deleted", id), func() {
			c.workflows = remove(c.workflows, id)
		})

		c.publish(ctx, id, events.WorkflowDeleted{
			BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, id),
			Rows:      rows,
		})

		return rows, nil
	})
}

func (c *Controller) DeleteAll(ctx context.Context) *gateway.Future[int64] {
	return gateway.After(c.gateway.DeleteAll(ctx), func(rows int64, err error) (int64, error) {
		if err != nil {
			c.fail("DeleteAll", err)

			return rows, err
		}

		c.succeed(fmt.Sprintf("Deleted %d workflows", rows), func() {
			c.workflows = nil
		})

		c.publish(ctx, 0, events.WorkflowDeleted{
			BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, 0),
			All:       true,
			Rows:      rows,
		})

		return rows, nil
	})
}

// SetEnabled toggles a workflow. An unknown id fails with
// persistence.ErrRecordNotFound.
func (c *Controller) SetEnabled(ctx context.Context, id uint64, enabled bool) *gateway.Future[int64] {
	if id == 0 {
		err := &models.ValidationError{Kind: models.ErrInvalidWorkflow, Field: "id", Reason: "workflow has no id"}
		c.fail("SetEnabled", err)

		return gateway.Failed[int64](err)
	}

	return gateway.After(c.gateway.SetEnabled(ctx, id, enabled), func(rows int64, err error) (int64, error) {
		if err == nil && rows == 0 {
			err = &gateway.StoreError{Op: "SetEnabled", ID: id, Err: persistence.ErrRecordNotFound}
		}

		if err != nil {
			c.fail("SetEnabled", err)

			return rows, err
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}

		c.succeed(fmt.Sprintf("Workflow %d %s", id, state), func() {
			for _, w := range c.workflows {
				if w.ID == id {
					w.Enabled = enabled
				}
			}
		})

		c.publish(ctx, id, events.WorkflowEnabledChanged{
			BaseEvent: events.NewBaseEvent(events.WorkflowEnabledChangedEvent, id),
			Enabled:   enabled,
		})

		return rows, nil
	})
}

// CheckTrigger starts an evaluation and republishes its verdict once it
// finishes.
// After Close the evaluation resolves at once to NotFired "evaluation
// stopped" and no sensor is touched.
func (c *Controller) CheckTrigger(ctx context.Context, trigger models.Trigger) *evaluator.Evaluation {
	evaluation := c.engine.Evaluate(ctx, trigger)

	if !c.track() {
		return evaluation
	}

	go func() {
		defer c.wg.Done()

		<-evaluation.Done()
		c.recordVerdict(ctx, evaluation.Result())
	}()

	return evaluation
}

func (c *Controller) recordVerdict(ctx context.Context, result evaluator.Result) {
	c.mu.Lock()
	c.lastVerdict = &result

	if result.Err != nil {
		c.lastError = result.Err
	}
	c.mu.Unlock()

	c.notify()

	event := events.TriggerEvaluated{
		BaseEvent:    events.NewBaseEvent(events.TriggerEvaluatedEvent, result.Trigger.WorkflowID),
		EvaluationID: result.EvaluationID,
		TriggerType:  result.Trigger.Kind,
		TriggerValue: result.Trigger.Value,
		Verdict:      string(result.Verdict),
		Reason:       result.Reason,
		DurationMs:   result.Duration.Milliseconds(),
	}

	if result.Err != nil {
		event.Error = result.Err.Error()
	}

	c.publish(ctx, result.Trigger.WorkflowID, event)
}

// CheckWorkflow loads a workflow and evaluates its trigger. Disabled
// workflows resolve to NotFired without touching any sensor. On Fired a
// workflow.fired event carrying the action is published.
func (c *Controller) CheckWorkflow(ctx context.Context, id uint64) *gateway.Future[evaluator.Result] {
	future, complete := gateway.NewFuture[evaluator.Result](gateway.DirectSink{})
	lookup := c.gateway.GetByID(ctx, id)

	tracked := c.track()

	go func() {
		if tracked {
			defer c.wg.Done()
		}

		result, err := c.checkWorkflow(ctx, id, lookup)
		if err != nil {
			c.fail("CheckWorkflow", err)
		}

		complete(result, err)
	}()

	return future
}

func (c *Controller) checkWorkflow(ctx context.Context, id uint64, lookup *gateway.Future[*models.Workflow]) (evaluator.Result, error) {
	w, err := lookup.Wait(ctx)
	if err != nil {
		return evaluator.Result{}, err
	}

	if w == nil {
		return evaluator.Result{}, &gateway.StoreError{Op: "GetByID", ID: id, Err: persistence.ErrRecordNotFound}
	}

	if w.Trigger == nil {
		return evaluator.Result{}, &models.ValidationError{
			Kind: models.ErrInvalidTrigger, Field: "trigger", Reason: "stored trigger could not be decoded",
		}
	}

	if !w.Enabled {
		return evaluator.Result{
			Trigger:   *w.Trigger,
			Verdict:   evaluator.NotFired,
			Reason:    "workflow disabled",
			CheckedAt: c.now(),
		}, nil
	}

	if c.closing.Load() {
		return evaluator.Result{
			Trigger:   *w.Trigger,
			Verdict:   evaluator.NotFired,
			Reason:    "evaluation stopped",
			CheckedAt: c.now(),
		}, nil
	}

	evaluation := c.engine.Evaluate(ctx, *w.Trigger)

	<-evaluation.Done()

	result := evaluation.Result()
	c.recordVerdict(ctx, result)

	if result.Verdict == evaluator.Fired && w.Action != nil {
		c.logger.InfoContext(ctx, "workflow fired", "workflow_id", w.ID, "action", w.Action.DisplayName())

		c.publish(ctx, w.ID, events.WorkflowFired{
			BaseEvent:    events.NewBaseEvent(events.WorkflowFiredEvent, w.ID),
			EvaluationID: result.EvaluationID,
			Name:         w.Name,
			Action:       *w.Action,
		})
	}

	return result, nil
}

// track registers a verdict goroutine with Close. It reports false once
// Close has started, when Close no longer waits.
func (c *Controller) track() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closing.Load() {
		return false
	}

	c.wg.Add(1)

	return true
}

// Close stops running evaluations, waits for pending verdicts and cleans up
// the gateway. Subscriber channels are closed. Later calls return the first
// call's result.
func (c *Controller) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closing.Store(true)
		c.closeMu.Unlock()

		c.engine.Close()
		c.wg.Wait()

		if err := c.gateway.Cleanup(ctx); err != nil && !errors.Is(err, gateway.ErrClosed) {
			c.closeErr = err
		}

		c.subMu.Lock()
		for id, ch := range c.subscribers {
			delete(c.subscribers, id)
			close(ch)
		}
		c.subMu.Unlock()
	})

	return c.closeErr
}

func cloneAll(workflows []*models.Workflow) []*models.Workflow {
	clones := make([]*models.Workflow, 0, len(workflows))

	for _, w := range workflows {
		clones = append(clones, w.Clone())
	}

	return clones
}

// upsert replaces the workflow with w's id or inserts w, keeping id order.
func upsert(workflows []*models.Workflow, w *models.Workflow) []*models.Workflow {
	for i, existing := range workflows {
		if existing.ID == w.ID {
			workflows[i] = w

			return workflows
		}
	}

	workflows = append(workflows, w)
	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows
}

func remove(workflows []*models.Workflow, id uint64) []*models.Workflow {
	kept := workflows[:0]

	for _, w := range workflows {
		if w.ID != id {
			kept = append(kept, w)
		}
	}

	return kept
}

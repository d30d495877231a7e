// Package gateway runs workflow persistence asynchronously. Operations are
// queued FIFO and executed one at a time by a single worker goroutine, so
// writes to the same record are totally ordered. Results come back as
// futures whose callbacks run through a Sink.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
)

const DefaultQueueSize = 128

type job struct {
	op     string
	id     uint64
	ctx    context.Context
	run    func(ctx context.Context)
	cancel func(err error)
}

type Gateway struct {
	store  persistence.Store
	logger *slog.Logger
	tracer trace.Tracer
	sink   Sink

	// ownSink is the default loop sink, closed by Cleanup.
	ownSink *LoopSink

	queue chan job

	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	cleanupOnce sync.Once
	cleanupErr  error
	cleaned     chan struct{}
}

type Option func(*Gateway)

// WithSink delivers completion callbacks through s instead of a private
// LoopSink.
func WithSink(s Sink) Option {
	return func(g *Gateway) {
		g.sink = s
	}
}

// WithQueueSize bounds the number of queued operations. Submissions block
// while the queue is full.
func WithQueueSize(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.queue = make(chan job, n)
		}
	}
}

// New starts the worker. The gateway owns store and closes it in Cleanup.
func New(logger *slog.Logger, store persistence.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:   store,
		logger:  logger.With("module", "gateway"),
		tracer:  otel.Tracer("autoflow/gateway"),
		queue:   make(chan job, DefaultQueueSize),
		closing: make(chan struct{}),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		cleaned: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.sink == nil {
		g.ownSink = NewLoopSink(g.logger)
		g.sink = g.ownSink
	}

	go g.worker()

	return g
}

func (g *Gateway) worker() {
	defer close(g.stopped)

	for {
		select {
		case <-g.stop:
			g.drain()

			return
		default:
		}

		select {
		case j := <-g.queue:
			select {
			case <-g.stop:
				j.cancel(newStoreError(j.op, j.id, ErrCanceled))
				g.drain()

				return
			default:
			}

			g.execute(j)
		case <-g.stop:
			g.drain()

			return
		}
	}
}

// drain cancels every queued job. No submission can race it: stop is closed
// only after the gateway is marked closed.
func (g *Gateway) drain() {
	for {
		select {
		case j := <-g.queue:
			g.logger.Debug("canceling queued operation", "op", j.op, "workflow_id", j.id)
			j.cancel(newStoreError(j.op, j.id, ErrCanceled))
		default:
			return
		}
	}
}

func (g *Gateway) execute(j job) {
	if err := j.ctx.Err(); err != nil {
		j.cancel(newStoreError(j.op, j.id, err))

		return
	}

	j.run(j.ctx)
}

func (g *Gateway) submit(ctx context.Context, j job) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return ErrClosed
	}

	select {
	case g.queue <- j:
		return nil
	case <-g.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue schedules fn and returns its future. Errors and panics raised by
// fn are reported as *StoreError.
func enqueue[T any](
	ctx context.Context,
	g *Gateway,
	op string,
	id uint64,
	fn func(ctx context.Context) (T, error),
) *Future[T] {
	future := newFuture[T](g.sink)

	j := job{
		op:  op,
		id:  id,
		ctx: ctx,
		cancel: func(err error) {
			var zero T
			future.complete(zero, err)
		},
	}

	j.run = func(ctx context.Context) {
		value, err := call(ctx, g, op, id, fn)
		future.complete(value, err)
	}

	if err := g.submit(ctx, j); err != nil {
		future.complete(*new(T), newStoreError(op, id, err))
	}

	return future
}

func call[T any](
	ctx context.Context,
	g *Gateway,
	op string,
	id uint64,
	fn func(ctx context.Context) (T, error),
) (value T, err error) {
	ctx, span := otelhelper.StartSpan(ctx, g.tracer, "gateway."+op,
		attribute.String(otelhelper.StoreOpKey, op),
		attribute.Int64(otelhelper.WorkflowIDKey, int64(id)),
	)
	defer span.End()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, fmt.Errorf("store panicked: %v", r)
		}

		if err != nil {
			err = newStoreError(op, id, err)
			otelhelper.SetError(span, err)
			g.logger.WarnContext(ctx, "store operation failed", "op", op, "workflow_id", id, "error", err)

			return
		}

		g.logger.DebugContext(ctx, "store operation completed", "op", op, "workflow_id", id, "duration", time.Since(started))
	}()

	return fn(ctx)
}

// Insert stores w and resolves to its id.
func (g *Gateway) Insert(ctx context.Context, w *models.Workflow) *Future[uint64] {
	if w == nil {
		return failedFuture[uint64](g.sink, newStoreError("Insert", 0, models.ErrInvalidWorkflow))
	}

	record := persistence.ToRecord(w)

	return enqueue(ctx, g, "Insert", w.ID, func(ctx context.Context) (uint64, error) {
		return g.store.Insert(ctx, record)
	})
}

// Update replaces the stored workflow and resolves to the rows affected.
func (g *Gateway) Update(ctx context.Context, w *models.Workflow) *Future[int64] {
	if w == nil {
		return failedFuture[int64](g.sink, newStoreError("Update", 0, models.ErrInvalidWorkflow))
	}

	record := persistence.ToRecord(w)

	return enqueue(ctx, g, "Update", w.ID, func(ctx context.Context) (int64, error) {
		return g.store.Update(ctx, record)
	})
}

func (g *Gateway) Delete(ctx context.Context, id uint64) *Future[int64] {
	return enqueue(ctx, g, "Delete", id, func(ctx context.Context) (int64, error) {
		return g.store.Delete(ctx, id)
	})
}

func (g *Gateway) DeleteAll(ctx context.Context) *Future[int64] {
	return enqueue(ctx, g, "DeleteAll", 0, func(ctx context.Context) (int64, error) {
		return g.store.DeleteAll(ctx)
	})
}

// GetByID resolves to nil when no workflow has that id.
func (g *Gateway) GetByID(ctx context.Context, id uint64) *Future[*models.Workflow] {
	return enqueue(ctx, g, "GetByID", id, func(ctx context.Context) (*models.Workflow, error) {
		record, err := g.store.GetByID(ctx, id)
		if err != nil {
			if persistence.IsNotFound(err) {
				return nil, nil
			}

			return nil, err
		}

		return record.Workflow(g.logger), nil
	})
}

func (g *Gateway) GetAll(ctx context.Context) *Future[[]*models.Workflow] {
	return enqueue(ctx, g, "GetAll", 0, func(ctx context.Context) ([]*models.Workflow, error) {
		records, err := g.store.GetAll(ctx)
		if err != nil {
			return nil, err
		}

		return persistence.Workflows(g.logger, records), nil
	})
}

func (g *Gateway) GetEnabled(ctx context.Context) *Future[[]*models.Workflow] {
	return enqueue(ctx, g, "GetEnabled", 0, func(ctx context.Context) ([]*models.Workflow, error) {
		records, err := g.store.GetEnabled(ctx)
		if err != nil {
			return nil, err
		}

		return persistence.Workflows(g.logger, records), nil
	})
}

func (g *Gateway) SetEnabled(ctx context.Context, id uint64, enabled bool) *Future[int64] {
	return enqueue(ctx, g, "SetEnabled", id, func(ctx context.Context) (int64, error) {
		return g.store.SetEnabled(ctx, id, enabled)
	})
}

func (g *Gateway) Count(ctx context.Context) *Future[int] {
	return enqueue(ctx, g, "Count", 0, func(ctx context.Context) (int, error) {
		return g.store.Count(ctx)
	})
}

// Cleanup stops accepting work, cancels queued operations with ErrCanceled,
// waits for the running one and closes the store. If ctx ends first Cleanup
// returns its error while the store is still closed once the running
// operation finishes; a later call waits again. Once finished every call
// returns the same result.
func (g *Gateway) Cleanup(ctx context.Context) error {
	g.cleanupOnce.Do(func() {
		close(g.closing)

		g.mu.Lock()
		g.closed = true
		close(g.stop)
		g.mu.Unlock()

		go g.release(context.WithoutCancel(ctx))
	})

	select {
	case <-g.cleaned:
		return g.cleanupErr
	default:
	}

	select {
	case <-g.cleaned:
		return g.cleanupErr
	case <-ctx.Done():
		return fmt.Errorf("waiting for running operation: %w", ctx.Err())
	}
}

// release closes the store and the own sink after the worker has stopped.
func (g *Gateway) release(ctx context.Context) {
	defer close(g.cleaned)

	<-g.stopped

	if err := g.store.Close(ctx); err != nil && !errors.Is(err, persistence.ErrStoreClosed) {
		g.cleanupErr = fmt.Errorf("failed to close store: %w", err)
	}

	if g.ownSink != nil {
		g.ownSink.Close()
	}

	g.logger.DebugContext(ctx, "gateway closed")
}

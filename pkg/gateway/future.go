package gateway

import (
	"context"
	"sync"
)

// Future is the pending result of one gateway operation.
type Future[T any] struct {
	sink Sink
	done chan struct{}

	mu        sync.Mutex
	completed bool
	value     T
	err       error
	callbacks []func()
}

func newFuture[T any](sink Sink) *Future[T] {
	return &Future[T]{sink: sink, done: make(chan struct{})}
}

// failedFuture returns a future already completed with err.
func failedFuture[T any](sink Sink, err error) *Future[T] {
	f := newFuture[T](sink)

	var zero T
	f.complete(zero, err)

	return f
}

// Done is closed once the operation has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the operation finishes or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T

		return zero, ctx.Err()
	}
}

// Then registers callbacks delivered through the gateway sink once the
// operation finishes. Either callback may be nil.
func (f *Future[T]) Then(onSuccess func(T), onError func(error)) *Future[T] {
	callback := func() {
		if f.err != nil {
			if onError != nil {
				onError(f.err)
			}

			return
		}

		if onSuccess != nil {
			onSuccess(f.value)
		}
	}

	f.onComplete(callback)

	return f
}

func (f *Future[T]) complete(value T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()

		return
	}

	f.value, f.err = value, err
	f.completed = true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, callback := range callbacks {
		f.sink.Deliver(callback)
	}
}

// NewFuture returns a pending future and the func that completes it. Only
// the first completion counts.
func NewFuture[T any](sink Sink) (*Future[T], func(T, error)) {
	f := newFuture[T](sink)

	return f, f.complete
}

// Failed returns a future already completed with err whose callbacks run on
// the caller of Then.
func Failed[T any](err error) *Future[T] {
	return failedFuture[T](DirectSink{}, err)
}

// After returns a future completed with fn's result once f completes. fn
// runs through f's sink, after callbacks registered on f before it.
func After[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	out := newFuture[U](f.sink)

	f.onComplete(func() {
		out.complete(fn(f.value, f.err))
	})

	return out
}

func (f *Future[T]) onComplete(callback func()) {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, callback)
		f.mu.Unlock()

		return
	}
	f.mu.Unlock()

	f.sink.Deliver(callback)
}

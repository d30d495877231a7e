package gateway

import (
	"log/slog"
	"sync"
)

// Sink is the context completion callbacks run in.
type Sink interface {
	Deliver(fn func())
}

// DirectSink runs callbacks on the goroutine that completes the operation,
// or on the caller of Then when the future is already complete.
type DirectSink struct{}

func (DirectSink) Deliver(fn func()) {
	fn()
}

// LoopSink runs callbacks one at a time, in delivery order, on a dedicated
// goroutine. The queue is unbounded so callbacks may register further
// callbacks without blocking the loop.
type LoopSink struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

func NewLoopSink(logger *slog.Logger) *LoopSink {
	s := &LoopSink{
		logger: logger,
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)

	go s.loop()

	return s
}

func (s *LoopSink) loop() {
	defer close(s.done)

	for {
		s.mu.Lock()

		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}

		if len(s.pending) == 0 {
			s.mu.Unlock()

			return
		}

		fn := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.run(fn)
	}
}

func (s *LoopSink) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panicked", "panic", r)
		}
	}()

	fn()
}

// Deliver queues fn. After Close, fn runs inline on the caller.
func (s *LoopSink) Deliver(fn func()) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		fn()

		return
	}

	s.pending = append(s.pending, fn)
	s.cond.Signal()
	s.mu.Unlock()
}

// Close runs the callbacks already queued and stops the loop. It must not be
// called from a callback.
func (s *LoopSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
}

package sensors

import (
	"context"
	"sync"
)

// Handle is the single owner of one capability. Requests through the same
// handle are serialized: a second request waits until the first releases,
// or until its context ends.
type Handle struct {
	capability Capability
	slot       chan struct{}
}

func NewHandle(c Capability) *Handle {
	return &Handle{capability: c, slot: make(chan struct{}, 1)}
}

func (h *Handle) Capability() Capability {
	return h.capability
}

// Acquire blocks until the capability is free. The returned release func is
// idempotent.
func (h *Handle) Acquire(ctx context.Context) (func(), error) {
	select {
	case h.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, NewCapabilityError(h.capability, ctx.Err(), "waiting for capability")
	}

	var once sync.Once

	return func() {
		once.Do(func() { <-h.slot })
	}, nil
}

// Busy reports whether a request currently holds the capability.
func (h *Handle) Busy() bool {
	return len(h.slot) > 0
}

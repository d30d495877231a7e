// Package eventbus publishes autoflow events over watermill.
package eventbus

import (
	"context"

	"github.com/dukex/autoflow/pkg/events"
)

// Event is any payload in pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher is what the controller needs. key is the workflow id in
// decimal, so a partitioned transport keeps one workflow's events in order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches received events by type. Handlers receive the
// pointer returned by events.Decode, e.g. *events.WorkflowFired.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler returning an error nacks the message for redelivery.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

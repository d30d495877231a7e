// Package events defines the notifications published when workflows change
// and when their triggers are evaluated.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/autoflow/pkg/models"
)

type EventType string

// Topic carries every autoflow event.
const Topic = "autoflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow lifecycle events.
	WorkflowSavedEvent          EventType = "workflow.saved"
	WorkflowDeletedEvent        EventType = "workflow.deleted"
	WorkflowEnabledChangedEvent EventType = "workflow.enabled_changed"

	// Evaluation events.
	TriggerEvaluatedEvent EventType = "trigger.evaluated"
	WorkflowFiredEvent    EventType = "workflow.fired"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID uint64         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowSaved is published after a workflow is inserted or updated.
type WorkflowSaved struct {
	BaseEvent

	Name        string             `json:"name"`
	Enabled     bool               `json:"enabled"`
	Created     bool               `json:"created"`
	TriggerType models.TriggerKind `json:"trigger_type,omitempty"`
	ActionType  models.ActionKind  `json:"action_type,omitempty"`
}

func (WorkflowSaved) GetType() EventType {
	return WorkflowSavedEvent
}

// WorkflowDeleted is published after a delete. All is set, and WorkflowID is
// zero, when every workflow was removed.
type WorkflowDeleted struct {
	BaseEvent

	All  bool  `json:"all,omitempty"`
	Rows int64 `json:"rows"`
}

func (WorkflowDeleted) GetType() EventType {
	return WorkflowDeletedEvent
}

type WorkflowEnabledChanged struct {
	BaseEvent

	Enabled bool `json:"enabled"`
}

func (WorkflowEnabledChanged) GetType() EventType {
	return WorkflowEnabledChangedEvent
}

// TriggerEvaluated reports the verdict of one trigger check.
type TriggerEvaluated struct {
	BaseEvent

	EvaluationID string             `json:"evaluation_id"`
	TriggerType  models.TriggerKind `json:"trigger_type"`
	TriggerValue string             `json:"trigger_value"`
	Verdict      string             `json:"verdict"`
	Reason       string             `json:"reason,omitempty"`
	Error        string             `json:"error,omitempty"`
	DurationMs   int64              `json:"duration_ms"`
}

func (TriggerEvaluated) GetType() EventType {
	return TriggerEvaluatedEvent
}

// WorkflowFired carries the action of a workflow whose trigger fired.
// Executing the action is up to the consumer.
type WorkflowFired struct {
	BaseEvent

	EvaluationID string        `json:"evaluation_id"`
	Name         string        `json:"name"`
	Action       models.Action `json:"action"`
}

func (WorkflowFired) GetType() EventType {
	return WorkflowFiredEvent
}

func NewBaseEvent(eventType EventType, workflowID uint64) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return BaseEvent{
		ID:         id.String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// Decode unmarshals payload into the struct registered for eventType and
// returns a pointer to it.
func Decode(eventType EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case WorkflowSavedEvent:
		event = &WorkflowSaved{}
	case WorkflowDeletedEvent:
		event = &WorkflowDeleted{}
	case WorkflowEnabledChangedEvent:
		event = &WorkflowEnabledChanged{}
	case TriggerEvaluatedEvent:
		event = &TriggerEvaluated{}
	case WorkflowFiredEvent:
		event = &WorkflowFired{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}

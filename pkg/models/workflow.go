// Package models defines the workflow, trigger and action types and the codec
// that flattens them into stored records.
package models

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultWorkflowName   = "Unnamed Workflow"
	MaxWorkflowNameLength = 100
)

// Workflow pairs one trigger with one action. Trigger and Action are nil when
// the stored blob could not be decoded.
type Workflow struct {
	ID      uint64   `json:"id"`
	Name    string   `json:"name"    validate:"required,max=100"`
	Enabled bool     `json:"enabled"`
	Trigger *Trigger `json:"trigger,omitempty"`
	Action  *Action  `json:"action,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// NewWorkflow builds an enabled workflow, defaulting a blank name.
func NewWorkflow(name string, trigger Trigger, action Action) *Workflow {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultWorkflowName
	}

	w := &Workflow{
		Name:    name,
		Enabled: true,
		Trigger: &trigger,
		Action:  &action,
	}
	w.Normalize()

	return w
}

// Normalize trims and upper-cases the trigger and action kinds so a stored
// workflow decodes back to the same value.
func (w *Workflow) Normalize() {
	if w == nil {
		return
	}

	if w.Trigger != nil {
		w.Trigger.Kind = ParseTriggerKind(string(w.Trigger.Kind))
	}

	if w.Action != nil {
		w.Action.Kind = ParseActionKind(string(w.Action.Kind))
	}
}

// Clone returns a deep copy; callers never share mutable workflow state.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	clone := *w

	if w.Trigger != nil {
		t := *w.Trigger
		clone.Trigger = &t
	}

	if w.Action != nil {
		a := *w.Action
		clone.Action = &a
	}

	return &clone
}

// Validate checks everything a workflow must satisfy before it is persisted.
// Validation of the Time trigger window uses now.
func (w *Workflow) Validate(now time.Time) error {
	if w == nil {
		return newWorkflowError("workflow", "workflow is nil")
	}

	if err := structValidator().Struct(w); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return newWorkflowError(strings.ToLower(fieldErrs[0].Field()), workflowFieldReason(fieldErrs[0]))
		}

		return newWorkflowError("workflow", err.Error())
	}

	if strings.TrimSpace(w.Name) == "" {
		return newWorkflowError("name", "workflow name cannot be blank")
	}

	if w.Trigger == nil {
		return newTriggerError("trigger", "workflow has no trigger")
	}

	if err := ValidateAt(w.Trigger.Kind, w.Trigger.Value, now); err != nil {
		return err
	}

	if w.Action == nil {
		return newActionError("action", "workflow has no action")
	}

	return w.Action.Validate()
}

func workflowFieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

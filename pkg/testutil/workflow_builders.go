// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/autoflow/pkg/models"
)

// CreateTestWorkflow creates an enabled battery workflow that can be
// overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	w := models.NewWorkflow("Test Workflow", models.NewBatteryTrigger(20), models.NewWiFiToggleAction(false))

	for _, override := range overrides {
		override(w)
	}

	return w
}

// WithID sets the workflow id and the trigger back reference.
func WithID(id uint64) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id

		if w.Trigger != nil {
			w.Trigger.WorkflowID = id
		}
	}
}

// WithName sets the workflow name.
func WithName(name string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Name = name
	}
}

// WithTrigger replaces the trigger, keeping the workflow back reference.
func WithTrigger(trigger models.Trigger) func(*models.Workflow) {
	return func(w *models.Workflow) {
		trigger.WorkflowID = w.ID
		w.Trigger = &trigger
	}
}

// WithAction replaces the action.
func WithAction(action models.Action) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Action = &action
	}
}

// Disabled marks the workflow disabled.
func Disabled() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Enabled = false
	}
}

// WithUndecodableTrigger drops the trigger, as happens when a stored blob is
// malformed.
func WithUndecodableTrigger() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = nil
	}
}

// Package persistence provides the record store abstraction the gateway writes
// workflows through.
package persistence

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dukex/autoflow/pkg/models"
)

// Record is the flat stored form of a workflow. The trigger and action are
// kept as opaque JSON blobs produced by the models codec.
type Record struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	TriggerBlob string `json:"trigger_blob"`
	ActionBlob  string `json:"action_blob"`
}

// Store is a key indexed record store. Implementations own their bytes and
// every read returns an independent copy.
//
// Insert assigns the next id when Record.ID is zero; ids are monotonic and
// start at 1. Update, Delete and SetEnabled report rows affected and return
// 0 rather than an error when the record is absent. GetByID returns
// ErrRecordNotFound when absent. Lists are ordered by id.
type Store interface {
	Insert(ctx context.Context, record Record) (uint64, error)
	Update(ctx context.Context, record Record) (int64, error)
	Delete(ctx context.Context, id uint64) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	GetByID(ctx context.Context, id uint64) (Record, error)
	GetAll(ctx context.Context) ([]Record, error)
	GetEnabled(ctx context.Context) ([]Record, error)
	SetEnabled(ctx context.Context, id uint64, enabled bool) (int64, error)
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ToRecord flattens a workflow. A nil trigger or action encodes as an empty
// blob.
func ToRecord(w *models.Workflow) Record {
	record := Record{
		ID:      w.ID,
		Name:    w.Name,
		Enabled: w.Enabled,
	}

	if w.Trigger != nil {
		trigger := *w.Trigger
		trigger.WorkflowID = w.ID
		record.TriggerBlob = models.EncodeTrigger(trigger)
	}

	if w.Action != nil {
		record.ActionBlob = models.EncodeAction(*w.Action)
	}

	return record
}

// Workflow decodes the record, filling in the trigger's workflow id when
// the blob was written before the id was assigned. Damaged blobs are logged and surface as a nil
// trigger or action so the record can still be listed and deleted.
func (r Record) Workflow(logger *slog.Logger) *models.Workflow {
	w := &models.Workflow{
		ID:      r.ID,
		Name:    r.Name,
		Enabled: r.Enabled,
	}

	if trigger, err := models.ParseTriggerBlob(r.TriggerBlob); err != nil {
		logger.Warn("failed to decode trigger blob", "workflow_id", r.ID, "error", err)
	} else {
		if trigger.WorkflowID == 0 {
			trigger.WorkflowID = r.ID
		}

		w.Trigger = &trigger
	}

	if action, err := models.ParseActionBlob(r.ActionBlob); err != nil {
		logger.Warn("failed to decode action blob", "workflow_id", r.ID, "error", err)
	} else {
		w.Action = &action
	}

	return w
}

// Workflows decodes every record in order.
func Workflows(logger *slog.Logger, records []Record) []*models.Workflow {
	workflows := make([]*models.Workflow, 0, len(records))

	for _, record := range records {
		workflows = append(workflows, record.Workflow(logger))
	}

	return workflows
}

// SortRecords orders records by id. Stores that keep records in maps or
// directories use it before returning lists.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
}

// FilterEnabled returns the enabled records, preserving order.
func FilterEnabled(records []Record) []Record {
	enabled := make([]Record, 0, len(records))

	for _, record := range records {
		if record.Enabled {
			enabled = append(enabled, record)
		}
	}

	return enabled
}

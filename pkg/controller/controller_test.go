package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/evaluator"
	"github.com/dukex/autoflow/pkg/eventbus"
	"github.com/dukex/autoflow/pkg/events"
	"github.com/dukex/autoflow/pkg/gateway"
	"github.com/dukex/autoflow/pkg/mocks"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/inmem"
	"github.com/dukex/autoflow/pkg/sensors"
	"github.com/dukex/autoflow/pkg/sensors/static"
	"github.com/dukex/autoflow/pkg/testutil"
)

var discard = slog.New(slog.DiscardHandler)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return r.err
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]events.EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.GetType())
	}

	return types
}

func (r *recorder) last(eventType events.EventType) eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].GetType() == eventType {
			return r.events[i]
		}
	}

	return nil
}

type fixture struct {
	ctl       *Controller
	publisher *recorder
}

func newFixture(t *testing.T, store persistence.Store, providers sensors.Providers) fixture {
	t.Helper()

	publisher := &recorder{}
	gw := gateway.New(discard, store)
	engine := evaluator.New(discard, providers, evaluator.WithScanTimeout(100*time.Millisecond))
	ctl := New(discard, gw, engine, WithPublisher(publisher))

	t.Cleanup(func() { _ = ctl.Close(context.Background()) })

	return fixture{ctl: ctl, publisher: publisher}
}

func wait[T any](t *testing.T, f *gateway.Future[T]) (T, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return f.Wait(ctx)
}

func batteryFixture(level int) sensors.Providers {
	return static.New(static.Fixture{Battery: &static.BatteryFixture{Level: level}})
}

func TestController_AddWorkflow(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})
	ctx := context.Background()

	id, err := wait(t, f.ctl.AddWorkflow(ctx, "Low battery", models.NewBatteryTrigger(15), models.NewWiFiToggleAction(false)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	workflows := f.ctl.Workflows()
	require.Len(t, workflows, 1)
	assert.Equal(t, id, workflows[0].ID)
	assert.Equal(t, id, workflows[0].Trigger.WorkflowID)
	assert.True(t, workflows[0].Enabled)
	assert.Equal(t, `Workflow "Low battery" added`, f.ctl.LastSuccess())
	assert.NoError(t, f.ctl.LastError())

	saved, ok := f.publisher.last(events.WorkflowSavedEvent).(events.WorkflowSaved)
	require.True(t, ok)
	assert.True(t, saved.Created)
	assert.Equal(t, id, saved.WorkflowID)
	assert.Equal(t, models.TriggerBatteryLevel, saved.TriggerType)

	// Returned workflows are copies.
	workflows[0].Name = "mutated"
	assert.Equal(t, "Low battery", f.ctl.Workflows()[0].Name)
}

func TestController_RejectsInvalidInputWithoutTouchingStore(t *testing.T) {
	store := &mocks.MockStore{}
	store.On("Close", mock.Anything).Return(nil)

	f := newFixture(t, store, sensors.Providers{})
	ctx := context.Background()

	_, err := wait(t, f.ctl.AddWorkflow(ctx, "Broken", models.NewBatteryTrigger(150), models.NewWiFiToggleAction(true)))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidTrigger)
	assert.True(t, models.IsValidationError(f.ctl.LastError()))

	_, err = wait(t, f.ctl.AddWorkflow(ctx, "Broken", models.NewBatteryTrigger(20), models.NewNotificationAction("", "body", models.PriorityHigh)))
	assert.ErrorIs(t, err, models.ErrInvalidAction)

	_, err = wait(t, f.ctl.UpdateWorkflow(ctx, models.NewWorkflow("No id", models.NewBatteryTrigger(20), models.NewWiFiToggleAction(true))))
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)

	_, err = wait(t, f.ctl.UpdateWorkflow(ctx, nil))
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)

	_, err = wait(t, f.ctl.DeleteWorkflow(ctx, 0))
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)

	_, err = wait(t, f.ctl.SetEnabled(ctx, 0, true))
	assert.ErrorIs(t, err, models.ErrInvalidWorkflow)

	assert.Empty(t, f.ctl.Workflows())
	assert.Empty(t, f.publisher.types())
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestController_UpdateEnableDelete(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})
	ctx := context.Background()

	id, err := wait(t, f.ctl.AddWorkflow(ctx, "Morning", models.NewHeadphoneTrigger("CONNECTED"), models.NewSoundModeAction("NORMAL")))
	require.NoError(t, err)

	w := f.ctl.Workflows()[0]
	w.Name = "Morning music"
	w.Action = &models.Action{Kind: models.ActionLaunchApp, Value: "com.spotify.music"}

	rows, err := wait(t, f.ctl.UpdateWorkflow(ctx, w))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, "Morning music", f.ctl.Workflows()[0].Name)

	rows, err = wait(t, f.ctl.SetEnabled(ctx, id, false))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.False(t, f.ctl.Workflows()[0].Enabled)

	changed, ok := f.publisher.last(events.WorkflowEnabledChangedEvent).(events.WorkflowEnabledChanged)
	require.True(t, ok)
	assert.False(t, changed.Enabled)

	rows, err = wait(t, f.ctl.DeleteWorkflow(ctx, id))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Empty(t, f.ctl.Workflows())

	assert.Equal(t, []events.EventType{
		events.WorkflowSavedEvent,
		events.WorkflowSavedEvent,
		events.WorkflowEnabledChangedEvent,
		events.WorkflowDeletedEvent,
	}, f.publisher.types())
}

func TestController_MissingRecords(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})
	ctx := context.Background()

	w := testutil.CreateTestWorkflow(testutil.WithID(42), testutil.WithName("Ghost"))

	_, err := wait(t, f.ctl.UpdateWorkflow(ctx, w))
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	_, err = wait(t, f.ctl.SetEnabled(ctx, 42, true))
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)
	assert.ErrorIs(t, f.ctl.LastError(), persistence.ErrRecordNotFound)

	rows, err := wait(t, f.ctl.DeleteWorkflow(ctx, 42))
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.NoError(t, f.ctl.LastError())
}

func TestController_LoadAndDeleteAll(t *testing.T) {
	store := inmem.New()
	ctx := context.Background()

	for _, name := range []string{"one", "two"} {
		w := models.NewWorkflow(name, models.NewBatteryTrigger(10), models.NewWiFiToggleAction(true))
		_, err := store.Insert(ctx, persistence.ToRecord(w))
		require.NoError(t, err)
	}

	f := newFixture(t, store, sensors.Providers{})

	workflows, err := wait(t, f.ctl.Load(ctx))
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Len(t, f.ctl.Workflows(), 2)
	assert.Equal(t, "Loaded 2 workflows", f.ctl.LastSuccess())

	rows, err := wait(t, f.ctl.DeleteAll(ctx))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Empty(t, f.ctl.Workflows())

	deleted, ok := f.publisher.last(events.WorkflowDeletedEvent).(events.WorkflowDeleted)
	require.True(t, ok)
	assert.True(t, deleted.All)
}

func TestController_StoreFailureSetsLastError(t *testing.T) {
	storeErr := errors.New("database is locked")

	store := &mocks.MockStore{}
	store.On("GetAll", mock.Anything).Return(nil, storeErr).Once()
	store.On("Close", mock.Anything).Return(nil)

	f := newFixture(t, store, sensors.Providers{})

	_, err := wait(t, f.ctl.Load(context.Background()))
	require.Error(t, err)
	assert.True(t, gateway.IsStoreError(err))
	assert.ErrorIs(t, f.ctl.LastError(), storeErr)
}

func TestController_Subscribe(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})
	states, unsubscribe := f.ctl.Subscribe()

	_, err := wait(t, f.ctl.AddWorkflow(context.Background(), "Night", models.NewChargingTrigger("PLUGGED"), models.NewSoundModeAction("SILENT")))
	require.NoError(t, err)

	select {
	case state := <-states:
		require.Len(t, state.Workflows, 1)
		assert.Equal(t, "Night", state.Workflows[0].Name)
		assert.NoError(t, state.LastError)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	unsubscribe()
	unsubscribe()

	for range states {
	}

	_, err = wait(t, f.ctl.DeleteAll(context.Background()))
	require.NoError(t, err)
}

func TestController_CheckTrigger(t *testing.T) {
	f := newFixture(t, inmem.New(), batteryFixture(12))

	evaluation := f.ctl.CheckTrigger(context.Background(), models.NewBatteryTrigger(15))

	result, err := evaluation.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, evaluator.Fired, result.Verdict)

	require.Eventually(t, func() bool {
		verdict, ok := f.ctl.LastVerdict()

		return ok && verdict.EvaluationID == evaluation.ID()
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.publisher.last(events.TriggerEvaluatedEvent) != nil
	}, time.Second, 5*time.Millisecond)

	evaluated := f.publisher.last(events.TriggerEvaluatedEvent).(events.TriggerEvaluated)
	assert.Equal(t, "FIRED", evaluated.Verdict)
	assert.Equal(t, models.TriggerBatteryLevel, evaluated.TriggerType)
}

func TestController_CheckTriggerCapabilityErrorSetsLastError(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})

	result, err := f.ctl.CheckTrigger(context.Background(), models.NewHeadphoneTrigger("CONNECTED")).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, evaluator.NotFired, result.Verdict)

	require.Eventually(t, func() bool {
		return sensors.IsCapabilityError(f.ctl.LastError())
	}, time.Second, 5*time.Millisecond)
}

func TestController_CheckWorkflow(t *testing.T) {
	f := newFixture(t, inmem.New(), batteryFixture(10))
	ctx := context.Background()

	id, err := wait(t, f.ctl.AddWorkflow(ctx, "Saver", models.NewBatteryTrigger(20), models.NewWiFiToggleAction(false)))
	require.NoError(t, err)

	result, err := wait(t, f.ctl.CheckWorkflow(ctx, id))
	require.NoError(t, err)
	assert.Equal(t, evaluator.Fired, result.Verdict)
	assert.Equal(t, id, result.Trigger.WorkflowID)

	fired, ok := f.publisher.last(events.WorkflowFiredEvent).(events.WorkflowFired)
	require.True(t, ok)
	assert.Equal(t, id, fired.WorkflowID)
	assert.Equal(t, models.ActionToggleWiFi, fired.Action.Kind)
	assert.Equal(t, result.EvaluationID, fired.EvaluationID)
}

func TestController_CheckWorkflowDisabledAndMissing(t *testing.T) {
	battery := &mocks.MockBatteryProvider{}
	f := newFixture(t, inmem.New(), sensors.Providers{Battery: battery})
	ctx := context.Background()

	id, err := wait(t, f.ctl.AddWorkflow(ctx, "Saver", models.NewBatteryTrigger(20), models.NewWiFiToggleAction(false)))
	require.NoError(t, err)

	_, err = wait(t, f.ctl.SetEnabled(ctx, id, false))
	require.NoError(t, err)

	result, err := wait(t, f.ctl.CheckWorkflow(ctx, id))
	require.NoError(t, err)
	assert.Equal(t, evaluator.NotFired, result.Verdict)
	assert.Equal(t, "workflow disabled", result.Reason)
	battery.AssertNotCalled(t, "Level")

	_, err = wait(t, f.ctl.CheckWorkflow(ctx, 99))
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)

	assert.Nil(t, f.publisher.last(events.WorkflowFiredEvent))
}

func TestController_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, inmem.New(), sensors.Providers{})
	f.publisher.err = errors.New("broker down")

	id, err := wait(t, f.ctl.AddWorkflow(context.Background(), "Quiet", models.NewBatteryTrigger(5), models.NewSoundModeAction("SILENT")))
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.NoError(t, f.ctl.LastError())
}

func TestController_Close(t *testing.T) {
	fixtureBLE := static.BLEFixture{}
	f := newFixture(t, inmem.New(), static.New(static.Fixture{BLE: &fixtureBLE}))

	states, _ := f.ctl.Subscribe()
	evaluation := f.ctl.CheckTrigger(context.Background(), models.NewBLETrigger("Speaker"))

	require.NoError(t, f.ctl.Close(context.Background()))
	require.NoError(t, f.ctl.Close(context.Background()))

	select {
	case <-evaluation.Done():
	default:
		t.Fatal("evaluation still running after Close")
	}

	for range states {
	}

	_, err := wait(t, f.ctl.AddWorkflow(context.Background(), "Late", models.NewBatteryTrigger(5), models.NewWiFiToggleAction(true)))
	assert.True(t, gateway.IsClosed(err))
}

func TestController_CheckTriggerAfterClose(t *testing.T) {
	fixtureBLE := static.BLEFixture{Devices: []sensors.Device{{Name: "Speaker"}}}
	f := newFixture(t, inmem.New(), static.New(static.Fixture{BLE: &fixtureBLE}))

	require.NoError(t, f.ctl.Close(context.Background()))

	evaluation := f.ctl.CheckTrigger(context.Background(), models.NewBLETrigger("Speaker"))

	select {
	case <-evaluation.Done():
	default:
		t.Fatal("evaluation after Close is still running")
	}

	result := evaluation.Result()
	assert.Equal(t, evaluator.NotFired, result.Verdict)
	assert.Equal(t, "evaluation stopped", result.Reason)
}

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/evaluator"
	"github.com/dukex/autoflow/pkg/gateway"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/testutil"
)

var discard = slog.New(slog.DiscardHandler)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Load(ctx context.Context) *gateway.Future[[]*models.Workflow] {
	args := m.Called(ctx)
	future, complete := gateway.NewFuture[[]*models.Workflow](gateway.DirectSink{})

	workflows, _ := args.Get(0).([]*models.Workflow)
	complete(workflows, args.Error(1))

	return future
}

func (m *mockChecker) CheckWorkflow(ctx context.Context, id uint64) *gateway.Future[evaluator.Result] {
	args := m.Called(ctx, id)
	future, complete := gateway.NewFuture[evaluator.Result](gateway.DirectSink{})

	complete(args.Get(0).(evaluator.Result), args.Error(1))

	return future
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{name: "default", schedule: ""},
		{name: "descriptor", schedule: "@every 30s"},
		{name: "five fields", schedule: "*/5 * * * *"},
		{name: "hourly", schedule: "@hourly"},
		{name: "invalid", schedule: "every minute", wantErr: true},
		{name: "six fields", schedule: "0 */5 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(discard, &mockChecker{}, tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)

			if tt.schedule == "" {
				assert.Equal(t, DefaultSchedule, s.schedule)
			}
		})
	}
}

func TestScheduler_RunOnceChecksEnabledWorkflows(t *testing.T) {
	checker := &mockChecker{}
	checkErr := errors.New("gateway closed")

	checker.On("Load", mock.Anything).Return([]*models.Workflow{
		testutil.CreateTestWorkflow(testutil.WithID(1)),
		testutil.CreateTestWorkflow(testutil.WithID(2), testutil.Disabled()),
		testutil.CreateTestWorkflow(testutil.WithID(3)),
		testutil.CreateTestWorkflow(testutil.WithID(4), testutil.WithUndecodableTrigger()),
	}, nil)
	checker.On("CheckWorkflow", mock.Anything, uint64(1)).Return(evaluator.Result{Verdict: evaluator.Fired}, nil)
	checker.On("CheckWorkflow", mock.Anything, uint64(3)).Return(evaluator.Result{}, checkErr)

	s, err := New(discard, checker, "")
	require.NoError(t, err)

	outcomes, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, uint64(1), outcomes[0].WorkflowID)
	assert.Equal(t, evaluator.Fired, outcomes[0].Result.Verdict)
	assert.NoError(t, outcomes[0].Err)

	assert.Equal(t, uint64(3), outcomes[1].WorkflowID)
	assert.ErrorIs(t, outcomes[1].Err, checkErr)

	checker.AssertNotCalled(t, "CheckWorkflow", mock.Anything, uint64(2))
	checker.AssertNotCalled(t, "CheckWorkflow", mock.Anything, uint64(4))
}

func TestScheduler_RunOnceLoadFailure(t *testing.T) {
	checker := &mockChecker{}
	loadErr := errors.New("store unavailable")
	checker.On("Load", mock.Anything).Return(nil, loadErr)

	s, err := New(discard, checker, "")
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, loadErr)
	checker.AssertNotCalled(t, "CheckWorkflow", mock.Anything, mock.Anything)
}

func TestScheduler_StartRunsOnSchedule(t *testing.T) {
	checker := &mockChecker{}
	checker.On("Load", mock.Anything).Return([]*models.Workflow{testutil.CreateTestWorkflow(testutil.WithID(7))}, nil)
	checker.On("CheckWorkflow", mock.Anything, uint64(7)).Return(evaluator.Result{Verdict: evaluator.NotFired}, nil)

	var runs atomic.Int32

	s, err := New(discard, checker, "@every 1s", WithRunHook(func(outcomes []Outcome) {
		if len(outcomes) == 1 && outcomes[0].WorkflowID == 7 {
			runs.Add(1)
		}
	}))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s, err := New(discard, &mockChecker{}, "")
	require.NoError(t, err)

	assert.NoError(t, s.Stop(context.Background()))
}

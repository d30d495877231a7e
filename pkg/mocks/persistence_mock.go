package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/autoflow/pkg/persistence"
)

// MockStore is a mock implementation of persistence.Store.
type MockStore struct {
	mock.Mock
}

var _ persistence.Store = (*MockStore)(nil)

func (m *MockStore) Insert(ctx context.Context, record persistence.Record) (uint64, error) {
	args := m.Called(ctx, record)

	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, record persistence.Record) (int64, error) {
	args := m.Called(ctx, record)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id uint64) (int64, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id uint64) (persistence.Record, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(persistence.Record), args.Error(1)
}

func (m *MockStore) GetAll(ctx context.Context) ([]persistence.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]persistence.Record), args.Error(1)
}

func (m *MockStore) GetEnabled(ctx context.Context) ([]persistence.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]persistence.Record), args.Error(1)
}

func (m *MockStore) SetEnabled(ctx context.Context, id uint64, enabled bool) (int64, error) {
	args := m.Called(ctx, id, enabled)

	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)

	return args.Int(0), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// Package storetest is the conformance suite every persistence.Store runs.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// NewStore returns an empty store. The suite closes it when the subtest ends.
type NewStore func(t *testing.T) persistence.Store

func sampleRecord(name string, enabled bool) persistence.Record {
	w := models.NewWorkflow(name,
		models.NewLocationTrigger(37.7749, -122.4194, 100),
		models.NewNotificationAction("Bye", "Leaving", models.PriorityNormal),
	)
	w.Enabled = enabled

	return persistence.ToRecord(w)
}

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore NewStore) {
	t.Helper()

	run := func(name string, fn func(t *testing.T, ctx context.Context, store persistence.Store)) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			t.Cleanup(func() {
				_ = store.Close(ctx)
			})

			fn(t, ctx, store)
		})
	}

	run("insert assigns monotonic ids from 1", func(t *testing.T, ctx context.Context, store persistence.Store) {
		first, err := store.Insert(ctx, sampleRecord("one", true))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), first)

		second, err := store.Insert(ctx, sampleRecord("two", true))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), second)

		n, err := store.Delete(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		third, err := store.Insert(ctx, sampleRecord("three", true))
		require.NoError(t, err)
		assert.Equal(t, uint64(3), third)
	})

	run("insert with explicit id", func(t *testing.T, ctx context.Context, store persistence.Store) {
		record := sampleRecord("explicit", true)
		record.ID = 10

		id, err := store.Insert(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), id)

		_, err = store.Insert(ctx, record)
		require.Error(t, err)
		assert.ErrorIs(t, err, persistence.ErrRecordExists)

		next, err := store.Insert(ctx, sampleRecord("after", true))
		require.NoError(t, err)
		assert.Greater(t, next, uint64(10))
	})

	run("get by id round trips the record", func(t *testing.T, ctx context.Context, store persistence.Store) {
		record := sampleRecord("Leave home", true)

		id, err := store.Insert(ctx, record)
		require.NoError(t, err)

		got, err := store.GetByID(ctx, id)
		require.NoError(t, err)

		record.ID = id
		assert.Equal(t, record, got)

		_, err = store.GetByID(ctx, id+100)
		require.Error(t, err)
		assert.True(t, persistence.IsNotFound(err))
	})

	run("update and set enabled report rows affected", func(t *testing.T, ctx context.Context, store persistence.Store) {
		id, err := store.Insert(ctx, sampleRecord("before", true))
		require.NoError(t, err)

		updated := sampleRecord("after", false)
		updated.ID = id

		n, err := store.Update(ctx, updated)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "after", got.Name)
		assert.False(t, got.Enabled)

		n, err = store.SetEnabled(ctx, id, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err = store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Enabled)

		missing := sampleRecord("ghost", true)
		missing.ID = id + 100

		n, err = store.Update(ctx, missing)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = store.SetEnabled(ctx, id+100, false)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = store.Delete(ctx, id+100)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	run("lists are ordered and filtered", func(t *testing.T, ctx context.Context, store persistence.Store) {
		for i, enabled := range []bool{true, false, true, false} {
			_, err := store.Insert(ctx, sampleRecord("wf"+string(rune('a'+i)), enabled))
			require.NoError(t, err)
		}

		all, err := store.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)

		for i, record := range all {
			assert.Equal(t, uint64(i+1), record.ID)
		}

		enabled, err := store.GetEnabled(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 2)
		assert.Equal(t, uint64(1), enabled[0].ID)
		assert.Equal(t, uint64(3), enabled[1].ID)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)
	})

	run("delete all empties the store", func(t *testing.T, ctx context.Context, store persistence.Store) {
		for range 3 {
			_, err := store.Insert(ctx, sampleRecord("wf", true))
			require.NoError(t, err)
		}

		n, err := store.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		all, err := store.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		n, err = store.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	run("reads are independent copies", func(t *testing.T, ctx context.Context, store persistence.Store) {
		id, err := store.Insert(ctx, sampleRecord("original", true))
		require.NoError(t, err)

		all, err := store.GetAll(ctx)
		require.NoError(t, err)
		all[0].Name = "mutated"

		got, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "original", got.Name)
	})

	run("damaged blobs survive storage", func(t *testing.T, ctx context.Context, store persistence.Store) {
		id, err := store.Insert(ctx, persistence.Record{Name: "damaged", Enabled: true, TriggerBlob: "not json"})
		require.NoError(t, err)

		got, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "not json", got.TriggerBlob)
		assert.Empty(t, got.ActionBlob)

		n, err := store.Delete(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	run("concurrent inserts get distinct ids", func(t *testing.T, ctx context.Context, store persistence.Store) {
		const writers = 8

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids = make(map[uint64]bool)
		)

		for range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				id, err := store.Insert(ctx, sampleRecord("concurrent", true))
				assert.NoError(t, err)

				mu.Lock()
				ids[id] = true
				mu.Unlock()
			}()
		}

		wg.Wait()
		assert.Len(t, ids, writers)
	})

	run("health check", func(t *testing.T, ctx context.Context, store persistence.Store) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}

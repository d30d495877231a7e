package sqlite_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/sqlbase"
	"github.com/dukex/autoflow/pkg/persistence/sqlite"
	"github.com/dukex/autoflow/pkg/persistence/storetest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSQLiteStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store {
		store, err := sqlite.NewPersistence(context.Background(), testLogger(),
			"sqlite://"+filepath.Join(t.TempDir(), "autoflow.db"))
		require.NoError(t, err)

		return store
	})
}

func TestNewPersistence_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "autoflow.db")

	first, err := sqlite.NewPersistence(ctx, testLogger(), path)
	require.NoError(t, err)

	_, err = first.Insert(ctx, persistence.Record{Name: "kept", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second, err := sqlite.NewPersistence(ctx, testLogger(), path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = second.Close(ctx) })

	version, err := sqlbase.NewMigrationManager(testLogger(), second.DB(), sqlbase.SQLite, nil).CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

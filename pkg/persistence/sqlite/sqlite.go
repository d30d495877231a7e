// Package sqlite provides the SQLite record store on the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence/sqlbase"

	// SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Persistence implements persistence.Store for SQLite.
type Persistence struct {
	*sqlbase.RecordStore
}

// NewPersistence opens the database file named by dsn (a sqlite:// URL or a
// plain path; ":memory:" is accepted), runs migrations and returns the store.
func NewPersistence(ctx context.Context, logger *slog.Logger, dsn string) (*Persistence, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite serializes writers; one connection keeps ":memory:" databases
	// shared and avoids SQLITE_BUSY.
	database.SetMaxOpenConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, sqlbase.SQLite, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{RecordStore: sqlbase.NewRecordStore(database, logger, sqlbase.SQLite)}, nil
}

package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
)

// RecordStore implements persistence.Store over the workflows table. The
// sqlite and postgresql packages open the database, run their migrations and
// embed it.
type RecordStore struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect Dialect

	// AfterExplicitInsert, when set, runs after an insert that supplied its
	// own id so the engine's id sequence stays ahead of it.
	AfterExplicitInsert string
}

var _ persistence.Store = (*RecordStore)(nil)

// NewRecordStore wraps an open, migrated database.
func NewRecordStore(db *sql.DB, logger *slog.Logger, dialect Dialect) *RecordStore {
	return &RecordStore{db: db, logger: logger, dialect: dialect}
}

// DB exposes the underlying handle for tests and migrations.
func (s *RecordStore) DB() *sql.DB {
	return s.db
}

// bind replaces each "?" in query with the dialect's placeholder.
func (s *RecordStore) bind(query string) string {
	var (
		builder strings.Builder
		n       int
	)

	for _, r := range query {
		if r == '?' {
			n++
			builder.WriteString(s.dialect.Placeholder(n))

			continue
		}

		builder.WriteRune(r)
	}

	return builder.String()
}

const selectRecord = `
	SELECT
		id
	  , name
	  , enabled
	  , trigger_blob
	  , action_blob
	FROM workflows
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (persistence.Record, error) {
	var (
		record persistence.Record
		id     int64
	)

	err := row.Scan(&id, &record.Name, &record.Enabled, &record.TriggerBlob, &record.ActionBlob)
	if err != nil {
		return persistence.Record{}, err
	}

	record.ID = uint64(id)

	return record, nil
}

// Insert stores the record, assigning the next id when record.ID is zero.
func (s *RecordStore) Insert(ctx context.Context, record persistence.Record) (uint64, error) {
	var (
		id  int64
		err error
	)

	if record.ID == 0 {
		query := s.bind(`
			INSERT INTO workflows (name, enabled, trigger_blob, action_blob)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`)
		err = s.db.QueryRowContext(ctx, query,
			record.Name, record.Enabled, record.TriggerBlob, record.ActionBlob,
		).Scan(&id)
	} else {
		exists, existsErr := s.exists(ctx, record.ID)
		if existsErr != nil {
			return 0, persistence.NewRecordError("Insert", record.ID, existsErr)
		}

		if exists {
			return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrRecordExists)
		}

		query := s.bind(`
			INSERT INTO workflows (id, name, enabled, trigger_blob, action_blob)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id
		`)
		err = s.db.QueryRowContext(ctx, query,
			int64(record.ID), record.Name, record.Enabled, record.TriggerBlob, record.ActionBlob,
		).Scan(&id)

		if err == nil && s.AfterExplicitInsert != "" {
			_, err = s.db.ExecContext(ctx, s.AfterExplicitInsert)
		}
	}

	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, fmt.Errorf("failed to insert workflow: %w", err))
	}

	return uint64(id), nil
}

func (s *RecordStore) exists(ctx context.Context, id uint64) (bool, error) {
	var n int

	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM workflows WHERE id = ?`), int64(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check workflow: %w", err)
	}

	return n > 0, nil
}

// Update replaces name, enabled flag and blobs of an existing record.
func (s *RecordStore) Update(ctx context.Context, record persistence.Record) (int64, error) {
	query := s.bind(`
		UPDATE workflows
		SET name = ?, enabled = ?, trigger_blob = ?, action_blob = ?
		WHERE id = ?
	`)

	return s.exec(ctx, "Update", record.ID, query,
		record.Name, record.Enabled, record.TriggerBlob, record.ActionBlob, int64(record.ID))
}

func (s *RecordStore) Delete(ctx context.Context, id uint64) (int64, error) {
	return s.exec(ctx, "Delete", id, s.bind(`DELETE FROM workflows WHERE id = ?`), int64(id))
}

func (s *RecordStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.exec(ctx, "DeleteAll", 0, `DELETE FROM workflows`)
}

func (s *RecordStore) SetEnabled(ctx context.Context, id uint64, enabled bool) (int64, error) {
	return s.exec(ctx, "SetEnabled", id, s.bind(`UPDATE workflows SET enabled = ? WHERE id = ?`), enabled, int64(id))
}

func (s *RecordStore) exec(ctx context.Context, op string, id uint64, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, persistence.NewRecordError(op, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewRecordError(op, id, fmt.Errorf("failed to read rows affected: %w", err))
	}

	return rows, nil
}

func (s *RecordStore) GetByID(ctx context.Context, id uint64) (persistence.Record, error) {
	row := s.db.QueryRowContext(ctx, s.bind(selectRecord+` WHERE id = ?`), int64(id))

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Record{}, persistence.NewRecordError("GetByID", id, persistence.ErrRecordNotFound)
		}

		return persistence.Record{}, persistence.NewRecordError("GetByID", id, fmt.Errorf("failed to scan workflow: %w", err))
	}

	return record, nil
}

func (s *RecordStore) GetAll(ctx context.Context) ([]persistence.Record, error) {
	return s.list(ctx, "GetAll", selectRecord+` ORDER BY id`)
}

func (s *RecordStore) GetEnabled(ctx context.Context) ([]persistence.Record, error) {
	return s.list(ctx, "GetEnabled", s.bind(selectRecord+` WHERE enabled = ? ORDER BY id`), true)
}

func (s *RecordStore) list(ctx context.Context, op, query string, args ...any) ([]persistence.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewRecordError(op, 0, fmt.Errorf("failed to query workflows: %w", err))
	}

	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]persistence.Record, 0)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, persistence.NewRecordError(op, 0, fmt.Errorf("failed to scan workflow: %w", err))
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRecordError(op, 0, fmt.Errorf("error iterating workflows: %w", err))
	}

	return records, nil
}

func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows`).Scan(&n); err != nil {
		return 0, persistence.NewRecordError("Count", 0, err)
	}

	return n, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *RecordStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *RecordStore) Close(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// Package file provides a file-based record store: one JSON document per
// workflow under <root>/workflows and the id sequence in <root>/meta.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Persistence implements persistence.Store using the file system.
type Persistence struct {
	root string
	mu   sync.Mutex
}

var _ persistence.Store = (*Persistence)(nil)

type meta struct {
	LastID uint64 `json:"last_id"`
}

// NewPersistence creates the store rooted at root, which may carry a file://
// prefix. The directory is created on demand.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := filepath.Clean(strings.TrimPrefix(root, "file://"))

	err := os.MkdirAll(filepath.Join(cleanRoot, "workflows"), 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflows directory: %w", err)
	}

	return &Persistence{root: cleanRoot}, nil
}

func (p *Persistence) recordPath(id uint64) string {
	return filepath.Join(p.root, "workflows", strconv.FormatUint(id, 10)+".json")
}

func (p *Persistence) metaPath() string {
	return filepath.Join(p.root, "meta.json")
}

// writeFile replaces path atomically.
func writeFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"

	err = os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}

func (p *Persistence) readMeta() (meta, error) {
	var m meta

	body, err := os.ReadFile(p.metaPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}

		return m, fmt.Errorf("failed to read meta: %w", err)
	}

	err = json.Unmarshal(body, &m)
	if err != nil {
		return m, fmt.Errorf("failed to unmarshal meta: %w", err)
	}

	return m, nil
}

func (p *Persistence) read(id uint64) (persistence.Record, bool, error) {
	body, err := os.ReadFile(p.recordPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return persistence.Record{}, false, nil
		}

		return persistence.Record{}, false, fmt.Errorf("failed to fetch workflow %d: %w", id, err)
	}

	var record persistence.Record

	err = json.Unmarshal(body, &record)
	if err != nil {
		return persistence.Record{}, false, fmt.Errorf("failed to unmarshal workflow %d: %w", id, err)
	}

	record.ID = id

	return record, true, nil
}

func (p *Persistence) ids() ([]uint64, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(p.root, "workflows")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	ids := make([]uint64, 0, len(files))

	for _, file := range files {
		id, err := strconv.ParseUint(strings.TrimSuffix(file, ".json"), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func (p *Persistence) Insert(_ context.Context, record persistence.Record) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, err := p.readMeta()
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, err)
	}

	if record.ID == 0 {
		m.LastID++
		record.ID = m.LastID
	} else {
		_, exists, err := p.read(record.ID)
		if err != nil {
			return 0, persistence.NewRecordError("Insert", record.ID, err)
		}

		if exists {
			return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrRecordExists)
		}

		m.LastID = max(m.LastID, record.ID)
	}

	err = writeFile(p.metaPath(), m)
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, err)
	}

	err = writeFile(p.recordPath(record.ID), record)
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, err)
	}

	return record.ID, nil
}

// mutate loads a record, applies fn and writes it back. It reports 0 rows
// when the record does not exist.
func (p *Persistence) mutate(op string, id uint64, fn func(*persistence.Record)) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, exists, err := p.read(id)
	if err != nil {
		return 0, persistence.NewRecordError(op, id, err)
	}

	if !exists {
		return 0, nil
	}

	fn(&record)

	err = writeFile(p.recordPath(id), record)
	if err != nil {
		return 0, persistence.NewRecordError(op, id, err)
	}

	return 1, nil
}

func (p *Persistence) Update(_ context.Context, record persistence.Record) (int64, error) {
	return p.mutate("Update", record.ID, func(r *persistence.Record) { *r = record })
}

func (p *Persistence) SetEnabled(_ context.Context, id uint64, enabled bool) (int64, error) {
	return p.mutate("SetEnabled", id, func(r *persistence.Record) { r.Enabled = enabled })
}

func (p *Persistence) Delete(_ context.Context, id uint64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.recordPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}

		return 0, persistence.NewRecordError("Delete", id, fmt.Errorf("failed to delete workflow: %w", err))
	}

	return 1, nil
}

func (p *Persistence) DeleteAll(_ context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.ids()
	if err != nil {
		return 0, persistence.NewRecordError("DeleteAll", 0, err)
	}

	var deleted int64

	for _, id := range ids {
		err := os.Remove(p.recordPath(id))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, persistence.NewRecordError("DeleteAll", id, fmt.Errorf("failed to delete workflow: %w", err))
		}

		deleted++
	}

	return deleted, nil
}

func (p *Persistence) GetByID(_ context.Context, id uint64) (persistence.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, exists, err := p.read(id)
	if err != nil {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, err)
	}

	if !exists {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, persistence.ErrRecordNotFound)
	}

	return record, nil
}

func (p *Persistence) GetAll(_ context.Context) ([]persistence.Record, error) {
	records, err := p.all()
	if err != nil {
		return nil, persistence.NewRecordError("GetAll", 0, err)
	}

	return records, nil
}

func (p *Persistence) GetEnabled(_ context.Context) ([]persistence.Record, error) {
	records, err := p.all()
	if err != nil {
		return nil, persistence.NewRecordError("GetEnabled", 0, err)
	}

	return persistence.FilterEnabled(records), nil
}

func (p *Persistence) all() ([]persistence.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.ids()
	if err != nil {
		return nil, err
	}

	records := make([]persistence.Record, 0, len(ids))

	for _, id := range ids {
		record, exists, err := p.read(id)
		if err != nil {
			return nil, err
		}

		if exists {
			records = append(records, record)
		}
	}

	persistence.SortRecords(records)

	return records, nil
}

func (p *Persistence) Count(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := p.ids()
	if err != nil {
		return 0, persistence.NewRecordError("Count", 0, err)
	}

	return len(ids), nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	_, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("store root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// Package diskv implements a record store using the diskv key-value store.
package diskv

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv/v3"

	"github.com/dukex/autoflow/pkg/persistence"
)

const (
	recordPrefix = "wf."
	seqKey       = "seq"
)

// Persistence is a diskv-backed record store. Records are JSON documents
// keyed "wf.<id>"; the last assigned id lives under "seq".
type Persistence struct {
	mu sync.Mutex
	dv *diskv.Diskv
}

var _ persistence.Store = (*Persistence)(nil)

// New opens the store under path, which may carry a diskv:// prefix.
func New(path string) *Persistence {
	flatTransform := func(s string) []string { return []string{} }

	return &Persistence{dv: diskv.New(diskv.Options{
		BasePath:     filepath.Join(strings.TrimPrefix(path, "diskv://"), "workflows"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})}
}

func recordKey(id uint64) string {
	return recordPrefix + strconv.FormatUint(id, 10)
}

func (p *Persistence) lastID() (uint64, error) {
	if !p.dv.Has(seqKey) {
		return 0, nil
	}

	raw, err := p.dv.Read(seqKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}

	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sequence: %w", err)
	}

	return id, nil
}

func (p *Persistence) write(record persistence.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	return p.dv.Write(recordKey(record.ID), raw)
}

func (p *Persistence) read(id uint64) (persistence.Record, bool, error) {
	key := recordKey(id)
	if !p.dv.Has(key) {
		return persistence.Record{}, false, nil
	}

	raw, err := p.dv.Read(key)
	if err != nil {
		return persistence.Record{}, false, fmt.Errorf("failed to read workflow: %w", err)
	}

	var record persistence.Record

	err = json.Unmarshal(raw, &record)
	if err != nil {
		return persistence.Record{}, false, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return record, true, nil
}

func (p *Persistence) ids(ctx context.Context) []uint64 {
	cancel := make(chan struct{})
	defer close(cancel)

	var ids []uint64

	for key := range p.dv.KeysPrefix(recordPrefix, cancel) {
		if ctx.Err() != nil {
			break
		}

		id, err := strconv.ParseUint(strings.TrimPrefix(key, recordPrefix), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

func (p *Persistence) Insert(_ context.Context, record persistence.Record) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, err := p.lastID()
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, err)
	}

	if record.ID == 0 {
		record.ID = last + 1
	} else if p.dv.Has(recordKey(record.ID)) {
		return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrRecordExists)
	}

	err = p.dv.Write(seqKey, []byte(strconv.FormatUint(max(last, record.ID), 10)))
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, fmt.Errorf("failed to write sequence: %w", err))
	}

	err = p.write(record)
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, err)
	}

	return record.ID, nil
}

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

	err = p.write(record)
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

	key := recordKey(id)
	if !p.dv.Has(key) {
		return 0, nil
	}

	err := p.dv.Erase(key)
	if err != nil {
		return 0, persistence.NewRecordError("Delete", id, err)
	}

	return 1, nil
}

func (p *Persistence) DeleteAll(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deleted int64

	for _, id := range p.ids(ctx) {
		err := p.dv.Erase(recordKey(id))
		if err != nil {
			return deleted, persistence.NewRecordError("DeleteAll", id, err)
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

func (p *Persistence) GetAll(ctx context.Context) ([]persistence.Record, error) {
	records, err := p.all(ctx)
	if err != nil {
		return nil, persistence.NewRecordError("GetAll", 0, err)
	}

	return records, nil
}

func (p *Persistence) GetEnabled(ctx context.Context) ([]persistence.Record, error) {
	records, err := p.all(ctx)
	if err != nil {
		return nil, persistence.NewRecordError("GetEnabled", 0, err)
	}

	return persistence.FilterEnabled(records), nil
}

func (p *Persistence) all(ctx context.Context) ([]persistence.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := p.ids(ctx)
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

func (p *Persistence) Count(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.ids(ctx)), nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

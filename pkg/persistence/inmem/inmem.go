// Package inmem implements an in-memory record store for tests and headless
// development runs.
package inmem

import (
	"context"
	"sync"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Persistence is a mutex guarded map of records.
type Persistence struct {
	mu      sync.RWMutex
	records map[uint64]persistence.Record
	lastID  uint64
	closed  bool
}

var _ persistence.Store = (*Persistence)(nil)

func New() *Persistence {
	return &Persistence{records: make(map[uint64]persistence.Record)}
}

func (p *Persistence) Insert(_ context.Context, record persistence.Record) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrStoreClosed)
	}

	if record.ID == 0 {
		p.lastID++
		record.ID = p.lastID
	} else {
		if _, ok := p.records[record.ID]; ok {
			return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrRecordExists)
		}

		p.lastID = max(p.lastID, record.ID)
	}

	p.records[record.ID] = record

	return record.ID, nil
}

func (p *Persistence) Update(_ context.Context, record persistence.Record) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, persistence.NewRecordError("Update", record.ID, persistence.ErrStoreClosed)
	}

	if _, ok := p.records[record.ID]; !ok {
		return 0, nil
	}

	p.records[record.ID] = record

	return 1, nil
}

func (p *Persistence) Delete(_ context.Context, id uint64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, persistence.NewRecordError("Delete", id, persistence.ErrStoreClosed)
	}

	if _, ok := p.records[id]; !ok {
		return 0, nil
	}

	delete(p.records, id)

	return 1, nil
}

func (p *Persistence) DeleteAll(_ context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, persistence.NewRecordError("DeleteAll", 0, persistence.ErrStoreClosed)
	}

	n := int64(len(p.records))
	clear(p.records)

	return n, nil
}

func (p *Persistence) GetByID(_ context.Context, id uint64) (persistence.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, persistence.ErrStoreClosed)
	}

	record, ok := p.records[id]
	if !ok {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, persistence.ErrRecordNotFound)
	}

	return record, nil
}

func (p *Persistence) GetAll(_ context.Context) ([]persistence.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.NewRecordError("GetAll", 0, persistence.ErrStoreClosed)
	}

	return p.snapshot(), nil
}

func (p *Persistence) GetEnabled(_ context.Context) ([]persistence.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.NewRecordError("GetEnabled", 0, persistence.ErrStoreClosed)
	}

	return persistence.FilterEnabled(p.snapshot()), nil
}

// snapshot copies the records out in id order. Record holds only values, so
// the copy shares nothing with the map.
func (p *Persistence) snapshot() []persistence.Record {
	records := make([]persistence.Record, 0, len(p.records))
	for _, record := range p.records {
		records = append(records, record)
	}

	persistence.SortRecords(records)

	return records
}

func (p *Persistence) SetEnabled(_ context.Context, id uint64, enabled bool) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, persistence.NewRecordError("SetEnabled", id, persistence.ErrStoreClosed)
	}

	record, ok := p.records[id]
	if !ok {
		return 0, nil
	}

	record.Enabled = enabled
	p.records[id] = record

	return 1, nil
}

func (p *Persistence) Count(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, persistence.NewRecordError("Count", 0, persistence.ErrStoreClosed)
	}

	return len(p.records), nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrStoreClosed
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

// Package redis provides a Redis record store. It uses the key layout:
//
//	<prefix>wf:<id>    => hash {name, enabled, trigger_blob, action_blob}
//	<prefix>idx:all    => sorted set of ids, scored by id
//	<prefix>seq        => last assigned id
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/autoflow/pkg/persistence"
)

const DefaultPrefix = "autoflow:"

// Persistence implements persistence.Store on a go-redis client.
type Persistence struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

var _ persistence.Store = (*Persistence)(nil)

// insertScript stores a record under an id that must be free and keeps the
// sequence at or above it.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'name', ARGV[2], 'enabled', ARGV[3], 'trigger_blob', ARGV[4], 'action_blob', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[1])
local seq = tonumber(redis.call('GET', KEYS[3]) or '0')
if seq < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[3], ARGV[1])
end
return 1
`)

// updateScript sets hash fields only when the record exists.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// NewPersistence connects using a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return New(client, logger, DefaultPrefix), nil
}

// New wraps an existing client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, logger *slog.Logger, prefix string) *Persistence {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Persistence{client: client, logger: logger, prefix: prefix}
}

func (p *Persistence) keyRecord(id uint64) string {
	return p.prefix + "wf:" + strconv.FormatUint(id, 10)
}

func (p *Persistence) keyAll() string {
	return p.prefix + "idx:all"
}

func (p *Persistence) keySeq() string {
	return p.prefix + "seq"
}

func boolField(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

func (p *Persistence) Insert(ctx context.Context, record persistence.Record) (uint64, error) {
	if record.ID == 0 {
		id, err := p.client.Incr(ctx, p.keySeq()).Uint64()
		if err != nil {
			return 0, persistence.NewRecordError("Insert", 0, fmt.Errorf("failed to allocate id: %w", err))
		}

		record.ID = id
	}

	inserted, err := insertScript.Run(ctx, p.client,
		[]string{p.keyRecord(record.ID), p.keyAll(), p.keySeq()},
		strconv.FormatUint(record.ID, 10), record.Name, boolField(record.Enabled), record.TriggerBlob, record.ActionBlob,
	).Int()
	if err != nil {
		return 0, persistence.NewRecordError("Insert", record.ID, fmt.Errorf("failed to insert workflow: %w", err))
	}

	if inserted == 0 {
		return 0, persistence.NewRecordError("Insert", record.ID, persistence.ErrRecordExists)
	}

	return record.ID, nil
}

func (p *Persistence) update(ctx context.Context, op string, id uint64, fields ...any) (int64, error) {
	n, err := updateScript.Run(ctx, p.client, []string{p.keyRecord(id)}, fields...).Int64()
	if err != nil {
		return 0, persistence.NewRecordError(op, id, err)
	}

	return n, nil
}

func (p *Persistence) Update(ctx context.Context, record persistence.Record) (int64, error) {
	return p.update(ctx, "Update", record.ID,
		"name", record.Name,
		"enabled", boolField(record.Enabled),
		"trigger_blob", record.TriggerBlob,
		"action_blob", record.ActionBlob,
	)
}

func (p *Persistence) SetEnabled(ctx context.Context, id uint64, enabled bool) (int64, error) {
	return p.update(ctx, "SetEnabled", id, "enabled", boolField(enabled))
}

func (p *Persistence) Delete(ctx context.Context, id uint64) (int64, error) {
	var del *redis.IntCmd

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, p.keyRecord(id))
		pipe.ZRem(ctx, p.keyAll(), strconv.FormatUint(id, 10))

		return nil
	})
	if err != nil {
		return 0, persistence.NewRecordError("Delete", id, err)
	}

	return del.Val(), nil
}

func (p *Persistence) DeleteAll(ctx context.Context) (int64, error) {
	ids, err := p.ids(ctx)
	if err != nil {
		return 0, persistence.NewRecordError("DeleteAll", 0, err)
	}

	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, p.keyRecord(id))
	}

	var del *redis.IntCmd

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.Del(ctx, p.keyAll())

		return nil
	})
	if err != nil {
		return 0, persistence.NewRecordError("DeleteAll", 0, err)
	}

	return del.Val(), nil
}

func (p *Persistence) ids(ctx context.Context) ([]uint64, error) {
	members, err := p.client.ZRange(ctx, p.keyAll(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow ids: %w", err)
	}

	ids := make([]uint64, 0, len(members))

	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			p.logger.Warn("skipping malformed workflow id in index", "member", member)

			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func recordFromHash(id uint64, fields map[string]string) persistence.Record {
	return persistence.Record{
		ID:          id,
		Name:        fields["name"],
		Enabled:     fields["enabled"] == "1",
		TriggerBlob: fields["trigger_blob"],
		ActionBlob:  fields["action_blob"],
	}
}

func (p *Persistence) GetByID(ctx context.Context, id uint64) (persistence.Record, error) {
	fields, err := p.client.HGetAll(ctx, p.keyRecord(id)).Result()
	if err != nil {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, err)
	}

	if len(fields) == 0 {
		return persistence.Record{}, persistence.NewRecordError("GetByID", id, persistence.ErrRecordNotFound)
	}

	return recordFromHash(id, fields), nil
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
	ids, err := p.ids(ctx)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))

	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, p.keyRecord(id))
		}

		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	records := make([]persistence.Record, 0, len(ids))

	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}

		records = append(records, recordFromHash(id, fields))
	}

	persistence.SortRecords(records)

	return records, nil
}

func (p *Persistence) Count(ctx context.Context) (int, error) {
	n, err := p.client.ZCard(ctx, p.keyAll()).Result()
	if err != nil {
		return 0, persistence.NewRecordError("Count", 0, err)
	}

	return int(n), nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

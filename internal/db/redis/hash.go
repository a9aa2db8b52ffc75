package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/campusfound/matchd/internal/db"
)

// HSet sets hash fields.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := s.do(ctx, cmd.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

// HGetAll returns all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := s.b().Hgetall().Key(key).Build()
	m, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return m, nil
}

// HGetAllMulti fetches all fields for multiple hashes in a single DoMulti round-trip.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.b().Hgetall().Key(key).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))

	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("HGetAllMulti key %s: %w", keys[i], err)
		}
		out[i] = m
	}

	return out, nil
}

// HReplace atomically replaces the hash at key inside MULTI/EXEC.
// DEL followed by HSET of the new fields; with no fields the key is just
// deleted. Readers never observe the intermediate empty state.
func (s *Store) HReplace(ctx context.Context, key string, fields map[string]string) error {
	cmds := make([]rueidis.Completed, 0, 4)
	cmds = append(cmds, s.b().Multi().Build())
	cmds = append(cmds, s.b().Del().Key(key).Build())

	if len(fields) > 0 {
		hset := s.b().Hset().Key(key).FieldValue()
		for k, v := range fields {
			hset = hset.FieldValue(k, v)
		}
		cmds = append(cmds, hset.Build())
	}

	cmds = append(cmds, s.b().Exec().Build())

	results := s.client.DoMulti(ctx, cmds...)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpMulti, Err: fmt.Errorf("key %s: %w", key, err)}
		}
	}
	return nil
}

// hcasScript swaps a hash field only when its current value still matches
// the expected one. Missing field counts as a mismatch.
var hcasScript = rueidis.NewLuaScript(`
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
  return 1
end
return 0`)

// HCompareAndSet atomically sets field to val if its current value equals
// old. Returns false when the field is absent or was changed in between.
func (s *Store) HCompareAndSet(ctx context.Context, key, field, old, val string) (bool, error) {
	n, err := hcasScript.Exec(ctx, s.client, []string{key}, []string{field, old, val}).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpEvalSha, Err: fmt.Errorf("key %s: %w", key, err)}
	}
	return n == 1, nil
}

// Del deletes a key.
func (s *Store) Del(ctx context.Context, key string) error {
	cmd := s.b().Del().Key(key).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cmd := s.b().Exists().Key(key).Build()
	count, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
	return count > 0, nil
}

// Scan iterates keys matching a pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Package redisstore keeps the examgen cache and history log in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"examgen"

	"github.com/redis/go-redis/v9"
)

// Store implements examgen.CacheStore and examgen.HistoryLog. The cache is a
// hash of cache key to JSON records; history is a list of JSON records.
type Store struct {
	client     redis.UniversalClient
	cacheKey   string
	historyKey string
}

// New creates a store whose keys are namespaced under prefix
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "examgen"
	}
	return &Store{
		client:     client,
		cacheKey:   prefix + ":cache",
		historyKey: prefix + ":history",
	}
}

// Dial connects to addr and checks the connection
func Dial(ctx context.Context, addr string, db int, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// Load implements examgen.CacheStore. Entries that fail to decode are
// dropped with a warning.
func (s *Store) Load(ctx context.Context) (examgen.CacheSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.cacheKey).Result()
	if err != nil {
		return examgen.CacheSnapshot{}, fmt.Errorf("failed to load cache: %w", err)
	}

	entries := make(map[examgen.CacheKey][]examgen.QuestionRecord, len(fields))
	for k, v := range fields {
		var recs []examgen.QuestionRecord
		if err := json.Unmarshal([]byte(v), &recs); err != nil {
			examgen.Log().Warnw("dropping undecodable cache entry", "key", k, "error", err)
			continue
		}
		entries[examgen.CacheKey(k)] = recs
	}
	return examgen.NewCacheSnapshot(entries), nil
}

// Save implements examgen.CacheStore by replacing the hash in one
// transaction
func (s *Store) Save(ctx context.Context, snap examgen.CacheSnapshot) error {
	values := make([]any, 0, 2*snap.Len())
	for k, recs := range snap.Entries() {
		data, err := json.Marshal(recs)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry %s: %w", k, err)
		}
		values = append(values, string(k), string(data))
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.cacheKey)
		if len(values) > 0 {
			pipe.HSet(ctx, s.cacheKey, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	return nil
}

// Append implements examgen.HistoryLog
func (s *Store) Append(ctx context.Context, records []examgen.QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]any, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal history record %s: %w", rec.ID, err)
		}
		values = append(values, string(data))
	}
	if err := s.client.RPush(ctx, s.historyKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Tail implements examgen.HistoryLog. Malformed entries are skipped.
func (s *Store) Tail(ctx context.Context, n int) ([]examgen.QuestionRecord, error) {
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	lines, err := s.client.LRange(ctx, s.historyKey, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	records := make([]examgen.QuestionRecord, 0, len(lines))
	for _, line := range lines {
		var rec examgen.QuestionRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

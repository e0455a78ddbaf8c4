package examgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// CacheStore persists the generation cache as a whole. Load returns the full
// snapshot; Save replaces the stored state with snap.
type CacheStore interface {
	Load(ctx context.Context) (CacheSnapshot, error)
	Save(ctx context.Context, snap CacheSnapshot) error
}

// CacheSnapshot is an immutable view of the cache. Mutations return a new
// snapshot.
type CacheSnapshot struct {
	entries map[CacheKey][]QuestionRecord
}

// NewCacheSnapshot copies entries into a snapshot
func NewCacheSnapshot(entries map[CacheKey][]QuestionRecord) CacheSnapshot {
	copied := make(map[CacheKey][]QuestionRecord, len(entries))
	for k, recs := range entries {
		copied[k] = cloneRecords(recs)
	}
	return CacheSnapshot{entries: copied}
}

// Lookup returns a copy of the records cached under key
func (s CacheSnapshot) Lookup(key CacheKey) ([]QuestionRecord, bool) {
	recs, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return cloneRecords(recs), true
}

// With returns a snapshot that also maps key to records
func (s CacheSnapshot) With(key CacheKey, records []QuestionRecord) CacheSnapshot {
	next := make(map[CacheKey][]QuestionRecord, len(s.entries)+1)
	for k, v := range s.entries {
		next[k] = v
	}
	next[key] = cloneRecords(records)
	return CacheSnapshot{entries: next}
}

// Len returns the number of cached generations
func (s CacheSnapshot) Len() int {
	return len(s.entries)
}

// Keys returns the cached keys in sorted order
func (s CacheSnapshot) Keys() []CacheKey {
	keys := make([]CacheKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Entries returns a copy of the underlying mapping
func (s CacheSnapshot) Entries() map[CacheKey][]QuestionRecord {
	return NewCacheSnapshot(s.entries).entries
}

func cloneRecords(recs []QuestionRecord) []QuestionRecord {
	out := make([]QuestionRecord, len(recs))
	for i, r := range recs {
		r.Options = append([]string{}, r.Options...)
		out[i] = r
	}
	return out
}

// FileCacheStore keeps the cache as one JSON object mapping key to records
type FileCacheStore struct {
	path string
}

// NewFileCacheStore creates a store backed by path
func NewFileCacheStore(path string) *FileCacheStore {
	return &FileCacheStore{path: path}
}

// Load implements CacheStore. A missing file is an empty cache; so is an
// unreadable one, which is logged and will be replaced on the next Save.
func (s *FileCacheStore) Load(ctx context.Context) (CacheSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewCacheSnapshot(nil), nil
		}
		return CacheSnapshot{}, fmt.Errorf("failed to read cache file: %w", err)
	}

	var entries map[CacheKey][]QuestionRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		Log().Warnw("cache file is not valid JSON, starting empty", "path", s.path, "error", err)
		return NewCacheSnapshot(nil), nil
	}
	return CacheSnapshot{entries: entries}, nil
}

// Save implements CacheStore. The file is replaced atomically.
func (s *FileCacheStore) Save(ctx context.Context, snap CacheSnapshot) error {
	entries := snap.entries
	if entries == nil {
		entries = map[CacheKey][]QuestionRecord{}
	}
	data, err := marshalIndent(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// CacheSession is a scoped handle on a CacheStore. It loads once on open,
// buffers inserts, and writes back on Flush and Close.
type CacheSession struct {
	mu    sync.Mutex
	store CacheStore
	snap  CacheSnapshot
	dirty bool
}

// OpenCacheSession loads the store's current snapshot
func OpenCacheSession(ctx context.Context, store CacheStore) (*CacheSession, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return &CacheSession{store: store, snap: snap}, nil
}

// Lookup returns the records cached under key
func (s *CacheSession) Lookup(key CacheKey) ([]QuestionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Lookup(key)
}

// Insert records a generation result under key
func (s *CacheSession) Insert(key CacheKey, records []QuestionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = s.snap.With(key, records)
	s.dirty = true
}

// Snapshot returns the session's current view
func (s *CacheSession) Snapshot() CacheSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Flush writes pending inserts back to the store
func (s *CacheSession) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if err := s.store.Save(ctx, s.snap); err != nil {
		return fmt.Errorf("failed to save cache: %w", err)
	}
	s.dirty = false
	return nil
}

// Close flushes pending inserts. Calling Close twice is a no-op.
func (s *CacheSession) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

package examgen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []QuestionRecord {
	return Normalize(testParams(), ModelOutput{
		Kind: OutputBatch,
		Questions: []QuestionItem{
			{Stem: "What pigment absorbs light?", Options: []string{"Chlorophyll", "Keratin"}, Explanation: "Chlorophyll absorbs red and blue light."},
			{Stem: "Where does the Calvin cycle run?", Options: []string{"Stroma", "Cytosol"}},
		},
	})
}

func TestCacheSnapshotIsImmutable(t *testing.T) {
	empty := NewCacheSnapshot(nil)
	next := empty.With("k", sampleRecords())

	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, next.Len())

	recs, ok := next.Lookup("k")
	require.True(t, ok)
	recs[0].Stem = "changed"
	recs[0].Options[0] = "changed"

	again, _ := next.Lookup("k")
	assert.Equal(t, "What pigment absorbs light?", again[0].Stem)
	assert.Equal(t, "Chlorophyll", again[0].Options[0])

	_, ok = next.Lookup("missing")
	assert.False(t, ok)
}

func TestCacheSnapshotKeysSorted(t *testing.T) {
	snap := NewCacheSnapshot(nil).With("b", nil).With("a", nil).With("c", nil)
	assert.Equal(t, []CacheKey{"a", "b", "c"}, snap.Keys())
}

func TestFileCacheStoreMissingFile(t *testing.T) {
	s := NewFileCacheStore(filepath.Join(t.TempDir(), "outputs", "cache.json"))
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestFileCacheStoreInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0644))

	snap, err := NewFileCacheStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())
}

func TestFileCacheStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "outputs", "cache.json")
	s := NewFileCacheStore(path)

	key := DeriveKey(testParams())
	require.NoError(t, s.Save(ctx, NewCacheSnapshot(nil).With(key, sampleRecords())))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	recs, ok := snap.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, sampleRecords(), recs)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

type countingStore struct {
	CacheStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, snap CacheSnapshot) error {
	c.saves++
	return c.CacheStore.Save(ctx, snap)
}

func TestCacheSessionFlushesOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{CacheStore: NewFileCacheStore(filepath.Join(t.TempDir(), "cache.json"))}

	sess, err := OpenCacheSession(ctx, store)
	require.NoError(t, err)
	require.NoError(t, sess.Flush(ctx))
	assert.Equal(t, 0, store.saves)

	sess.Insert("k", sampleRecords())
	require.NoError(t, sess.Close(ctx))
	assert.Equal(t, 1, store.saves)

	require.NoError(t, sess.Close(ctx))
	assert.Equal(t, 1, store.saves)

	reopened, err := OpenCacheSession(ctx, store)
	require.NoError(t, err)
	_, ok := reopened.Lookup("k")
	assert.True(t, ok)
}

type failingStore struct{}

func (failingStore) Load(ctx context.Context) (CacheSnapshot, error) {
	return CacheSnapshot{}, errors.New("disk gone")
}

func (failingStore) Save(ctx context.Context, snap CacheSnapshot) error {
	return errors.New("disk gone")
}

func TestOpenCacheSessionLoadError(t *testing.T) {
	_, err := OpenCacheSession(context.Background(), failingStore{})
	assert.ErrorContains(t, err, "disk gone")
}

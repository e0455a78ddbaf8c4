package examgen

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBank(t *testing.T, collection string) *BankDB {
	t.Helper()
	bank, err := OpenBankDB(filepath.Join(t.TempDir(), "index.db"), collection, wordEmbedder{dims: 64})
	require.NoError(t, err)
	t.Cleanup(func() { bank.Close() })
	return bank
}

func bankDocs() []Document {
	return []Document{
		{ID: "q1", Text: "chlorophyll absorbs light during photosynthesis", Metadata: Metadata{Subject: "science", Topic: "photosynthesis", Type: "mcq", Source: "bank-a"}},
		{ID: "q2", Text: "the french revolution began in 1789", Metadata: Metadata{Subject: "history", Topic: "revolutions", Type: "mcq", Source: "bank-b"}},
		{ID: "q3", Text: "mitochondria release energy from glucose", Metadata: Metadata{Subject: "science", Topic: "respiration", Type: "tf", Source: "bank-a"}},
	}
}

func TestBankDBQueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	bank := openTestBank(t, "exam_bank")
	require.NoError(t, bank.Upsert(ctx, bankDocs()))

	hits, err := bank.Query(ctx, "chlorophyll absorbs light during photosynthesis", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "chlorophyll absorbs light during photosynthesis", hits[0].Document)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, Metadata{Subject: "science", Topic: "photosynthesis", Type: "mcq", Source: "bank-a"}, hits[0].Metadata)
	assert.True(t, sort.SliceIsSorted(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance }))
}

func TestBankDBQueryTopNAndSubject(t *testing.T) {
	ctx := context.Background()
	bank := openTestBank(t, "exam_bank")
	require.NoError(t, bank.Upsert(ctx, bankDocs()))

	hits, err := bank.Query(ctx, "energy", 1, "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = bank.Query(ctx, "revolution", 10, "science")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "science", h.Metadata.Subject)
	}

	hits, err = bank.Query(ctx, "anything", 10, "geography")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = bank.Query(ctx, "anything", 0, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBankDBUnknownCollection(t *testing.T) {
	bank := openTestBank(t, "missing")

	_, err := bank.Query(context.Background(), "photosynthesis", 5, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIndexUnavailable))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestBankDBUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	bank := openTestBank(t, "exam_bank")
	require.NoError(t, bank.Upsert(ctx, bankDocs()))
	require.NoError(t, bank.Upsert(ctx, []Document{
		{ID: "q2", Text: "photosynthesis happens in chloroplasts", Metadata: Metadata{Subject: "science", Source: "bank-c"}},
	}))

	n, err := bank.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := bank.Query(ctx, "photosynthesis happens in chloroplasts", 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bank-c", hits[0].Metadata.Source)
}

func TestBankDBCollectionsAreSeparate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	a, err := OpenBankDB(path, "a", wordEmbedder{dims: 64})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Upsert(ctx, bankDocs()))

	b, err := OpenBankDB(path, "b", wordEmbedder{dims: 64})
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Upsert(ctx, bankDocs()[:1]))

	na, err := a.Count(ctx)
	require.NoError(t, err)
	nb, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, na)
	assert.Equal(t, 1, nb)
	assert.Equal(t, "b", b.Collection())
}

func TestBankDBWithRetriever(t *testing.T) {
	ctx := context.Background()
	bank := openTestBank(t, "exam_bank")
	docs := DocumentsFromRows([]BankRow{
		{ID: "1", Subject: "science", Topic: "photosynthesis", Stem: "Which pigment absorbs light?", Source: "bank"},
		{ID: "2", Subject: "science", Topic: "photosynthesis", Stem: "What gas is released?", Source: "bank"},
	}, "")
	_, err := Ingest(ctx, bank, docs, 1)
	require.NoError(t, err)

	got, err := NewRetriever(bank).Retrieve(ctx, "photosynthesis", "science", DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	blob, err := encodeVector(v)
	require.NoError(t, err)
	assert.Len(t, blob, 12)

	back, err := decodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

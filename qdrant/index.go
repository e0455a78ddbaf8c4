// Package qdrant implements the examgen similarity index on a Qdrant server.
package qdrant

import (
	"context"
	"fmt"
	"sync"

	"examgen"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Index implements examgen.Index using Qdrant as the backend. Documents are
// embedded client-side and stored with their metadata as payload.
type Index struct {
	client         *qdrant.Client
	collectionName string
	dimensions     int
	embedder       examgen.Embedder

	mu     sync.Mutex
	exists bool
}

// New connects to Qdrant. The collection is created on first Upsert.
func New(host string, port int, collectionName string, dimensions int, embedder examgen.Embedder) (*Index, error) {
	qclient, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to create qdrant client: %w", err)
	}

	return &Index{
		client:         qclient,
		collectionName: collectionName,
		dimensions:     dimensions,
		embedder:       embedder,
	}, nil
}

// Close closes the gRPC connection
func (ix *Index) Close() error {
	return ix.client.Close()
}

// EnsureCollection creates the collection with cosine distance if missing
func (ix *Index) EnsureCollection(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.exists {
		return nil
	}
	isExist, err := ix.client.CollectionExists(ctx, ix.collectionName)
	if err != nil {
		return fmt.Errorf("fail to check if collection %s exists: %w", ix.collectionName, err)
	}
	if !isExist {
		err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: ix.collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(ix.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("fail to create collection: %w", err)
		}
		_, err = ix.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: ix.collectionName,
			FieldName:      "subject",
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("fail to index subject field: %w", err)
		}
		examgen.Log().Infof("Created Qdrant collection: %s", ix.collectionName)
	}
	ix.exists = true
	return nil
}

func (ix *Index) checkCollection(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.exists {
		return nil
	}
	isExist, err := ix.client.CollectionExists(ctx, ix.collectionName)
	if err != nil {
		return fmt.Errorf("%w: %w", examgen.ErrIndexUnavailable, err)
	}
	if !isExist {
		return fmt.Errorf("%w: collection %q does not exist", examgen.ErrIndexUnavailable, ix.collectionName)
	}
	ix.exists = true
	return nil
}

// Upsert implements examgen.Index
func (ix *Index) Upsert(ctx context.Context, docs []examgen.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ix.EnsureCollection(ctx); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("fail to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(ix.collectionName, d.ID)),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: qdrant.NewValueMap(payload(d)),
		}
	}

	_, err = ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("fail to upsert qdrant points: %w", err)
	}
	return nil
}

// Query implements examgen.Index. Distance is 1 - cosine score.
func (ix *Index) Query(ctx context.Context, text string, topN int, subject string) ([]examgen.RetrievedExample, error) {
	if err := ix.checkCollection(ctx); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("fail to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	req := &qdrant.QueryPoints{
		CollectionName: ix.collectionName,
		Query:          qdrant.NewQueryDense(vectors[0]),
		Limit:          qdrant.PtrOf(uint64(topN)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if subject != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("subject", subject),
			},
		}
	}

	searchResult, err := ix.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: fail to search qdrant: %w", examgen.ErrIndexUnavailable, err)
	}

	hits := make([]examgen.RetrievedExample, 0, len(searchResult))
	for _, p := range searchResult {
		hits = append(hits, toExample(p.GetScore(), p.GetPayload()))
	}
	return hits, nil
}

func payload(d examgen.Document) map[string]any {
	return map[string]any{
		"doc_id":   d.ID,
		"document": d.Text,
		"subject":  d.Metadata.Subject,
		"topic":    d.Metadata.Topic,
		"type":     d.Metadata.Type,
		"source":   d.Metadata.Source,
	}
}

func toExample(score float32, pl map[string]*qdrant.Value) examgen.RetrievedExample {
	str := func(key string) string {
		if v, ok := pl[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return examgen.RetrievedExample{
		Document: str("document"),
		Metadata: examgen.Metadata{
			Subject: str("subject"),
			Topic:   str("topic"),
			Type:    str("type"),
			Source:  str("source"),
		},
		Distance: 1 - float64(score),
	}
}

// pointID maps a document id to a stable UUID, since Qdrant accepts only
// UUIDs or integers as point ids
func pointID(collection, docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+docID)).String()
}

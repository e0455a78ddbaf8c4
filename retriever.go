package examgen

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Index is a similarity index over question bank documents. Query returns
// hits in non-decreasing distance order. An empty subject means no filter.
type Index interface {
	Query(ctx context.Context, text string, topN int, subject string) ([]RetrievedExample, error)
	Upsert(ctx context.Context, docs []Document) error
}

// RetrieveOptions controls adaptive retrieval
type RetrieveOptions struct {
	MaxK          int     `yaml:"max_k"`
	MinK          int     `yaml:"min_k"`
	DistanceDelta float64 `yaml:"distance_delta"`
}

// DefaultRetrieveOptions returns max_k=12, min_k=4, distance_delta=0.25
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		MaxK:          12,
		MinK:          4,
		DistanceDelta: 0.25,
	}
}

// Retriever selects style exemplars from an Index
type Retriever struct {
	index Index
}

// NewRetriever creates a retriever over index
func NewRetriever(index Index) *Retriever {
	return &Retriever{index: index}
}

// Retrieve fetches up to opts.MaxK neighbours of query and keeps those within
// opts.DistanceDelta of the closest one, never fewer than opts.MinK when that
// many candidates exist. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query, subject string, opts RetrieveOptions) ([]RetrievedExample, error) {
	candidates, err := r.fetch(ctx, query, subject, opts.MaxK)
	if err != nil {
		return nil, err
	}

	selected := SelectAdaptive(candidates, opts.MinK, opts.DistanceDelta)
	VerboseLog("Retrieved %d candidates for %q (subject=%q), kept %d", len(candidates), query, subject, len(selected))
	return selected, nil
}

// TopK returns the k nearest neighbours without the distance cutoff
func (r *Retriever) TopK(ctx context.Context, query, subject string, k int) ([]RetrievedExample, error) {
	return r.fetch(ctx, query, subject, k)
}

func (r *Retriever) fetch(ctx context.Context, query, subject string, topN int) ([]RetrievedExample, error) {
	if topN <= 0 {
		return nil, nil
	}
	candidates, err := r.index.Query(ctx, query, topN, subject)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return candidates, nil
}

// SelectAdaptive applies the distance-gap cutoff to candidates sorted by
// non-decreasing distance. A candidate is kept while fewer than minK items
// have been kept, or when its distance is within delta of the first
// candidate's. NaN distances never pass the cutoff.
func SelectAdaptive(candidates []RetrievedExample, minK int, delta float64) []RetrievedExample {
	if len(candidates) == 0 {
		return []RetrievedExample{}
	}

	best := candidates[0].Distance
	selected := make([]RetrievedExample, 0, len(candidates))
	for _, c := range candidates {
		if len(selected) < minK || (!math.IsNaN(c.Distance) && c.Distance <= best+delta) {
			selected = append(selected, c)
		}
	}

	if len(selected) == 0 {
		n := min(max(minK, 0), len(candidates))
		selected = append(selected, candidates[:n]...)
	}
	return selected
}

// Package vectorindex defines the vector index contract ragify's
// orchestrator uses for its vector-fallback step, plus an in-process
// exact (brute-force) implementation suitable for small-to-medium
// corpora. Alternate backends (chromembackend, qdrantbackend) implement
// the same Index interface over an embedded or remote ANN engine.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
)

// Metric selects the distance function used by Search.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricDot       Metric = "dot"
)

// SearchRequest queries the index for the k nearest records to Query.
type SearchRequest struct {
	Query []float32
	K     int
	// MinScore filters out results below this similarity/score threshold.
	// Nil means no filter: Search returns exactly min(K, |index|) hits
	// regardless of score, including negative scores from an unnormalized
	// MetricDot query.
	MinScore *float64
}

// PassesMinScore reports whether score clears req's MinScore filter, if
// any. Exported so out-of-package backends (chromembackend,
// qdrantbackend) apply the same nil-means-unfiltered semantics as the
// in-process indexes.
func PassesMinScore(req SearchRequest, score float64) bool {
	return req.MinScore == nil || score >= *req.MinScore
}

// SearchResult pairs a stored record with its similarity score for one
// query. Score is always "higher is better" regardless of Metric: for
// euclidean distance the index reports 1/(1+distance) so callers never
// need to know which metric produced it.
type SearchResult struct {
	Record model.VectorRecord
	Score  float64
}

// Index is the contract every vector backend implements: insert/update/
// delete/search/get/stats, with deterministic tie-breaking (ascending
// record ID) whenever two results score identically.
type Index interface {
	Insert(ctx context.Context, rec model.VectorRecord) error
	Update(ctx context.Context, rec model.VectorRecord) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
	Get(ctx context.Context, id string) (model.VectorRecord, bool, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close() error
}

// ErrDimensionMismatch is returned when a record's embedding length does
// not match the index's configured dimension.
var ErrDimensionMismatch = errors.New("vectorindex: embedding dimension mismatch")

// ExactIndex is a brute-force Index: every Search scores every stored
// record. It is deterministic and exact, trading O(n) search time for
// simplicity — the right default until a corpus outgrows memory search.
type ExactIndex struct {
	dim    int
	metric Metric

	mu      sync.RWMutex
	records map[string]model.VectorRecord
}

// NewExactIndex builds an empty ExactIndex for embeddings of the given
// dimension, scored with metric (default MetricCosine if empty).
func NewExactIndex(dim int, metric Metric) *ExactIndex {
	if metric == "" {
		metric = MetricCosine
	}
	return &ExactIndex{
		dim:     dim,
		metric:  metric,
		records: make(map[string]model.VectorRecord),
	}
}

func (idx *ExactIndex) Insert(ctx context.Context, rec model.VectorRecord) error {
	if len(rec.Embedding) != idx.dim {
		return fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(rec.Embedding), idx.dim)
	}
	if idx.metric == MetricCosine {
		rec.Embedding = normalize(rec.Embedding)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.records[rec.ID] = rec
	return nil
}

func (idx *ExactIndex) Update(ctx context.Context, rec model.VectorRecord) error {
	idx.mu.Lock()
	_, exists := idx.records[rec.ID]
	idx.mu.Unlock()
	if !exists {
		return apierrors.NewVectorIndexError("update", fmt.Errorf("record %q not found", rec.ID))
	}
	return idx.Insert(ctx, rec)
}

func (idx *ExactIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.records, id)
	return nil
}

func (idx *ExactIndex) Get(ctx context.Context, id string) (model.VectorRecord, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rec, ok := idx.records[id]
	return rec, ok, nil
}

// Search scores every stored record against req.Query and returns the
// top req.K by descending score, ties broken by ascending record ID.
func (idx *ExactIndex) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.Query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(req.Query), idx.dim)
	}
	query := req.Query
	if idx.metric == MetricCosine {
		query = normalize(query)
	}

	idx.mu.RLock()
	results := make([]SearchResult, 0, len(idx.records))
	for _, rec := range idx.records {
		score := idx.score(query, rec.Embedding)
		if !PassesMinScore(req, score) {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: score})
	}
	idx.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	k := req.K
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (idx *ExactIndex) score(query, embedding []float32) float64 {
	switch idx.metric {
	case MetricEuclidean:
		return 1.0 / (1.0 + euclidean(query, embedding))
	case MetricDot:
		return dot(query, embedding)
	default:
		return dot(query, embedding) // inputs already normalized for cosine
	}
}

func (idx *ExactIndex) Stats(ctx context.Context) (map[string]any, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return map[string]any{
		"backend":    "exact",
		"index_type": "exact",
		"metric":     string(idx.metric),
		"dim":        idx.dim,
		"total":      len(idx.records),
		"count":      len(idx.records),
	}, nil
}

func (idx *ExactIndex) Close() error { return nil }

func dot(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func euclidean(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

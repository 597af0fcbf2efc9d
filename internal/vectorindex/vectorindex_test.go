package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragifylabs/ragify/internal/model"
)

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1.0
	return v
}

func TestExactIndex_SearchRanksByCosine(t *testing.T) {
	idx := NewExactIndex(4, MetricCosine)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "a", ChunkID: "a", Embedding: unit(4, 0)}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "b", ChunkID: "b", Embedding: unit(4, 1)}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "c", ChunkID: "c", Embedding: []float32{0.9, 0.1, 0, 0}}))

	results, err := idx.Search(ctx, SearchRequest{Query: unit(4, 0), K: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].Record.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-6)
	require.Equal(t, "c", results[1].Record.ID)
}

func TestExactIndex_NoMinScoreReturnsAllRegardlessOfSign(t *testing.T) {
	idx := NewExactIndex(2, MetricDot)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "pos", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "neg", Embedding: []float32{-1, 0}}))

	results, err := idx.Search(ctx, SearchRequest{Query: []float32{1, 0}, K: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	var sawNegative bool
	for _, r := range results {
		if r.Record.ID == "neg" {
			sawNegative = true
			require.Less(t, r.Score, 0.0)
		}
	}
	require.True(t, sawNegative, "a negative-score record must survive an unset MinScore filter")
}

func TestExactIndex_MinScoreFiltersWhenExplicitlySet(t *testing.T) {
	idx := NewExactIndex(2, MetricDot)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "pos", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "neg", Embedding: []float32{-1, 0}}))

	zero := 0.0
	results, err := idx.Search(ctx, SearchRequest{Query: []float32{1, 0}, K: 10, MinScore: &zero})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "pos", results[0].Record.ID)
}

func TestExactIndex_DeterministicTieBreak(t *testing.T) {
	idx := NewExactIndex(2, MetricCosine)
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "z", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "a", Embedding: []float32{1, 0}}))

	results, err := idx.Search(ctx, SearchRequest{Query: []float32{1, 0}, K: 2})
	require.NoError(t, err)
	require.Equal(t, "a", results[0].Record.ID)
	require.Equal(t, "z", results[1].Record.ID)
}

func TestExactIndex_DimensionMismatch(t *testing.T) {
	idx := NewExactIndex(4, MetricCosine)
	err := idx.Insert(context.Background(), model.VectorRecord{ID: "x", Embedding: []float32{1, 2}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestExactIndex_DeleteAndGet(t *testing.T) {
	idx := NewExactIndex(2, MetricCosine)
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "x", Embedding: []float32{1, 0}}))

	_, ok, err := idx.Get(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, idx.Delete(ctx, "x"))
	_, ok, err = idx.Get(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIVFIndex_SearchFindsInsertedVector(t *testing.T) {
	idx := NewIVFIndex(IVFConfig{Dim: 4, NList: 2, NProbe: 2})
	ctx := context.Background()

	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "a", Embedding: unit(4, 0)}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "b", Embedding: unit(4, 1)}))
	require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: "c", Embedding: unit(4, 2)}))

	results, err := idx.Search(ctx, SearchRequest{Query: unit(4, 0), K: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].Record.ID)
}

func TestIVFIndex_RebuildPreservesRecords(t *testing.T) {
	idx := NewIVFIndex(IVFConfig{Dim: 4, NList: 2, NProbe: 2})
	ctx := context.Background()

	for i, hot := range []int{0, 1, 2, 3} {
		require.NoError(t, idx.Insert(ctx, model.VectorRecord{ID: string(rune('a' + i)), Embedding: unit(4, hot)}))
	}
	require.NoError(t, idx.Rebuild(ctx))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, stats["count"])
}

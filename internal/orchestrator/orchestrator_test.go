package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/cache"
	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/embedding"
	"github.com/ragifylabs/ragify/internal/metrics"
	"github.com/ragifylabs/ragify/internal/model"
	"github.com/ragifylabs/ragify/internal/vectorindex"
)

func staticSource(name string, privacyLevel model.PrivacyLevel, authority float64, chunks ...model.Chunk) *datasource.StaticSource {
	return datasource.NewStaticSource(datasource.StaticSourceConfig{
		Name:           name,
		Type:           model.SourceTypeDocument,
		PrivacyLevel:   privacyLevel,
		AuthorityScore: authority,
		FreshnessScore: 1.0,
		Chunks:         chunks,
	})
}

func chunk(id, content string, tokens int) model.Chunk {
	return model.Chunk{ID: id, Content: content, TokenCount: tokens}
}

func TestGetContext_SingleChunk(t *testing.T) {
	src := staticSource("docs", model.PrivacyPublic, 0.8, chunk("c1", "ragify orchestrates retrieval across sources", 10))

	o := New(DefaultConfig(), WithCache(cache.NewInMemory(10)))
	o.AddSource(src)

	resp, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "retrieval orchestration",
		MaxChunks:    5,
		MaxTokens:    1000,
		MinRelevance: 0.0,
		PrivacyLevel: model.PrivacyPublic,
	})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	require.Equal(t, "c1", resp.Chunks[0].ID)
}

func TestGetContext_PrivacyRefusal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivacyLevel = model.PrivacyEnterprise
	o := New(cfg)

	_, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "anything",
		PrivacyLevel: model.PrivacyPublic,
	})
	require.Error(t, err)
	require.True(t, apierrors.IsPrivacyViolation(err))
}

func TestGetContext_PartialFailure(t *testing.T) {
	a := staticSource("a", model.PrivacyPublic, 0.8,
		chunk("a1", "first chunk about databases", 10),
		chunk("a2", "second chunk about databases", 10),
		chunk("a3", "third chunk about databases", 10),
	)
	bInner := staticSource("b", model.PrivacyPublic, 0.8, chunk("b1", "never returned", 10))
	b := datasource.NewErrorInjectingSource(bInner, 100*time.Millisecond, errors.New("simulated source failure"))

	cfg := DefaultConfig()
	cfg.SourceTimeout = time.Second
	o := New(cfg)
	o.AddSource(a)
	o.AddSource(b)

	resp, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "databases",
		MaxChunks:    10,
		MaxTokens:    1000,
		PrivacyLevel: model.PrivacyPublic,
	})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 3)

	sourceErrors, ok := resp.Metadata["source_errors"].(map[string]string)
	require.True(t, ok)
	require.Contains(t, sourceErrors, "b")
}

func TestGetContext_TokenBudgetTruncation(t *testing.T) {
	var chunks []model.Chunk
	for i := 0; i < 10; i++ {
		chunks = append(chunks, chunk(string(rune('a'+i)), "repeated content about ragify retrieval pipelines", 120))
	}
	src := staticSource("docs", model.PrivacyPublic, 0.8, chunks...)

	o := New(DefaultConfig())
	o.AddSource(src)

	resp, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "ragify retrieval pipelines",
		MaxChunks:    10,
		MaxTokens:    500,
		MinRelevance: 0.0,
		PrivacyLevel: model.PrivacyPublic,
	})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 4)

	var total int
	for _, c := range resp.Chunks {
		total += c.TokenCount
	}
	require.LessOrEqual(t, total, 500)
}

func TestGetContext_ContextNotFoundWhenNoChunks(t *testing.T) {
	o := New(DefaultConfig())
	_, err := o.GetContext(context.Background(), model.ContextRequest{Query: "anything", PrivacyLevel: model.PrivacyPublic})
	require.ErrorIs(t, err, apierrors.ErrContextNotFound)
}

func TestGetContext_ClosedIsFatal(t *testing.T) {
	o := New(DefaultConfig())
	require.NoError(t, o.Close())

	_, err := o.GetContext(context.Background(), model.ContextRequest{Query: "q", PrivacyLevel: model.PrivacyPublic})
	require.ErrorIs(t, err, apierrors.ErrClosed)
}

func TestGetContext_CacheHitReturnsStoredResponse(t *testing.T) {
	src := staticSource("docs", model.PrivacyPublic, 0.8, chunk("c1", "cached retrieval content", 10))
	c := cache.NewInMemory(10)
	o := New(DefaultConfig(), WithCache(c))
	o.AddSource(src)

	req := model.ContextRequest{Query: "retrieval", MaxChunks: 5, MaxTokens: 1000, PrivacyLevel: model.PrivacyPublic}

	first, err := o.GetContext(context.Background(), req)
	require.NoError(t, err)

	o.RemoveSource("docs")

	second, err := o.GetContext(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestGetContext_RecordsMetricsOnSuccess(t *testing.T) {
	m := metrics.New()
	src := staticSource("docs", model.PrivacyPublic, 0.8, chunk("c1", "ragify metrics wiring check", 10))

	o := New(DefaultConfig(), WithMetrics(m))
	o.AddSource(src)

	before := testutil.ToFloat64(m.ContextRequestsTotal.WithLabelValues("success"))

	_, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "metrics wiring",
		MaxChunks:    5,
		MaxTokens:    1000,
		PrivacyLevel: model.PrivacyPublic,
	})
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(m.ContextRequestsTotal.WithLabelValues("success")))
}

func TestGetContext_VectorFallbackWhenNoSourcesRegistered(t *testing.T) {
	embedder := embedding.NewHashingEmbedder()
	index := vectorindex.NewExactIndex(embedding.Dim, vectorindex.MetricCosine)

	content := "ragify falls back to vector search when no sources match"
	require.NoError(t, index.Insert(context.Background(), model.VectorRecord{
		ID:        "v1",
		ChunkID:   "v1",
		Embedding: embedder.Embed(content),
		Metadata:  map[string]any{"content": content, "source_name": "vector-index"},
	}))

	o := New(DefaultConfig(), WithVectorIndex(index, embedder))

	resp, err := o.GetContext(context.Background(), model.ContextRequest{
		Query:        "vector search fallback",
		MaxChunks:    5,
		MaxTokens:    1000,
		MinRelevance: 0.0,
		PrivacyLevel: model.PrivacyPublic,
	})
	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	require.Equal(t, "v1", resp.Chunks[0].ID)
	require.Equal(t, "vector_search", resp.Metadata["retrieval_method"])
}

func TestListSources(t *testing.T) {
	o := New(DefaultConfig())
	o.AddSource(staticSource("b", model.PrivacyPublic, 0.5))
	o.AddSource(staticSource("a", model.PrivacyPublic, 0.5))
	require.Equal(t, []string{"a", "b"}, o.ListSources())
}

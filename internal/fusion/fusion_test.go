package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragifylabs/ragify/internal/model"
)

func chunkWith(id, content string, authority float64, source string) model.Chunk {
	now := time.Now()
	return model.Chunk{
		ID:        id,
		Content:   content,
		SourceRef: model.SourceRef{Name: source, AuthorityScore: authority},
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestFuse_SemanticGroupingPicksHighestAuthority(t *testing.T) {
	a := chunkWith("a", "The quarterly revenue report shows growth", 0.9, "wiki")
	b := chunkWith("b", "The  quarterly  revenue  report shows growth", 0.7, "api")
	c := chunkWith("c", "The quarterly revenue report shows  growth", 0.5, "db")

	cfg := DefaultConfig()
	cfg.ConflictStrategy = ConflictAuthorityBased
	cfg.Now = time.Now()

	result := Fuse([]model.Chunk{a, b, c}, "quarterly revenue", cfg)

	require.Len(t, result, 1)
	require.Equal(t, "a", result[0].ID)

	conflicting, ok := result[0].Metadata["conflicting_chunks"].([]string)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"b", "c"}, conflicting)
}

func TestFuse_ConflictStrategySelectsDistinctWinner(t *testing.T) {
	now := time.Now()
	// "a" has the highest authority but is stale; "c" is the freshest but
	// has the lowest authority. The two strategies must disagree so this
	// test actually exercises cfg.ConflictStrategy instead of coincidence.
	a := model.Chunk{ID: "a", Content: "The quarterly revenue report shows growth",
		SourceRef: model.SourceRef{Name: "wiki", AuthorityScore: 0.9}, Metadata: map[string]any{},
		CreatedAt: now, UpdatedAt: now.AddDate(0, 0, -300)}
	b := model.Chunk{ID: "b", Content: "The  quarterly  revenue  report shows growth",
		SourceRef: model.SourceRef{Name: "api", AuthorityScore: 0.7}, Metadata: map[string]any{},
		CreatedAt: now, UpdatedAt: now.AddDate(0, 0, -150)}
	c := model.Chunk{ID: "c", Content: "The quarterly revenue report shows  growth",
		SourceRef: model.SourceRef{Name: "db", AuthorityScore: 0.3}, Metadata: map[string]any{},
		CreatedAt: now, UpdatedAt: now}

	authorityCfg := DefaultConfig()
	authorityCfg.ConflictStrategy = ConflictAuthorityBased
	authorityCfg.Now = now
	authorityResult := Fuse([]model.Chunk{a, b, c}, "quarterly revenue", authorityCfg)
	require.Len(t, authorityResult, 1)
	require.Equal(t, "a", authorityResult[0].ID)

	freshnessCfg := DefaultConfig()
	freshnessCfg.ConflictStrategy = ConflictFreshnessBased
	freshnessCfg.Now = now
	freshnessResult := Fuse([]model.Chunk{a, b, c}, "quarterly revenue", freshnessCfg)
	require.Len(t, freshnessResult, 1)
	require.Equal(t, "c", freshnessResult[0].ID)
}

func TestFuse_DistinctChunksAllSurvive(t *testing.T) {
	a := chunkWith("a", "completely distinct content about databases", 0.5, "s1")
	b := chunkWith("b", "an entirely different topic about cooking", 0.5, "s2")

	result := Fuse([]model.Chunk{a, b}, "query", DefaultConfig())
	require.Len(t, result, 2)
}

func TestFuse_SingleChunkPassesThrough(t *testing.T) {
	a := chunkWith("a", "only one chunk here", 0.8, "s1")
	result := Fuse([]model.Chunk{a}, "query", DefaultConfig())
	require.Len(t, result, 1)
	require.Equal(t, "a", result[0].ID)
}

func TestFuse_RankingCapAppliesAfterFusion(t *testing.T) {
	var chunks []model.Chunk
	for i := 0; i < 30; i++ {
		chunks = append(chunks, chunkWith(
			string(rune('a'+i)),
			"unique unrelated content block number "+string(rune('a'+i)),
			float64(i)/30.0,
			"s",
		))
	}
	cfg := DefaultConfig()
	result := Fuse(chunks, "query", cfg)
	require.LessOrEqual(t, len(result), DefaultRankingCap)
}

func TestFuse_DeterministicTieBreakByID(t *testing.T) {
	now := time.Now()
	a := model.Chunk{ID: "b", Content: "distinct alpha", SourceRef: model.SourceRef{Name: "s"}, Metadata: map[string]any{}, CreatedAt: now, UpdatedAt: now}
	b := model.Chunk{ID: "a", Content: "distinct beta", SourceRef: model.SourceRef{Name: "s"}, Metadata: map[string]any{}, CreatedAt: now, UpdatedAt: now}

	result1 := Fuse([]model.Chunk{a, b}, "query", DefaultConfig())
	result2 := Fuse([]model.Chunk{a, b}, "query", DefaultConfig())
	require.Equal(t, result1[0].ID, result2[0].ID)
	require.Equal(t, result1[1].ID, result2[1].ID)
}

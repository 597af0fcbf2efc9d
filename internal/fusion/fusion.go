// Package fusion implements the fusion engine: semantic grouping of
// near-duplicate chunks, conflict resolution within each group to a
// single representative, per-chunk quality assessment, strategy-
// weighted re-scoring, and final ranking. It is expressed as a pure
// function of (chunks, query, config) — no hidden state, no globals.
package fusion

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ragifylabs/ragify/internal/model"
)

// Strategy is a tagged variant identifying one of the five built-in
// re-scoring contributions.
type Strategy string

const (
	StrategySemanticSimilarity Strategy = "semantic_similarity"
	StrategySourceAuthority    Strategy = "source_authority"
	StrategyFreshness          Strategy = "freshness"
	StrategyContentQuality     Strategy = "content_quality"
	StrategyUserPreference     Strategy = "user_preference"
)

// ConflictStrategy is a tagged variant for one of the four conflict-
// resolution strategies. Only the strategy named by
// Config.ConflictStrategy runs for a group; the other three are not tried.
type ConflictStrategy string

const (
	ConflictAuthorityBased ConflictStrategy = "authority_based"
	ConflictFreshnessBased ConflictStrategy = "freshness_based"
	ConflictConsensusBased ConflictStrategy = "consensus_based"
	ConflictHybridWeighted ConflictStrategy = "hybrid_weighted"
)

// DefaultMaxGroupSize bounds how many chunks a single semantic group
// may absorb during grouping.
const DefaultMaxGroupSize = 10

// DefaultSimilarityThreshold (T) is the minimum sim() score for a chunk
// to join an existing group.
const DefaultSimilarityThreshold = 0.7

// DefaultRankingCap bounds the length of the final fused result.
const DefaultRankingCap = 20

// Config parameterizes one fuse() call. The zero value is not usable;
// use DefaultConfig to get sane defaults.
type Config struct {
	SimilarityThreshold float64
	MaxGroupSize        int
	ConflictStrategy    ConflictStrategy
	EnabledStrategies   map[Strategy]float64
	RankingCap          int
	// UserPreferences maps tag -> preference weight in [0,1]. The
	// user_preference re-scoring contribution averages the weights of the
	// chunk's tags found in the map; tags absent from the map are skipped,
	// and the contribution is neutral (0.5) when none of the tags is found.
	UserPreferences map[string]float64
	Now             time.Time
}

// DefaultConfig returns the spec's default weights and thresholds.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxGroupSize:        DefaultMaxGroupSize,
		ConflictStrategy:    ConflictHybridWeighted,
		EnabledStrategies: map[Strategy]float64{
			StrategySemanticSimilarity: 0.30,
			StrategySourceAuthority:    0.25,
			StrategyFreshness:          0.20,
			StrategyContentQuality:     0.15,
			StrategyUserPreference:     0.10,
		},
		RankingCap: DefaultRankingCap,
		Now:        time.Now(),
	}
}

// Fuse groups near-duplicate chunks, resolves conflicts within each
// group to a single representative, re-scores survivors, and returns
// them ranked by fusion_score descending, capped at cfg.RankingCap.
func Fuse(chunks []model.Chunk, query string, cfg Config) []model.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	if cfg.MaxGroupSize <= 0 {
		cfg.MaxGroupSize = DefaultMaxGroupSize
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.RankingCap <= 0 {
		cfg.RankingCap = DefaultRankingCap
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	groups := groupChunks(chunks, query, cfg)

	survivors := make([]model.Chunk, 0, len(groups))
	for _, g := range groups {
		survivors = append(survivors, resolveConflict(g, query, cfg))
	}

	for i := range survivors {
		assessQuality(&survivors[i], query, cfg.Now)
	}
	for i := range survivors {
		rescore(&survivors[i], query, cfg)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		si := fusionScore(survivors[i])
		sj := fusionScore(survivors[j])
		if si != sj {
			return si > sj
		}
		return survivors[i].ID < survivors[j].ID
	})

	if len(survivors) > cfg.RankingCap {
		survivors = survivors[:cfg.RankingCap]
	}
	return survivors
}

// groupChunks implements semantic grouping (a): iterate in input order,
// seed a new group with each unprocessed chunk, and absorb subsequent
// unprocessed chunks scoring >= T against the seed, up to max_group_size.
// Each group is built as a model.SemanticGroup with its Features
// populated, the same transient structure spec.md §3 names for this stage.
func groupChunks(chunks []model.Chunk, query string, cfg Config) []model.SemanticGroup {
	used := make([]bool, len(chunks))
	var groups []model.SemanticGroup

	for i := range chunks {
		if used[i] {
			continue
		}
		used[i] = true
		members := []model.Chunk{chunks[i]}

		for j := i + 1; j < len(chunks) && len(members) < cfg.MaxGroupSize; j++ {
			if used[j] {
				continue
			}
			if similarity(chunks[i], chunks[j]) >= cfg.SimilarityThreshold {
				used[j] = true
				members = append(members, chunks[j])
			}
		}

		groups = append(groups, model.SemanticGroup{
			ID:                  chunks[i].ID,
			Chunks:              members,
			SimilarityThreshold: cfg.SimilarityThreshold,
			Features:            groupFeatures(members, query),
		})
	}
	return groups
}

// groupFeatures computes the aggregate statistics a group's conflict
// resolution and quality assessment read: average authority, content
// diversity (mean pairwise word-set distance), tag diversity (distinct
// tags over total tag occurrences), and average freshness.
func groupFeatures(members []model.Chunk, query string) model.GroupFeatures {
	var authoritySum, freshnessSum float64
	now := time.Now()
	for _, c := range members {
		authoritySum += c.SourceRef.AuthorityScore
		freshnessSum += math.Exp(-ageDays(c.UpdatedAt, now) / 30)
	}
	n := float64(len(members))

	var pairwiseDist float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pairwiseDist += 1 - jaccard(wordSet(members[i].Content), wordSet(members[j].Content))
			pairs++
		}
	}
	contentDiversity := 0.0
	if pairs > 0 {
		contentDiversity = pairwiseDist / float64(pairs)
	}

	tagCounts := map[string]struct{}{}
	totalTags := 0
	for _, c := range members {
		for _, tag := range c.Tags {
			tagCounts[tag] = struct{}{}
			totalTags++
		}
	}
	tagDiversity := 0.0
	if totalTags > 0 {
		tagDiversity = float64(len(tagCounts)) / float64(totalTags)
	}

	return model.GroupFeatures{
		AvgAuthority:     authoritySum / n,
		ContentDiversity: contentDiversity,
		TagDiversity:     tagDiversity,
		AvgFreshness:     freshnessSum / n,
	}
}

// similarity implements sim(a, b, q): 0.5*jaccard(words) +
// 0.3*jaccard(tags) + 0.2*same_source. The query plays no part in this
// formula, so the function takes only the two chunks.
func similarity(a, b model.Chunk) float64 {
	wordsJ := jaccard(wordSet(a.Content), wordSet(b.Content))
	tagsJ := jaccard(toSet(a.Tags), toSet(b.Tags))
	sameSource := 0.0
	if a.SourceRef.Name == b.SourceRef.Name {
		sameSource = 1.0
	}
	return 0.5*wordsJ + 0.3*tagsJ + 0.2*sameSource
}

func wordSet(content string) map[string]struct{} {
	return toSet(strings.Fields(strings.ToLower(content)))
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

// jaccard treats two empty sets as identical (1.0) rather than
// disjoint (0.0): a chunk with no tags is vacuously "tag-compatible"
// with another chunk that also has no tags, which is what lets two
// untagged near-duplicates from different sources still clear the
// grouping threshold on word overlap plus this term.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

type candidate struct {
	chunk      model.Chunk
	confidence float64
}

// resolveConflict implements (b): for groups of one, no resolution is
// needed. For groups of >1, cfg.ConflictStrategy selects which of the
// four strategies produces the winner; an unset (zero-value) strategy
// falls back to hybrid_weighted, the same default DefaultConfig wires.
// The winner's metadata records the losers.
func resolveConflict(g model.SemanticGroup, query string, cfg Config) model.Chunk {
	if len(g.Chunks) == 1 {
		return g.Chunks[0]
	}

	var best candidate
	switch cfg.ConflictStrategy {
	case ConflictAuthorityBased:
		best = authorityBased(g)
	case ConflictFreshnessBased:
		best = freshnessBased(g.Chunks, cfg.Now)
	case ConflictConsensusBased:
		best = consensusBased(g.Chunks)
	default:
		best = hybridWeighted(g.Chunks, query, cfg.Now)
	}

	winner := best.chunk
	conflicting := make([]string, 0, len(g.Chunks)-1)
	for _, c := range g.Chunks {
		if c.ID != winner.ID {
			conflicting = append(conflicting, c.ID)
		}
	}
	sort.Strings(conflicting)

	winner.Metadata = cloneMetadata(winner.Metadata)
	winner.Metadata["conflicting_chunks"] = conflicting
	return winner
}

// authorityBased delegates to model.SemanticGroup.Representative, the
// spec's own "highest authority within group" derived field — the
// authority-based conflict strategy and the data model's representative
// chunk are the same computation.
func authorityBased(g model.SemanticGroup) candidate {
	rep := g.Representative()
	return candidate{chunk: rep, confidence: rep.SourceRef.AuthorityScore}
}

func freshnessBased(chunks []model.Chunk, now time.Time) candidate {
	best := chunks[0]
	for _, c := range chunks[1:] {
		if c.UpdatedAt.After(best.UpdatedAt) ||
			(c.UpdatedAt.Equal(best.UpdatedAt) && c.ID < best.ID) {
			best = c
		}
	}
	confidence := math.Max(0, 1-ageDays(best.UpdatedAt, now)/365)
	return candidate{chunk: best, confidence: confidence}
}

func consensusBased(chunks []model.Chunk) candidate {
	best := chunks[0]
	bestMean := -1.0
	for _, c := range chunks {
		var sum float64
		for _, other := range chunks {
			if other.ID == c.ID {
				continue
			}
			sum += similarity(c, other)
		}
		mean := sum / float64(len(chunks)-1)
		if mean > bestMean || (mean == bestMean && c.ID < best.ID) {
			bestMean, best = mean, c
		}
	}
	return candidate{chunk: best, confidence: bestMean}
}

func hybridWeighted(chunks []model.Chunk, query string, now time.Time) candidate {
	queryWords := wordSet(query)
	best := chunks[0]
	bestScore := -1.0
	for _, c := range chunks {
		authority := c.SourceRef.AuthorityScore
		freshness := math.Exp(-ageDays(c.UpdatedAt, now) / 30)
		quality := contentQuality(c.Content)
		tagRelevance := tagRelevance(c.Tags, queryWords)

		score := 0.4*authority + 0.3*freshness + 0.2*quality + 0.1*tagRelevance
		if score > bestScore || (score == bestScore && c.ID < best.ID) {
			bestScore, best = score, c
		}
	}
	return candidate{chunk: best, confidence: bestScore}
}

func contentQuality(content string) float64 {
	n := len(content)
	if n >= 10 && n <= 10000 {
		return 1.0
	}
	return 0.5
}

func tagRelevance(tags []string, queryWords map[string]struct{}) float64 {
	if len(tags) == 0 {
		return 0
	}
	matches := 0
	for _, tag := range tags {
		if _, ok := queryWords[strings.ToLower(tag)]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(tags))
}

func ageDays(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t).Hours() / 24
}

// assessQuality implements (c): five factors in [0,1], averaged into an
// "overall" score stashed in the chunk's metadata for downstream use.
// The content_quality re-scoring strategy does not read it back; it
// calls contentQuality on the chunk's content directly.
func assessQuality(c *model.Chunk, query string, now time.Time) {
	queryWords := wordSet(query)

	contentQ := contentQuality(c.Content)
	authorityQ := c.SourceRef.AuthorityScore
	freshnessQ := math.Exp(-ageDays(c.UpdatedAt, now) / 30)
	tagQ := tagRelevance(c.Tags, queryWords)
	metadataQ := math.Min(1, float64(len(c.Metadata))/5)

	overall := (contentQ + authorityQ + freshnessQ + tagQ + metadataQ) / 5

	c.Metadata = cloneMetadata(c.Metadata)
	c.Metadata["quality_content"] = contentQ
	c.Metadata["quality_authority"] = authorityQ
	c.Metadata["quality_freshness"] = freshnessQ
	c.Metadata["quality_tag_relevance"] = tagQ
	c.Metadata["quality_metadata_complete"] = metadataQ
	c.Metadata["quality_overall"] = overall
}

// rescore implements (d): a weighted sum over enabled strategies,
// stashed as fusion_score in the chunk's metadata.
func rescore(c *model.Chunk, query string, cfg Config) {
	queryWords := wordSet(query)

	contributions := map[Strategy]float64{
		StrategySemanticSimilarity: c.Score(),
		StrategySourceAuthority:    c.SourceRef.AuthorityScore,
		StrategyFreshness:          math.Exp(-ageDays(c.UpdatedAt, cfg.Now) / 30),
		StrategyContentQuality:     contentQuality(c.Content),
		StrategyUserPreference:     userPreference(c.Tags, queryWords, cfg.UserPreferences),
	}

	var total float64
	for strategy, weight := range cfg.EnabledStrategies {
		total += weight * contributions[strategy]
	}

	c.Metadata = cloneMetadata(c.Metadata)
	c.Metadata["fusion_score"] = total
}

func userPreference(tags []string, queryWords map[string]struct{}, prefs map[string]float64) float64 {
	if len(prefs) == 0 {
		return 0.5
	}
	var sum float64
	var n int
	for _, tag := range tags {
		if w, ok := prefs[tag]; ok {
			sum += w
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

func fusionScore(c model.Chunk) float64 {
	if v, ok := c.Metadata["fusion_score"].(float64); ok {
		return v
	}
	return 0
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

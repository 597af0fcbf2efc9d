// Package scoring computes relevance scores for chunks against a query.
// It pairs a pluggable advanced Scorer (vector similarity blended with a
// lexical signal and, optionally, a per-user preference profile) with a
// mandatory lexical fallback that always runs when no embedder is
// configured or a chunk carries no embedding.
package scoring

import (
	"math"
	"strings"

	"github.com/ragifylabs/ragify/internal/model"
)

// Scorer assigns a relevance score in [0,1] to a chunk against a query.
type Scorer interface {
	Score(query string, queryEmbedding []float32, chunk model.Chunk) model.RelevanceScore
}

// Weights controls how much each signal contributes to the blended
// score produced by BlendedScorer.
type Weights struct {
	VectorSimilarity float64
	LexicalOverlap   float64
	UserPreference   float64
}

// DefaultWeights favors vector similarity but never lets lexical
// overlap drop to zero influence, since a mis-embedded or zero-vector
// chunk should still be rankable.
func DefaultWeights() Weights {
	return Weights{VectorSimilarity: 0.7, LexicalOverlap: 0.2, UserPreference: 0.1}
}

// PreferenceProfile maps a tag to a multiplicative boost in [0,2]; a
// boost of 1.0 is neutral. Profiles are keyed by user ID by the caller.
type PreferenceProfile map[string]float64

// BlendedScorer combines cosine similarity between the query and chunk
// embeddings with the lexical-overlap fallback, plus an optional
// per-user tag-preference nudge.
type BlendedScorer struct {
	Weights     Weights
	Preferences map[string]PreferenceProfile
}

// NewBlendedScorer builds a BlendedScorer with DefaultWeights and no
// preference profiles configured.
func NewBlendedScorer() *BlendedScorer {
	return &BlendedScorer{Weights: DefaultWeights(), Preferences: map[string]PreferenceProfile{}}
}

func (s *BlendedScorer) Score(query string, queryEmbedding []float32, chunk model.Chunk) model.RelevanceScore {
	lexical := LexicalScore(query, chunk.Content)

	var vector float64
	haveVector := len(queryEmbedding) > 0 && len(chunk.Embedding) == len(queryEmbedding)
	if haveVector {
		vector = cosineSimilarity(queryEmbedding, chunk.Embedding)
	}

	w := s.Weights
	if !haveVector {
		// Without a usable embedding, fall back to pure lexical scoring
		// rather than letting a zero vector term silently depress the
		// score — this IS the mandatory fallback, not a degraded blend.
		return model.RelevanceScore{Score: clamp01(lexical), Confidence: 0.5}
	}

	score := w.VectorSimilarity*vector + w.LexicalOverlap*lexical

	if profile, ok := s.Preferences[chunk.SourceRef.Name]; ok {
		score *= preferenceMultiplier(profile, chunk.Tags, w.UserPreference)
	}

	return model.RelevanceScore{Score: clamp01(score), Confidence: 0.9}
}

func preferenceMultiplier(profile PreferenceProfile, tags []string, weight float64) float64 {
	if len(profile) == 0 || len(tags) == 0 {
		return 1.0
	}
	var sum float64
	var n int
	for _, tag := range tags {
		if boost, ok := profile[tag]; ok {
			sum += boost
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	avgBoost := sum / float64(n)
	// Blend the boost toward neutral by weight so UserPreference=0 means
	// the profile has no effect at all.
	return 1.0 + weight*(avgBoost-1.0)
}

// LexicalScore is the mandatory fallback scorer: Jaccard similarity
// over words longer than two characters, with a flat +0.3 boost when
// the query appears verbatim as a substring of the content (case
// insensitive), clamped to [0,1].
func LexicalScore(query, content string) float64 {
	queryWords := significantWords(query)
	contentWords := significantWords(content)

	score := jaccard(queryWords, contentWords)

	if query != "" && strings.Contains(strings.ToLower(content), strings.ToLower(query)) {
		score += 0.3
	}

	return clamp01(score)
}

func significantWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
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

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

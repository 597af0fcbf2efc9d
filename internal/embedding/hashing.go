// Package embedding provides the query-embedding function the
// orchestrator uses for vector fallback. The core does not care how
// embeddings are computed; HashingEmbedder is the deterministic default
// every ragify deployment can run without a model-serving dependency.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Dim is the default embedding dimension used throughout ragify (chunks,
// query embeddings, and the vector index are all built against it).
const Dim = 384

const (
	wordHashDims   = 200
	charFreqDims   = 64
	textStatsDims  = 64
	positionalDims = Dim - wordHashDims - charFreqDims - textStatsDims // 56
)

// Embedder produces a fixed-dimension embedding for a piece of text.
// Implementations may swap HashingEmbedder for any deterministic
// string -> []float32 function of the same dimension.
type Embedder interface {
	Embed(text string) []float32
	Dim() int
}

// HashingEmbedder is a deterministic feature-hashing embedder: no model,
// no network call, no nondeterminism. It partitions its output vector
// into word-hash, character-frequency, text-statistics, and positional
// feature blocks, then L2-normalizes the result.
type HashingEmbedder struct{}

// NewHashingEmbedder returns the default deterministic embedder.
func NewHashingEmbedder() *HashingEmbedder { return &HashingEmbedder{} }

func (HashingEmbedder) Dim() int { return Dim }

// Embed computes the embedding described in the vector index's query
// embedding contract: first 200 dims normalized word-hash features, next
// 64 character-frequency features, next 64 scaled text statistics, final
// 56 positional features; the whole vector is L2-normalized.
func (HashingEmbedder) Embed(text string) []float32 {
	out := make([]float32, Dim)

	words := strings.Fields(strings.ToLower(text))
	wordHashFeatures(words, out[:wordHashDims])
	charFrequencyFeatures(text, out[wordHashDims:wordHashDims+charFreqDims])
	textStatsFeatures(text, words, out[wordHashDims+charFreqDims:wordHashDims+charFreqDims+textStatsDims])
	positionalFeatures(words, out[wordHashDims+charFreqDims+textStatsDims:])

	return l2Normalize(out)
}

func wordHashFeatures(words []string, dst []float32) {
	if len(words) == 0 {
		return
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		idx := int(h.Sum32()) % len(dst)
		if idx < 0 {
			idx += len(dst)
		}
		dst[idx] += 1.0
	}
	// Normalize by word count so longer texts don't dominate purely by volume.
	n := float32(len(words))
	for i := range dst {
		dst[i] /= n
	}
}

func charFrequencyFeatures(text string, dst []float32) {
	if text == "" {
		return
	}
	var total float32
	for _, r := range strings.ToLower(text) {
		idx := int(r) % len(dst)
		if idx < 0 {
			idx += len(dst)
		}
		dst[idx] += 1.0
		total++
	}
	if total == 0 {
		return
	}
	for i := range dst {
		dst[i] /= total
	}
}

func textStatsFeatures(text string, words []string, dst []float32) {
	if len(dst) == 0 {
		return
	}
	var sentences, punctuation int
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			sentences++
		}
		if unicode.IsPunct(r) {
			punctuation++
		}
	}
	if sentences == 0 && len(text) > 0 {
		sentences = 1
	}

	stats := []float32{
		float32(len(text)) / 1000.0,
		float32(len(words)) / 100.0,
		float32(sentences) / 20.0,
		float32(punctuation) / 50.0,
	}
	for i, v := range stats {
		if i >= len(dst) {
			break
		}
		dst[i] = v
	}
}

func positionalFeatures(words []string, dst []float32) {
	if len(dst) == 0 || len(words) == 0 {
		return
	}
	for i, w := range words {
		if i >= len(dst) {
			break
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		// Scale the hash into [0,1) so early-word identity contributes a
		// small, stable positional signal without swamping the other blocks.
		dst[i] = float32(h.Sum32()%1000) / 1000.0
	}
}

func l2Normalize(v []float32) []float32 {
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

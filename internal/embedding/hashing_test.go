package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashingEmbedder_Dimension(t *testing.T) {
	e := NewHashingEmbedder()
	require.Equal(t, Dim, e.Dim())
	require.Len(t, e.Embed("hello world"), Dim)
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	e := NewHashingEmbedder()
	a := e.Embed("the quick brown fox jumps over the lazy dog")
	b := e.Embed("the quick brown fox jumps over the lazy dog")
	require.Equal(t, a, b)
}

func TestHashingEmbedder_L2Normalized(t *testing.T) {
	e := NewHashingEmbedder()
	v := e.Embed("ragify context orchestration pipeline")

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	require.InDelta(t, 1.0, norm, 1e-4)
}

func TestHashingEmbedder_DistinctTextsDiffer(t *testing.T) {
	e := NewHashingEmbedder()
	a := e.Embed("vector databases and retrieval augmented generation")
	b := e.Embed("a completely different sentence about cooking pasta")
	require.NotEqual(t, a, b)
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder()
	v := e.Embed("")
	require.Len(t, v, Dim)
	for _, x := range v {
		require.Zero(t, x)
	}
}

package tokencount

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordCounter_EmptyTextCountsZero(t *testing.T) {
	var c WordCounter
	require.Equal(t, 0, c.Count(""))
}

func TestWordCounter_ScalesWithWordCount(t *testing.T) {
	var c WordCounter
	short := c.Count("one two three")
	long := c.Count("one two three four five six seven eight")
	require.Greater(t, long, short)
}

func TestDefault_ReturnsUsableCounter(t *testing.T) {
	c := Default()
	require.NotNil(t, c)
	require.GreaterOrEqual(t, c.Count("ragify orchestrates retrieval"), 1)
}

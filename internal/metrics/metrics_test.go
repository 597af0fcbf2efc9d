package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_ReturnsSameInstanceOnRepeatedCalls(t *testing.T) {
	a := New()
	b := New()
	require.Same(t, a, b)
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.CacheHitsTotal)

	m.RecordCacheHit()

	require.Equal(t, before+1, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestRecordSourceFetch_IncrementsByChunkCount(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("docs"))

	m.RecordSourceFetch("docs", 3, 0.01)

	require.Equal(t, before+3, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("docs")))
}

func TestRecordPrivacyViolation(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.PrivacyViolationsTotal.WithLabelValues("restricted"))

	m.RecordPrivacyViolation("restricted")

	require.Equal(t, before+1, testutil.ToFloat64(m.PrivacyViolationsTotal.WithLabelValues("restricted")))
}

func TestRecordVectorSearch_CountsErrors(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.VectorSearchErrors)

	m.RecordVectorSearch(0.002, errSentinel)

	require.Equal(t, before+1, testutil.ToFloat64(m.VectorSearchErrors))
}

var errSentinel = &testError{}

type testError struct{}

func (e *testError) Error() string { return "sentinel" }

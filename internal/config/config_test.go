package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_MatchesDocumentedDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	require.Equal(t, "public", cfg.Orchestrator.PrivacyLevel)
	require.Equal(t, 10000, cfg.Orchestrator.MaxContextSize)
	require.Equal(t, 0.5, cfg.Orchestrator.DefaultRelevanceThreshold)
	require.True(t, cfg.Orchestrator.EnableCaching)
	require.Equal(t, 3600*time.Second, cfg.Orchestrator.CacheTTL)
	require.Equal(t, 0.7, cfg.Orchestrator.ConflictDetectionThreshold)
	require.Equal(t, 30*time.Second, cfg.Orchestrator.SourceTimeout)
	require.Equal(t, 10, cfg.Orchestrator.MaxConcurrentSources)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadPort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownPrivacyLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Orchestrator.PrivacyLevel = "classified"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsOutOfRangeRelevanceThreshold(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Orchestrator.DefaultRelevanceThreshold = 1.5
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownVectorBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.VectorIndex.Backend = "pinecone"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownCacheBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cache.Backend = "memcached"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsZeroScoringWeights(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scoring.VectorSimilarity = 0
	cfg.Scoring.LexicalOverlap = 0
	cfg.Scoring.UserPreference = 0
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownLoggingFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Logging.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestConfig_Validate_AcceptsQdrantBackendWithValidHost(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.VectorIndex.Backend = "qdrant"
	cfg.VectorIndex.Qdrant.Host = "qdrant.internal.example.com"
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsQdrantHostInjection(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.VectorIndex.Backend = "qdrant"
	cfg.VectorIndex.Qdrant.Host = "localhost; rm -rf /"
	require.Error(t, cfg.Validate())
}

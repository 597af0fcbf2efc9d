// Package config provides configuration loading for ragify.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults, mirroring the orchestrator's own
// documented defaults (spec: Configuration Options).
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete ragify configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	VectorIndex  VectorIndexConfig  `koanf:"vector_index"`
	Cache        CacheConfig        `koanf:"cache"`
	Scoring      ScoringConfig      `koanf:"scoring"`
	Privacy      PrivacyConfig      `koanf:"privacy"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OrchestratorConfig mirrors the get_context configuration surface.
type OrchestratorConfig struct {
	PrivacyLevel               string        `koanf:"privacy_level"`
	MaxContextSize             int           `koanf:"max_context_size"`
	DefaultRelevanceThreshold  float64       `koanf:"default_relevance_threshold"`
	EnableCaching              bool          `koanf:"enable_caching"`
	CacheTTL                   time.Duration `koanf:"cache_ttl"`
	ConflictDetectionThreshold float64       `koanf:"conflict_detection_threshold"`
	SourceTimeout              time.Duration `koanf:"source_timeout"`
	MaxConcurrentSources       int           `koanf:"max_concurrent_sources"`
}

// VectorIndexConfig selects and configures the vector backend.
type VectorIndexConfig struct {
	// Backend is one of "exact", "ivf", "chromem", "qdrant".
	Backend string `koanf:"backend"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
	IVF     IVFConfig     `koanf:"ivf"`
}

// ChromemConfig holds chromem-go embedded vector database configuration.
type ChromemConfig struct {
	Path           string `koanf:"path"`
	CollectionName string `koanf:"collection_name"`
}

// QdrantConfig holds Qdrant vector database configuration.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	CollectionName string `koanf:"collection_name"`
	APIKey         Secret `koanf:"api_key"`
}

// IVFConfig holds inverted-file approximate index configuration.
type IVFConfig struct {
	NList  int `koanf:"nlist"`
	NProbe int `koanf:"nprobe"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	// Backend is one of "memory", "redis".
	Backend  string      `koanf:"backend"`
	Capacity int         `koanf:"capacity"`
	Redis    RedisConfig `koanf:"redis"`
}

// RedisConfig holds Redis cache backend configuration.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  Secret `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// ScoringConfig holds relevance-scoring weight configuration.
type ScoringConfig struct {
	VectorSimilarity float64 `koanf:"vector_similarity"`
	LexicalOverlap   float64 `koanf:"lexical_overlap"`
	UserPreference   float64 `koanf:"user_preference"`
}

// PrivacyConfig holds privacy gate configuration.
type PrivacyConfig struct {
	DefaultTargetLevel string `koanf:"default_target_level"`
}

// LoggingConfig mirrors logging.Config's koanf shape for file/env loading.
type LoggingConfig struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns a Config populated with the orchestrator's
// documented defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Orchestrator: OrchestratorConfig{
			PrivacyLevel:               "public",
			MaxContextSize:             10000,
			DefaultRelevanceThreshold:  0.5,
			EnableCaching:              true,
			CacheTTL:                   3600 * time.Second,
			ConflictDetectionThreshold: 0.7,
			SourceTimeout:              30 * time.Second,
			MaxConcurrentSources:       10,
		},
		VectorIndex: VectorIndexConfig{
			Backend: "exact",
			Chromem: ChromemConfig{
				Path:           "~/.config/ragify/vectorstore",
				CollectionName: "ragify_default",
			},
			Qdrant: QdrantConfig{
				Host:           "localhost",
				Port:           6334,
				CollectionName: "ragify_default",
			},
			IVF: IVFConfig{
				NList:  16,
				NProbe: 4,
			},
		},
		Cache: CacheConfig{
			Backend:  "memory",
			Capacity: 1000,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "ragify:ctx:",
			},
		},
		Scoring: ScoringConfig{
			VectorSimilarity: 0.7,
			LexicalOverlap:   0.2,
			UserPreference:   0.1,
		},
		Privacy: PrivacyConfig{
			DefaultTargetLevel: "public",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Fields: map[string]string{"service": "ragify"},
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Orchestrator.PrivacyLevel {
	case "public", "private", "enterprise", "restricted":
	default:
		return fmt.Errorf("invalid orchestrator.privacy_level: %q", c.Orchestrator.PrivacyLevel)
	}
	if c.Orchestrator.MaxContextSize <= 0 {
		return errors.New("orchestrator.max_context_size must be positive")
	}
	if c.Orchestrator.DefaultRelevanceThreshold < 0 || c.Orchestrator.DefaultRelevanceThreshold > 1 {
		return errors.New("orchestrator.default_relevance_threshold must be in [0,1]")
	}
	if c.Orchestrator.MaxConcurrentSources <= 0 {
		return errors.New("orchestrator.max_concurrent_sources must be positive")
	}
	if c.Orchestrator.SourceTimeout <= 0 {
		return errors.New("orchestrator.source_timeout must be positive")
	}

	switch c.VectorIndex.Backend {
	case "exact", "ivf", "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vector_index.backend: %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Backend == "qdrant" {
		if err := validateHostname(c.VectorIndex.Qdrant.Host); err != nil {
			return fmt.Errorf("invalid vector_index.qdrant.host: %w", err)
		}
	}
	if c.VectorIndex.Backend == "chromem" {
		if err := validatePath(c.VectorIndex.Chromem.Path); err != nil {
			return fmt.Errorf("invalid vector_index.chromem.path: %w", err)
		}
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache.backend: %q", c.Cache.Backend)
	}

	weightSum := c.Scoring.VectorSimilarity + c.Scoring.LexicalOverlap + c.Scoring.UserPreference
	if weightSum <= 0 {
		return errors.New("scoring weights must sum to a positive value")
	}

	switch c.Privacy.DefaultTargetLevel {
	case "public", "private", "enterprise", "restricted":
	default:
		return fmt.Errorf("invalid privacy.default_target_level: %q", c.Privacy.DefaultTargetLevel)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	return nil
}

// validateHostname checks if a hostname is safe (no command injection attempts).
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}

	invalidChars := []string{";", "\n", "\r", "$", "`", "|", "&", "<", ">", "(", ")"}
	for _, char := range invalidChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("invalid hostname: contains forbidden character %q", char)
		}
	}
	return nil
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	return nil
}

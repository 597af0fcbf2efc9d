// internal/config/loader.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RAGIFY_ORCHESTRATOR_MAX_CONTEXT_SIZE, etc.)
//  2. YAML config file (~/.config/ragify/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path.
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 or 0400 permissions.
// Files with weaker permissions (e.g., 0644 world-readable) are rejected,
// since the file may carry secrets (Qdrant API key, Redis password).
//
// Path Validation: Only configuration files in allowed directories can be
// loaded: ~/.config/ragify/ or /etc/ragify/. Absolute paths outside these
// directories are rejected to prevent path traversal attacks.
//
// File Size Limit: Configuration files larger than 1MB are rejected.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "ragify", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	def := NewDefaultConfig()
	if err := k.Load(confmap.Provider(defaultsMap(def), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables use underscore separator and are uppercased.
	// Example: RAGIFY_ORCHESTRATOR_MAX_CONTEXT_SIZE -> orchestrator.max_context_size
	// Only the first underscore becomes a dot, so keys nested two levels deep
	// (e.g. cache.redis.password) cannot be set from the environment.
	if err := k.Load(env.Provider("RAGIFY_", ".", func(s string) string {
		trimmed := strings.TrimPrefix(s, "RAGIFY_")
		lower := strings.ToLower(trimmed)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the ragify config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "ragify")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "ragify"),
		"/etc/ragify",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/ragify/ or /etc/ragify/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// defaultsMap flattens the documented orchestrator defaults into the
// dotted keys koanf expects, so environment/file overrides layer on top.
func defaultsMap(def *Config) map[string]interface{} {
	return map[string]interface{}{
		"server.http_port":                          def.Server.Port,
		"server.shutdown_timeout":                    def.Server.ShutdownTimeout,
		"orchestrator.privacy_level":                 def.Orchestrator.PrivacyLevel,
		"orchestrator.max_context_size":               def.Orchestrator.MaxContextSize,
		"orchestrator.default_relevance_threshold":    def.Orchestrator.DefaultRelevanceThreshold,
		"orchestrator.enable_caching":                 def.Orchestrator.EnableCaching,
		"orchestrator.cache_ttl":                      def.Orchestrator.CacheTTL,
		"orchestrator.conflict_detection_threshold":   def.Orchestrator.ConflictDetectionThreshold,
		"orchestrator.source_timeout":                 def.Orchestrator.SourceTimeout,
		"orchestrator.max_concurrent_sources":          def.Orchestrator.MaxConcurrentSources,
		"vector_index.backend":                        def.VectorIndex.Backend,
		"vector_index.chromem.path":                    def.VectorIndex.Chromem.Path,
		"vector_index.chromem.collection_name":         def.VectorIndex.Chromem.CollectionName,
		"vector_index.qdrant.host":                     def.VectorIndex.Qdrant.Host,
		"vector_index.qdrant.port":                     def.VectorIndex.Qdrant.Port,
		"vector_index.qdrant.collection_name":          def.VectorIndex.Qdrant.CollectionName,
		"vector_index.ivf.nlist":                       def.VectorIndex.IVF.NList,
		"vector_index.ivf.nprobe":                      def.VectorIndex.IVF.NProbe,
		"cache.backend":                                def.Cache.Backend,
		"cache.capacity":                               def.Cache.Capacity,
		"cache.redis.addr":                             def.Cache.Redis.Addr,
		"cache.redis.key_prefix":                        def.Cache.Redis.KeyPrefix,
		"scoring.vector_similarity":                    def.Scoring.VectorSimilarity,
		"scoring.lexical_overlap":                      def.Scoring.LexicalOverlap,
		"scoring.user_preference":                       def.Scoring.UserPreference,
		"privacy.default_target_level":                 def.Privacy.DefaultTargetLevel,
		"logging.level":                                def.Logging.Level,
		"logging.format":                               def.Logging.Format,
	}
}

// Command ragifyd runs the context orchestrator as an HTTP daemon: it
// loads configuration, wires the vector index/cache/scoring backends
// the configuration selects, and serves the context API until signaled
// to shut down.
//
// Configuration is loaded from ~/.config/ragify/config.yaml (or
// /etc/ragify/config.yaml), with RAGIFY_-prefixed environment variables
// taking precedence. See internal/config for the full surface.
//
// Usage:
//
//	ragifyd
//	ragifyd -config /etc/ragify/config.yaml
//	ragifyd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ragifylabs/ragify/internal/cache"
	"github.com/ragifylabs/ragify/internal/cache/redisbackend"
	"github.com/ragifylabs/ragify/internal/config"
	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/datasource/natssource"
	"github.com/ragifylabs/ragify/internal/embedding"
	"github.com/ragifylabs/ragify/internal/fusion"
	"github.com/ragifylabs/ragify/internal/httpapi"
	"github.com/ragifylabs/ragify/internal/logging"
	"github.com/ragifylabs/ragify/internal/metrics"
	"github.com/ragifylabs/ragify/internal/model"
	"github.com/ragifylabs/ragify/internal/orchestrator"
	"github.com/ragifylabs/ragify/internal/scoring"
	"github.com/ragifylabs/ragify/internal/vectorindex"
	"github.com/ragifylabs/ragify/internal/vectorindex/chromembackend"
	"github.com/ragifylabs/ragify/internal/vectorindex/qdrantbackend"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to config.yaml")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 && args[0] == "version" {
		fmt.Printf("ragifyd %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ragifyd: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/ragify/config.yaml"
	}
	return home + "/.config/ragify/config.yaml"
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(ctx, "starting ragifyd",
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_backend", cfg.VectorIndex.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	m := metrics.New()

	orch, closeFn, err := buildOrchestrator(ctx, cfg, logger, m)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	defer closeFn()

	srv := httpapi.NewServer(orch, logger.Underlying())
	logger.Info(ctx, "http server configured",
		zap.String("healthz", fmt.Sprintf("http://localhost:%d/healthz", cfg.Server.Port)),
		zap.String("metrics", "/metrics"),
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	err = srv.Start(ctx, addr, cfg.Server.ShutdownTimeout)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	lcfg.Format = cfg.Logging.Format
	lcfg.Fields = cfg.Logging.Fields
	// logging.LevelFromString understands "trace" (below zap's own Debug)
	// in addition to the standard zap level names, since Logger exposes a
	// Trace method for ultra-verbose vector-search/fan-out diagnostics.
	if lvl, err := logging.LevelFromString(cfg.Logging.Level); err == nil {
		lcfg.Level = lvl
	}
	return logging.NewLogger(lcfg)
}

// buildOrchestrator wires the orchestrator's optional dependencies
// (vector index, cache, embedder) according to the loaded configuration,
// returning a cleanup function that releases every backend it opened.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*orchestrator.Orchestrator, func(), error) {
	embedder := embedding.NewHashingEmbedder()

	idx, err := buildVectorIndex(ctx, cfg, embedder.Dim())
	if err != nil {
		return nil, nil, fmt.Errorf("build vector index: %w", err)
	}

	c := buildCache(cfg)

	ocfg := orchestrator.Config{
		PrivacyLevel:               model.ParsePrivacyLevel(cfg.Orchestrator.PrivacyLevel),
		MaxContextSize:             cfg.Orchestrator.MaxContextSize,
		DefaultRelevanceThreshold:  cfg.Orchestrator.DefaultRelevanceThreshold,
		EnableCaching:              cfg.Orchestrator.EnableCaching,
		CacheTTL:                   cfg.Orchestrator.CacheTTL,
		ConflictDetectionThreshold: cfg.Orchestrator.ConflictDetectionThreshold,
		SourceTimeout:              cfg.Orchestrator.SourceTimeout,
		MaxConcurrentSources:       cfg.Orchestrator.MaxConcurrentSources,
		FusionConfig:               fusion.DefaultConfig(),
	}

	scorer := scoring.NewBlendedScorer()
	scorer.Weights = scoring.Weights{
		VectorSimilarity: cfg.Scoring.VectorSimilarity,
		LexicalOverlap:   cfg.Scoring.LexicalOverlap,
		UserPreference:   cfg.Scoring.UserPreference,
	}

	opts := []orchestrator.Option{
		orchestrator.WithCache(c),
		orchestrator.WithScorer(scorer),
		orchestrator.WithLogger(logger.Underlying()),
		orchestrator.WithMetrics(m),
	}
	if idx != nil {
		opts = append(opts, orchestrator.WithVectorIndex(idx, embedder))
	}

	orch := orchestrator.New(ocfg, opts...)

	if realtime, err := buildRealtimeSource(); err != nil {
		logger.Warn(ctx, "realtime source unavailable", zap.Error(err))
	} else if realtime != nil {
		orch.AddSource(realtime)
	}

	closeFn := func() {
		_ = orch.Close()
	}
	return orch, closeFn, nil
}

func buildVectorIndex(ctx context.Context, cfg *config.Config, dim int) (vectorindex.Index, error) {
	switch cfg.VectorIndex.Backend {
	case "exact":
		return vectorindex.NewExactIndex(dim, vectorindex.MetricCosine), nil
	case "ivf":
		return vectorindex.NewIVFIndex(vectorindex.IVFConfig{
			Dim:    dim,
			Metric: vectorindex.MetricCosine,
			NList:  cfg.VectorIndex.IVF.NList,
			NProbe: cfg.VectorIndex.IVF.NProbe,
		}), nil
	case "chromem":
		return chromembackend.New(chromembackend.Config{
			Path:           cfg.VectorIndex.Chromem.Path,
			CollectionName: cfg.VectorIndex.Chromem.CollectionName,
		})
	case "qdrant":
		return qdrantbackend.New(ctx, qdrantbackend.Config{
			Host:           cfg.VectorIndex.Qdrant.Host,
			Port:           cfg.VectorIndex.Qdrant.Port,
			CollectionName: cfg.VectorIndex.Qdrant.CollectionName,
			APIKey:         cfg.VectorIndex.Qdrant.APIKey.Value(),
		}, dim)
	default:
		return nil, fmt.Errorf("unsupported vector_index.backend %q", cfg.VectorIndex.Backend)
	}
}

func buildCache(cfg *config.Config) cache.Cache {
	if cfg.Cache.Backend == "redis" {
		return redisbackend.New(redisbackend.Config{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password.Value(),
			DB:        cfg.Cache.Redis.DB,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
		})
	}
	return cache.NewInMemory(cfg.Cache.Capacity)
}

// buildRealtimeSource optionally wires a NATS-backed realtime source
// when RAGIFY_NATS_URL and RAGIFY_NATS_SUBJECT are set; most
// deployments run without a realtime feed, so this is opt-in via
// environment rather than a dedicated config section.
func buildRealtimeSource() (datasource.Source, error) {
	url := os.Getenv("RAGIFY_NATS_URL")
	subject := os.Getenv("RAGIFY_NATS_SUBJECT")
	if url == "" || subject == "" {
		return nil, nil
	}
	return natssource.New(natssource.Config{
		Name:           "realtime",
		Subject:        subject,
		URL:            url,
		PrivacyLevel:   model.PrivacyPublic,
		AuthorityScore: 0.5,
		FreshnessScore: 1.0,
		BufferSize:     200,
	})
}

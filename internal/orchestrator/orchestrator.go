// Package orchestrator implements the context orchestrator: the
// concurrent source fan-out, cache probe, vector fallback, privacy
// gate, scoring, fusion, and truncation pipeline that turns a
// ContextRequest into a ContextResponse.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/cache"
	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/embedding"
	"github.com/ragifylabs/ragify/internal/fusion"
	"github.com/ragifylabs/ragify/internal/metrics"
	"github.com/ragifylabs/ragify/internal/model"
	"github.com/ragifylabs/ragify/internal/privacy"
	"github.com/ragifylabs/ragify/internal/scoring"
	"github.com/ragifylabs/ragify/internal/tokencount"
	"github.com/ragifylabs/ragify/internal/vectorindex"
)

// Config holds every recognized orchestrator option from the
// configuration surface. New uses it as given and fills in no defaults
// for zero-valued fields; DefaultConfig returns the documented defaults.
type Config struct {
	PrivacyLevel               model.PrivacyLevel
	MaxContextSize             int
	DefaultRelevanceThreshold  float64
	EnableCaching              bool
	CacheTTL                   time.Duration
	ConflictDetectionThreshold float64
	SourceTimeout              time.Duration
	MaxConcurrentSources       int
	FusionConfig               fusion.Config
}

// DefaultConfig returns the configuration surface's documented defaults.
func DefaultConfig() Config {
	return Config{
		PrivacyLevel:               model.PrivacyPublic,
		MaxContextSize:             10000,
		DefaultRelevanceThreshold:  0.5,
		EnableCaching:              true,
		CacheTTL:                   3600 * time.Second,
		ConflictDetectionThreshold: fusion.DefaultSimilarityThreshold,
		SourceTimeout:              30 * time.Second,
		MaxConcurrentSources:       10,
		FusionConfig:               fusion.DefaultConfig(),
	}
}

// Orchestrator is the main entry point: add_source/remove_source/
// list_sources/get_context/close/is_healthy, exactly per the contract.
type Orchestrator struct {
	cfg    Config
	logger *zap.Logger

	cache   cache.Cache
	index   vectorindex.Index
	embed   embedding.Embedder
	gate    *privacy.Gate
	scorer  scoring.Scorer
	metrics *metrics.Metrics
	tokens  tokencount.Counter

	mu          sync.RWMutex
	sources     map[string]datasource.Source
	initialized bool
	closed      bool
}

// Option configures optional dependencies at construction time.
type Option func(*Orchestrator)

// WithCache wires a Cache; if omitted, caching is a no-op regardless of
// cfg.EnableCaching.
func WithCache(c cache.Cache) Option { return func(o *Orchestrator) { o.cache = c } }

// WithVectorIndex wires a vector index and the embedder used to embed
// queries for the fallback path (§4.1 step 6).
func WithVectorIndex(idx vectorindex.Index, embedder embedding.Embedder) Option {
	return func(o *Orchestrator) {
		o.index = idx
		o.embed = embedder
	}
}

// WithScorer overrides the default blended scorer.
func WithScorer(s scoring.Scorer) Option { return func(o *Orchestrator) { o.scorer = s } }

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics wires Prometheus instrumentation; if omitted, GetContext
// runs unmonitored.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTokenCounter overrides the default tokencount.Default() used to
// backfill chunk.TokenCount for sources that don't populate it.
func WithTokenCounter(c tokencount.Counter) Option { return func(o *Orchestrator) { o.tokens = c } }

// New builds an Orchestrator. It is lazily initialized on the first
// GetContext call, matching the contract's "lazy-initialize on first
// call if not yet initialized."
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		logger:  zap.NewNop(),
		gate:    privacy.NewGate(),
		scorer:  scoring.NewBlendedScorer(),
		tokens:  tokencount.Default(),
		sources: make(map[string]datasource.Source),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AddSource registers a source. Replacing an existing name is allowed
// and logged.
func (o *Orchestrator) AddSource(src datasource.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.sources[src.Name()]; exists {
		o.logger.Info("replacing existing source", zap.String("source", src.Name()))
	}
	o.sources[src.Name()] = src
}

// RemoveSource unregisters a source by name. Removing an unknown name
// is a no-op.
func (o *Orchestrator) RemoveSource(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sources, name)
}

// ListSources returns the names of all registered sources.
func (o *Orchestrator) ListSources() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.sources))
	for name := range o.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all source handles, cache, and vector index. Further
// GetContext calls return apierrors.ErrClosed.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	for _, src := range o.sources {
		_ = src.Close()
	}
	if o.index != nil {
		_ = o.index.Close()
	}
	if closer, ok := o.cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	return nil
}

// IsHealthy reports true iff initialized, not closed, and every
// registered source reports healthy.
func (o *Orchestrator) IsHealthy(ctx context.Context) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.initialized || o.closed {
		return false
	}
	for _, src := range o.sources {
		healthy, err := src.Health(ctx)
		if err != nil || !healthy {
			return false
		}
	}
	return true
}

// GetContext is the main entry point: it runs the full retrieval
// pipeline documented step by step below.
func (o *Orchestrator) GetContext(ctx context.Context, req model.ContextRequest) (model.ContextResponse, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordContextRequest(outcome, time.Since(start).Seconds())
		}
	}()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		outcome = "closed"
		return model.ContextResponse{}, apierrors.ErrClosed
	}
	o.initialized = true
	o.mu.Unlock()

	// 2. Privacy validation: a request below the orchestrator's
	// configured ceiling is refused outright.
	if req.PrivacyLevel < o.cfg.PrivacyLevel {
		outcome = "privacy_violation"
		if o.metrics != nil {
			o.metrics.RecordPrivacyViolation(req.PrivacyLevel.String())
		}
		return model.ContextResponse{}, apierrors.NewPrivacyViolation("get_context", o.cfg.PrivacyLevel, req.PrivacyLevel)
	}

	minRelevance := req.MinRelevance
	if minRelevance == 0 {
		minRelevance = o.cfg.DefaultRelevanceThreshold
	}

	// 3. Source selection: snapshot the registry once so a concurrent
	// add_source/remove_source never changes the set mid fan-out.
	selected := o.selectSources(req)

	// 4. Cache probe.
	fingerprint := cache.Fingerprint(req)
	if o.cfg.EnableCaching && o.cache != nil {
		if resp, ok, err := o.cache.Get(ctx, fingerprint); err == nil && ok {
			if o.metrics != nil {
				o.metrics.RecordCacheHit()
			}
			return resp, nil
		}
		if o.metrics != nil {
			o.metrics.RecordCacheMiss()
		}
	}

	// 5. Fan-out.
	chunks, sourceErrors := o.fanOut(ctx, selected, req)

	// 6. Vector fallback.
	usedVectorFallback := false
	if len(chunks) == 0 && o.index != nil && o.embed != nil {
		vecStart := time.Now()
		fallback, err := o.vectorFallback(ctx, req)
		if o.metrics != nil {
			o.metrics.RecordVectorSearch(time.Since(vecStart).Seconds(), err)
		}
		if err != nil {
			o.logger.Warn("vector fallback failed", zap.Error(err))
		} else {
			chunks = fallback
			usedVectorFallback = len(fallback) > 0
		}
	}

	// 7. Still empty -> fatal.
	if len(chunks) == 0 {
		outcome = "not_found"
		return model.ContextResponse{}, apierrors.ErrContextNotFound
	}

	// 8. Privacy gate.
	gated := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		out, err := o.gate.Apply(c, req.PrivacyLevel)
		if err != nil {
			continue // chunk above the request's level is silently dropped, not a request-level failure
		}
		if out.TokenCount == 0 && out.Content != "" && o.tokens != nil {
			out.TokenCount = o.tokens.Count(out.Content)
		}
		gated = append(gated, out)
	}

	// 9. Scoring.
	queryEmbedding := o.embedQuery(req.Query)
	for i := range gated {
		score := o.scorer.Score(req.Query, queryEmbedding, gated[i])
		gated[i].RelevanceScore = &score
	}

	// 10. Threshold filter.
	filtered := gated[:0]
	for _, c := range gated {
		if c.Score() >= minRelevance {
			filtered = append(filtered, c)
		}
	}

	// 11. Fusion, only if more than one chunk survives.
	var fused []model.Chunk
	if len(filtered) > 1 {
		fcfg := o.cfg.FusionConfig
		fcfg.SimilarityThreshold = o.cfg.ConflictDetectionThreshold
		fcfg.Now = time.Now()
		fused = fusion.Fuse(filtered, req.Query, fcfg)
	} else {
		fused = filtered
	}
	if o.metrics != nil {
		o.metrics.RecordFusion(len(filtered), len(filtered)-len(fused), len(fused))
	}

	// Stable final sort: descending score, ties by ascending id, since
	// fusion's own ordering is by fusion_score, not relevance_score.
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score() != fused[j].Score() {
			return fused[i].Score() > fused[j].Score()
		}
		return fused[i].ID < fused[j].ID
	})

	// 12. Truncation.
	truncated := truncate(fused, req.MaxChunks, req.MaxTokens)

	// 13. Build response, insert into cache, return.
	resp := model.ContextResponse{
		ID:           uuid.NewString(),
		Query:        req.Query,
		Chunks:       truncated,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		MaxTokens:    req.MaxTokens,
		PrivacyLevel: req.PrivacyLevel,
		Metadata:     map[string]any{},
	}
	if len(sourceErrors) > 0 {
		resp.Metadata["source_errors"] = sourceErrors
	}
	if usedVectorFallback {
		resp.Metadata["retrieval_method"] = "vector_search"
	}

	if o.cfg.EnableCaching && o.cache != nil {
		if err := o.cache.Set(ctx, fingerprint, resp, o.cfg.CacheTTL); err != nil {
			o.logger.Warn("cache set failed", zap.Error(err))
		}
	}

	return resp, nil
}

func (o *Orchestrator) selectSources(req model.ContextRequest) []datasource.Source {
	o.mu.RLock()
	defer o.mu.RUnlock()

	include := toSet(req.IncludeSources)
	exclude := toSet(req.ExcludeSources)

	selected := make([]datasource.Source, 0, len(o.sources))
	for name, src := range o.sources {
		if len(include) > 0 {
			if _, ok := include[name]; !ok {
				continue
			}
		}
		if _, ok := exclude[name]; ok {
			continue
		}
		if !src.IsActive() {
			continue
		}
		selected = append(selected, src)
	}
	return selected
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

// fanOut concurrently invokes get_chunks on every selected source under
// a per-source timeout, bounded to MaxConcurrentSources in flight. A
// per-source failure is captured and never aborts the request.
func (o *Orchestrator) fanOut(ctx context.Context, sources []datasource.Source, req model.ContextRequest) ([]model.Chunk, map[string]string) {
	var (
		mu           sync.Mutex
		allChunks    []model.Chunk
		sourceErrors = make(map[string]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	limit := o.cfg.MaxConcurrentSources
	if limit <= 0 {
		limit = len(sources)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	chunkReq := datasource.ChunkRequest{
		Query:        req.Query,
		MaxChunks:    req.MaxChunks,
		MinRelevance: req.MinRelevance,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
	}

	for _, src := range sources {
		src := src
		g.Go(func() error {
			fetchStart := time.Now()
			srcCtx, cancel := context.WithTimeout(gctx, o.cfg.SourceTimeout)
			defer cancel()

			chunks, err := src.GetChunks(srcCtx, chunkReq)
			if err != nil {
				kind := "error"
				mu.Lock()
				if srcCtx.Err() != nil {
					kind = "timeout"
					sourceErrors[src.Name()] = apierrors.NewSourceTimeout(src.Name(), err).Error()
				} else {
					sourceErrors[src.Name()] = apierrors.NewSourceError(src.Name(), err).Error()
				}
				mu.Unlock()
				if o.metrics != nil {
					o.metrics.RecordSourceError(src.Name(), kind)
				}
				return nil // never abort the fan-out
			}
			mu.Lock()
			allChunks = append(allChunks, chunks...)
			mu.Unlock()
			if o.metrics != nil {
				o.metrics.RecordSourceFetch(src.Name(), len(chunks), time.Since(fetchStart).Seconds())
			}
			return nil
		})
	}
	_ = g.Wait()

	return allChunks, sourceErrors
}

// vectorFallback embeds the query and searches the vector index per
// the contract's §4.1 step 6: up to max_chunks neighbors at score >=
// 0.1, additionally requiring a query word match unless score >= 0.7.
func (o *Orchestrator) vectorFallback(ctx context.Context, req model.ContextRequest) ([]model.Chunk, error) {
	queryEmbedding := o.embed.Embed(req.Query)

	k := req.MaxChunks
	if k <= 0 {
		k = 20
	}
	minScore := 0.1
	results, err := o.index.Search(ctx, vectorindex.SearchRequest{Query: queryEmbedding, K: k, MinScore: &minScore})
	if err != nil {
		return nil, apierrors.NewVectorIndexError("search", err)
	}

	queryWords := queryWordSet(req.Query)
	chunks := make([]model.Chunk, 0, len(results))
	for _, r := range results {
		chunk := chunkFromVectorRecord(r.Record)
		if r.Score < 0.7 && !containsQueryWord(chunk.Content, queryWords) {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (o *Orchestrator) embedQuery(query string) []float32 {
	if o.embed == nil {
		return nil
	}
	return o.embed.Embed(query)
}

func chunkFromVectorRecord(r model.VectorRecord) model.Chunk {
	content, _ := r.Metadata["content"].(string)
	sourceName, _ := r.Metadata["source_name"].(string)
	return model.Chunk{
		ID:        r.ChunkID,
		Content:   content,
		SourceRef: model.SourceRef{Name: sourceName, Type: model.SourceTypeVector},
		Metadata:  map[string]any{},
		Embedding: r.Embedding,
	}
}

func queryWordSet(query string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range splitWords(query) {
		out[w] = struct{}{}
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur = append(cur, r)
			continue
		}
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

func containsQueryWord(content string, queryWords map[string]struct{}) bool {
	for _, w := range splitWords(content) {
		if _, ok := queryWords[w]; ok {
			return true
		}
	}
	return false
}

// truncate implements §4.1 step 12: sort is assumed already applied by
// the caller; take the first maxChunks (0 means emit zero), then drop
// from the tail while cumulative token_count exceeds maxTokens.
func truncate(chunks []model.Chunk, maxChunks, maxTokens int) []model.Chunk {
	if maxChunks == 0 {
		return nil
	}
	out := chunks
	if maxChunks > 0 && maxChunks < len(out) {
		out = out[:maxChunks]
	}
	if maxTokens <= 0 {
		return out
	}

	total := 0
	for _, c := range out {
		total += c.TokenCount
	}
	for total > maxTokens && len(out) > 0 {
		last := out[len(out)-1]
		total -= last.TokenCount
		out = out[:len(out)-1]
	}
	return out
}

// Package chromembackend adapts github.com/philippgille/chromem-go, an
// embedded pure-Go vector database, to the vectorindex.Index contract.
// It is the recommended backend once a corpus outgrows
// vectorindex.ExactIndex's in-memory brute-force search but a separate
// vector service isn't warranted yet.
package chromembackend

import (
	"context"
	"fmt"
	"sort"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
	"github.com/ragifylabs/ragify/internal/vectorindex"
)

// Backend implements vectorindex.Index over a single chromem-go
// collection. Embeddings are supplied already computed (ragify owns
// embedding, chromem-go is used purely as storage+ANN), so the
// collection is constructed with a no-op embedding function.
type Backend struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// Config configures a Backend.
type Config struct {
	// Path, when non-empty, persists the database to disk; empty keeps
	// everything in memory (the common case for tests).
	Path           string
	CollectionName string
}

// New opens (or creates) the named collection.
func New(cfg Config) (*Backend, error) {
	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("chromembackend: open db: %w", err)
	}

	name := cfg.CollectionName
	if name == "" {
		name = "ragify"
	}
	// Embeddings arrive precomputed via model.VectorRecord. No embedding
	// func is passed (nil), so chromem-go installs its default one; it is
	// never called on the insert path used here because AddDocument is
	// always given vectors.
	coll, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromembackend: get or create collection: %w", err)
	}
	return &Backend{db: db, collection: coll}, nil
}

func (b *Backend) Insert(ctx context.Context, rec model.VectorRecord) error {
	doc := chromem.Document{
		ID:        rec.ID,
		Embedding: rec.Embedding,
		Metadata:  stringifyMetadata(rec),
	}
	if err := b.collection.AddDocument(ctx, doc); err != nil {
		return apierrors.NewVectorIndexError("insert", err)
	}
	return nil
}

func (b *Backend) Update(ctx context.Context, rec model.VectorRecord) error {
	if err := b.collection.Delete(ctx, nil, nil, rec.ID); err != nil {
		return apierrors.NewVectorIndexError("update", err)
	}
	return b.Insert(ctx, rec)
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.collection.Delete(ctx, nil, nil, id); err != nil {
		return apierrors.NewVectorIndexError("delete", err)
	}
	return nil
}

// Search runs chromem-go's nearest-neighbor query and maps results back
// to vectorindex.SearchResult, breaking ties by ascending record ID to
// match the contract's deterministic tie-break rule (chromem-go itself
// does not guarantee an order among equal-similarity results).
func (b *Backend) Search(ctx context.Context, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	k := req.K
	if k <= 0 || k > b.collection.Count() {
		k = b.collection.Count()
	}
	if k == 0 {
		return nil, nil
	}

	docs, err := b.collection.QueryEmbedding(ctx, req.Query, k, nil, nil)
	if err != nil {
		return nil, apierrors.NewVectorIndexError("search", err)
	}

	results := make([]vectorindex.SearchResult, 0, len(docs))
	for _, d := range docs {
		score := float64(d.Similarity)
		if !vectorindex.PassesMinScore(req, score) {
			continue
		}
		results = append(results, vectorindex.SearchResult{
			Record: model.VectorRecord{ID: d.ID, ChunkID: chunkIDOf(d.Metadata, d.ID), Embedding: d.Embedding, Metadata: unstringifyMetadata(d.Metadata)},
			Score:  score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	return results, nil
}

func (b *Backend) Get(ctx context.Context, id string) (model.VectorRecord, bool, error) {
	doc, err := b.collection.GetByID(ctx, id)
	if err != nil {
		return model.VectorRecord{}, false, nil
	}
	return model.VectorRecord{ID: doc.ID, ChunkID: chunkIDOf(doc.Metadata, doc.ID), Embedding: doc.Embedding, Metadata: unstringifyMetadata(doc.Metadata)}, true, nil
}

func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		"backend":    "chromem",
		"index_type": "chromem",
		"total":      b.collection.Count(),
		"count":      b.collection.Count(),
	}, nil
}

func (b *Backend) Close() error { return nil }

func stringifyMetadata(rec model.VectorRecord) map[string]string {
	out := make(map[string]string, len(rec.Metadata)+1)
	out["chunk_id"] = rec.ChunkID
	for k, v := range rec.Metadata {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// chunkIDOf recovers the chunk_id stashed in metadata by stringifyMetadata,
// falling back to the document ID for records written before that field
// existed.
func chunkIDOf(meta map[string]string, fallback string) string {
	if id, ok := meta["chunk_id"]; ok && id != "" {
		return id
	}
	return fallback
}

// unstringifyMetadata reverses stringifyMetadata. chromem-go's own
// metadata map is string-valued, so every value round-trips as a string
// rather than its original type (a fine trade for the fields the
// orchestrator's vector fallback actually reads: "content", "source_name").
func unstringifyMetadata(meta map[string]string) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

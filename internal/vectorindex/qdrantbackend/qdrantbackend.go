// Package qdrantbackend adapts github.com/qdrant/go-client (the native
// gRPC client) to the vectorindex.Index contract for deployments that
// run Qdrant as a separate service rather than embedding chromem-go
// in-process. It wraps point upserts/searches with a small retry and
// circuit-breaker so a momentarily unreachable Qdrant doesn't take down
// every context request that falls back to vector search.
package qdrantbackend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
	"github.com/ragifylabs/ragify/internal/vectorindex"
)

// Config configures a Backend.
type Config struct {
	Host           string
	Port           int
	CollectionName string
	APIKey         string
	// MaxFailures trips the circuit breaker after this many consecutive
	// failures; FailureWindow is how long it stays open before the next
	// call is allowed through as a trial.
	MaxFailures   int
	FailureWindow time.Duration
}

// Backend implements vectorindex.Index over a remote Qdrant collection.
type Backend struct {
	client         *qdrant.Client
	collectionName string

	mu              sync.Mutex
	consecutiveFail int
	circuitOpenTil  time.Time
	maxFailures     int
	failureWindow   time.Duration
}

// New connects to a Qdrant instance and ensures the target collection
// exists, creating it with the given vector dimension if not.
func New(ctx context.Context, cfg Config, dim int) (*Backend, error) {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 30 * time.Second
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrantbackend: new client: %w", err)
	}

	b := &Backend{
		client:         client,
		collectionName: cfg.CollectionName,
		maxFailures:    cfg.MaxFailures,
		failureWindow:  cfg.FailureWindow,
	}

	exists, err := client.CollectionExists(ctx, cfg.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("qdrantbackend: collection exists: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrantbackend: create collection: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) circuitOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFail >= b.maxFailures && time.Now().Before(b.circuitOpenTil)
}

func (b *Backend) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.consecutiveFail = 0
		return
	}
	b.consecutiveFail++
	if b.consecutiveFail >= b.maxFailures {
		b.circuitOpenTil = time.Now().Add(b.failureWindow)
	}
}

// retryOperation runs op up to 3 times with brief backoff, short-
// circuiting immediately when the breaker is open.
func (b *Backend) retryOperation(ctx context.Context, op func() error) error {
	if b.circuitOpen() {
		return fmt.Errorf("qdrantbackend: circuit open")
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = op()
		b.recordResult(err)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (b *Backend) Insert(ctx context.Context, rec model.VectorRecord) error {
	point := toPoint(rec)
	err := b.retryOperation(ctx, func() error {
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: b.collectionName,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		return apierrors.NewVectorIndexError("insert", err)
	}
	return nil
}

func (b *Backend) Update(ctx context.Context, rec model.VectorRecord) error {
	return b.Insert(ctx, rec)
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	err := b.retryOperation(ctx, func() error {
		_, err := b.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: b.collectionName,
			Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewID(id)}),
		})
		return err
	})
	if err != nil {
		return apierrors.NewVectorIndexError("delete", err)
	}
	return nil
}

func (b *Backend) Search(ctx context.Context, req vectorindex.SearchRequest) ([]vectorindex.SearchResult, error) {
	limit := req.K
	if limit <= 0 {
		limit = 100
	}

	var points []*qdrant.ScoredPoint
	err := b.retryOperation(ctx, func() error {
		res, err := b.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: b.collectionName,
			Query:          qdrant.NewQuery(req.Query...),
			Limit:          ptrUint64(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, apierrors.NewVectorIndexError("search", err)
	}

	results := make([]vectorindex.SearchResult, 0, len(points))
	for _, p := range points {
		score := float64(p.Score)
		if !vectorindex.PassesMinScore(req, score) {
			continue
		}
		results = append(results, vectorindex.SearchResult{
			Record: fromScoredPoint(p),
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
	var points []*qdrant.RetrievedPoint
	err := b.retryOperation(ctx, func() error {
		res, err := b.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: b.collectionName,
			Ids:            []*qdrant.PointId{qdrant.NewID(id)},
			WithVectors:    qdrant.NewWithVectors(true),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil || len(points) == 0 {
		return model.VectorRecord{}, false, nil
	}
	return fromRetrieved(points[0]), true, nil
}

func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	info, err := b.client.GetCollectionInfo(ctx, b.collectionName)
	if err != nil {
		return nil, apierrors.NewVectorIndexError("stats", err)
	}
	return map[string]any{
		"backend":    "qdrant",
		"index_type": "qdrant",
		"collection": b.collectionName,
		"total":      info.GetPointsCount(),
		"points":     info.GetPointsCount(),
	}, nil
}

func (b *Backend) Close() error { return nil }

func ptrUint64(v uint64) *uint64 { return &v }

func toPoint(rec model.VectorRecord) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		"chunk_id": qdrant.NewValueString(rec.ChunkID),
	}
	for k, v := range rec.Metadata {
		payload[k] = qdrant.NewValueString(fmt.Sprintf("%v", v))
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(rec.ID),
		Vectors: qdrant.NewVectors(rec.Embedding...),
		Payload: payload,
	}
}

func fromScoredPoint(p *qdrant.ScoredPoint) model.VectorRecord {
	rec := model.VectorRecord{
		ID:       idToString(p.GetId()),
		Metadata: payloadToMetadata(p.GetPayload()),
	}
	if v := p.GetVectors(); v != nil {
		rec.Embedding = v.GetVector().GetData()
	}
	if chunkID, ok := rec.Metadata["chunk_id"].(string); ok {
		rec.ChunkID = chunkID
	}
	return rec
}

func fromRetrieved(p *qdrant.RetrievedPoint) model.VectorRecord {
	rec := model.VectorRecord{
		ID:       idToString(p.GetId()),
		Metadata: payloadToMetadata(p.GetPayload()),
	}
	if v := p.GetVectors(); v != nil {
		rec.Embedding = v.GetVector().GetData()
	}
	if chunkID, ok := rec.Metadata["chunk_id"].(string); ok {
		rec.ChunkID = chunkID
	}
	return rec
}

func idToString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMetadata(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.GetStringValue()
	}
	return out
}

// Package datasource defines the DataSource contract every chunk producer
// implements (documents, APIs, databases, realtime streams, or the vector
// index acting as a source) and ships a couple of in-process
// implementations used by tests and simple deployments.
package datasource

import (
	"context"

	"github.com/ragifylabs/ragify/internal/model"
)

// ChunkRequest is the request shape get_chunks receives.
type ChunkRequest struct {
	Query        string
	MaxChunks    int
	MinRelevance float64
	UserID       string
	SessionID    string
}

// Source is the DataSource contract. Every source, whether
// document/api/database/realtime/vector, implements this.
//
// get_chunks must return chunks tagged with this source's SourceRef; it
// need not sort or dedupe; it must honor MaxChunks as a soft upper bound;
// it must not error for empty results (return an empty slice).
type Source interface {
	Name() string
	SourceType() model.SourceType
	IsActive() bool
	PrivacyLevel() model.PrivacyLevel
	GetChunks(ctx context.Context, req ChunkRequest) ([]model.Chunk, error)
	Refresh(ctx context.Context) error
	Close() error
	Health(ctx context.Context) (bool, error)
	Stats() map[string]any
}

// Ref returns the model.SourceRef a source's chunks should be tagged with.
// Sources compose this instead of repeating the SourceRef literal.
func Ref(s Source, authority, freshness float64) model.SourceRef {
	return model.SourceRef{
		Name:           s.Name(),
		Type:           s.SourceType(),
		PrivacyLevel:   s.PrivacyLevel(),
		AuthorityScore: authority,
		FreshnessScore: freshness,
	}
}

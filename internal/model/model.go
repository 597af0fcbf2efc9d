// Package model defines the data types that flow through the ragify
// retrieval pipeline: chunks, sources, requests/responses, and the
// transient structures fusion and the vector index build on top of them.
package model

import "time"

// PrivacyLevel is a totally ordered label on chunks and requests.
// Strictness increases public -> private -> enterprise -> restricted.
type PrivacyLevel int

const (
	PrivacyPublic PrivacyLevel = iota
	PrivacyPrivate
	PrivacyEnterprise
	PrivacyRestricted
)

// String renders the privacy level the way it appears in logs, config,
// and the HTTP API.
func (p PrivacyLevel) String() string {
	switch p {
	case PrivacyPublic:
		return "public"
	case PrivacyPrivate:
		return "private"
	case PrivacyEnterprise:
		return "enterprise"
	case PrivacyRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// ParsePrivacyLevel parses the string form produced by String. Unknown
// input defaults to PrivacyPublic, the most permissive-to-read, least
// permissive-to-serve level.
func ParsePrivacyLevel(s string) PrivacyLevel {
	switch s {
	case "private":
		return PrivacyPrivate
	case "enterprise":
		return PrivacyEnterprise
	case "restricted":
		return PrivacyRestricted
	default:
		return PrivacyPublic
	}
}

// SourceType enumerates the kinds of DataSource the orchestrator fans out to.
type SourceType string

const (
	SourceTypeDocument SourceType = "document"
	SourceTypeAPI      SourceType = "api"
	SourceTypeDatabase SourceType = "database"
	SourceTypeRealtime SourceType = "realtime"
	SourceTypeVector   SourceType = "vector"
)

// SourceRef identifies the origin of a chunk: a name, type, authority and
// freshness weight, and the privacy level the chunk was produced under.
type SourceRef struct {
	Name           string       `json:"name"`
	Type           SourceType   `json:"type"`
	PrivacyLevel   PrivacyLevel `json:"privacy_level"`
	AuthorityScore float64      `json:"authority_score"`
	FreshnessScore float64      `json:"freshness_score"`
}

// Source describes a registered DataSource's metadata, independent of the
// DataSource interface itself (see internal/datasource).
type Source struct {
	Name           string       `json:"name"`
	Type           SourceType   `json:"type"`
	PrivacyLevel   PrivacyLevel `json:"privacy_level"`
	AuthorityScore float64      `json:"authority_score"`
	FreshnessScore float64      `json:"freshness_score"`
	Active         bool         `json:"active"`
}

// Ref projects a Source down to the SourceRef a Chunk carries.
func (s Source) Ref() SourceRef {
	return SourceRef{
		Name:           s.Name,
		Type:           s.Type,
		PrivacyLevel:   s.PrivacyLevel,
		AuthorityScore: s.AuthorityScore,
		FreshnessScore: s.FreshnessScore,
	}
}

// RelevanceScore is the scorer's verdict on a chunk's relevance to a query.
type RelevanceScore struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Chunk is the atomic unit of retrieved context.
//
// Invariants: ID is unique within a response; Score and Confidence (when
// RelevanceScore is set) are in [0,1]; len(Embedding) == D whenever
// Embedding is non-nil, where D is the deployment's fixed vector dimension.
type Chunk struct {
	ID             string                 `json:"id"`
	Content        string                 `json:"content"`
	SourceRef      SourceRef              `json:"source_ref"`
	Metadata       map[string]any         `json:"metadata"`
	Tags           []string               `json:"tags"`
	TokenCount     int                    `json:"token_count"`
	Embedding      []float32              `json:"embedding,omitempty"`
	RelevanceScore *RelevanceScore        `json:"relevance_score,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Clone returns a deep-enough copy of the chunk so that pipeline stages
// never mutate a chunk another stage still holds a reference to. Content,
// source ref, and timestamps are value types; Metadata and Tags are copied.
func (c Chunk) Clone() Chunk {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.RelevanceScore != nil {
		score := *c.RelevanceScore
		out.RelevanceScore = &score
	}
	return out
}

// Score returns the chunk's relevance score, or 0 if none was assigned yet.
func (c Chunk) Score() float64 {
	if c.RelevanceScore == nil {
		return 0
	}
	return c.RelevanceScore.Score
}

// ContextRequest is the query envelope passed to Orchestrator.GetContext.
type ContextRequest struct {
	Query           string       `json:"query"`
	UserID          string       `json:"user_id,omitempty"`
	SessionID       string       `json:"session_id,omitempty"`
	MaxTokens       int          `json:"max_tokens"`
	MaxChunks       int          `json:"max_chunks"`
	MinRelevance    float64      `json:"min_relevance"`
	PrivacyLevel    PrivacyLevel `json:"privacy_level"`
	IncludeMetadata bool         `json:"include_metadata"`
	IncludeSources  []string     `json:"include_sources,omitempty"`
	ExcludeSources  []string     `json:"exclude_sources,omitempty"`
}

// ContextResponse is the envelope returned to the caller. Chunks are
// ordered by descending relevance score.
type ContextResponse struct {
	ID           string         `json:"id"`
	Query        string         `json:"query"`
	Chunks       []Chunk        `json:"chunks"`
	UserID       string         `json:"user_id,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	MaxTokens    int            `json:"max_tokens"`
	PrivacyLevel PrivacyLevel   `json:"privacy_level"`
	Metadata     map[string]any `json:"metadata"`
}

// SemanticGroup is the transient grouping structure fusion builds while
// merging near-duplicate chunks. It does not outlive a single fuse() call.
type SemanticGroup struct {
	ID                  string
	Chunks              []Chunk
	SimilarityThreshold float64
	Features            GroupFeatures
}

// GroupFeatures captures the aggregate statistics fusion's quality
// assessment and conflict resolution read from a group.
type GroupFeatures struct {
	AvgAuthority    float64
	ContentDiversity float64
	TagDiversity     float64
	AvgFreshness     float64
}

// Representative returns the chunk with the highest source authority in
// the group, breaking ties lexicographically by chunk id.
func (g SemanticGroup) Representative() Chunk {
	best := g.Chunks[0]
	for _, c := range g.Chunks[1:] {
		if c.SourceRef.AuthorityScore > best.SourceRef.AuthorityScore ||
			(c.SourceRef.AuthorityScore == best.SourceRef.AuthorityScore && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

// VectorRecord is a dense vector with attached metadata stored in the
// vector index.
type VectorRecord struct {
	ID        string         `json:"id"`
	ChunkID   string         `json:"chunk_id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// CacheEntry memoizes a ContextResponse under its request fingerprint.
type CacheEntry struct {
	Fingerprint string
	Response    ContextResponse
	InsertedAt  time.Time
	TTL         time.Duration
}

// Expired reports whether the entry's TTL has elapsed relative to now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.InsertedAt.Add(e.TTL))
}

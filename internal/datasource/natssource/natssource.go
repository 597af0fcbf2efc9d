// Package natssource implements a realtime DataSource backed by a NATS
// subject: it subscribes on construction and buffers the most recent
// messages as chunks, the way a live feed (chat, telemetry, alerts) would
// be modeled as retrievable context.
package natssource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/ragifylabs/ragify/internal/datasource"
	"github.com/ragifylabs/ragify/internal/model"
)

// Config configures a Source.
type Config struct {
	Name           string
	Subject        string
	URL            string
	PrivacyLevel   model.PrivacyLevel
	AuthorityScore float64
	FreshnessScore float64
	// BufferSize bounds the number of recent messages retained in memory.
	BufferSize int
}

// Source subscribes to a NATS subject and exposes buffered messages as
// chunks. Connection lifetime is owned by Close(); Refresh is a no-op
// because the buffer updates continuously via the subscription callback.
type Source struct {
	cfg  Config
	conn *nats.Conn
	sub  *nats.Subscription

	mu     sync.RWMutex
	buffer []model.Chunk
	active bool
}

// New connects to cfg.URL and subscribes to cfg.Subject.
func New(cfg Config) (*Source, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 500
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("natssource: connect: %w", err)
	}

	s := &Source{cfg: cfg, conn: conn, active: true}

	ref := model.SourceRef{
		Name:           cfg.Name,
		Type:           model.SourceTypeRealtime,
		PrivacyLevel:   cfg.PrivacyLevel,
		AuthorityScore: cfg.AuthorityScore,
		FreshnessScore: cfg.FreshnessScore,
	}

	sub, err := conn.Subscribe(cfg.Subject, func(msg *nats.Msg) {
		now := time.Now()
		chunk := model.Chunk{
			ID:        uuid.NewString(),
			Content:   string(msg.Data),
			SourceRef: ref,
			Metadata: map[string]any{
				"nats_subject": msg.Subject,
			},
			Tags:      []string{"realtime"},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.push(chunk)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natssource: subscribe: %w", err)
	}
	s.sub = sub
	return s, nil
}

func (s *Source) push(c model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, c)
	if over := len(s.buffer) - s.cfg.BufferSize; over > 0 {
		s.buffer = s.buffer[over:]
	}
}

func (s *Source) Name() string                      { return s.cfg.Name }
func (s *Source) SourceType() model.SourceType       { return model.SourceTypeRealtime }
func (s *Source) PrivacyLevel() model.PrivacyLevel   { return s.cfg.PrivacyLevel }

func (s *Source) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active && s.conn != nil && s.conn.IsConnected()
}

// GetChunks returns the most recent buffered messages, most recent first,
// bounded by req.MaxChunks.
func (s *Source) GetChunks(ctx context.Context, req datasource.ChunkRequest) ([]model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.buffer)
	max := req.MaxChunks
	if max <= 0 || max > n {
		max = n
	}
	out := make([]model.Chunk, max)
	for i := 0; i < max; i++ {
		out[i] = s.buffer[n-1-i].Clone()
	}
	return out, nil
}

// Refresh is a no-op: the buffer is kept current by the subscription
// callback, not by a pull-based refresh cycle.
func (s *Source) Refresh(ctx context.Context) error { return nil }

func (s *Source) Close() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func (s *Source) Health(ctx context.Context) (bool, error) {
	return s.conn != nil && s.conn.IsConnected(), nil
}

func (s *Source) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"name":         s.cfg.Name,
		"subject":      s.cfg.Subject,
		"buffered":     len(s.buffer),
		"buffer_limit": s.cfg.BufferSize,
		"connected":    s.conn != nil && s.conn.IsConnected(),
	}
}

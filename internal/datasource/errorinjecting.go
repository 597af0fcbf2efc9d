package datasource

import (
	"context"
	"time"

	"github.com/ragifylabs/ragify/internal/model"
)

// ErrorInjectingSource wraps an inner Source and optionally delays or
// fails get_chunks. It exists for the orchestrator's partial-failure and
// timeout test scenarios (a source that "raises after 100ms").
type ErrorInjectingSource struct {
	inner Source
	delay time.Duration
	err   error
}

// NewErrorInjectingSource wraps inner so that GetChunks sleeps for delay
// (respecting ctx cancellation) and then returns err instead of
// delegating, when err is non-nil.
func NewErrorInjectingSource(inner Source, delay time.Duration, err error) *ErrorInjectingSource {
	return &ErrorInjectingSource{inner: inner, delay: delay, err: err}
}

func (s *ErrorInjectingSource) Name() string                   { return s.inner.Name() }
func (s *ErrorInjectingSource) SourceType() model.SourceType     { return s.inner.SourceType() }
func (s *ErrorInjectingSource) IsActive() bool                   { return s.inner.IsActive() }
func (s *ErrorInjectingSource) PrivacyLevel() model.PrivacyLevel { return s.inner.PrivacyLevel() }
func (s *ErrorInjectingSource) Refresh(ctx context.Context) error { return s.inner.Refresh(ctx) }
func (s *ErrorInjectingSource) Close() error                      { return s.inner.Close() }
func (s *ErrorInjectingSource) Health(ctx context.Context) (bool, error) {
	return s.inner.Health(ctx)
}
func (s *ErrorInjectingSource) Stats() map[string]any { return s.inner.Stats() }

func (s *ErrorInjectingSource) GetChunks(ctx context.Context, req ChunkRequest) ([]model.Chunk, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.inner.GetChunks(ctx, req)
}

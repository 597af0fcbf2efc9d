// Package cache memoizes ContextResponses by request fingerprint with
// TTL expiry and LRU eviction once the cache reaches its configured
// capacity, the way a repeated query should skip the whole retrieval
// pipeline and return instantly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
)

// Cache is the contract the orchestrator uses for response memoization.
// Implementations (in-process InMemory, redisbackend.Cache) must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (model.ContextResponse, bool, error)
	Set(ctx context.Context, fingerprint string, resp model.ContextResponse, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) map[string]any
}

type entry struct {
	response     model.ContextResponse
	insertedAt   time.Time
	ttl          time.Duration
	lastAccessed time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.insertedAt.Add(e.ttl))
}

// InMemory is a thread-safe, TTL-expiring, LRU-evicting in-process
// Cache. It is the default backend; redisbackend.Cache is a drop-in
// replacement for deployments that need the cache shared across
// orchestrator replicas.
type InMemory struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int

	hits   int64
	misses int64
}

// NewInMemory builds an InMemory cache bounded to capacity entries (0
// means unbounded — eviction never triggers).
func NewInMemory(capacity int) *InMemory {
	return &InMemory{entries: make(map[string]*entry), capacity: capacity}
}

func (c *InMemory) Get(ctx context.Context, fingerprint string) (model.ContextResponse, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return model.ContextResponse{}, false, nil
	}
	if e.expired(time.Now()) {
		delete(c.entries, fingerprint)
		c.misses++
		return model.ContextResponse{}, false, nil
	}
	e.lastAccessed = time.Now()
	c.hits++
	return e.response, true, nil
}

func (c *InMemory) Set(ctx context.Context, fingerprint string, resp model.ContextResponse, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[fingerprint] = &entry{response: resp, insertedAt: now, ttl: ttl, lastAccessed: now}

	if c.capacity > 0 && len(c.entries) > c.capacity {
		c.evictLRU()
	}
	return nil
}

// evictLRU removes the single least-recently-accessed entry. Callers
// must hold c.mu.
func (c *InMemory) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.lastAccessed, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *InMemory) Delete(ctx context.Context, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
	return nil
}

func (c *InMemory) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	return nil
}

func (c *InMemory) Stats(ctx context.Context) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]any{
		"backend":  "in_memory",
		"size":     len(c.entries),
		"capacity": c.capacity,
		"hits":     c.hits,
		"misses":   c.misses,
	}
}

// ErrNotFound aliases apierrors.ErrCacheMiss. Neither InMemory nor
// redisbackend.Cache returns it: both report a miss as (false, nil).
var ErrNotFound = apierrors.ErrCacheMiss

// Fingerprint deterministically hashes the parts of a ContextRequest
// that affect its result, so that two semantically identical requests
// map to the same cache key regardless of field ordering.
func Fingerprint(req model.ContextRequest) string {
	include := append([]string(nil), req.IncludeSources...)
	exclude := append([]string(nil), req.ExcludeSources...)
	sort.Strings(include)
	sort.Strings(exclude)

	raw := fmt.Sprintf(
		"q=%s|u=%s|s=%s|mt=%d|mc=%d|mr=%.6f|pl=%d|inc=%v|exc=%v",
		req.Query, req.UserID, req.SessionID, req.MaxTokens, req.MaxChunks, req.MinRelevance,
		req.PrivacyLevel, include, exclude,
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

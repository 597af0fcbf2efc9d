// Package apierrors defines the error taxonomy shared across ragify's
// pipeline stages. Only three kinds are ever fatal to a get_context call
// (PrivacyViolation, ContextNotFound, Closed, including wrapped forms); everything
// else is captured and attached to response metadata.
package apierrors

import (
	"errors"
	"fmt"

	"github.com/ragifylabs/ragify/internal/model"
)

// ErrClosed is returned when an operation is attempted after Close().
var ErrClosed = errors.New("orchestrator closed")

// ErrContextNotFound is returned when no chunks could be produced for a query.
var ErrContextNotFound = errors.New("context not found")

// ErrCacheMiss signals an absent or expired cache entry; always non-fatal.
var ErrCacheMiss = errors.New("cache miss")

// PrivacyViolationError reports a request refused for insufficient privilege.
type PrivacyViolationError struct {
	Operation      string
	RequiredLevel  model.PrivacyLevel
	ProvidedLevel  model.PrivacyLevel
}

func (e *PrivacyViolationError) Error() string {
	return fmt.Sprintf("privacy violation on %s: required level %s, request provided %s",
		e.Operation, e.RequiredLevel, e.ProvidedLevel)
}

// NewPrivacyViolation constructs a PrivacyViolationError.
func NewPrivacyViolation(operation string, required, provided model.PrivacyLevel) error {
	return &PrivacyViolationError{Operation: operation, RequiredLevel: required, ProvidedLevel: provided}
}

// IsPrivacyViolation reports whether err wraps a PrivacyViolationError.
func IsPrivacyViolation(err error) bool {
	var pv *PrivacyViolationError
	return errors.As(err, &pv)
}

// SourceError captures a per-source failure. It is non-fatal to
// get_context: the orchestrator records it and skips the source.
type SourceError struct {
	SourceName string
	Cause      error
	Timeout    bool
}

func (e *SourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("source %q timed out: %v", e.SourceName, e.Cause)
	}
	return fmt.Sprintf("source %q failed: %v", e.SourceName, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

// NewSourceError wraps cause as a non-timeout SourceError.
func NewSourceError(sourceName string, cause error) error {
	return &SourceError{SourceName: sourceName, Cause: cause}
}

// NewSourceTimeout wraps cause as a SourceError flagged as a timeout.
func NewSourceTimeout(sourceName string, cause error) error {
	return &SourceError{SourceName: sourceName, Cause: cause, Timeout: true}
}

// VectorIndexError reports a failure of a vector index operation. It is
// fatal to that operation but never to get_context: the fallback path
// degrades to whatever sources produced.
type VectorIndexError struct {
	Operation string
	Cause     error
}

func (e *VectorIndexError) Error() string {
	return fmt.Sprintf("vector index %s failed: %v", e.Operation, e.Cause)
}

func (e *VectorIndexError) Unwrap() error { return e.Cause }

// NewVectorIndexError wraps cause as a VectorIndexError for operation.
func NewVectorIndexError(operation string, cause error) error {
	return &VectorIndexError{Operation: operation, Cause: cause}
}

// CacheError wraps a cache backend failure. Always non-fatal: treated as a
// miss on reads, swallowed on writes.
type CacheError struct {
	Operation string
	Cause     error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Operation, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// NewCacheError wraps cause as a CacheError for operation.
func NewCacheError(operation string, cause error) error {
	return &CacheError{Operation: operation, Cause: cause}
}

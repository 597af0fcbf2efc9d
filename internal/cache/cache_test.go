package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragifylabs/ragify/internal/model"
)

func TestInMemory_SetGet(t *testing.T) {
	c := NewInMemory(10)
	ctx := context.Background()
	resp := model.ContextResponse{ID: "r1", Query: "q"}

	require.NoError(t, c.Set(ctx, "fp1", resp, time.Minute))

	got, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r1", got.ID)
}

func TestInMemory_Expiry(t *testing.T) {
	c := NewInMemory(10)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "fp1", model.ContextResponse{ID: "r1"}, time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemory_LRUEviction(t *testing.T) {
	c := NewInMemory(2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp1", model.ContextResponse{ID: "r1"}, time.Minute))
	require.NoError(t, c.Set(ctx, "fp2", model.ContextResponse{ID: "r2"}, time.Minute))

	// touch fp1 so it's more recently used than fp2
	_, _, _ = c.Get(ctx, "fp1")

	require.NoError(t, c.Set(ctx, "fp3", model.ContextResponse{ID: "r3"}, time.Minute))

	_, ok1, _ := c.Get(ctx, "fp1")
	_, ok2, _ := c.Get(ctx, "fp2")
	_, ok3, _ := c.Get(ctx, "fp3")

	require.True(t, ok1)
	require.False(t, ok2)
	require.True(t, ok3)
}

func TestInMemory_DeleteAndClear(t *testing.T) {
	c := NewInMemory(10)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "fp1", model.ContextResponse{ID: "r1"}, time.Minute))

	require.NoError(t, c.Delete(ctx, "fp1"))
	_, ok, _ := c.Get(ctx, "fp1")
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "fp2", model.ContextResponse{ID: "r2"}, time.Minute))
	require.NoError(t, c.Clear(ctx))
	_, ok, _ = c.Get(ctx, "fp2")
	require.False(t, ok)
}

func TestFingerprint_OrderInvariantForSourceLists(t *testing.T) {
	a := model.ContextRequest{Query: "q", IncludeSources: []string{"b", "a"}}
	b := model.ContextRequest{Query: "q", IncludeSources: []string{"a", "b"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DiffersOnQuery(t *testing.T) {
	a := model.ContextRequest{Query: "one"}
	b := model.ContextRequest{Query: "two"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DiffersOnSessionID(t *testing.T) {
	a := model.ContextRequest{Query: "q", UserID: "u1", SessionID: "session-a"}
	b := model.ContextRequest{Query: "q", UserID: "u1", SessionID: "session-b"}
	require.NotEqual(t, Fingerprint(a), Fingerprint(b), "two sessions must never share a cached response")
}

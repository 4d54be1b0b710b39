package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
	"github.com/ZanzyTHEbar/pinloom/pinloom/db"
	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key1", []byte("value1"), 3600))

	value, ok := cache.Get(ctx, "key1")
	assert.True(t, ok)
	assert.Equal(t, []byte("value1"), value)

	// Capacity 2, a third key evicts the least recently used one
	require.NoError(t, cache.Set(ctx, "key2", []byte("value2"), 3600))
	require.NoError(t, cache.Set(ctx, "key3", []byte("value3"), 3600))

	_, ok = cache.Get(ctx, "key1")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "key2")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "key3")
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "key2"))
	_, ok = cache.Get(ctx, "key2")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestLRUCache_RecencyAndExpiry(t *testing.T) {
	cache := NewLRUCache(2)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 10))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 10))

	// Touch "a" so "b" becomes the eviction candidate
	_, ok := cache.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), 10))

	_, ok = cache.Get(ctx, "b")
	assert.False(t, ok)

	now = now.Add(11 * time.Second)
	_, ok = cache.Get(ctx, "a")
	assert.False(t, ok, "entry must expire after its ttl")
}

func TestLRUCache_OverwriteAndIsolation(t *testing.T) {
	cache := NewLRUCache(0)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	desc := []byte("a red bicycle")
	require.NoError(t, cache.Set(ctx, "vision:abc", desc, 10))
	desc[0] = 'X'

	got, ok := cache.Get(ctx, "vision:abc")
	require.True(t, ok)
	assert.Equal(t, "a red bicycle", string(got), "stored text must not alias the caller's slice")
	got[0] = 'Y'
	again, _ := cache.Get(ctx, "vision:abc")
	assert.Equal(t, "a red bicycle", string(again))

	// Overwriting refreshes the deadline.
	now = now.Add(8 * time.Second)
	require.NoError(t, cache.Set(ctx, "vision:abc", []byte("a blue bicycle"), 10))
	now = now.Add(8 * time.Second)
	got, ok = cache.Get(ctx, "vision:abc")
	require.True(t, ok)
	assert.Equal(t, "a blue bicycle", string(got))

	// Capacity below one still keeps a single entry.
	require.NoError(t, cache.Set(ctx, "vision:def", []byte("a dog"), 10))
	assert.Equal(t, 1, cache.Len())
	_, ok = cache.Get(ctx, "vision:abc")
	assert.False(t, ok)

	now = now.Add(11 * time.Second)
	_, ok = cache.Get(ctx, "vision:def")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "expired entries are dropped on lookup")
}

func TestTokenBucket_BasicRateLimiting(t *testing.T) {
	limiter := NewTokenBucket(2, time.Second)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		release, err := limiter.Acquire(ctx, "user-1")
		require.NoError(t, err)
		release()
	}

	_, err := limiter.Acquire(ctx, "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimitExceeded))

	var rlErr *RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "user-1", rlErr.Key)
	assert.Equal(t, time.Second, rlErr.RetryAfter)

	// Other keys have their own bucket
	_, err = limiter.Acquire(ctx, "user-2")
	assert.NoError(t, err)

	// Refill restores tokens over time
	now = now.Add(1500 * time.Millisecond)
	_, err = limiter.Acquire(ctx, "user-1")
	assert.NoError(t, err)
	_, err = limiter.Acquire(ctx, "user-1")
	assert.Error(t, err)
}

func TestTokenBucket_CanceledContext(t *testing.T) {
	limiter := NewTokenBucket(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Acquire(ctx, "user")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZerologTracer_SpanAndEvent(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tracer.StartSpan(context.Background(), "chat", map[string]any{"user_id": "u1"})
	tracer.Event(ctx, "state_transition", map[string]any{"state": "planning"})
	finish(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"span":"chat"`)
	assert.Contains(t, out, `"event":"span_start"`)
	assert.Contains(t, out, `"event":"state_transition"`)
	assert.Contains(t, out, `"state":"planning"`)
	assert.Contains(t, out, `"event":"span_end"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"user_id":"u1"`)
}

func openTestDB(t *testing.T) *SQLHistoryStore {
	t.Helper()
	conn, err := db.Open(context.Background(), config.DatabaseConfig{
		DSN:  filepath.Join(t.TempDir(), "history.db"),
		Type: db.TypeSQLite,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLHistoryStore(conn)
}

func TestSQLHistoryStore_AppendAndRecent(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, store.Append(ctx, ports.Turn{
			UserID:    "user-1",
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Append(ctx, ports.Turn{UserID: "user-2", Role: "user", Content: "other"}))

	turns, err := store.Recent(ctx, "user-1", 4)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "turn 2", turns[0].Content)
	assert.Equal(t, "turn 5", turns[3].Content)
	assert.Equal(t, "assistant", turns[3].Role)
	assert.Equal(t, "user-1", turns[0].UserID)
	assert.True(t, turns[0].CreatedAt.Equal(base.Add(2*time.Second)))

	turns, err = store.Recent(ctx, "user-2", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "other", turns[0].Content)
}

func TestSQLHistoryStore_RejectsInvalidTurns(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	assert.Error(t, store.Append(ctx, ports.Turn{Role: "user", Content: "no user"}))
	assert.Error(t, store.Append(ctx, ports.Turn{UserID: "u", Role: "system", Content: "bad role"}))

	turns, err := store.Recent(ctx, "u", 0)
	assert.NoError(t, err)
	assert.Empty(t, turns)
}

func BenchmarkLRUCache_SetGet(b *testing.B) {
	cache := NewLRUCache(1000)
	ctx := context.Background()

	for i := 0; b.Loop(); i++ {
		key := fmt.Sprintf("key-%d", i)
		_ = cache.Set(ctx, key, []byte("value"), 3600)
		cache.Get(ctx, key)
	}
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	llmModels "turnstream/internal/domain/models/llm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*ChunkStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewChunkStoreWithCleanup(time.Hour)
	s.now = clock.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestChunkStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(time.Minute)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestChunkStore_AdvanceLifecycle(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	state, err := s.Advance(ctx, "status", time.Minute)
	require.NoError(t, err)
	assert.True(t, state.IsOriginator())

	state, err = s.Advance(ctx, "status", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Count)

	require.NoError(t, s.Set(ctx, "status", llmModels.StreamDoneSentinel, time.Minute))
	state, err = s.Advance(ctx, "status", time.Minute)
	require.NoError(t, err)
	assert.True(t, state.IsDone())

	// After expiry the slot starts over
	clock.Advance(2 * time.Minute)
	state, err = s.Advance(ctx, "status", time.Minute)
	require.NoError(t, err)
	assert.True(t, state.IsOriginator())
}

func TestChunkStore_AdvanceCorrupt(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "status", "nope", 0))
	_, err := s.Advance(ctx, "status", time.Minute)
	var corrupt *llmModels.CorruptStateError
	assert.True(t, errors.As(err, &corrupt))
}

func TestChunkStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	require.NoError(t, s.Set(ctx, "a", "1", time.Second))
	require.NoError(t, s.Set(ctx, "b", "2", 0))
	clock.Advance(time.Minute)

	s.cleanup()
	assert.Equal(t, 1, s.Len())
}

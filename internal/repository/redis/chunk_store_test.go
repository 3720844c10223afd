package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
)

func newTestStore(t *testing.T) (llmRepo.ChunkStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewChunkStore(client, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestChunkStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, ok, err := store.Get(ctx, "rs:chunks:a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "rs:chunks:a", "hello", time.Hour))
	v, ok, err := store.Get(ctx, "rs:chunks:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.Get(ctx, "rs:chunks:a")
	require.NoError(t, err)
	assert.False(t, ok, "value must expire with its TTL")
}

func TestChunkStore_Advance(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	key := "rs:status:a"

	state, err := store.Advance(ctx, key, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, state.IsOriginator())

	state, err = store.Advance(ctx, key, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, llmModels.StreamState{Phase: llmModels.StreamCounting, Count: 2}, state)
	assert.Equal(t, 24*time.Hour, mr.TTL(key))

	require.NoError(t, store.Set(ctx, key, llmModels.StreamDoneSentinel, 24*time.Hour))
	for i := 0; i < 2; i++ {
		state, err = store.Advance(ctx, key, 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, state.IsDone())
	}
	v, _ := mr.Get(key)
	assert.Equal(t, llmModels.StreamDoneSentinel, v, "advance must never overwrite the sentinel")
}

func TestChunkStore_AdvanceCorrupt(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("rs:status:bad", "garbage"))

	_, err := store.Advance(context.Background(), "rs:status:bad", time.Hour)
	var corrupt *llmModels.CorruptStateError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, "garbage", corrupt.Raw)
}

func TestChunkStore_AdvanceConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	const callers = 20

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		originators int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := store.Advance(context.Background(), "rs:status:c", time.Hour)
			if err != nil {
				t.Error(err)
				return
			}
			if state.IsOriginator() {
				mu.Lock()
				originators++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, originators)
}

func TestChunkStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "rs:chunks:a")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

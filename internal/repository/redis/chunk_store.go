package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
)

// Reply codes of advanceScript besides a positive count
const (
	advanceDone    = -1
	advanceCorrupt = -2
)

// advanceScript runs the read-check-increment of a status slot as one server-side step.
// KEYS[1] status key, ARGV[1] ttl in milliseconds, ARGV[2] done sentinel.
var advanceScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == ARGV[2] then
	return -1
end
if v and not string.match(v, '^%d+$') then
	return -2
end
local n = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return n
`)

// ChunkStore implements llm.ChunkStore on Redis
type ChunkStore struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

// NewChunkStore wraps an existing client. The caller owns the client.
func NewChunkStore(client goredis.UniversalClient, logger *slog.Logger) llmRepo.ChunkStore {
	return &ChunkStore{client: client, logger: logger}
}

// NewClient parses a redis:// or rediss:// URL and checks the connection
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStoreUnavailable, err)
	}
	return client, nil
}

// Get returns the value and whether the key exists
func (s *ChunkStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return v, true, nil
}

// Set writes value with a TTL
func (s *ChunkStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Advance runs advanceScript (EVALSHA, falling back to EVAL on a cold script cache)
func (s *ChunkStore) Advance(ctx context.Context, key string, ttl time.Duration) (llmModels.StreamState, error) {
	n, err := advanceScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds(), llmModels.StreamDoneSentinel).Int64()
	if err != nil {
		return llmModels.StreamState{}, fmt.Errorf("%w: advance %s: %v", domain.ErrStoreUnavailable, key, err)
	}

	switch n {
	case advanceDone:
		return llmModels.StreamState{Phase: llmModels.StreamDone}, nil
	case advanceCorrupt:
		raw, _, _ := s.Get(ctx, key)
		s.logger.Error("stream status slot corrupted", "key", key, "value", raw)
		return llmModels.StreamState{}, &llmModels.CorruptStateError{Raw: raw}
	}
	return llmModels.StreamState{Phase: llmModels.StreamCounting, Count: n}, nil
}

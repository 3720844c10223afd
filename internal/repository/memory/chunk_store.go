package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// ChunkStore implements llm.ChunkStore in process memory.
// Suitable for single-instance deployments and tests. Multiple instances need the Redis store.
type ChunkStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewChunkStore creates an in-memory store that sweeps expired keys every minute
func NewChunkStore() *ChunkStore {
	return NewChunkStoreWithCleanup(time.Minute)
}

// NewChunkStoreWithCleanup creates an in-memory store with a custom sweep interval
func NewChunkStoreWithCleanup(cleanupInterval time.Duration) *ChunkStore {
	s := &ChunkStore{
		entries:         make(map[string]entry),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

var _ llmRepo.ChunkStore = (*ChunkStore)(nil)

// lookup returns a live entry. Caller holds mu.
func (s *ChunkStore) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *ChunkStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Get returns the value and whether the key exists
func (s *ChunkStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	return e.value, ok, nil
}

// Set writes value with a TTL. A non-positive TTL never expires.
func (s *ChunkStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return nil
}

// Advance moves a status slot forward under the store lock
func (s *ChunkStore) Advance(ctx context.Context, key string, ttl time.Duration) (llmModels.StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	state, err := llmModels.ParseStreamState(e.value, ok)
	if err != nil {
		return llmModels.StreamState{}, err
	}
	if state.IsDone() {
		return state, nil
	}

	n := state.Count + 1
	s.entries[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: s.expiry(ttl)}
	return llmModels.StreamState{Phase: llmModels.StreamCounting, Count: n}, nil
}

// Len returns the number of stored keys, expired ones included until swept
func (s *ChunkStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine
func (s *ChunkStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *ChunkStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *ChunkStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		s.lookup(key)
	}
}

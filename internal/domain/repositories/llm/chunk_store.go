package llm

import (
	"context"
	"time"

	"turnstream/internal/domain/models/llm"
)

// ChunkStore is the shared key/value store that coordinates originators and resumers.
// It is the only coordination point between processes; implementations must make
// Advance atomic across every process sharing the store.
type ChunkStore interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value with a TTL, replacing any previous value
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Advance atomically moves a status slot forward and returns the state the caller observed.
	// A slot holding the done sentinel is left untouched and StreamDone is returned.
	// Otherwise the count is incremented (absent counts as 0), the TTL is refreshed, and
	// StreamCounting with the new count is returned.
	// Returns *llm.CorruptStateError if the slot holds anything else.
	Advance(ctx context.Context, key string, ttl time.Duration) (llm.StreamState, error)
}

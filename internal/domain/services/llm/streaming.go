package llm

import (
	"context"
	"iter"

	"turnstream/internal/domain/models/llm"
)

// StreamingService runs chat turns and re-attaches clients to them
type StreamingService interface {
	// StartTurn validates the turn, prepares history and starts generation.
	// Validation, ownership and not-found errors are returned before any streaming.
	StartTurn(ctx context.Context, turn *llm.Turn) (*TurnStream, error)

	// ResumeTurn attaches to the chat's latest stream, skipping skipChars characters
	// the client already has
	ResumeTurn(ctx context.Context, chatID, userID string, skipChars int) (*ResumeResult, error)
}

// TurnStream is a started turn
type TurnStream struct {
	StreamID string
	ChatID   string
	ModelID  string
	Deltas   iter.Seq2[string, error]
}

// ResumeResult is what a resume request attaches to.
// Deltas is nil once the stream finished; Message then holds the persisted reply
// if it is still the latest message of the chat.
type ResumeResult struct {
	StreamID string
	Deltas   iter.Seq2[string, error]
	Message  *llm.Message
}

package llm

import (
	"context"

	"turnstream/internal/domain/models/llm"
)

// MessageRepository defines the interface for conversation history and stream id records
type MessageRepository interface {
	// ListMessagesByChat returns the chat history ordered oldest first
	// Returns empty slice if the chat has no messages
	ListMessagesByChat(ctx context.Context, chatID string) ([]llm.Message, error)

	// AppendMessages inserts messages in order. Messages whose id already exists are
	// left untouched, so a retried submit does not duplicate history.
	AppendMessages(ctx context.Context, messages []llm.Message) error

	// DeleteMessagesByIDs removes the given messages from a chat.
	// Unknown ids are ignored.
	DeleteMessagesByIDs(ctx context.Context, chatID string, ids []string) error

	// CreateStreamID records a new generation attempt for the chat
	CreateStreamID(ctx context.Context, record *llm.StreamRecord) error

	// GetLatestStreamID returns the most recently recorded stream id for the chat
	// Returns domain.ErrNotFound if the chat never streamed
	GetLatestStreamID(ctx context.Context, chatID string) (string, error)
}

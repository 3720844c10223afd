package llm

import (
	"context"

	"turnstream/internal/domain/models/llm"
)

// ChatService manages chat sessions for the turn endpoint
type ChatService interface {
	// EnsureChat returns the caller's chat, creating it when the id is unknown.
	// A new chat is titled from firstMessage. Returns domain.ErrForbidden if the
	// chat exists and belongs to another user.
	EnsureChat(ctx context.Context, chatID, userID string, firstMessage *llm.Message) (*llm.Chat, error)

	// GetChat retrieves a chat owned by userID
	// Returns domain.ErrNotFound or domain.ErrForbidden
	GetChat(ctx context.Context, chatID, userID string) (*llm.Chat, error)

	// AppendMessages saves messages to the chat and bumps its updated_at atomically
	AppendMessages(ctx context.Context, chatID string, messages []llm.Message) error
}

package llm

import (
	"context"

	"turnstream/internal/domain/models/llm"
)

// ChatRepository defines the interface for chat data access
type ChatRepository interface {
	// CreateChat creates a new chat owned by chat.UserID
	// Returns *domain.ConflictError if the id is already taken
	CreateChat(ctx context.Context, chat *llm.Chat) error

	// GetChat retrieves a chat by ID without user scoping.
	// Ownership is checked by the caller so a foreign chat yields Forbidden, not Not-Found.
	// Returns domain.ErrNotFound if not found
	GetChat(ctx context.Context, chatID string) (*llm.Chat, error)

	// TouchChat bumps updated_at after a new message lands
	TouchChat(ctx context.Context, chatID string) error
}

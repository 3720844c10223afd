package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"turnstream/internal/config"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	"turnstream/internal/domain/repositories"
	llmRepo "turnstream/internal/domain/repositories/llm"
	llmSvc "turnstream/internal/domain/services/llm"
)

const untitledChat = "New chat"

// Service implements the ChatService interface.
// Ownership is the only access rule: a user can use the chats they created.
type Service struct {
	chatRepo    llmRepo.ChatRepository
	messageRepo llmRepo.MessageRepository
	txManager   repositories.TransactionManager
	logger      *slog.Logger
}

// NewService creates a new chat service
func NewService(
	chatRepo llmRepo.ChatRepository,
	messageRepo llmRepo.MessageRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) llmSvc.ChatService {
	return &Service{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		logger:      logger,
	}
}

// EnsureChat returns the caller's chat, creating it on first submit
func (s *Service) EnsureChat(ctx context.Context, chatID, userID string, firstMessage *llmModels.Message) (*llmModels.Chat, error) {
	chat, err := s.GetChat(ctx, chatID, userID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return chat, err
	}

	now := time.Now()
	chat = &llmModels.Chat{
		ID:        chatID,
		UserID:    userID,
		Title:     DeriveTitle(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.chatRepo.CreateChat(ctx, chat); err != nil {
		// Two first submits raced; the loser reads the winner's chat
		if errors.Is(err, domain.ErrConflict) {
			return s.GetChat(ctx, chatID, userID)
		}
		return nil, err
	}

	s.logger.Info("chat created",
		"chat_id", chat.ID,
		"title", chat.Title,
		"user_id", userID,
	)

	return chat, nil
}

// GetChat retrieves a chat and checks that userID owns it
func (s *Service) GetChat(ctx context.Context, chatID, userID string) (*llmModels.Chat, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if chat.UserID != userID {
		return nil, fmt.Errorf("access denied to chat %s: %w", chatID, domain.ErrForbidden)
	}

	return chat, nil
}

// AppendMessages saves messages and bumps the chat in one transaction
func (s *Service) AppendMessages(ctx context.Context, chatID string, messages []llmModels.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.messageRepo.AppendMessages(txCtx, messages); err != nil {
			return fmt.Errorf("append messages: %w", err)
		}
		if err := s.chatRepo.TouchChat(txCtx, chatID); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		return nil
	})
}

// DeriveTitle uses the start of the first text part as the chat title
func DeriveTitle(msg *llmModels.Message) string {
	if msg == nil {
		return untitledChat
	}

	title := strings.Join(strings.Fields(msg.Text()), " ")
	if title == "" {
		return untitledChat
	}

	if utf8.RuneCountInString(title) > config.DerivedTitleLength {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:config.DerivedTitleLength])) + "…"
	}
	return title
}

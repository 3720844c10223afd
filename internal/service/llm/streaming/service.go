package streaming

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"turnstream/internal/capabilities"
	"turnstream/internal/config"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
	llmSvc "turnstream/internal/domain/services/llm"
)

// ModelCatalog resolves client-facing model ids
type ModelCatalog interface {
	GetModel(id string) (*capabilities.ModelCapabilities, error)
	HasModel(id string) bool
}

// Service implements the StreamingService interface.
// One call to StartTurn produces exactly one generation and at most one saved reply.
type Service struct {
	chats       llmSvc.ChatService
	messageRepo llmRepo.MessageRepository
	source      llmSvc.GenerationSource
	models      ModelCatalog
	coordinator *Coordinator
	config      *config.Config
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a new streaming service. The generation source is injected here
// rather than looked up globally so tests can swap it.
func NewService(
	chats llmSvc.ChatService,
	messageRepo llmRepo.MessageRepository,
	source llmSvc.GenerationSource,
	models ModelCatalog,
	coordinator *Coordinator,
	cfg *config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:       chats,
		messageRepo: messageRepo,
		source:      source,
		models:      models,
		coordinator: coordinator,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

var _ llmSvc.StreamingService = (*Service)(nil)

// StartTurn validates the turn, prepares history and starts generation
func (s *Service) StartTurn(ctx context.Context, turn *llmModels.Turn) (*llmSvc.TurnStream, error) {
	if turn.ModelID == "" {
		turn.ModelID = s.config.DefaultModel
	}
	if turn.Message != nil && turn.Message.ID == "" {
		turn.Message.ID = s.newID()
	}

	if err := s.validateTurn(turn); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var err error
	if turn.IsRegenerate() {
		_, err = s.chats.GetChat(ctx, turn.ChatID, turn.UserID)
	} else {
		_, err = s.chats.EnsureChat(ctx, turn.ChatID, turn.UserID, turn.Message)
	}
	if err != nil {
		return nil, err
	}

	existing, err := s.messageRepo.ListMessagesByChat(ctx, turn.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history, err := s.PrepareHistory(ctx, turn, existing)
	if err != nil {
		return nil, err
	}

	if turn.IsRegenerate() {
		// The reply being regenerated is replaced by the one about to stream
		if err := s.messageRepo.DeleteMessagesByIDs(ctx, turn.ChatID, []string{turn.MessageID}); err != nil {
			s.logger.Warn("failed to delete regenerate target", "chat_id", turn.ChatID, "message_id", turn.MessageID, "error", err)
		}
	} else if len(history) > len(existing) {
		if err := s.chats.AppendMessages(ctx, turn.ChatID, history[len(history)-1:]); err != nil {
			s.logger.Warn("failed to save user message, continuing", "chat_id", turn.ChatID, "message_id", turn.Message.ID, "error", err)
		}
	}

	s.logger.Info("turn accepted",
		"chat_id", turn.ChatID,
		"trigger", turn.Trigger,
		"model", turn.ModelID,
		"history_len", len(history),
	)

	return s.RunTurn(ctx, turn.ChatID, history, turn.ModelID)
}

// RunTurn starts generation for prepared history under a fresh stream id
func (s *Service) RunTurn(ctx context.Context, chatID string, messages []llmModels.Message, modelID string) (*llmSvc.TurnStream, error) {
	model, err := s.models.GetModel(modelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	streamID := s.newID()
	record := &llmModels.StreamRecord{ID: streamID, ChatID: chatID, CreatedAt: s.now()}
	if err := s.messageRepo.CreateStreamID(ctx, record); err != nil {
		// The turn still streams; only the resume endpoint loses track of it
		s.logger.Warn("failed to record stream id", "chat_id", chatID, "stream_id", streamID, "error", err)
	}

	req := &llmSvc.GenerateRequest{
		ModelID:   model.ID,
		System:    BuildSystemPrompt(model.DisplayName, s.now()),
		Messages:  messages,
		MaxTokens: model.MaxOutput,
	}

	makeStream := func(genCtx context.Context) (iter.Seq2[string, error], error) {
		return s.generate(genCtx, chatID, streamID, req), nil
	}

	deltas, err := s.coordinator.ResumableStream(ctx, streamID, makeStream, 0)
	if err != nil {
		return nil, err
	}
	if deltas == nil {
		return nil, fmt.Errorf("fresh stream %s was not originated", streamID)
	}

	return &llmSvc.TurnStream{
		StreamID: streamID,
		ChatID:   chatID,
		ModelID:  model.ID,
		Deltas:   classifyErrors(deltas),
	}, nil
}

// generate adapts the generation source to text deltas and saves the reply once the
// source is exhausted. It runs inside the originator's stream, so the save happens before
// the stream is marked done.
func (s *Service) generate(ctx context.Context, chatID, streamID string, req *llmSvc.GenerateRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		startedAt := s.now()
		var (
			text  strings.Builder
			usage *llmSvc.Usage
		)

		for delta, err := range s.source.Generate(ctx, req) {
			if err != nil {
				yield("", err)
				return
			}
			if delta.Usage != nil {
				usage = delta.Usage
			}
			if delta.Text == "" {
				continue
			}
			text.WriteString(delta.Text)
			if !yield(delta.Text, nil) {
				return
			}
		}

		s.onFinish(ctx, chatID, streamID, req.ModelID, text.String(), usage, startedAt)
	}
}

// onFinish persists the assistant reply. Failure is logged only: the user already has the text.
func (s *Service) onFinish(ctx context.Context, chatID, streamID, modelID, text string, usage *llmSvc.Usage, startedAt time.Time) {
	metadata := &llmModels.MessageMetadata{
		ModelID:    modelID,
		StartedAt:  startedAt,
		DurationMS: s.now().Sub(startedAt).Milliseconds(),
		StreamID:   streamID,
	}
	if usage != nil {
		metadata.InputTokens = usage.InputTokens
		metadata.OutputTokens = usage.OutputTokens
		metadata.StopReason = usage.StopReason
	}

	reply := llmModels.Message{
		ID:        s.newID(),
		ChatID:    chatID,
		Role:      llmModels.RoleAssistant,
		Parts:     []llmModels.Part{{Type: llmModels.PartTypeText, Text: text}},
		Metadata:  metadata,
		CreatedAt: s.now(),
	}

	if err := s.chats.AppendMessages(ctx, chatID, []llmModels.Message{reply}); err != nil {
		s.logger.Error("failed to save assistant message",
			"chat_id", chatID,
			"stream_id", streamID,
			"error", err,
		)
		return
	}

	s.logger.Info("assistant message saved",
		"chat_id", chatID,
		"stream_id", streamID,
		"message_id", reply.ID,
		"model", modelID,
		"input_tokens", metadata.InputTokens,
		"output_tokens", metadata.OutputTokens,
		"duration_ms", metadata.DurationMS,
	)
}

// ResumeTurn attaches to the latest stream of a chat
func (s *Service) ResumeTurn(ctx context.Context, chatID, userID string, skipChars int) (*llmSvc.ResumeResult, error) {
	if skipChars < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", domain.ErrValidation)
	}
	if _, err := s.chats.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}

	result := &llmSvc.ResumeResult{}

	streamID, err := s.messageRepo.GetLatestStreamID(ctx, chatID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Never streamed; fall through to the history fallback
	case err != nil:
		return nil, fmt.Errorf("find latest stream: %w", err)
	default:
		result.StreamID = streamID
		deltas, err := s.coordinator.ResumeExisting(ctx, streamID, skipChars)
		if err != nil {
			return nil, err
		}
		if deltas != nil {
			result.Deltas = deltas
			return result, nil
		}
	}

	messages, err := s.messageRepo.ListMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if n := len(messages); n > 0 && messages[n-1].Role == llmModels.RoleAssistant {
		result.Message = &messages[n-1]
	}

	return result, nil
}

// classifyErrors rewrites provider errors into user-facing ProviderErrors.
// A bare context error passes through untouched: it means the client went away.
// Generation-side timeouts arrive already wrapped in a ProviderError.
func classifyErrors(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for delta, err := range seq {
			if err != nil {
				if isClientGone(err) {
					yield("", err)
				} else {
					yield("", ClassifyError(err))
				}
				return
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

func isClientGone(err error) bool {
	var classified *domain.ProviderError
	if errors.As(err, &classified) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package streaming

import (
	"context"
	"fmt"
	"slices"

	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
)

// PrepareHistory builds the messages a turn generates from.
//
// Submit appends the new message. Submitting a message id that is already the last
// message in the chat is a retry of a turn that produced no reply: the stored message is
// reused and nothing is appended. Any earlier occurrence is a conflict.
// Regenerate truncates to just before the target
// message and asks persistence to delete everything after the target; a failed delete
// is logged and the turn continues on the truncated view. Deleting the target itself
// is left to the caller.
func (s *Service) PrepareHistory(ctx context.Context, turn *llmModels.Turn, existing []llmModels.Message) ([]llmModels.Message, error) {
	if !turn.IsRegenerate() {
		switch idx := indexOfMessage(existing, turn.Message.ID); {
		case idx == len(existing)-1 && idx >= 0:
			return slices.Clone(existing), nil
		case idx >= 0:
			return nil, &domain.ConflictError{
				Message:      "message already submitted",
				ResourceType: "message",
				ResourceID:   turn.Message.ID,
			}
		}

		msg := *turn.Message
		msg.ChatID = turn.ChatID
		history := make([]llmModels.Message, 0, len(existing)+1)
		history = append(history, existing...)
		return append(history, msg), nil
	}

	idx := indexOfMessage(existing, turn.MessageID)
	if idx < 0 {
		return nil, fmt.Errorf("message %s in chat %s: %w", turn.MessageID, turn.ChatID, domain.ErrNotFound)
	}

	if after := existing[idx+1:]; len(after) > 0 {
		ids := llmModels.MessageIDs(after)
		if err := s.messageRepo.DeleteMessagesByIDs(ctx, turn.ChatID, ids); err != nil {
			s.logger.Warn("failed to delete messages after regenerate target, continuing",
				"chat_id", turn.ChatID,
				"message_id", turn.MessageID,
				"count", len(ids),
				"error", err,
			)
		}
	}

	history := make([]llmModels.Message, idx)
	copy(history, existing[:idx])
	return history, nil
}

func indexOfMessage(messages []llmModels.Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

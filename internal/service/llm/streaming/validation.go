package streaming

import (
	"errors"
	"fmt"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"turnstream/internal/config"
	llmModels "turnstream/internal/domain/models/llm"
)

func (s *Service) validateTurn(turn *llmModels.Turn) error {
	submit := !turn.IsRegenerate()

	return validation.ValidateStruct(turn,
		validation.Field(&turn.ChatID, validation.Required, validation.Length(1, config.MaxIDLength)),
		validation.Field(&turn.Trigger,
			validation.Required,
			validation.In(llmModels.TriggerSubmitMessage, llmModels.TriggerRegenerateMessage),
		),
		validation.Field(&turn.ModelID,
			validation.Required,
			validation.Length(1, config.MaxModelIDLength),
			validation.By(s.validateModelID),
		),
		validation.Field(&turn.Message,
			validation.When(submit, validation.Required, validation.By(validateUserMessage)).
				Else(validation.Nil.Error("must be empty for regenerate")),
		),
		validation.Field(&turn.MessageID,
			validation.When(!submit, validation.Required, validation.Length(1, config.MaxIDLength)).
				Else(validation.Empty.Error("must be empty for submit")),
		),
	)
}

func (s *Service) validateModelID(value interface{}) error {
	id, _ := value.(string)
	if id != "" && !s.models.HasModel(id) {
		return fmt.Errorf("unknown model %q", id)
	}
	return nil
}

func validateUserMessage(value interface{}) error {
	msg, ok := value.(*llmModels.Message)
	if !ok || msg == nil {
		return errors.New("invalid message")
	}

	return validation.ValidateStruct(msg,
		validation.Field(&msg.ID, validation.Required, validation.Length(1, config.MaxIDLength)),
		validation.Field(&msg.Role, validation.Required, validation.In(llmModels.RoleUser)),
		validation.Field(&msg.Parts,
			validation.Required,
			validation.Length(1, config.MaxMessageParts),
			validation.Each(validation.By(validatePart)),
		),
	)
}

func validatePart(value interface{}) error {
	part, ok := value.(llmModels.Part)
	if !ok {
		return errors.New("invalid part")
	}

	switch part.Type {
	case llmModels.PartTypeText:
		if part.Text == "" {
			return errors.New("text is required")
		}
		if utf8.RuneCountInString(part.Text) > config.MaxMessageTextLength {
			return fmt.Errorf("text must be at most %d characters", config.MaxMessageTextLength)
		}
	case llmModels.PartTypeFile:
		if part.URL == "" || part.MediaType == "" {
			return errors.New("file parts need url and media_type")
		}
	default:
		return fmt.Errorf("type must be one of: %s, %s", llmModels.PartTypeText, llmModels.PartTypeFile)
	}
	return nil
}

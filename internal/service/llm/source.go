package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"turnstream/internal/capabilities"
	llmModels "turnstream/internal/domain/models/llm"
	llmSvc "turnstream/internal/domain/services/llm"
)

// Wire values used by meridian-llm-go
const (
	blockTypeText  = "text"
	deltaTypeText  = "text_delta"
	stopReasonDone = "end_turn"
)

// ProviderLookup returns a provider instance by provider name.
// Both ProviderFactory and ProviderRegistry satisfy it.
type ProviderLookup interface {
	GetProvider(provider string) (llmprovider.Provider, error)
}

// ModelResolver resolves client-facing model ids to provider models
type ModelResolver interface {
	GetModel(id string) (*capabilities.ModelCapabilities, error)
}

// Source implements GenerationSource on top of meridian-llm-go providers.
// It only forwards text; thinking and tool blocks are dropped.
type Source struct {
	providers ProviderLookup
	models    ModelResolver
	logger    *slog.Logger
}

// NewSource creates a generation source
func NewSource(providers ProviderLookup, models ModelResolver, logger *slog.Logger) *Source {
	return &Source{
		providers: providers,
		models:    models,
		logger:    logger,
	}
}

var _ llmSvc.GenerationSource = (*Source)(nil)

// Generate streams one completion. Setup failures are yielded as the first element.
// Stopping the iteration early cancels the provider call and drains its channel.
func (s *Source) Generate(ctx context.Context, req *llmSvc.GenerateRequest) iter.Seq2[llmSvc.Delta, error] {
	return func(yield func(llmSvc.Delta, error) bool) {
		provider, providerReq, err := s.prepare(req)
		if err != nil {
			yield(llmSvc.Delta{}, err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		events, err := provider.StreamResponse(ctx, providerReq)
		if err != nil {
			cancel()
			yield(llmSvc.Delta{}, err)
			return
		}
		defer func() {
			cancel()
			for range events {
			}
		}()

		s.logger.Debug("provider stream opened",
			"provider", provider.Name().String(),
			"model", providerReq.Model,
			"messages", len(providerReq.Messages),
		)

		blockTypes := make(map[int]string)
		usage := &llmSvc.Usage{Model: providerReq.Model}
		for event := range events {
			if event.Error != nil {
				yield(llmSvc.Delta{}, event.Error)
				return
			}

			if event.Metadata != nil {
				if event.Metadata.Model != "" {
					usage.Model = event.Metadata.Model
				}
				usage.InputTokens = event.Metadata.InputTokens
				usage.OutputTokens = event.Metadata.OutputTokens
				usage.StopReason = event.Metadata.StopReason
			}

			text, ok := textOf(event, blockTypes)
			if !ok {
				continue
			}
			if !yield(llmSvc.Delta{Text: text}, nil) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			// The provider closed its channel because we were cancelled, not because it finished
			yield(llmSvc.Delta{}, err)
			return
		}
		if usage.StopReason == "" {
			usage.StopReason = stopReasonDone
		}
		yield(llmSvc.Delta{Usage: usage}, nil)
	}
}

// prepare resolves the provider and builds the provider request
func (s *Source) prepare(req *llmSvc.GenerateRequest) (llmprovider.Provider, *llmprovider.GenerateRequest, error) {
	model, err := s.models.GetModel(req.ModelID)
	if err != nil {
		return nil, nil, err
	}

	info, err := ParseModel(model.ProviderModel)
	if err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", model.ID, err)
	}

	provider, err := s.providers.GetProvider(info.Provider)
	if err != nil {
		return nil, nil, err
	}
	if !provider.SupportsModel(info.Model) {
		return nil, nil, fmt.Errorf("model %s not found for provider %s", info.Model, info.Provider)
	}

	return provider, buildProviderRequest(info.Model, req), nil
}

// buildProviderRequest converts history to provider messages. File parts are not
// sent: the providers wired here accept text only.
func buildProviderRequest(model string, req *llmSvc.GenerateRequest) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		blocks := make([]*llmprovider.Block, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if part.Type != llmModels.PartTypeText || part.Text == "" {
				continue
			}
			text := part.Text
			blocks = append(blocks, &llmprovider.Block{
				BlockType:   blockTypeText,
				Sequence:    len(blocks),
				TextContent: &text,
			})
		}
		if len(blocks) == 0 {
			continue
		}
		messages = append(messages, llmprovider.Message{
			Role:   msg.Role,
			Blocks: blocks,
		})
	}

	var params *llmprovider.RequestParams
	if req.System != "" {
		system := req.System
		params = &llmprovider.RequestParams{System: &system}
	}

	return &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    model,
		Params:   params,
	}
}

// textOf extracts assistant text from a provider delta. Block starts only record the
// block type; deltas of non-text blocks are skipped.
func textOf(event llmprovider.StreamEvent, blockTypes map[int]string) (string, bool) {
	d := event.Delta
	if d == nil {
		return "", false
	}
	return deltaText(d.BlockIndex, d.BlockType, d.DeltaType, d.TextDelta, blockTypes)
}

func deltaText(blockIndex int, blockType *string, deltaType string, text *string, blockTypes map[int]string) (string, bool) {
	if blockType != nil {
		blockTypes[blockIndex] = *blockType
	}
	if deltaType != deltaTypeText || text == nil || *text == "" {
		return "", false
	}
	if bt, known := blockTypes[blockIndex]; known && bt != blockTypeText {
		return "", false
	}
	return *text, true
}

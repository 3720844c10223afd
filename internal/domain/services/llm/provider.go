package llm

import (
	"context"
	"iter"

	"turnstream/internal/domain/models/llm"
)

// GenerationSource turns a model id, system prompt and history into a lazy stream of
// text deltas. The returned sequence is single-pass: it can be ranged over once.
type GenerationSource interface {
	// Generate starts a generation. Errors that occur before the first delta (bad key,
	// unknown model) are yielded as the first element, not returned separately.
	Generate(ctx context.Context, req *GenerateRequest) iter.Seq2[Delta, error]
}

// GenerateRequest contains the parameters for one generation
type GenerateRequest struct {
	// ModelID is the client-facing catalog id (e.g., "chat-model")
	ModelID string

	// System is the system prompt
	System string

	// Messages is the prepared conversation history, oldest first
	Messages []llm.Message

	// MaxTokens caps output length; zero means the model default
	MaxTokens int
}

// Delta is one element of a generation stream.
// Text deltas carry Text; the final element may carry only Usage.
type Delta struct {
	Text  string
	Usage *Usage
}

// Usage is reported once per generation, after the last text delta
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

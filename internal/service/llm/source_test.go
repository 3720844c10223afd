package llm

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstream/internal/capabilities"
	"turnstream/internal/config"
	llmModels "turnstream/internal/domain/models/llm"
	llmSvc "turnstream/internal/domain/services/llm"
)

const testCatalog = `
models:
  local:
    display_name: Local
    provider_model: lorem-fast
  remote:
    display_name: Remote
    provider_model: claude-haiku-4-5
  unknown-prefix:
    provider_model: gpt-4o
  unknown-provider:
    provider_model: openai/gpt-4o
`

type countingFactory struct {
	calls atomic.Int32
}

func (f *countingFactory) GetProvider(name string) (llmprovider.Provider, error) {
	f.calls.Add(1)
	return NewProviderFactory(&config.Config{}).GetProvider(name)
}

func newTestSource(t *testing.T, cfg *config.Config) *Source {
	t.Helper()
	catalog, err := capabilities.NewRegistryFromYAML([]byte(testCatalog))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSource(NewProviderRegistry(NewProviderFactory(cfg)), catalog, logger)
}

func firstError(seq func(func(llmSvc.Delta, error) bool)) error {
	for _, err := range seq {
		if err != nil {
			return err
		}
	}
	return nil
}

func TestSourceSetupErrors(t *testing.T) {
	source := newTestSource(t, &config.Config{})

	tests := []struct {
		name    string
		modelID string
		wantMsg string
	}{
		{name: "model not in catalog", modelID: "missing", wantMsg: "unknown model"},
		{name: "provider cannot be inferred", modelID: "unknown-prefix", wantMsg: "unable to infer provider"},
		{name: "provider not supported", modelID: "unknown-provider", wantMsg: "unsupported provider"},
		{name: "anthropic without key", modelID: "remote", wantMsg: "api key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &llmSvc.GenerateRequest{ModelID: tt.modelID}
			err := firstError(source.Generate(context.Background(), req))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSourceStreamsLoremAndStopsEarly(t *testing.T) {
	source := newTestSource(t, &config.Config{})
	req := &llmSvc.GenerateRequest{
		ModelID: "local",
		System:  "be brief",
		Messages: []llmModels.Message{
			{ID: "m1", Role: llmModels.RoleUser, Parts: []llmModels.Part{{Type: llmModels.PartTypeText, Text: "hi"}}},
		},
	}

	var got []string
	for delta, err := range source.Generate(context.Background(), req) {
		require.NoError(t, err)
		if delta.Text == "" {
			continue
		}
		got = append(got, delta.Text)
		if len(got) == 3 {
			break
		}
	}

	require.Len(t, got, 3)
	for _, text := range got {
		assert.NotEmpty(t, text)
	}
}

func TestSourceCancelledContext(t *testing.T) {
	source := newTestSource(t, &config.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := firstError(source.Generate(ctx, &llmSvc.GenerateRequest{ModelID: "local"}))
	assert.Error(t, err)
}

func TestBuildProviderRequest(t *testing.T) {
	req := &llmSvc.GenerateRequest{
		System: "system prompt",
		Messages: []llmModels.Message{
			{Role: llmModels.RoleUser, Parts: []llmModels.Part{
				{Type: llmModels.PartTypeText, Text: "look at "},
				{Type: llmModels.PartTypeFile, URL: "https://example.com/a.png", MediaType: "image/png"},
				{Type: llmModels.PartTypeText, Text: "this"},
			}},
			{Role: llmModels.RoleAssistant, Parts: []llmModels.Part{{Type: llmModels.PartTypeFile, URL: "x"}}},
			{Role: llmModels.RoleAssistant, Parts: []llmModels.Part{{Type: llmModels.PartTypeText, Text: "ok"}}},
		},
	}

	got := buildProviderRequest("claude-haiku-4-5", req)

	assert.Equal(t, "claude-haiku-4-5", got.Model)
	require.NotNil(t, got.Params)
	require.NotNil(t, got.Params.System)
	assert.Equal(t, "system prompt", *got.Params.System)

	// The file-only message is dropped entirely
	require.Len(t, got.Messages, 2)
	assert.Equal(t, llmModels.RoleUser, got.Messages[0].Role)
	require.Len(t, got.Messages[0].Blocks, 2)
	assert.Equal(t, "look at ", *got.Messages[0].Blocks[0].TextContent)
	assert.Equal(t, "this", *got.Messages[0].Blocks[1].TextContent)
	assert.Equal(t, 1, got.Messages[0].Blocks[1].Sequence)
	assert.Equal(t, llmModels.RoleAssistant, got.Messages[1].Role)

	assert.Nil(t, buildProviderRequest("m", &llmSvc.GenerateRequest{}).Params)
}

func TestDeltaText(t *testing.T) {
	str := func(s string) *string { return &s }

	blockTypes := make(map[int]string)
	steps := []struct {
		name      string
		index     int
		blockType *string
		deltaType string
		text      *string
		want      string
		wantOK    bool
	}{
		{name: "thinking block start", index: 0, blockType: str("thinking")},
		{name: "thinking text skipped", index: 0, deltaType: "text_delta", text: str("hmm")},
		{name: "text block start", index: 1, blockType: str("text")},
		{name: "text delta", index: 1, deltaType: "text_delta", text: str("hello"), want: "hello", wantOK: true},
		{name: "empty text", index: 1, deltaType: "text_delta", text: str("")},
		{name: "nil text", index: 1, deltaType: "text_delta"},
		{name: "other delta type", index: 1, deltaType: "signature_delta", text: str("sig")},
		{name: "unannounced block", index: 5, deltaType: "text_delta", text: str("x"), want: "x", wantOK: true},
	}

	// Steps share blockTypes, so they run in order
	for _, tt := range steps {
		got, ok := deltaText(tt.index, tt.blockType, tt.deltaType, tt.text, blockTypes)
		assert.Equal(t, tt.wantOK, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	_, ok := textOf(llmprovider.StreamEvent{}, blockTypes)
	assert.False(t, ok)
}

func TestProviderRegistryCachesInstances(t *testing.T) {
	factory := &countingFactory{}
	registry := NewProviderRegistry(factory)

	first, err := registry.GetProvider(ProviderLorem)
	require.NoError(t, err)
	second, err := registry.GetProvider(ProviderLorem)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), factory.calls.Load())

	_, err = registry.GetProvider("")
	assert.Error(t, err)

	// Failures are not cached
	_, err = registry.GetProvider(ProviderAnthropic)
	require.Error(t, err)
	_, err = registry.GetProvider(ProviderAnthropic)
	require.Error(t, err)
	assert.Equal(t, int32(3), factory.calls.Load())
}

func TestProviderFactory(t *testing.T) {
	p, err := NewProviderFactory(&config.Config{}).GetProvider(ProviderLorem)
	require.NoError(t, err)
	assert.True(t, p.SupportsModel("lorem-fast"))

	_, err = NewProviderFactory(&config.Config{AnthropicAPIKey: "sk-test"}).GetProvider(ProviderAnthropic)
	assert.NoError(t, err)
}

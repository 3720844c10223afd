package llm

import (
	"fmt"
	"log/slog"

	"turnstream/internal/background"
	"turnstream/internal/capabilities"
	"turnstream/internal/config"
	"turnstream/internal/domain/repositories"
	llmRepo "turnstream/internal/domain/repositories/llm"
	llmSvc "turnstream/internal/domain/services/llm"
	"turnstream/internal/service/llm/chat"
	"turnstream/internal/service/llm/streaming"
)

// SetupProviders initializes the provider factory and registry for routing.
// Returns a configured ProviderRegistry or an error if setup fails.
func SetupProviders(cfg *config.Config, logger *slog.Logger) (*ProviderRegistry, error) {
	registry := NewProviderRegistry(NewProviderFactory(cfg))

	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("provider registry validation failed: %w", err)
	}

	if cfg.AnthropicAPIKey != "" {
		logger.Info("provider available", "name", ProviderAnthropic, "models", "claude-*")
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set - Anthropic provider not available")
	}
	logger.Info("provider available", "name", ProviderLorem, "models", "lorem-*")

	return registry, nil
}

// Services holds all LLM-related services
type Services struct {
	Chat        llmSvc.ChatService
	Streaming   llmSvc.StreamingService
	Coordinator *streaming.Coordinator
}

// SetupServices initializes all LLM services with proper dependency injection
func SetupServices(
	chatRepo llmRepo.ChatRepository,
	messageRepo llmRepo.MessageRepository,
	chunkStore llmRepo.ChunkStore,
	txManager repositories.TransactionManager,
	providers ProviderLookup,
	capabilityRegistry *capabilities.Registry,
	runner *background.Runner,
	cfg *config.Config,
	logger *slog.Logger,
) (*Services, error) {
	if !capabilityRegistry.HasModel(cfg.DefaultModel) {
		return nil, fmt.Errorf("default model %q is not in the model catalog", cfg.DefaultModel)
	}

	coordinator := streaming.NewCoordinator(
		chunkStore,
		runner,
		streaming.CoordinatorConfig{
			KeyPrefix:         cfg.StreamKeyPrefix,
			TTL:               cfg.StreamTTL,
			GenerationTimeout: cfg.GenerationTimeout,
		},
		logger,
	)

	chatService := chat.NewService(chatRepo, messageRepo, txManager, logger)

	source := NewSource(providers, capabilityRegistry, logger)

	streamingService := streaming.NewService(
		chatService,
		messageRepo,
		source,
		capabilityRegistry,
		coordinator,
		cfg,
		logger,
	)

	return &Services{
		Chat:        chatService,
		Streaming:   streamingService,
		Coordinator: coordinator,
	}, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"turnstream/internal/auth"
	"turnstream/internal/background"
	"turnstream/internal/capabilities"
	"turnstream/internal/config"
	llmRepo "turnstream/internal/domain/repositories/llm"
	"turnstream/internal/handler"
	"turnstream/internal/handler/sse"
	"turnstream/internal/middleware"
	"turnstream/internal/repository/memory"
	"turnstream/internal/repository/postgres"
	postgresLLM "turnstream/internal/repository/postgres/llm"
	redisRepo "turnstream/internal/repository/redis"
	serviceLLM "turnstream/internal/service/llm"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog := loadConfig()
	defer closeLog()

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		return fmt.Errorf("create JWT verifier: %w", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	chunkStore, closeStore, err := openChunkStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := background.New(logger, cfg.BackgroundTimeout)

	mux, err := buildRoutes(cfg, pool, chunkStore, runner, logger)
	if err != nil {
		return err
	}

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.AuthMiddleware(jwtVerifier, logger)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	// Generations whose clients already left still commit their text before exit
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background tasks cancelled", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildRoutes wires repositories, services and handlers onto a mux
func buildRoutes(
	cfg *config.Config,
	pool *pgxpool.Pool,
	chunkStore llmRepo.ChunkStore,
	runner *background.Runner,
	logger *slog.Logger,
) (*http.ServeMux, error) {
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	chatRepo := postgresLLM.NewChatRepository(repoConfig)
	messageRepo := postgresLLM.NewMessageRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	providerRegistry, err := serviceLLM.SetupProviders(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup LLM providers: %w", err)
	}

	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("initialize capability registry: %w", err)
	}
	logger.Info("capability registry initialized", "models", len(capabilityRegistry.ListModels()))

	services, err := serviceLLM.SetupServices(
		chatRepo,
		messageRepo,
		chunkStore,
		txManager,
		providerRegistry,
		capabilityRegistry,
		runner,
		cfg,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("setup LLM services: %w", err)
	}

	// Handlers only see services
	chatHandler := handler.NewChatHandler(services.Streaming, sse.DefaultConfig(), logger)
	modelsHandler := handler.NewModelsHandler(capabilityRegistry, cfg.DefaultModel)

	logger.Info("services initialized")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.HandleFunc("GET /api/models", modelsHandler.ListModels)
	mux.HandleFunc("POST /api/chat", chatHandler.PostChat)
	mux.HandleFunc("GET /api/chat/{id}/stream", chatHandler.ResumeStream)
	return mux, nil
}

// openChunkStore connects to Redis, or falls back to an in-process store when no URL is set.
// The in-process store cannot coordinate across server instances.
func openChunkStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llmRepo.ChunkStore, func(), error) {
	if cfg.RedisURL == "" {
		if cfg.IsProduction() {
			return nil, nil, errors.New("REDIS_URL is required in production")
		}
		logger.Warn("REDIS_URL not set - using in-memory chunk store (single instance only)")
		store := memory.NewChunkStoreWithCleanup(time.Minute)
		return store, func() { _ = store.Close() }, nil
	}

	client, err := redisRepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect chunk store: %w", err)
	}
	logger.Info("chunk store connected", "backend", "redis", "key_prefix", cfg.StreamKeyPrefix)

	return redisRepo.NewChunkStore(client, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis client", "error", err)
		}
	}, nil
}

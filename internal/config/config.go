package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	Environment     string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	CORSOrigins     string
	TablePrefix     string
	// Chunk store (resumable streams)
	RedisURL        string // Empty means in-memory store (dev only)
	StreamKeyPrefix string
	StreamTTL       time.Duration
	// LLM Configuration
	AnthropicAPIKey string
	DefaultModel    string
	// Background tasks that outlive the HTTP response
	BackgroundTimeout time.Duration
	// One generation; ends the stream with a 503 error event
	GenerationTimeout time.Duration
	// Logging
	LogDir      string // Empty disables the log file
	LogMaxFiles int
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	supabaseURL := getEnv("SUPABASE_URL", "")

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       env,
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SupabaseURL:       supabaseURL,
		SupabaseJWKSURL:   supabaseURL + "/auth/v1/.well-known/jwks.json",
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix:       getTablePrefix(env),
		RedisURL:          getEnv("REDIS_URL", ""),
		StreamKeyPrefix:   getEnv("STREAM_KEY_PREFIX", "resumable-stream"),
		StreamTTL:         getDuration("STREAM_TTL", 24*time.Hour),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:      getEnv("DEFAULT_MODEL", "chat-model"),
		BackgroundTimeout: getDuration("BACKGROUND_TIMEOUT", 10*time.Minute),
		GenerationTimeout: getDuration("GENERATION_TIMEOUT", 5*time.Minute),
		LogDir:            getEnv("LOG_DIR", ""),
		LogMaxFiles:       getInt("LOG_MAX_FILES", 10),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// IsProduction reports whether the server runs with production safeguards.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod"
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

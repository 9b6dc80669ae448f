package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all settings for the ragmaker services. Values come from
// RAGMAKER_* environment variables with sensible defaults; a .env file is
// loaded by the CLI entry point before Load runs.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	YouTube  YouTubeConfig
	OpenAI   OpenAIConfig
	Quota    QuotaConfig
	Indexing IndexingConfig
	Query    QueryConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// Token protects the HTTP API with bearer auth; empty disables auth.
	Token string
}

type StorageConfig struct {
	DataDir string
}

type YouTubeConfig struct {
	APIKey string
}

type OpenAIConfig struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Dimension      int
}

type QuotaConfig struct {
	DailyLimit        int
	WarningFraction   float64
	CriticalFraction  float64
	MaxConcurrent     int
	MinDispatchGap    time.Duration
	ResetTimezone     string
}

type IndexingConfig struct {
	ChunkSize            int
	ChunkOverlap         int
	UpsertBatchSize      int
	MetadataBatchSize    int
	ShortDurationSeconds int
	Namespace            string
}

type QueryConfig struct {
	TopK            int
	OverfetchFactor int
	Temperature     float64
	MaxTokens       int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4600},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			Dimension:      1536,
		},
		Quota: QuotaConfig{
			DailyLimit:       10000,
			WarningFraction:  0.8,
			CriticalFraction: 0.95,
			MaxConcurrent:    2,
			MinDispatchGap:   200 * time.Millisecond,
			ResetTimezone:    "America/Los_Angeles",
		},
		Indexing: IndexingConfig{
			ChunkSize:            1000,
			ChunkOverlap:         100,
			UpsertBatchSize:      100,
			MetadataBatchSize:    50,
			ShortDurationSeconds: 60,
		},
		Query: QueryConfig{
			TopK:            5,
			OverfetchFactor: 3,
			Temperature:     0.7,
			MaxTokens:       1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragmaker"
	}
	return home + "/.ragmaker"
}

// Load reads configuration from environment variables over the defaults.
func Load() (Config, error) {
	cfg := defaults()

	cfg.Server.Port = getEnvInt("RAGMAKER_PORT", cfg.Server.Port)
	cfg.Server.Token = os.Getenv("RAGMAKER_API_TOKEN")
	cfg.Storage.DataDir = getEnv("RAGMAKER_DATA_DIR", cfg.Storage.DataDir)
	cfg.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.EmbeddingModel = getEnv("RAGMAKER_EMBEDDING_MODEL", cfg.OpenAI.EmbeddingModel)
	cfg.OpenAI.ChatModel = getEnv("RAGMAKER_CHAT_MODEL", cfg.OpenAI.ChatModel)
	cfg.OpenAI.Dimension = getEnvInt("RAGMAKER_EMBEDDING_DIMENSION", cfg.OpenAI.Dimension)
	cfg.Quota.DailyLimit = getEnvInt("RAGMAKER_QUOTA_LIMIT", cfg.Quota.DailyLimit)
	cfg.Quota.WarningFraction = getEnvFloat("RAGMAKER_QUOTA_WARNING", cfg.Quota.WarningFraction)
	cfg.Quota.CriticalFraction = getEnvFloat("RAGMAKER_QUOTA_CRITICAL", cfg.Quota.CriticalFraction)
	cfg.Quota.MaxConcurrent = getEnvInt("RAGMAKER_QUOTA_CONCURRENCY", cfg.Quota.MaxConcurrent)
	cfg.Quota.MinDispatchGap = getEnvDuration("RAGMAKER_QUOTA_DISPATCH_GAP", cfg.Quota.MinDispatchGap)
	cfg.Quota.ResetTimezone = getEnv("RAGMAKER_QUOTA_TIMEZONE", cfg.Quota.ResetTimezone)
	cfg.Indexing.ChunkSize = getEnvInt("RAGMAKER_CHUNK_SIZE", cfg.Indexing.ChunkSize)
	cfg.Indexing.ChunkOverlap = getEnvInt("RAGMAKER_CHUNK_OVERLAP", cfg.Indexing.ChunkOverlap)
	cfg.Indexing.UpsertBatchSize = getEnvInt("RAGMAKER_UPSERT_BATCH", cfg.Indexing.UpsertBatchSize)
	cfg.Indexing.MetadataBatchSize = getEnvInt("RAGMAKER_METADATA_BATCH", cfg.Indexing.MetadataBatchSize)
	cfg.Indexing.ShortDurationSeconds = getEnvInt("RAGMAKER_SHORT_SECONDS", cfg.Indexing.ShortDurationSeconds)
	cfg.Indexing.Namespace = getEnv("RAGMAKER_NAMESPACE", cfg.Indexing.Namespace)
	cfg.Query.TopK = getEnvInt("RAGMAKER_TOP_K", cfg.Query.TopK)
	cfg.Query.OverfetchFactor = getEnvInt("RAGMAKER_OVERFETCH_FACTOR", cfg.Query.OverfetchFactor)
	cfg.Query.Temperature = getEnvFloat("RAGMAKER_TEMPERATURE", cfg.Query.Temperature)
	cfg.Query.MaxTokens = getEnvInt("RAGMAKER_MAX_TOKENS", cfg.Query.MaxTokens)
	cfg.Log.Level = getEnv("RAGMAKER_LOG_LEVEL", cfg.Log.Level)

	return cfg, cfg.Validate()
}

// Validate rejects configurations that would break invariants downstream.
func (c *Config) Validate() error {
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("RAGMAKER_QUOTA_LIMIT must be positive, got %d", c.Quota.DailyLimit)
	}
	if c.Quota.WarningFraction <= 0 || c.Quota.WarningFraction > 1 {
		return fmt.Errorf("RAGMAKER_QUOTA_WARNING must be in (0,1], got %f", c.Quota.WarningFraction)
	}
	if c.Quota.CriticalFraction <= 0 || c.Quota.CriticalFraction > 1 {
		return fmt.Errorf("RAGMAKER_QUOTA_CRITICAL must be in (0,1], got %f", c.Quota.CriticalFraction)
	}
	if c.Quota.WarningFraction > c.Quota.CriticalFraction {
		return fmt.Errorf("quota warning fraction %f exceeds critical fraction %f",
			c.Quota.WarningFraction, c.Quota.CriticalFraction)
	}
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("RAGMAKER_CHUNK_SIZE must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("RAGMAKER_CHUNK_OVERLAP must be in [0, chunk size), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Query.OverfetchFactor < 1 {
		return fmt.Errorf("RAGMAKER_OVERFETCH_FACTOR must be at least 1, got %d", c.Query.OverfetchFactor)
	}
	if c.OpenAI.Dimension <= 0 {
		return fmt.Errorf("RAGMAKER_EMBEDDING_DIMENSION must be positive, got %d", c.OpenAI.Dimension)
	}
	if _, err := time.LoadLocation(c.Quota.ResetTimezone); err != nil {
		return fmt.Errorf("RAGMAKER_QUOTA_TIMEZONE %q: %w", c.Quota.ResetTimezone, err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.tutorly/config.yaml or ./config.yaml)
//  3. Default values
//
// The configuration value is constructed once at process start, validated
// immediately (fail-fast), and passed explicitly to every component that
// needs it. There is no ambient global lookup.
//
// Security: API keys and the database URL are masked in String/MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tutorly/tutorly/internal/provider"
)

var (
	// ErrMissingAPIKey indicates the selected provider's API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates an unsupported provider name.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingDatabaseURL indicates DATABASE_URL is not configured.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrInvalidChunking indicates chunk size/overlap are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBatching indicates batch/concurrency limits are out of range.
	ErrInvalidBatching = errors.New("invalid batching parameters")

	// ErrInvalidRetry indicates retry parameters are out of range.
	ErrInvalidRetry = errors.New("invalid retry parameters")

	// ErrInvalidPort indicates the server port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidDimension indicates the embedding dimension is invalid.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidContextBudget indicates the context character budget is invalid.
	ErrInvalidContextBudget = errors.New("invalid context budget")
)

// Default models per provider, applied when chat_model/embed_model are
// left empty.
const (
	DefaultGeminiChatModel  = "gemini-2.5-flash"
	DefaultGeminiEmbedModel = "gemini-embedding-001"
	DefaultOpenAIChatModel  = "gpt-4o-mini"
	DefaultOpenAIEmbedModel = "text-embedding-3-small"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Provider selection and models
	Provider   string `mapstructure:"provider" json:"provider"` // "gemini" (default) or "openai"
	ChatModel  string `mapstructure:"chat_model" json:"chat_model"`
	EmbedModel string `mapstructure:"embed_model" json:"embed_model"`

	// API credentials (environment only, never from file)
	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenAIAPIKey string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON

	// Vector store
	DatabaseURL    string `mapstructure:"database_url" json:"database_url"` // SENSITIVE: masked in MarshalJSON
	EmbedDimension int32  `mapstructure:"embed_dimension" json:"embed_dimension"`

	// Server
	Port       int    `mapstructure:"port" json:"port"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
	LogJSON    bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel   string `mapstructure:"log_level" json:"log_level"`

	// Retrieval
	DefaultScope    string `mapstructure:"default_scope" json:"default_scope"`
	DefaultK        int    `mapstructure:"default_k" json:"default_k"`
	MaxContextChars int    `mapstructure:"max_context_chars" json:"max_context_chars"`

	// Ingestion
	DataDir            string        `mapstructure:"data_dir" json:"data_dir"`
	ChunkSize          int           `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap       int           `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	EmbedBatchSize     int           `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	MaxConcurrentFiles int           `mapstructure:"max_concurrent_files" json:"max_concurrent_files"`
	MaxFileSizeMB      int           `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`
	RetryAttempts      int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay" json:"retry_delay"`
	BatchDelay         time.Duration `mapstructure:"batch_delay" json:"batch_delay"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".tutorly")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.applyModelDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// applyModelDefaults fills empty model names with the selected
// provider's defaults.
func (c *Config) applyModelDefaults() {
	switch c.Provider {
	case provider.OpenAI:
		if c.ChatModel == "" {
			c.ChatModel = DefaultOpenAIChatModel
		}
		if c.EmbedModel == "" {
			c.EmbedModel = DefaultOpenAIEmbedModel
		}
	default:
		if c.ChatModel == "" {
			c.ChatModel = DefaultGeminiChatModel
		}
		if c.EmbedModel == "" {
			c.EmbedModel = DefaultGeminiEmbedModel
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", provider.Gemini)
	v.SetDefault("embed_dimension", 768)

	v.SetDefault("port", 3000)
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")

	v.SetDefault("default_scope", "")
	v.SetDefault("default_k", 8)
	v.SetDefault("max_context_chars", 8000)

	v.SetDefault("data_dir", filepath.Join("data", "raw"))
	v.SetDefault("chunk_size", 2500)
	v.SetDefault("chunk_overlap", 300)
	v.SetDefault("embed_batch_size", 10)
	v.SetDefault("max_concurrent_files", 5)
	v.SetDefault("max_file_size_mb", 100)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("batch_delay", 50*time.Millisecond)
}

// bindEnvVariables binds environment variables explicitly. Secrets come
// only from the environment, never from the config file.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("database_url", "DATABASE_URL")

	mustBind("provider", "AI_PROVIDER")
	mustBind("chat_model", "CHAT_MODEL")
	mustBind("embed_model", "EMBED_MODEL")
	mustBind("embed_dimension", "EMBED_DIMENSION")
	mustBind("port", "PORT")
	mustBind("trust_proxy", "TRUST_PROXY")
	mustBind("rate_burst", "RATE_BURST")
	mustBind("log_json", "LOG_JSON")
	mustBind("log_level", "LOG_LEVEL")

	mustBind("default_scope", "DEFAULT_SCOPE")
	mustBind("default_k", "DEFAULT_K")
	mustBind("max_context_chars", "MAX_CONTEXT_CHARS")

	mustBind("data_dir", "DATA_DIR")
	mustBind("chunk_size", "CHUNK_SIZE")
	mustBind("chunk_overlap", "CHUNK_OVERLAP")
	mustBind("embed_batch_size", "EMBED_BATCH_SIZE")
	mustBind("max_concurrent_files", "MAX_CONCURRENT_FILES")
	mustBind("max_file_size_mb", "MAX_FILE_SIZE_MB")
	mustBind("retry_attempts", "RETRY_ATTEMPTS")
	mustBind("retry_delay", "RETRY_DELAY")
	mustBind("batch_delay", "BATCH_DELAY")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for
// debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit masking of
// sensitive fields. When adding a sensitive field, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.DatabaseURL = maskSecret(a.DatabaseURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// Level parses LogLevel into a slog.Level, defaulting to Info.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

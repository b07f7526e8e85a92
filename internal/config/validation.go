package config

import (
	"fmt"
	"strings"

	"github.com/tutorly/tutorly/internal/provider"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
// A failing Validate is fatal at startup: the process must not begin
// serving or ingesting with a broken configuration.
func (c *Config) Validate() error {
	// 1. Provider and credentials. Only the selected provider's key is
	// required.
	switch c.Provider {
	case provider.Gemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case provider.OpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidProvider, c.Provider, provider.Gemini, provider.OpenAI)
	}

	// 2. Vector store.
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL environment variable is required", ErrMissingDatabaseURL)
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("%w: must be a postgres:// URL", ErrMissingDatabaseURL)
	}
	if c.EmbedDimension < 1 || c.EmbedDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidDimension, c.EmbedDimension)
	}

	// 3. Server.
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPort, c.Port)
	}

	// 4. Retrieval.
	if c.DefaultK < 1 || c.DefaultK > 100 {
		return fmt.Errorf("%w: default_k must be between 1 and 100, got %d", ErrInvalidBatching, c.DefaultK)
	}
	if c.MaxContextChars < 100 {
		return fmt.Errorf("%w: max_context_chars must be at least 100, got %d",
			ErrInvalidContextBudget, c.MaxContextChars)
	}

	// 5. Chunking. Overlap must leave a positive step or the window
	// never advances.
	if c.ChunkSize < 100 || c.ChunkSize > 10000 {
		return fmt.Errorf("%w: chunk_size must be between 100 and 10000, got %d",
			ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be >= 0 and < chunk_size, got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// 6. Ingestion batching and retries.
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 100 {
		return fmt.Errorf("%w: embed_batch_size must be between 1 and 100, got %d",
			ErrInvalidBatching, c.EmbedBatchSize)
	}
	if c.MaxConcurrentFiles < 1 || c.MaxConcurrentFiles > 20 {
		return fmt.Errorf("%w: max_concurrent_files must be between 1 and 20, got %d",
			ErrInvalidBatching, c.MaxConcurrentFiles)
	}
	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 1000 {
		return fmt.Errorf("%w: max_file_size_mb must be between 1 and 1000, got %d",
			ErrInvalidBatching, c.MaxFileSizeMB)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("%w: retry_attempts must be between 1 and 10, got %d",
			ErrInvalidRetry, c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry_delay must not be negative, got %v", ErrInvalidRetry, c.RetryDelay)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("%w: batch_delay must not be negative, got %v", ErrInvalidRetry, c.BatchDelay)
	}

	return nil
}

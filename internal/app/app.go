// Package app wires configuration, database, and AI providers into the
// components the commands run. Construction happens once here; every
// dependency is passed down explicitly.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorly/tutorly/db"
	"github.com/tutorly/tutorly/internal/config"
	"github.com/tutorly/tutorly/internal/provider"
	"github.com/tutorly/tutorly/internal/store"
)

// App is the application container.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Store     *store.Store
	Embedder  provider.Embedder
	Completer provider.Completer
}

// Setup runs migrations, opens the connection pool, and constructs the
// configured AI provider. cfg must already be validated.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	embedder, completer, err := newProvider(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Store:     store.New(pool, logger.With("component", "store")),
		Embedder:  embedder,
		Completer: completer,
	}, nil
}

// newProvider constructs the provider selected in configuration. This
// is the single place the provider tag is branched on.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (provider.Embedder, provider.Completer, error) {
	providerLogger := logger.With("component", "provider")

	switch cfg.Provider {
	case provider.OpenAI:
		client, err := provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dimension:  cfg.EmbedDimension,
		}, providerLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating openai provider: %w", err)
		}
		return client, client, nil
	case provider.Gemini:
		client, err := provider.NewGemini(ctx, provider.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
			Dimension:  cfg.EmbedDimension,
		}, providerLogger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating gemini provider: %w", err)
		}
		return client, client, nil
	default:
		// config.Validate rejects other values before Setup runs.
		return nil, nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// Close releases shared resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
}

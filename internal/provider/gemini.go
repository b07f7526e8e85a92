package provider

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiConfig holds construction parameters for the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	EmbedModel string // e.g. "gemini-embedding-001"
	ChatModel  string // e.g. "gemini-2.5-flash"
	Dimension  int32  // vector width, must match the store schema
}

// GeminiClient implements Embedder and Completer against the Gemini API.
//
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation via OutputDimensionality, which must match the pgvector
// column width. Completion is streamed natively.
type GeminiClient struct {
	client     *genai.Client
	embedModel string
	chatModel  string
	dim        int32
	logger     *slog.Logger
}

// NewGemini creates a Gemini-backed provider client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		dim:        cfg.Dimension,
		logger:     logger,
	}, nil
}

// EmbedBatch embeds texts in a single EmbedContent call, preserving
// input order.
func (g *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var opts *genai.EmbedContentConfig
	if g.dim > 0 {
		dim := g.dim
		opts = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, opts)
	if err != nil {
		return nil, &Error{Provider: Gemini, Op: "embed", Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &Error{
			Provider: Gemini,
			Op:       "embed",
			Err:      fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, &Error{
				Provider: Gemini,
				Op:       "embed",
				Err:      fmt.Errorf("empty embedding at index %d", i),
			}
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Generate streams completion fragments as the model produces them.
func (g *GeminiClient) Generate(ctx context.Context, system, user string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			Temperature:       genai.Ptr[float32](completionTemperature),
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.chatModel, genai.Text(user), cfg) {
			if err != nil {
				yield("", &Error{Provider: Gemini, Op: "complete", Err: err})
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

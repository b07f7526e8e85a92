package provider

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig holds construction parameters for the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	EmbedModel string // e.g. "text-embedding-3-small"
	ChatModel  string // e.g. "gpt-4o-mini"
	Dimension  int32  // vector width, must match the store schema
}

// OpenAIClient implements Embedder and Completer against the OpenAI API.
// Embedding is batched in one request; completion is single-shot and
// yields the whole answer as one fragment.
type OpenAIClient struct {
	client     openai.Client
	embedModel string
	chatModel  string
	dim        int32
	logger     *slog.Logger
}

// NewOpenAI creates an OpenAI-backed provider client.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClient{
		client:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		dim:        cfg.Dimension,
		logger:     logger,
	}, nil
}

// EmbedBatch embeds texts in a single request, preserving input order.
// The API may return results out of order, so vectors are placed by
// their reported index.
func (o *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.dim > 0 {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, &Error{Provider: OpenAI, Op: "embed", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &Error{
			Provider: OpenAI,
			Op:       "embed",
			Err:      fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, &Error{
				Provider: OpenAI,
				Op:       "embed",
				Err:      fmt.Errorf("embedding index %d out of range", item.Index),
			}
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, &Error{
				Provider: OpenAI,
				Op:       "embed",
				Err:      fmt.Errorf("empty embedding at index %d", i),
			}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (o *OpenAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Generate performs a blocking chat completion and yields the answer
// as a single fragment.
func (o *OpenAIClient) Generate(ctx context.Context, system, user string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(o.chatModel),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Temperature: openai.Float(completionTemperature),
		})
		if err != nil {
			yield("", &Error{Provider: OpenAI, Op: "complete", Err: err})
			return
		}
		if len(resp.Choices) == 0 {
			yield("", &Error{Provider: OpenAI, Op: "complete", Err: fmt.Errorf("no choices in response")})
			return
		}
		yield(resp.Choices[0].Message.Content, nil)
	}
}

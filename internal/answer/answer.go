// Package answer implements retrieval-augmented question answering:
// embed the question, fetch the nearest chunks, assemble a bounded
// context block, and generate a cited answer.
package answer

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tutorly/tutorly/internal/store"
)

// systemPrompt is the fixed instruction for every completion call.
const systemPrompt = "You are an AI teaching assistant. Answer the question using the provided CONTEXT. " +
	"If the answer is not in the context, provide a helpful general response. " +
	"Keep answers concise and cite sources by SOURCE number when available."

// truncationMarker is appended whenever the context block is cut to the
// character budget, so downstream consumers know it was incomplete.
const truncationMarker = "\n...[truncated]"

// Embedder is the slice of provider capability the answerer needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers nearest-neighbor queries. An unavailable store
// yields an empty result, not an error (see store.NearestK).
type Retriever interface {
	NearestK(ctx context.Context, vec []float32, k int, scope string) []store.RetrievalResult
}

// Completer generates the final answer as a fragment sequence.
type Completer interface {
	Generate(ctx context.Context, system, user string) iter.Seq2[string, error]
}

// Source is one citation in a response, ranked to match the SOURCE
// numbers in the generated answer.
type Source struct {
	Rank       int     `json:"rank"` // 1-based, retrieval order
	SourceID   string  `json:"source_id"`
	ChunkID    string  `json:"chunk_id"`
	Excerpt    string  `json:"excerpt"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// Response pairs the generated answer with its ranked sources.
// Sources is empty (never null in JSON) when no grounding was found.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Config tunes the answerer.
type Config struct {
	DefaultK        int    // retrieval depth when the request doesn't specify one (default 8)
	MaxK            int    // hard cap on requested k (default 50)
	MaxContextChars int    // context character budget (default 8000)
	DefaultScope    string // source filter applied when the request has none
}

func (c *Config) applyDefaults() {
	if c.DefaultK <= 0 {
		c.DefaultK = 8
	}
	if c.MaxK <= 0 {
		c.MaxK = 50
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 8000
	}
}

// Options are per-request overrides.
type Options struct {
	Scope string // "" = use the configured default scope
	K     int    // 0 = use the configured default k
}

// Answerer is stateless across requests; one instance serves all of
// them concurrently.
type Answerer struct {
	embedder  Embedder
	retriever Retriever
	completer Completer
	cfg       Config
	logger    *slog.Logger
}

// New creates an Answerer.
func New(embedder Embedder, retriever Retriever, completer Completer, cfg Config, logger *slog.Logger) *Answerer {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers a question, blocking until the full answer is generated.
func (a *Answerer) Ask(ctx context.Context, question string, opts Options) (*Response, error) {
	return a.ask(ctx, question, opts, nil)
}

// AskStream answers a question, invoking onFragment for each completion
// fragment as it arrives. The returned Response carries the same final
// answer the fragments concatenate to.
func (a *Answerer) AskStream(ctx context.Context, question string, opts Options, onFragment func(string)) (*Response, error) {
	return a.ask(ctx, question, opts, onFragment)
}

func (a *Answerer) ask(ctx context.Context, question string, opts Options, onFragment func(string)) (*Response, error) {
	k := opts.K
	if k <= 0 {
		k = a.cfg.DefaultK
	}
	k = min(k, a.cfg.MaxK)

	scope := opts.Scope
	if scope == "" {
		scope = a.cfg.DefaultScope
	}

	// Without a query vector there is nothing to retrieve; this is the
	// one failure before generation that kills the request.
	vec, err := a.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results := a.retriever.NearestK(ctx, vec, k, scope)
	a.logger.Debug("retrieved chunks", "count", len(results), "k", k, "scope", scope)

	contextBlock := a.buildContext(results, question)
	user := "QUESTION:\n" + question + "\n\nCONTEXT:\n" + contextBlock

	var b strings.Builder
	for fragment, err := range a.completer.Generate(ctx, systemPrompt, user) {
		if err != nil {
			return nil, fmt.Errorf("generating answer: %w", err)
		}
		b.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}

	return &Response{
		Answer:  b.String(),
		Sources: rankSources(results),
	}, nil
}

// buildContext assembles per-result blocks in rank order, truncating at
// the character budget with an explicit marker. With no results it
// substitutes a general-knowledge instruction so the model still
// answers.
func (a *Answerer) buildContext(results []store.RetrievalResult, question string) string {
	if len(results) == 0 {
		return "NO GROUNDING AVAILABLE\n" +
			fmt.Sprintf("No indexed material matched the question %q.\n", question) +
			"Answer from your general knowledge and say so."
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("SOURCE %d | %s [%d-%d]\n%s",
			i+1, r.SourceID, r.StartOffset, r.EndOffset, r.Text)
	}
	contextBlock := strings.Join(blocks, "\n\n")

	if len(contextBlock) > a.cfg.MaxContextChars {
		a.logger.Warn("context over budget, truncating",
			"length", len(contextBlock),
			"budget", a.cfg.MaxContextChars,
		)
		// Back the cut off to a rune boundary so the prompt stays
		// valid UTF-8.
		cut := a.cfg.MaxContextChars
		for cut > 0 && !utf8.RuneStart(contextBlock[cut]) {
			cut--
		}
		contextBlock = contextBlock[:cut] + truncationMarker
	}
	return contextBlock
}

// rankSources converts retrieval results into citation entries,
// numbered 1-based to match the SOURCE markers in the context.
func rankSources(results []store.RetrievalResult) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			Rank:       i + 1,
			SourceID:   r.SourceID,
			ChunkID:    r.ChunkID,
			Excerpt:    r.Text,
			Start:      r.StartOffset,
			End:        r.EndOffset,
			Distance:   r.Distance,
			Confidence: r.Confidence,
		}
	}
	return sources
}

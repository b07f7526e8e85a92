// Package provider defines the embedding and completion capabilities the
// pipeline depends on, with one concrete implementation per AI provider.
//
// Callers select a provider once at construction (from configuration) and
// depend only on the Embedder and Completer interfaces afterwards. Adding
// a provider means adding a file here, not branching at call sites.
package provider

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Provider identifiers accepted in configuration.
const (
	Gemini = "gemini"
	OpenAI = "openai"
)

// completionTemperature is fixed low for teaching answers: grounded
// citation beats creative phrasing.
const completionTemperature = 0.2

// Embedder turns text into fixed-dimension vectors.
//
// EmbedBatch returns one vector per input, same length and order as
// texts. Implementations do not retry; transient failures surface as
// *Error and the caller decides the retry policy.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer generates an answer as a lazy, finite sequence of text
// fragments. A non-streaming provider yields exactly one fragment
// containing the whole answer. The sequence is not restartable.
//
// Callers concatenate the fragments to obtain the final answer (see
// Collect), optionally observing them as they arrive.
type Completer interface {
	Generate(ctx context.Context, system, user string) iter.Seq2[string, error]
}

// Collect drains a fragment sequence into the final answer string.
// It stops at the first error, returning whatever text arrived before it.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for fragment, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}

// Error wraps a failed provider call with enough context to log and
// classify it. Rate limits, network failures, and malformed responses
// all land here.
type Error struct {
	Provider string // "gemini" or "openai"
	Op       string // "embed", "complete"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// retryablePatterns groups error substrings by failure category,
// matched case-insensitively against err.Error().
//
// NOTE: string matching because neither provider SDK exposes typed
// errors for transient failures. Re-evaluate if that changes.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// Retryable reports whether err looks transient and is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tutorly/tutorly/internal/store"
	"github.com/tutorly/tutorly/internal/testutil"
)

func results(n int) []store.RetrievalResult {
	out := make([]store.RetrievalResult, n)
	for i := range out {
		out[i] = store.RetrievalResult{
			SourceID:    "lecture-01",
			ChunkID:     "lecture-01::" + string(rune('0'+i)),
			Text:        "chunk text " + string(rune('A'+i)),
			StartOffset: i * 100,
			EndOffset:   (i + 1) * 100,
			Distance:    0.1 * float64(i+1),
			Confidence:  store.Confidence(0.1 * float64(i+1)),
		}
	}
	return out
}

func TestAsk_AnswersWithRankedSources(t *testing.T) {
	retriever := &testutil.Retriever{Results: results(3)}
	completer := &testutil.Completer{Fragments: []string{"See ", "SOURCE 1."}}
	a := New(&testutil.Embedder{}, retriever, completer, Config{}, testutil.DiscardLogger())

	resp, err := a.Ask(context.Background(), "what is photosynthesis?", Options{})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if resp.Answer != "See SOURCE 1." {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 3 {
		t.Fatalf("Sources = %d, want 3", len(resp.Sources))
	}
	for i, s := range resp.Sources {
		if s.Rank != i+1 {
			t.Errorf("source %d rank = %d, want %d", i, s.Rank, i+1)
		}
	}
	if resp.Sources[0].Confidence != 0.9 {
		t.Errorf("first source confidence = %v, want 0.9", resp.Sources[0].Confidence)
	}
	if resp.Sources[0].ChunkID != "lecture-01::0" {
		t.Errorf("first source chunk = %q", resp.Sources[0].ChunkID)
	}
}

func TestAsk_PromptContainsQuestionAndSources(t *testing.T) {
	retriever := &testutil.Retriever{Results: results(2)}
	completer := &testutil.Completer{Fragments: []string{"answer"}}
	a := New(&testutil.Embedder{}, retriever, completer, Config{}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "why is the sky blue?", Options{}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	system, user := completer.LastPrompt()
	if !strings.Contains(system, "teaching assistant") {
		t.Errorf("system prompt = %q", system)
	}
	for _, want := range []string{
		"QUESTION:\nwhy is the sky blue?",
		"CONTEXT:",
		"SOURCE 1 | lecture-01 [0-100]\nchunk text A",
		"SOURCE 2 | lecture-01 [100-200]\nchunk text B",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q\nprompt: %s", want, user)
		}
	}
}

func TestAsk_EmptyRetrievalStillAnswers(t *testing.T) {
	retriever := &testutil.Retriever{}
	completer := &testutil.Completer{Fragments: []string{"From general knowledge: ..."}}
	a := New(&testutil.Embedder{}, retriever, completer, Config{}, testutil.DiscardLogger())

	resp, err := a.Ask(context.Background(), "anything", Options{})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want empty non-nil slice", resp.Sources)
	}

	_, user := completer.LastPrompt()
	if !strings.Contains(user, "NO GROUNDING AVAILABLE") {
		t.Errorf("user prompt missing no-grounding block: %s", user)
	}
	if !strings.Contains(user, "general knowledge") {
		t.Errorf("user prompt missing general-knowledge instruction: %s", user)
	}
}

func TestAsk_ContextTruncatedAtBudget(t *testing.T) {
	big := results(2)
	big[0].Text = strings.Repeat("x", 400)
	big[1].Text = strings.Repeat("y", 400)

	retriever := &testutil.Retriever{Results: big}
	completer := &testutil.Completer{Fragments: []string{"ok"}}
	a := New(&testutil.Embedder{}, retriever, completer, Config{MaxContextChars: 300}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "q", Options{}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	_, user := completer.LastPrompt()
	if !strings.HasSuffix(user, "\n...[truncated]") {
		t.Errorf("truncated context missing marker, prompt ends: %q", user[len(user)-40:])
	}
	// Budget bounds the context block, not the whole prompt.
	contextPart := user[strings.Index(user, "CONTEXT:\n")+len("CONTEXT:\n"):]
	if got := len(contextPart); got != 300+len("\n...[truncated]") {
		t.Errorf("context length = %d, want %d", got, 300+len("\n...[truncated]"))
	}
}

func TestAsk_TruncationKeepsValidUTF8(t *testing.T) {
	big := results(1)
	big[0].Text = strings.Repeat("日本語の講義", 40)

	retriever := &testutil.Retriever{Results: big}
	completer := &testutil.Completer{Fragments: []string{"ok"}}
	// The header is 29 bytes, so a 100-byte budget lands mid-rune.
	a := New(&testutil.Embedder{}, retriever, completer, Config{MaxContextChars: 100}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "q", Options{}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	_, user := completer.LastPrompt()
	if !strings.HasSuffix(user, "\n...[truncated]") {
		t.Fatalf("truncated context missing marker, prompt ends: %q", user[len(user)-40:])
	}
	if !utf8.ValidString(user) {
		t.Error("truncated prompt is not valid UTF-8")
	}
}

func TestAsk_KDefaultsAndCap(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		opts  Options
		wantK int
	}{
		{name: "default k", cfg: Config{}, opts: Options{}, wantK: 8},
		{name: "explicit k", cfg: Config{}, opts: Options{K: 3}, wantK: 3},
		{name: "capped at MaxK", cfg: Config{MaxK: 10}, opts: Options{K: 500}, wantK: 10},
		{name: "configured default", cfg: Config{DefaultK: 12}, opts: Options{}, wantK: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &testutil.Retriever{}
			completer := &testutil.Completer{Fragments: []string{"a"}}
			a := New(&testutil.Embedder{}, retriever, completer, tt.cfg, testutil.DiscardLogger())

			if _, err := a.Ask(context.Background(), "q", tt.opts); err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if k, _ := retriever.LastQuery(); k != tt.wantK {
				t.Errorf("k = %d, want %d", k, tt.wantK)
			}
		})
	}
}

func TestAsk_ScopeDefaultsAndOverride(t *testing.T) {
	retriever := &testutil.Retriever{}
	completer := &testutil.Completer{Fragments: []string{"a"}}
	a := New(&testutil.Embedder{}, retriever, completer, Config{DefaultScope: "lecture-01"}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "q", Options{}); err != nil {
		t.Fatal(err)
	}
	if _, scope := retriever.LastQuery(); scope != "lecture-01" {
		t.Errorf("default scope = %q, want lecture-01", scope)
	}

	if _, err := a.Ask(context.Background(), "q", Options{Scope: "lecture-02"}); err != nil {
		t.Fatal(err)
	}
	if _, scope := retriever.LastQuery(); scope != "lecture-02" {
		t.Errorf("override scope = %q, want lecture-02", scope)
	}
}

func TestAsk_EmbeddingFailureIsFatal(t *testing.T) {
	embedder := &testutil.Embedder{FailFirst: 1, Err: errors.New("invalid API key")}
	a := New(embedder, &testutil.Retriever{}, &testutil.Completer{}, Config{}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "q", Options{}); err == nil {
		t.Fatal("Ask() expected error when embedding fails")
	}
}

func TestAsk_GenerationFailureIsFatal(t *testing.T) {
	completer := &testutil.Completer{Fragments: []string{"partial"}, Err: errors.New("stream reset")}
	a := New(&testutil.Embedder{}, &testutil.Retriever{}, completer, Config{}, testutil.DiscardLogger())

	if _, err := a.Ask(context.Background(), "q", Options{}); err == nil {
		t.Fatal("Ask() expected error when generation fails")
	}
}

func TestAskStream_FragmentsConcatenateToAnswer(t *testing.T) {
	fragments := []string{"The ", "mitochondria ", "is the powerhouse."}
	completer := &testutil.Completer{Fragments: fragments}
	a := New(&testutil.Embedder{}, &testutil.Retriever{Results: results(1)}, completer, Config{}, testutil.DiscardLogger())

	var seen []string
	resp, err := a.AskStream(context.Background(), "q", Options{}, func(f string) {
		seen = append(seen, f)
	})
	if err != nil {
		t.Fatalf("AskStream() error = %v", err)
	}

	if got := strings.Join(seen, ""); got != resp.Answer {
		t.Errorf("fragments join to %q, response answer is %q", got, resp.Answer)
	}
	if len(seen) != len(fragments) {
		t.Errorf("observed %d fragments, want %d", len(seen), len(fragments))
	}
	if len(resp.Sources) != 1 {
		t.Errorf("Sources = %d, want 1", len(resp.Sources))
	}
}

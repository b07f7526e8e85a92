package provider

import (
	"errors"
	"fmt"
	"iter"
	"testing"
)

func seqOf(fragments []string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield("", err)
		}
	}
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		err       error
		want      string
		wantErr   bool
	}{
		{name: "empty sequence", fragments: nil, want: ""},
		{name: "single fragment", fragments: []string{"hello"}, want: "hello"},
		{name: "concatenates in order", fragments: []string{"The ", "answer ", "is 42."}, want: "The answer is 42."},
		{
			name:      "partial text survives error",
			fragments: []string{"The answer"},
			err:       errors.New("stream reset"),
			want:      "The answer",
			wantErr:   true,
		},
		{name: "immediate error", err: errors.New("quota exceeded"), want: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(seqOf(tt.fragments, tt.err))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Collect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Collect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	inner := errors.New("status 429")
	err := &Error{Provider: Gemini, Op: "embed", Err: inner}

	if got := err.Error(); got != "gemini embed: status 429" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is should unwrap to the inner error")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit text", err: errors.New("rate limit exceeded"), want: true},
		{name: "status 429", err: errors.New("unexpected status 429"), want: true},
		{name: "quota", err: errors.New("Quota Exceeded for project"), want: true},
		{name: "server error 503", err: errors.New("backend returned 503"), want: true},
		{name: "unavailable", err: errors.New("service Unavailable"), want: true},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "timeout", err: errors.New("context deadline exceeded: timeout"), want: true},
		{name: "invalid api key", err: errors.New("invalid API key"), want: false},
		{name: "bad request", err: errors.New("400 bad request"), want: false},
		{name: "model not found", err: errors.New("model not found"), want: false},
		{
			name: "wrapped in provider error",
			err:  &Error{Provider: OpenAI, Op: "embed", Err: errors.New("429 too many requests")},
			want: true,
		},
		{
			name: "wrapped with fmt",
			err:  fmt.Errorf("embedding batch: %w", errors.New("rate limit")),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

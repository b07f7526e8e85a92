package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "already clean", input: "hello world", want: "hello world"},
		{name: "collapses spaces", input: "hello   world", want: "hello world"},
		{name: "collapses mixed whitespace", input: "hello \t\n  world", want: "hello world"},
		{name: "trims edges", input: "  hello world \n", want: "hello world"},
		{name: "newlines become spaces", input: "line one\nline two\r\nline three", want: "line one line two line three"},
		{name: "zero width space dropped", input: "hel\u200Blo", want: "hello"},
		{name: "zero width joiner dropped", input: "a\u200D\u200Cb", want: "ab"},
		{name: "bom dropped", input: "\uFEFFdocument", want: "document"},
		{name: "zero width inside space run", input: "a \u200B b", want: "a b"},
		{name: "only whitespace", input: " \t\n ", want: ""},
		{name: "unicode text preserved", input: "π ≈ 3.14159", want: "π ≈ 3.14159"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.input); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		overlap  int
		want     []Span
	}{
		{
			name:     "window advances by maxChars minus overlap",
			text:     "ABCDEFGHIJ",
			maxChars: 4,
			overlap:  1,
			want: []Span{
				{Text: "ABCD", Start: 0, End: 4},
				{Text: "DEFG", Start: 3, End: 7},
				{Text: "GHIJ", Start: 6, End: 10},
			},
		},
		{
			name:     "text shorter than window",
			text:     "AB",
			maxChars: 4,
			overlap:  1,
			want:     []Span{{Text: "AB", Start: 0, End: 2}},
		},
		{
			name:     "exact single window",
			text:     "ABCD",
			maxChars: 4,
			overlap:  1,
			want:     []Span{{Text: "ABCD", Start: 0, End: 4}},
		},
		{
			name:     "short final span",
			text:     "ABCDEF",
			maxChars: 4,
			overlap:  0,
			want: []Span{
				{Text: "ABCD", Start: 0, End: 4},
				{Text: "EF", Start: 4, End: 6},
			},
		},
		{
			name:     "zero overlap tiles exactly",
			text:     "ABCDEFGH",
			maxChars: 4,
			overlap:  0,
			want: []Span{
				{Text: "ABCD", Start: 0, End: 4},
				{Text: "EFGH", Start: 4, End: 8},
			},
		},
		{
			name:     "empty text",
			text:     "",
			maxChars: 4,
			overlap:  1,
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.text, tt.maxChars, tt.overlap)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Split() = %d spans, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name     string
		maxChars int
		overlap  int
	}{
		{name: "zero maxChars", maxChars: 0, overlap: 0},
		{name: "negative maxChars", maxChars: -1, overlap: 0},
		{name: "negative overlap", maxChars: 4, overlap: -1},
		{name: "overlap equals maxChars", maxChars: 4, overlap: 4},
		{name: "overlap exceeds maxChars", maxChars: 4, overlap: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("ABCDEF", tt.maxChars, tt.overlap); err == nil {
				t.Errorf("Split(maxChars=%d, overlap=%d) expected error, got nil", tt.maxChars, tt.overlap)
			}
		})
	}
}

// TestSplit_Coverage verifies the structural invariants on a larger
// input: spans cover the whole text without gaps, neighbors share
// exactly overlap characters, and no span exceeds maxChars.
func TestSplit_Coverage(t *testing.T) {
	text := strings.Repeat("abcdefghij", 137) // 1370 chars, not a multiple of the step
	const maxChars, overlap = 100, 20

	spans, err := Split(text, maxChars, overlap)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(spans) == 0 {
		t.Fatal("Split() returned no spans")
	}

	if spans[0].Start != 0 {
		t.Errorf("first span starts at %d, want 0", spans[0].Start)
	}
	if last := spans[len(spans)-1]; last.End != len(text) {
		t.Errorf("last span ends at %d, want %d", last.End, len(text))
	}

	for i, s := range spans {
		if s.End-s.Start > maxChars {
			t.Errorf("span %d width %d exceeds %d", i, s.End-s.Start, maxChars)
		}
		if s.Text != text[s.Start:s.End] {
			t.Errorf("span %d text does not match its offsets", i)
		}
		if i > 0 {
			prev := spans[i-1]
			if s.Start > prev.End {
				t.Errorf("gap between span %d (end %d) and span %d (start %d)", i-1, prev.End, i, s.Start)
			}
			if got := prev.End - s.Start; got != overlap && s.End != len(text) {
				t.Errorf("overlap between spans %d and %d = %d, want %d", i-1, i, got, overlap)
			}
		}
	}
}

// TestSplit_RuneBoundaries verifies windows never cut a multi-byte
// rune in half: every span of a CJK transcript must remain valid
// UTF-8, or the store would reject it at upsert.
func TestSplit_RuneBoundaries(t *testing.T) {
	text := Clean(strings.Repeat("日本語の講義ノート ", 20))
	const maxChars, overlap = 50, 10

	spans, err := Split(text, maxChars, overlap)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(spans) == 0 {
		t.Fatal("Split() returned no spans")
	}

	for i, s := range spans {
		if !utf8.ValidString(s.Text) {
			t.Errorf("span %d is not valid UTF-8: %q", i, s.Text)
		}
		if s.End-s.Start > maxChars {
			t.Errorf("span %d width %d exceeds %d bytes", i, s.End-s.Start, maxChars)
		}
		if s.Text != text[s.Start:s.End] {
			t.Errorf("span %d text does not match its offsets", i)
		}
		if i > 0 && spans[i-1].End < s.Start {
			t.Errorf("gap between span %d and span %d", i-1, i)
		}
	}
	if last := spans[len(spans)-1]; last.End != len(text) {
		t.Errorf("last span ends at %d, want %d", last.End, len(text))
	}
}

func TestSplit_RuneWiderThanWindow(t *testing.T) {
	// 3-byte runes with a 2-byte window: each span carries one whole rune.
	spans, err := Split("語語語", 2, 1)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for i, s := range spans {
		if !utf8.ValidString(s.Text) {
			t.Errorf("span %d is not valid UTF-8: %q", i, s.Text)
		}
	}
	if last := spans[len(spans)-1]; last.End != len("語語語") {
		t.Errorf("last span ends at %d, want %d", last.End, len("語語語"))
	}
}

func FuzzSplit(f *testing.F) {
	f.Add("ABCDEFGHIJ", 4, 1)
	f.Add("", 10, 3)
	f.Add("short", 100, 0)
	f.Add(strings.Repeat("x", 500), 64, 16)
	f.Add(strings.Repeat("日本語の講義ノート ", 5), 50, 10)

	f.Fuzz(func(t *testing.T, text string, maxChars, overlap int) {
		spans, err := Split(text, maxChars, overlap)
		if err != nil {
			return
		}
		valid := utf8.ValidString(text)
		for i, s := range spans {
			if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
				t.Fatalf("span %d has invalid offsets [%d, %d) for text length %d", i, s.Start, s.End, len(text))
			}
			if s.Text != text[s.Start:s.End] {
				t.Fatalf("span %d text does not match offsets", i)
			}
			if valid && !utf8.ValidString(s.Text) {
				t.Fatalf("span %d is not valid UTF-8: %q", i, s.Text)
			}
			if i > 0 && spans[i-1].End < s.Start {
				t.Fatalf("gap before span %d", i)
			}
		}
		if len(spans) > 0 && spans[len(spans)-1].End != len(text) {
			t.Fatalf("spans do not reach end of text")
		}
	})
}

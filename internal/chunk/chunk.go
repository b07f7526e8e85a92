// Package chunk splits cleaned transcript text into overlapping
// character windows for embedding.
//
// The splitter is purely length-based: it has no notion of sentence or
// token boundaries. Token-aware chunking would need a tokenizer for
// every supported embedding model.
package chunk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Span is one window of a source document.
// Start and End are character offsets into the cleaned text,
// End exclusive. Consecutive spans of the same document overlap.
type Span struct {
	Text  string
	Start int
	End   int
}

// Clean normalizes raw transcript text for chunking: every whitespace
// run collapses to a single space, zero-width characters are removed,
// and leading/trailing whitespace is trimmed.
func Clean(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			inSpace = true
		case isZeroWidth(r):
			// dropped entirely, does not break a space run
		default:
			if inSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isZeroWidth reports whether r renders with no width. These show up in
// copy-pasted transcripts and would otherwise pollute embeddings.
func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF':
		return true
	}
	return false
}

// Split slides a window of width maxChars across text, advancing by
// maxChars-overlap each step, and returns the resulting spans in order.
// The final span may be shorter than maxChars. Offsets are byte offsets
// into text. Cuts never land inside a multi-byte rune: both window
// edges back off to the nearest rune boundary, so every span is valid
// UTF-8 when text is.
//
// Requires 0 <= overlap < maxChars. Split is deterministic: the same
// inputs always produce the same spans, which makes re-ingestion
// idempotent when keyed on (source, index).
func Split(text string, maxChars, overlap int) ([]Span, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("maxChars must be positive, got %d", maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("overlap must be in [0, maxChars), got overlap=%d maxChars=%d", overlap, maxChars)
	}
	if text == "" {
		return nil, nil
	}

	step := maxChars - overlap
	var spans []Span
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = boundaryBefore(text, end)
		}
		if end <= start {
			// The rune at start is wider than the window; carry it whole.
			_, size := utf8.DecodeRuneInString(text[start:])
			end = start + size
		}

		spans = append(spans, Span{
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
		if end == len(text) {
			break
		}

		next := boundaryBefore(text, start+step)
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		start = next
	}
	return spans, nil
}

// boundaryBefore returns the largest rune boundary <= i.
func boundaryBefore(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

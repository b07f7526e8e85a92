// Package testutil provides deterministic fakes for the embedding,
// retrieval and completion boundaries so package tests run without
// network access or a live database.
package testutil

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/tutorly/tutorly/internal/store"
)

// Embedder produces deterministic vectors derived from the input text.
// Identical texts always embed to identical vectors, which makes
// assertions about upserted chunks stable across runs.
//
// FailFirst can be set to make the first N EmbedBatch calls fail with
// Err, to exercise retry paths.
type Embedder struct {
	Dim       int   // vector length (default 4)
	FailFirst int   // number of leading EmbedBatch calls that fail
	Err       error // error returned by failing calls

	mu    sync.Mutex
	calls int
}

// Calls reports how many times EmbedBatch has been invoked.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	failing := e.calls <= e.FailFirst
	e.mu.Unlock()

	if failing {
		if e.Err != nil {
			return nil, e.Err
		}
		return nil, fmt.Errorf("embed batch failed")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) vector(text string) []float32 {
	dim := e.Dim
	if dim <= 0 {
		dim = 4
	}
	vec := make([]float32, dim)
	// FNV-style mix keeps the vector a pure function of the text.
	var h uint32 = 2166136261
	for _, b := range []byte(text) {
		h = (h ^ uint32(b)) * 16777619
	}
	for i := range vec {
		h = h*16777619 + uint32(i)
		vec[i] = float32(h%1000) / 1000
	}
	return vec
}

// Completer yields a scripted sequence of fragments, then Err if set.
type Completer struct {
	Fragments []string
	Err       error // yielded after the fragments

	mu         sync.Mutex
	lastSystem string
	lastUser   string
}

// LastPrompt returns the system and user prompt of the most recent call.
func (c *Completer) LastPrompt() (system, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSystem, c.lastUser
}

func (c *Completer) Generate(_ context.Context, system, user string) iter.Seq2[string, error] {
	c.mu.Lock()
	c.lastSystem = system
	c.lastUser = user
	c.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, f := range c.Fragments {
			if !yield(f, nil) {
				return
			}
		}
		if c.Err != nil {
			yield("", c.Err)
		}
	}
}

// Retriever returns a fixed result set regardless of the query vector
// and records the arguments of the most recent call.
type Retriever struct {
	Results []store.RetrievalResult

	mu        sync.Mutex
	lastK     int
	lastScope string
}

// LastQuery returns the k and scope of the most recent NearestK call.
func (r *Retriever) LastQuery() (k int, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastK, r.lastScope
}

func (r *Retriever) NearestK(_ context.Context, _ []float32, k int, scope string) []store.RetrievalResult {
	r.mu.Lock()
	r.lastK = k
	r.lastScope = scope
	r.mu.Unlock()
	return r.Results
}

// ChunkStore records upserted chunks in memory.
type ChunkStore struct {
	UpsertErr error // returned by every Upsert when set

	mu       sync.Mutex
	chunks   map[string]store.Chunk
	analyzed int
}

// Chunks returns the stored chunks keyed by chunk ID.
func (s *ChunkStore) Chunks() map[string]store.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]store.Chunk, len(s.chunks))
	for k, v := range s.chunks {
		out[k] = v
	}
	return out
}

// Analyzed reports how many times Analyze has been called.
func (s *ChunkStore) Analyzed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzed
}

func (s *ChunkStore) Upsert(_ context.Context, c store.Chunk) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = make(map[string]store.Chunk)
	}
	s.chunks[c.ChunkID] = c
	return nil
}

func (s *ChunkStore) Analyze(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed++
	return nil
}

// Package store persists document chunks and their embeddings in
// PostgreSQL + pgvector and answers nearest-neighbor queries over them.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queryTimeout bounds every store round trip so a stalled database
// cannot block an answer or an ingestion batch indefinitely.
const queryTimeout = 10 * time.Second

// upsertChunkSQL is keyed on chunk_id: re-ingesting a document with the
// same chunking parameters overwrites its chunks instead of duplicating.
const upsertChunkSQL = `INSERT INTO doc_chunks (source_id, chunk_id, text, tags, start_offset, end_offset, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (chunk_id)
	DO UPDATE SET source_id = EXCLUDED.source_id, text = EXCLUDED.text,
		tags = EXCLUDED.tags, start_offset = EXCLUDED.start_offset,
		end_offset = EXCLUDED.end_offset, embedding = EXCLUDED.embedding`

// nearestSQL orders by cosine distance with chunk_id as a deterministic
// tie-breaker so citation numbering is stable across runs.
const nearestSQL = `SELECT chunk_id, source_id, text, tags, start_offset, end_offset,
		(embedding <=> $1) AS distance
	FROM doc_chunks
	WHERE ($2::text IS NULL OR source_id = $2)
	ORDER BY embedding <=> $1, chunk_id
	LIMIT $3`

const deleteBySourceSQL = `DELETE FROM doc_chunks WHERE source_id = $1`

const countBySourceSQL = `SELECT source_id, COUNT(*) FROM doc_chunks GROUP BY source_id ORDER BY source_id`

// Chunk is the atomic retrievable unit: a bounded, overlapping slice of
// a source document plus its embedding vector.
type Chunk struct {
	SourceID    string
	ChunkID     string // globally unique, conventionally "{source_id}::{index}"
	Text        string
	Tags        []string
	StartOffset int
	EndOffset   int
	Embedding   []float32
}

// RetrievalResult is a Chunk's descriptive fields plus its distance to
// the query vector. Smaller distance means more similar.
type RetrievalResult struct {
	SourceID    string
	ChunkID     string
	Text        string
	Tags        []string
	StartOffset int
	EndOffset   int
	Distance    float64
	Confidence  float64
}

// SourceCount pairs a source document with its stored chunk count.
type SourceCount struct {
	SourceID string
	Chunks   int64
}

// Confidence derives a display score from a distance: max(0, 1-distance)
// rounded to 3 decimal places. Distance 0 yields 1.000; distance >= 1
// yields 0.000.
func Confidence(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	return math.Round(c*1000) / 1000
}

// Store is the vector store adapter. Safe for concurrent use; it only
// borrows connections from the pool per call.
type Store struct {
	db     querier
	logger *slog.Logger
}

// New creates a Store on top of a pgx pool (or transaction).
func New(db querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Upsert writes a chunk, overwriting all fields if chunk_id exists.
// Each upsert is independently atomic, so concurrent ingestion needs no
// additional locking.
func (s *Store) Upsert(ctx context.Context, c Chunk) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.db.Exec(ctx, upsertChunkSQL,
		c.SourceID, c.ChunkID, c.Text, tags,
		c.StartOffset, c.EndOffset, pgvector.NewVector(c.Embedding))
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", c.ChunkID, err)
	}
	return nil
}

// NearestK returns up to k chunks ordered by ascending cosine distance
// to the query vector. A non-empty scope restricts results to that
// source document.
//
// A store failure degrades to an empty result with a warning log rather
// than an error: a down vector store should cost answer grounding, not
// the question-answering surface.
func (s *Store) NearestK(ctx context.Context, vec []float32, k int, scope string) []RetrievalResult {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var scopeArg any
	if scope != "" {
		scopeArg = scope
	}

	rows, err := s.db.Query(ctx, nearestSQL, pgvector.NewVector(vec), scopeArg, k)
	if err != nil {
		s.logger.Warn("vector search failed, degrading to empty result", "error", err, "scope", scope)
		return nil
	}
	defer rows.Close()

	var results []RetrievalResult
	for rows.Next() {
		var r RetrievalResult
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &r.Text, &r.Tags,
			&r.StartOffset, &r.EndOffset, &r.Distance); err != nil {
			s.logger.Warn("scanning retrieval row failed", "error", err)
			return nil
		}
		r.Confidence = Confidence(r.Distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("vector search failed, degrading to empty result", "error", err, "scope", scope)
		return nil
	}
	return results
}

// DeleteBySource removes every chunk of one source document and returns
// the number of rows deleted.
func (s *Store) DeleteBySource(ctx context.Context, sourceID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, deleteBySourceSQL, sourceID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %q: %w", sourceID, err)
	}
	return tag.RowsAffected(), nil
}

// CountBySource lists stored sources with their chunk counts.
func (s *Store) CountBySource(ctx context.Context) ([]SourceCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, countBySourceSQL)
	if err != nil {
		return nil, fmt.Errorf("counting chunks by source: %w", err)
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.SourceID, &sc.Chunks); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting chunks by source: %w", err)
	}
	return counts, nil
}

// Analyze refreshes planner statistics after a bulk load. Best-effort:
// callers log the error and move on.
func (s *Store) Analyze(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.db.Exec(ctx, `ANALYZE doc_chunks`); err != nil {
		return fmt.Errorf("analyzing doc_chunks: %w", err)
	}
	return nil
}

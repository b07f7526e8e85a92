// Package ingest turns a directory of transcript files into embedded
// chunks in the vector store.
//
// The pipeline tolerates partial failure: a bad chunk, batch, or file is
// logged and skipped, never aborting the run. Memory stays bounded by
// processing one file at a time per worker and embedding in small
// batches instead of buffering the whole corpus.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tutorly/tutorly/internal/chunk"
	"github.com/tutorly/tutorly/internal/provider"
	"github.com/tutorly/tutorly/internal/store"
)

// Embedder is the slice of provider capability the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the slice of store capability the pipeline needs.
type ChunkStore interface {
	Upsert(ctx context.Context, c store.Chunk) error
	Analyze(ctx context.Context) error
}

// defaultExtensions are the file types ingested when none are configured.
var defaultExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// maxRetryBackoff caps the exponential growth of the retry delay.
const maxRetryBackoff = 10 * time.Second

// Config tunes the pipeline. Zero values fall back to the defaults
// noted per field.
type Config struct {
	ChunkSize          int           // characters per chunk (default 2500)
	ChunkOverlap       int           // characters shared between neighbors (default 300)
	EmbedBatchSize     int           // texts per embedding request (default 10)
	MaxConcurrentFiles int           // files processed in parallel (default 5)
	MaxFileSizeMB      int           // larger files are skipped with a warning (default 100)
	RetryAttempts      int           // embedding attempts per batch (default 3)
	RetryDelay         time.Duration // initial backoff between attempts (default 1s)
	BatchDelay         time.Duration // throttle between batches (default 50ms)
	Extensions         []string      // ingested extensions (default .txt, .md)
	Tags               []string      // applied to every chunk of the run
}

func (c *Config) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 2500
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = 300
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 10
	}
	if c.MaxConcurrentFiles <= 0 {
		c.MaxConcurrentFiles = 5
	}
	if c.MaxFileSizeMB <= 0 {
		c.MaxFileSizeMB = 100
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 50 * time.Millisecond
	}
}

// FileResult reports one processed file.
type FileResult struct {
	SourceID string
	Chunks   int // chunks successfully upserted
	Errors   int // chunks lost to embedding or upsert failures
}

// Summary aggregates a whole run.
type Summary struct {
	Files        int // files processed (including ones with errors)
	FilesSkipped int // unsupported extension or oversized
	Chunks       int
	Errors       int
	Elapsed      time.Duration
	Results      []FileResult
}

// Pipeline ingests documents. Safe for a single Run at a time.
type Pipeline struct {
	embedder   Embedder
	store      ChunkStore
	cfg        Config
	extensions map[string]bool
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(embedder Embedder, chunkStore ChunkStore, cfg Config, logger *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	extensions := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		extensions[strings.ToLower(ext)] = true
	}
	if len(extensions) == 0 {
		for ext := range defaultExtensions {
			extensions[ext] = true
		}
	}

	return &Pipeline{
		embedder:   embedder,
		store:      chunkStore,
		cfg:        cfg,
		extensions: extensions,
		logger:     logger,
	}
}

// candidate is a file selected by the directory walk.
type candidate struct {
	path     string
	sourceID string
}

// Run walks dir recursively and ingests every supported file, with up
// to MaxConcurrentFiles files in flight. Canceling ctx stops the run
// gracefully: in-flight batches finish, remaining work is dropped, and
// the partial summary is returned alongside ctx's error. Upserts are
// individually atomic so a canceled run never leaves a torn chunk.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	candidates, skipped, err := p.enumerate(dir)
	if err != nil {
		return nil, err
	}
	summary.FilesSkipped = skipped

	p.logger.Info("ingestion started",
		"dir", dir,
		"files", len(candidates),
		"skipped", skipped,
		"chunk_size", p.cfg.ChunkSize,
		"overlap", p.cfg.ChunkOverlap,
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentFiles)

	for _, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := p.processFile(gctx, cand)

			mu.Lock()
			summary.Files++
			summary.Chunks += result.Chunks
			summary.Errors += result.Errors
			summary.Results = append(summary.Results, result)
			mu.Unlock()

			// Failures are already accounted per file; never abort the
			// group over one document.
			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	// Refresh planner statistics after the bulk load. Best-effort.
	if summary.Chunks > 0 {
		if err := p.store.Analyze(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("post-ingest analyze failed", "error", err)
		}
	}

	summary.Elapsed = time.Since(start)
	p.logger.Info("ingestion finished",
		"files", summary.Files,
		"chunks", summary.Chunks,
		"errors", summary.Errors,
		"elapsed", summary.Elapsed,
	)

	if ctx.Err() != nil {
		return summary, fmt.Errorf("ingestion interrupted: %w", ctx.Err())
	}
	return summary, nil
}

// enumerate walks dir and returns the files to ingest. Oversized files
// and unsupported extensions are skipped, not errors.
func (p *Pipeline) enumerate(dir string) ([]candidate, int, error) {
	maxBytes := int64(p.cfg.MaxFileSizeMB) * 1024 * 1024

	var candidates []candidate
	skipped := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !p.extensions[ext] {
			skipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			p.logger.Warn("stat failed, skipping file", "path", path, "error", err)
			skipped++
			return nil
		}
		if info.Size() > maxBytes {
			p.logger.Warn("file exceeds size limit, skipping",
				"path", path,
				"size_mb", float64(info.Size())/(1024*1024),
				"limit_mb", p.cfg.MaxFileSizeMB,
			)
			skipped++
			return nil
		}

		base := filepath.Base(path)
		candidates = append(candidates, candidate{
			path:     path,
			sourceID: strings.TrimSuffix(base, ext),
		})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking %s: %w", dir, err)
	}
	return candidates, skipped, nil
}

// processFile cleans, chunks, embeds, and upserts one document.
// Errors are contained to the batch that caused them.
func (p *Pipeline) processFile(ctx context.Context, cand candidate) FileResult {
	result := FileResult{SourceID: cand.sourceID}

	raw, err := os.ReadFile(cand.path)
	if err != nil {
		p.logger.Error("reading file failed", "path", cand.path, "error", err)
		result.Errors++
		return result
	}

	cleaned := chunk.Clean(string(raw))
	spans, err := chunk.Split(cleaned, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		p.logger.Error("chunking failed", "source", cand.sourceID, "error", err)
		result.Errors++
		return result
	}
	if len(spans) == 0 {
		p.logger.Debug("empty file after cleaning", "source", cand.sourceID)
		return result
	}

	p.logger.Debug("chunked document", "source", cand.sourceID, "chunks", len(spans))

	for batchStart := 0; batchStart < len(spans); batchStart += p.cfg.EmbedBatchSize {
		if ctx.Err() != nil {
			result.Errors += len(spans) - batchStart
			return result
		}

		batchEnd := min(batchStart+p.cfg.EmbedBatchSize, len(spans))
		batch := spans[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, span := range batch {
			texts[i] = span.Text
		}

		vectors, err := p.embedWithRetry(ctx, texts)
		if err != nil {
			// The batch is lost; keep going with the rest of the file.
			p.logger.Error("embedding batch failed, skipping its chunks",
				"source", cand.sourceID,
				"batch_start", batchStart,
				"chunks", len(batch),
				"error", err,
			)
			result.Errors += len(batch)
			continue
		}

		for i, span := range batch {
			c := store.Chunk{
				SourceID:    cand.sourceID,
				ChunkID:     fmt.Sprintf("%s::%d", cand.sourceID, batchStart+i),
				Text:        span.Text,
				Tags:        p.cfg.Tags,
				StartOffset: span.Start,
				EndOffset:   span.End,
				Embedding:   vectors[i],
			}
			if err := p.store.Upsert(ctx, c); err != nil {
				p.logger.Error("upsert failed, skipping chunk", "chunk_id", c.ChunkID, "error", err)
				result.Errors++
				continue
			}
			result.Chunks++
		}

		// Throttle between batches; a correctness no-op, it just keeps
		// the embedding API happy.
		if batchEnd < len(spans) && p.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				result.Errors += len(spans) - batchEnd
				return result
			case <-time.After(p.cfg.BatchDelay):
			}
		}
	}

	return result
}

// embedWithRetry calls the embedder with exponential backoff. Transient
// failures retry up to RetryAttempts total attempts; anything else
// fails the batch immediately.
func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := p.cfg.RetryDelay

	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !provider.Retryable(err) {
			return nil, fmt.Errorf("embedding batch: %w", err)
		}
		if attempt == p.cfg.RetryAttempts {
			break
		}

		p.logger.Warn("embedding attempt failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, maxRetryBackoff)
		}
	}
	return nil, fmt.Errorf("embedding batch after %d attempts: %w", p.cfg.RetryAttempts, lastErr)
}

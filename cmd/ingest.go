package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tutorly/tutorly/internal/app"
	"github.com/tutorly/tutorly/internal/config"
	"github.com/tutorly/tutorly/internal/ingest"
	"github.com/tutorly/tutorly/internal/log"
)

var ingestTags []string

var ingestCmd = &cobra.Command{
	Use:   "ingest [dir]",
	Short: "Chunk, embed and index documents from a directory",
	Long: `Walks a directory tree, splits every supported document into
overlapping chunks, embeds them in batches and upserts the result into
Postgres. Re-running on the same directory updates chunks in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return runIngest(cmd.Context(), dir)
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "tag applied to every ingested chunk (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dir == "" {
		dir = cfg.DataDir
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	pipeline := ingest.New(a.Embedder, a.Store, ingest.Config{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		EmbedBatchSize:     cfg.EmbedBatchSize,
		MaxConcurrentFiles: cfg.MaxConcurrentFiles,
		MaxFileSizeMB:      cfg.MaxFileSizeMB,
		RetryAttempts:      cfg.RetryAttempts,
		RetryDelay:         cfg.RetryDelay,
		BatchDelay:         cfg.BatchDelay,
		Tags:               ingestTags,
	}, logger.With("component", "ingest"))

	summary, runErr := pipeline.Run(ctx, dir)
	if summary != nil {
		printSummary(summary)
	}
	return runErr
}

func printSummary(s *ingest.Summary) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Println("\nIngestion summary")
	fmt.Println(strings.Repeat("-", 40))
	for _, r := range s.Results {
		line := fmt.Sprintf("  %-40s %d chunks", r.SourceID, r.Chunks)
		if r.Errors > 0 {
			red.Printf("%s (%d errors)\n", line, r.Errors)
		} else {
			fmt.Println(line)
		}
	}
	fmt.Println(strings.Repeat("-", 40))

	green.Printf("  files: %d  chunks: %d\n", s.Files, s.Chunks)
	if s.FilesSkipped > 0 {
		yellow.Printf("  skipped: %d\n", s.FilesSkipped)
	}
	if s.Errors > 0 {
		red.Printf("  errors: %d\n", s.Errors)
	}
	fmt.Printf("  elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
}

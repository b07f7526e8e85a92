package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tutorly/tutorly/internal/app"
	"github.com/tutorly/tutorly/internal/config"
	"github.com/tutorly/tutorly/internal/log"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage indexed sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed sources with chunk counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			counts, err := a.Store.CountBySource(ctx)
			if err != nil {
				return fmt.Errorf("listing sources: %w", err)
			}
			if len(counts) == 0 {
				fmt.Println("no sources indexed")
				return nil
			}
			bold := color.New(color.Bold)
			bold.Printf("%-50s %s\n", "SOURCE", "CHUNKS")
			var total int64
			for _, c := range counts {
				fmt.Printf("%-50s %d\n", c.SourceID, c.Chunks)
				total += c.Chunks
			}
			fmt.Printf("\n%d sources, %d chunks\n", len(counts), total)
			return nil
		})
	},
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <source-id>",
	Short: "Remove every chunk of a source from the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			deleted, err := a.Store.DeleteBySource(ctx, args[0])
			if err != nil {
				return fmt.Errorf("deleting source %q: %w", args[0], err)
			}
			fmt.Printf("deleted %d chunks of %s\n", deleted, args[0])
			return nil
		})
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// withApp wires config, logging and the datastore around a single command body.
func withApp(parent context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	return fn(ctx, a)
}

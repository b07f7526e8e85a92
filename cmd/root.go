package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutorly",
	Short: "Tutorly - retrieval-augmented teaching assistant backend",
	Long: `Tutorly ingests lecture transcripts into a pgvector-backed store and
answers questions over them through an HTTP API, grounding every answer
with ranked source citations.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

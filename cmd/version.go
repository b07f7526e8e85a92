package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Tutorly %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	fmt.Println("Environment:")
	printKeyStatus("GEMINI_API_KEY")
	printKeyStatus("OPENAI_API_KEY")
	printKeyStatus("DATABASE_URL")
	return nil
}

func printKeyStatus(name string) {
	v := os.Getenv(name)
	switch {
	case v == "":
		fmt.Printf("  %s: not set\n", name)
	case len(v) < 8:
		fmt.Printf("  %s: configured\n", name)
	default:
		fmt.Printf("  %s: %s...%s (configured)\n", name, v[:4], v[len(v)-4:])
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config string
}

var rootCmd = &cobra.Command{
	Use:   "taskmaster",
	Short: "Relevance-ranked work-item context over MCP",
	Long: "Taskmaster assembles a size-bounded context package for a work item:\nrelated items from the tracker's relationship graph, enriched with code-change\nsummaries, deduplicated, scored, and trimmed to a token budget.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.config, "config", "", "config file path (default .taskmaster/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(trimCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

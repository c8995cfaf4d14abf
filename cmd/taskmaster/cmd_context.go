package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"taskmaster/internal/taskctx"
)

var contextFlags struct {
	depth        int
	maxRelated   int
	maxAgeMonths int
	repos        []string
}

var contextCmd = &cobra.Command{
	Use:   "context <item-key>",
	Short: "Aggregate and print the context package for a work item",
	Long: `One-shot aggregation for debugging: resolves the relationship graph,
enriches with change records, and prints the untrimmed result as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	f := contextCmd.Flags()
	f.IntVar(&contextFlags.depth, "depth", 0, "relationship graph depth (0 = default)")
	f.IntVar(&contextFlags.maxRelated, "max-related", 0, "max related records (0 = default)")
	f.IntVar(&contextFlags.maxAgeMonths, "max-age-months", 0, "recency cutoff in months (0 = default)")
	f.StringSliceVar(&contextFlags.repos, "repo", nil, "repository scope (repeatable; default auto-detect)")
}

func runContext(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jc, bc, err := buildClients(cfg)
	if err != nil {
		return err
	}
	agg := buildAggregator(cfg, jc, bc)

	res := agg.Aggregate(cmd.Context(), args[0], taskctx.Options{
		Depth:        contextFlags.depth,
		MaxRelated:   contextFlags.maxRelated,
		MaxAgeMonths: contextFlags.maxAgeMonths,
		RepoScope:    contextFlags.repos,
	})

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

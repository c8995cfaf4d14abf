package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskmaster/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Print context cache statistics as JSON",
	Long: `Builds the context cache with the configured TTL and prints its
statistics. A one-shot process starts empty; for the live cache of a running
server, call the get_cache_stats MCP tool instead.`,
	RunE: runCache,
}

func runCache(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c := cache.New(time.Duration(cfg.Cache.TTLSeconds) * time.Second)

	out, err := json.MarshalIndent(c.Stats(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"taskmaster/internal/cache"
)

func TestRunCache_PrintsStatsJSON(t *testing.T) {
	rootFlags.config = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { rootFlags.config = "" })

	var buf bytes.Buffer
	cacheCmd.SetOut(&buf)

	if err := runCache(cacheCmd, nil); err != nil {
		t.Fatalf("runCache: %v", err)
	}

	var stats cache.Stats
	if err := json.Unmarshal(buf.Bytes(), &stats); err != nil {
		t.Fatalf("output is not stats JSON: %v\n%s", err, buf.String())
	}
	if stats.Total != 0 || stats.HitRate != 0 {
		t.Errorf("fresh cache stats should be zeroed: %+v", stats)
	}
}

func TestCacheCommandRegistered(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if c.Name() == "cache" {
			return
		}
	}
	t.Error("cache subcommand not registered on the root command")
}

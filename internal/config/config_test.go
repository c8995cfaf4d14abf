package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
jira:
  base_url: https://acme.atlassian.net
  email: dev@acme.example
aggregation:
  depth: 3
  max_related: 10
trim:
  max_units: 8000
  model: gpt-4
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Jira.BaseURL != "https://acme.atlassian.net" {
		t.Errorf("jira base_url = %q", cfg.Jira.BaseURL)
	}
	if cfg.Aggregation.Depth != 3 || cfg.Aggregation.MaxRelated != 10 {
		t.Errorf("aggregation = %+v", cfg.Aggregation)
	}
	// Untouched sections keep their defaults.
	if cfg.Aggregation.TimeoutSeconds != 30 {
		t.Errorf("timeout_seconds = %d, want default 30", cfg.Aggregation.TimeoutSeconds)
	}
	if cfg.Cache.TTLSeconds != 300 {
		t.Errorf("cache ttl = %d, want default 300", cfg.Cache.TTLSeconds)
	}
	if cfg.Trim.MaxUnits != 8000 || cfg.Trim.Model != "gpt-4" {
		t.Errorf("trim = %+v", cfg.Trim)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("jira:\n  api_token: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKMASTER_JIRA_TOKEN", "from-env")
	t.Setenv("TASKMASTER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Jira.APIToken != "from-env" {
		t.Errorf("api_token = %q, env should win over file", cfg.Jira.APIToken)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("jira: [not a mapping"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

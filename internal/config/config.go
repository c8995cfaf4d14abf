// Package config loads the taskmaster configuration from a YAML file with
// environment-variable overrides for credentials, so tokens never need to
// live on disk.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = ".taskmaster/config.yaml"

type Jira struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

type Bitbucket struct {
	BaseURL     string `yaml:"base_url"`
	Workspace   string `yaml:"workspace"`
	Username    string `yaml:"username"`
	AppPassword string `yaml:"app_password"`
}

type Aggregation struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Depth          int  `yaml:"depth"`
	MaxRelated     int  `yaml:"max_related"`
	MaxAgeMonths   int  `yaml:"max_age_months"`
	Concurrency    int  `yaml:"concurrency"`
	Fallback       bool `yaml:"fallback"`
}

type CacheCfg struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

type Trim struct {
	MaxUnits int    `yaml:"max_units"`
	Model    string `yaml:"model"` // tokenizer model; empty means chars/4 estimate
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Jira        Jira        `yaml:"jira"`
	Bitbucket   Bitbucket   `yaml:"bitbucket"`
	Aggregation Aggregation `yaml:"aggregation"`
	Cache       CacheCfg    `yaml:"cache"`
	Trim        Trim        `yaml:"trim"`
	Log         Log         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Aggregation: Aggregation{
			TimeoutSeconds: 30,
			Depth:          2,
			MaxRelated:     20,
			MaxAgeMonths:   6,
			Concurrency:    16,
			Fallback:       true,
		},
		Cache: CacheCfg{TTLSeconds: 300},
		Trim:  Trim{MaxUnits: 25000},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and then applies env overrides. A
// missing file is not an error — env-only setups are common in CI.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// keep defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEnv(&cfg.Jira.BaseURL, "TASKMASTER_JIRA_URL")
	setIfEnv(&cfg.Jira.Email, "TASKMASTER_JIRA_EMAIL")
	setIfEnv(&cfg.Jira.APIToken, "TASKMASTER_JIRA_TOKEN")
	setIfEnv(&cfg.Bitbucket.BaseURL, "TASKMASTER_BITBUCKET_URL")
	setIfEnv(&cfg.Bitbucket.Workspace, "TASKMASTER_BITBUCKET_WORKSPACE")
	setIfEnv(&cfg.Bitbucket.Username, "TASKMASTER_BITBUCKET_USERNAME")
	setIfEnv(&cfg.Bitbucket.AppPassword, "TASKMASTER_BITBUCKET_APP_PASSWORD")
	setIfEnv(&cfg.Log.Level, "TASKMASTER_LOG_LEVEL")
	setIfEnv(&cfg.Log.Format, "TASKMASTER_LOG_FORMAT")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

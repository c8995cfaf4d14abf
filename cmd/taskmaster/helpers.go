package main

import (
	"fmt"
	"time"

	"taskmaster/internal/aggregate"
	"taskmaster/internal/bitbucket"
	"taskmaster/internal/cache"
	"taskmaster/internal/config"
	"taskmaster/internal/jira"
	"taskmaster/internal/logging"
)

// loadConfig reads the config file and initializes logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	return cfg, nil
}

// buildClients wires the upstream API clients from config.
func buildClients(cfg *config.Config) (*jira.Client, *bitbucket.Client, error) {
	if cfg.Jira.BaseURL == "" {
		return nil, nil, fmt.Errorf("jira.base_url is not configured (set TASKMASTER_JIRA_URL or the config file)")
	}
	jc := jira.NewClient(jira.Config{
		BaseURL:  cfg.Jira.BaseURL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
	})
	bc := bitbucket.NewClient(bitbucket.Config{
		BaseURL:     cfg.Bitbucket.BaseURL,
		Workspace:   cfg.Bitbucket.Workspace,
		Username:    cfg.Bitbucket.Username,
		AppPassword: cfg.Bitbucket.AppPassword,
		DevStatus: bitbucket.DevStatusConfig{
			BaseURL:  cfg.Jira.BaseURL,
			Email:    cfg.Jira.Email,
			APIToken: cfg.Jira.APIToken,
		},
	})
	return jc, bc, nil
}

// buildAggregator assembles the aggregator with its cache from config.
func buildAggregator(cfg *config.Config, jc *jira.Client, bc *bitbucket.Client) *aggregate.Aggregator {
	return aggregate.New(jc, bc,
		aggregate.WithCache(cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second)),
		aggregate.WithTimeout(time.Duration(cfg.Aggregation.TimeoutSeconds)*time.Second),
		aggregate.WithConcurrency(cfg.Aggregation.Concurrency),
		aggregate.WithFallback(cfg.Aggregation.Fallback),
	)
}

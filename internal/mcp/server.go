// Package mcp exposes the context aggregator over the Model Context
// Protocol. Tool responses are trimmed to the configured budget before they
// leave the server, so a huge relationship graph can never blow out the
// consumer's capacity.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"taskmaster/internal/aggregate"
	"taskmaster/internal/cache"
	"taskmaster/internal/config"
	"taskmaster/internal/logging"
	"taskmaster/internal/taskctx"
	"taskmaster/internal/trim"
)

// ItemFetcher returns one work item's own fields. The Jira client satisfies
// it; tests inject fakes.
type ItemFetcher interface {
	Fetch(ctx context.Context, itemKey string) (taskctx.RelatedItem, error)
}

// Server wraps the MCP SDK server around the aggregator and trimmer.
type Server struct {
	MCPServer *sdkmcp.Server

	agg      *aggregate.Aggregator
	fetcher  ItemFetcher
	changes  aggregate.ChangeLookup
	counter  trim.Counter
	maxUnits int
}

// NewServer assembles an MCP server from pre-built collaborators. cfg.Trim
// selects the token counter: a named model counts exactly via tiktoken,
// empty means the chars/4 estimate.
func NewServer(agg *aggregate.Aggregator, fetcher ItemFetcher, changes aggregate.ChangeLookup, cfg config.Trim) *Server {
	var counter trim.Counter = trim.Estimator{}
	if cfg.Model != "" {
		if tk, err := trim.NewTiktoken(cfg.Model); err == nil {
			counter = tk
		} else {
			logging.New("mcp").Warn("tokenizer unavailable, using estimate", "model", cfg.Model, "error", err)
		}
	}
	maxUnits := cfg.MaxUnits
	if maxUnits <= 0 {
		maxUnits = config.Default().Trim.MaxUnits
	}

	s := &Server{
		agg:      agg,
		fetcher:  fetcher,
		changes:  changes,
		counter:  counter,
		maxUnits: maxUnits,
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "taskmaster", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_task_context",
		Description: "Assemble the related-work context package for a work item: related items with merged change records, relevance-ranked and trimmed to the response budget.",
	}, s.handleGetTaskContext)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_cache_stats",
		Description: "Report context cache health: entry counts and hit rate.",
	}, s.handleGetCacheStats)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached context package. Use after bulk updates in the tracker.",
	}, s.handleClearCache)
}

// --- Tool input/output types ---

type getTaskContextInput struct {
	ItemKey      string   `json:"item_key" jsonschema:"work item key, e.g. PROJ-123"`
	Depth        int      `json:"depth,omitempty" jsonschema:"relationship graph depth (default 2)"`
	MaxRelated   int      `json:"max_related,omitempty" jsonschema:"max related records (default 20)"`
	MaxAgeMonths int      `json:"max_age_months,omitempty" jsonschema:"drop non-structural records older than this (default 6)"`
	Repos        []string `json:"repos,omitempty" jsonschema:"repository scope for change lookups (default: auto-detect)"`
	MaxUnits     int      `json:"max_units,omitempty" jsonschema:"token budget override for this response"`
}

type getTaskContextOutput struct {
	Package trim.Package `json:"package"`
	Trim    trim.Report  `json:"trim"`
	Units   int          `json:"units"`
}

type getCacheStatsOutput struct {
	Stats cache.Stats `json:"stats"`
}

type clearCacheOutput struct {
	OK string `json:"ok"`
}

// --- Tool handlers ---

func (s *Server) handleGetTaskContext(ctx context.Context, _ *sdkmcp.CallToolRequest, input getTaskContextInput) (*sdkmcp.CallToolResult, getTaskContextOutput, error) {
	if input.ItemKey == "" {
		return nil, getTaskContextOutput{}, fmt.Errorf("item_key is required")
	}

	res := s.agg.Aggregate(ctx, input.ItemKey, taskctx.Options{
		Depth:        input.Depth,
		MaxRelated:   input.MaxRelated,
		MaxAgeMonths: input.MaxAgeMonths,
		RepoScope:    input.Repos,
	})

	pkg := s.buildPackage(ctx, input.ItemKey, res)

	budget := s.maxUnits
	if input.MaxUnits > 0 {
		budget = input.MaxUnits
	}
	trimmed, report := trim.ToBudgetWith(s.counter, pkg, budget)

	return nil, getTaskContextOutput{
		Package: trimmed,
		Trim:    report,
		Units:   trim.Units(s.counter, trimmed),
	}, nil
}

// buildPackage anchors the aggregation result around the primary item's own
// fields and changes. Both lookups are best effort: a bare package with only
// the related records is still useful.
func (s *Server) buildPackage(ctx context.Context, itemKey string, res *taskctx.Result) trim.Package {
	logger := logging.New("mcp")

	pkg := trim.Package{
		Key:            itemKey,
		Related:        res.Records,
		ContextSummary: res.Summary,
		Insights:       res.Insights,
	}

	if s.fetcher != nil {
		if item, err := s.fetcher.Fetch(ctx, itemKey); err == nil {
			pkg.Summary = item.Summary
			pkg.Status = item.Status
			pkg.Description = item.Description
		} else {
			logger.Warn("primary item fetch failed", "item", itemKey, "error", err)
		}
	}
	if s.changes != nil {
		if own, err := s.changes.DevStatus(ctx, itemKey); err == nil {
			pkg.Changes = mostRecentFirst(own)
		} else {
			logger.Warn("primary change lookup failed", "item", itemKey, "error", err)
		}
	}
	return pkg
}

// mostRecentFirst orders the primary item's changes so the trimmer's cap
// keeps the newest ones.
func mostRecentFirst(changes []taskctx.ChangeRecord) []taskctx.ChangeRecord {
	out := make([]taskctx.ChangeRecord, len(changes))
	copy(out, changes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevantTime().After(out[j].RelevantTime())
	})
	return out
}

func (s *Server) handleGetCacheStats(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, getCacheStatsOutput, error) {
	return nil, getCacheStatsOutput{Stats: s.agg.Cache().Stats()}, nil
}

func (s *Server) handleClearCache(_ context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, clearCacheOutput, error) {
	s.agg.Cache().Clear()
	return nil, clearCacheOutput{OK: "cache cleared at " + time.Now().UTC().Format(time.RFC3339)}, nil
}

// Package aggregate orchestrates one context-aggregation pass: resolve the
// relationship graph, enrich every related item with change records
// concurrently, run the taskctx pipeline, and package the result. The public
// contract is that Aggregate never fails — upstream trouble degrades the
// result instead of surfacing an error.
package aggregate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taskmaster/internal/cache"
	"taskmaster/internal/logging"
	"taskmaster/internal/taskctx"
)

// Defaults applied when the caller leaves Options fields zero.
const (
	DefaultDepth        = 2
	DefaultMaxRelated   = 20
	DefaultMaxAgeMonths = 6
	DefaultTimeout      = 30 * time.Second
	DefaultConcurrency  = 16
)

// ResolvedLink is one edge of the relationship graph as returned by the
// resolver, already normalized into domain types at the client boundary.
type ResolvedLink struct {
	Item      taskctx.RelatedItem
	Type      taskctx.RelationType
	Direction string
	Depth     int
}

// Resolution is the resolver's view of one item's relationship graph.
type Resolution struct {
	SourceKey string
	Links     []ResolvedLink
}

// Resolver walks the multi-hop relationship graph of a work item. Retry
// policy, transport and auth belong to the implementation.
type Resolver interface {
	Resolve(ctx context.Context, itemKey string, depth int, includeTypes []taskctx.RelationType) (*Resolution, error)
}

// ChangeLookup finds code-change summaries for a work item. Find may be
// scoped to repositories; DevStatus is the configuration-free fallback and
// also the source for repo detection.
type ChangeLookup interface {
	Find(ctx context.Context, itemKey string, repoScope []string) ([]taskctx.ChangeRecord, error)
	DevStatus(ctx context.Context, itemKey string) ([]taskctx.ChangeRecord, error)
}

// Aggregator drives the pipeline. Construct with New; the zero value is not
// usable.
type Aggregator struct {
	resolver    Resolver
	changes     ChangeLookup
	cache       *cache.Cache
	timeout     time.Duration
	concurrency int
	fallback    bool
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache injects the shared result cache. Without it the aggregator uses
// a private one with the default TTL.
func WithCache(c *cache.Cache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithTimeout bounds one whole aggregation pass.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithConcurrency bounds the change-lookup fan-out.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithFallback enables the reduced-result path: when an enrichment stage
// fails unexpectedly, return relationship-only records instead of an empty
// result.
func WithFallback(enabled bool) Option {
	return func(a *Aggregator) { a.fallback = enabled }
}

// WithClock replaces the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New wires an Aggregator around the two upstream collaborators.
func New(resolver Resolver, changes ChangeLookup, opts ...Option) *Aggregator {
	a := &Aggregator{
		resolver:    resolver,
		changes:     changes,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
		fallback:    true,
		logger:      logging.New("aggregate"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = cache.New(0)
	}
	return a
}

// Cache exposes the result cache for stats and explicit invalidation.
func (a *Aggregator) Cache() *cache.Cache { return a.cache }

// Aggregate assembles the context package for itemKey. It never returns an
// error: upstream failure yields a degraded or empty Result, and the call
// races a fixed timeout — a late aggregation result is discarded, never
// surfaced. Successful results are written through the cache; degraded ones
// are not, so the next call retries the upstreams.
func (a *Aggregator) Aggregate(ctx context.Context, itemKey string, opts taskctx.Options) *taskctx.Result {
	opts = a.normalize(opts)

	key := cache.Key(itemKey, opts)
	if res, ok := a.cache.Get(key); ok {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resCh := make(chan *taskctx.Result, 1)
	go func() { resCh <- a.run(ctx, itemKey, opts) }()

	select {
	case res := <-resCh:
		if !res.Metadata.FallbackMode {
			a.cache.Put(key, res)
		}
		return res
	case <-ctx.Done():
		a.logger.Warn("aggregation timed out", "item", itemKey, "timeout", a.timeout)
		return a.emptyResult(itemKey, opts)
	}
}

func (a *Aggregator) normalize(opts taskctx.Options) taskctx.Options {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	if opts.MaxRelated <= 0 {
		opts.MaxRelated = DefaultMaxRelated
	}
	if opts.MaxAgeMonths <= 0 {
		opts.MaxAgeMonths = DefaultMaxAgeMonths
	}
	return opts
}

func (a *Aggregator) run(ctx context.Context, itemKey string, opts taskctx.Options) (res *taskctx.Result) {
	resolution, err := a.resolver.Resolve(ctx, itemKey, opts.Depth, opts.IncludeTypes)
	if err != nil || resolution == nil {
		a.logger.Warn("relationship resolution failed", "item", itemKey, "stage", "resolve", "error", err)
		return a.emptyResult(itemKey, opts)
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("aggregation stage failed", "item", itemKey, "panic", r)
			if a.fallback {
				res = a.reducedResult(itemKey, opts, resolution)
			} else {
				res = a.emptyResult(itemKey, opts)
			}
		}
	}()

	scope := opts.RepoScope
	if len(scope) == 0 {
		scope = a.detectRepos(ctx, itemKey)
	}

	changes := a.lookupChanges(ctx, resolution.Links, scope)

	pairs := make([]taskctx.Pair, 0, len(resolution.Links))
	for _, link := range resolution.Links {
		pairs = append(pairs, taskctx.Pair{
			Item:    link.Item,
			Rel:     taskctx.Relationship{Type: link.Type, Direction: link.Direction, Depth: link.Depth},
			Changes: changes[link.Item.Key],
		})
	}

	records, filteredOut := a.pipeline(pairs, opts)

	return &taskctx.Result{
		SourceKey: itemKey,
		Records:   records,
		Summary:   taskctx.BuildSummary(records, filteredOut),
		Insights:  taskctx.BuildInsights(records),
		Metadata:  a.metadata(opts, false, filteredOut > 0),
	}
}

// pipeline runs dedup/merge, recency filtering, scoring and count limiting,
// and returns the final records plus the filtered-out count (unique items
// before any filtering minus the final count — computed exactly once).
func (a *Aggregator) pipeline(pairs []taskctx.Pair, opts taskctx.Options) ([]taskctx.ContextRecord, int) {
	records := taskctx.Merge(pairs)
	preFilter := len(records)

	now := a.now()
	records = taskctx.FilterByAge(records, opts.MaxAgeMonths, now)
	for i := range records {
		records[i].Score = taskctx.Score(records[i], now)
	}
	records = taskctx.LimitCount(records, opts.MaxRelated)

	return records, preFilter - len(records)
}

// detectRepos infers a repository scope from the primary item's own change
// metadata. Best effort: any failure means an unscoped lookup.
func (a *Aggregator) detectRepos(ctx context.Context, itemKey string) []string {
	own, err := a.changes.DevStatus(ctx, itemKey)
	if err != nil {
		a.logger.Warn("repo detection failed", "item", itemKey, "stage", "detect", "error", err)
		return nil
	}
	seen := make(map[string]bool)
	var repos []string
	for _, c := range own {
		if c.Repository != "" && !seen[c.Repository] {
			seen[c.Repository] = true
			repos = append(repos, c.Repository)
		}
	}
	return repos
}

// lookupChanges fans out one change lookup per unique related item. Every
// lookup is isolated: a failure or timeout yields an empty change list for
// that item only and never cancels siblings, so a plain errgroup (no
// WithContext) gathers them.
func (a *Aggregator) lookupChanges(ctx context.Context, links []ResolvedLink, scope []string) map[string][]taskctx.ChangeRecord {
	var keys []string
	seen := make(map[string]bool)
	for _, link := range links {
		if !seen[link.Item.Key] {
			seen[link.Item.Key] = true
			keys = append(keys, link.Item.Key)
		}
	}

	results := make([][]taskctx.ChangeRecord, len(keys))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = a.lookupOne(ctx, key, scope)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are logged per item

	out := make(map[string][]taskctx.ChangeRecord, len(keys))
	for i, key := range keys {
		out[key] = results[i]
	}
	return out
}

// lookupOne tries the (possibly repo-scoped) lookup first and falls back to
// dev-status when that returns nothing. No retries: a failed lookup is an
// empty change list plus a warning.
func (a *Aggregator) lookupOne(ctx context.Context, itemKey string, scope []string) []taskctx.ChangeRecord {
	recs, findErr := a.changes.Find(ctx, itemKey, scope)
	if findErr == nil && len(recs) > 0 {
		return recs
	}
	if findErr != nil {
		a.logger.Debug("scoped change lookup failed, trying dev-status", "item", itemKey, "error", findErr)
	}

	recs, err := a.changes.DevStatus(ctx, itemKey)
	if err != nil {
		a.logger.Warn("change lookup failed", "item", itemKey, "stage", "changes", "error", err)
		return nil
	}
	return recs
}

// reducedResult packages relationship-only records: the graph resolved but
// enrichment failed partway, and fallback mode is enabled.
func (a *Aggregator) reducedResult(itemKey string, opts taskctx.Options, resolution *Resolution) *taskctx.Result {
	pairs := make([]taskctx.Pair, 0, len(resolution.Links))
	for _, link := range resolution.Links {
		pairs = append(pairs, taskctx.Pair{
			Item: link.Item,
			Rel:  taskctx.Relationship{Type: link.Type, Direction: link.Direction, Depth: link.Depth},
		})
	}
	records, filteredOut := a.pipeline(pairs, opts)

	return &taskctx.Result{
		SourceKey: itemKey,
		Records:   records,
		Summary:   taskctx.BuildSummary(records, filteredOut),
		Insights:  taskctx.BuildInsights(records),
		Metadata:  a.metadata(opts, true, filteredOut > 0),
	}
}

// emptyResult is the floor of the degradation ladder: zero records, zeroed
// summary, generic insight text.
func (a *Aggregator) emptyResult(itemKey string, opts taskctx.Options) *taskctx.Result {
	return &taskctx.Result{
		SourceKey: itemKey,
		Records:   []taskctx.ContextRecord{},
		Summary:   taskctx.Summary{},
		Insights:  []string{"Context aggregation was unavailable for this item."},
		Metadata:  a.metadata(opts, true, false),
	}
}

func (a *Aggregator) metadata(opts taskctx.Options, fallback, filtered bool) taskctx.Metadata {
	scope := "default"
	if len(opts.RepoScope) > 0 {
		scope = strings.Join(opts.RepoScope, ",")
	}
	return taskctx.Metadata{
		AggregationID:    uuid.NewString(),
		GeneratedAt:      a.now(),
		Scope:            scope,
		FallbackMode:     fallback,
		FilteringApplied: filtered,
	}
}

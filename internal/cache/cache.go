// Package cache is the in-memory store for finished aggregation results.
// Entries expire by TTL; the TTL adapts to the content (completed-only
// contexts churn less, so they live six times longer). Expired entries are
// swept lazily, on write, once the entry count passes the capacity threshold.
package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"taskmaster/internal/taskctx"
)

// DefaultTTL applies when the constructor is given a non-positive base TTL.
const DefaultTTL = 5 * time.Minute

// sweepThreshold is the entry count past which a write triggers a sweep of
// expired entries.
const sweepThreshold = 100

// completedTTLFactor stretches the TTL for results with no active work.
const completedTTLFactor = 6

// Stats is a point-in-time view of cache health.
type Stats struct {
	Total   int     `json:"total"`
	Valid   int     `json:"valid"`
	Expired int     `json:"expired"`
	HitRate float64 `json:"hitRate"`
}

type entry struct {
	result *taskctx.Result
	expiry time.Time
}

// Cache is safe for concurrent readers and writers. One instance is shared
// per process; construct and inject it rather than reaching for a global.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]entry
	baseTTL time.Duration
	hits    uint64
	misses  uint64

	now func() time.Time // test seam
}

// New returns an empty cache with the given base TTL.
func New(baseTTL time.Duration) *Cache {
	if baseTTL <= 0 {
		baseTTL = DefaultTTL
	}
	return &Cache{
		entries: make(map[uint64]entry),
		baseTTL: baseTTL,
		now:     time.Now,
	}
}

// Key derives the deterministic cache key for one aggregation request:
// item key, scope (or "default" when unscoped), and the normalized options
// that change the result shape.
func Key(itemKey string, opts taskctx.Options) uint64 {
	scope := "default"
	if len(opts.RepoScope) > 0 {
		repos := append([]string(nil), opts.RepoScope...)
		sort.Strings(repos)
		scope = strings.Join(repos, ",")
	}

	types := make([]string, 0, len(opts.IncludeTypes))
	for _, t := range opts.IncludeTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)

	canonical := fmt.Sprintf("%s|%s|d=%d|t=%s|a=%d|m=%d",
		itemKey, scope, opts.Depth, strings.Join(types, ","), opts.MaxAgeMonths, opts.MaxRelated)
	return xxhash.Sum64String(canonical)
}

// Get returns the cached result for key if present and unexpired.
func (c *Cache) Get(key uint64) (*taskctx.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiry) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.result, true
}

// Put stores a result. Results still carrying non-terminal work — anything
// not yet completed, to-do and blocked included — get the base TTL; results
// whose records are all completed get the stretched TTL. Sweeps expired
// entries when the store has grown past the threshold.
func (c *Cache) Put(key uint64, res *taskctx.Result) {
	ttl := c.baseTTL
	if res.Summary.Completed == res.Summary.TotalRelated {
		ttl = c.baseTTL * completedTTLFactor
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{result: res, expiry: c.now().Add(ttl)}
	if len(c.entries) > sweepThreshold {
		c.sweepLocked()
	}
}

// sweepLocked removes expired entries. Caller holds mu.
func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
}

// Stats reports entry counts and the observed hit rate.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Total: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		if now.After(e.expiry) {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	return s
}

// Clear drops every entry unconditionally. Hit/miss counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]entry)
}

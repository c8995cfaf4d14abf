// Package taskctx holds the context data model and the pure pipeline stages
// that turn a raw relationship graph into a scored, bounded set of context
// records: dedup/merge, recency filtering, relevance scoring, and count
// limiting. Everything in this package is deterministic; upstream I/O lives
// in internal/aggregate and the API clients.
package taskctx

import "time"

// RelationType classifies how a related item is attached to the source item.
type RelationType string

const (
	RelParent     RelationType = "parent"
	RelChild      RelationType = "child" // subtasks included
	RelEpic       RelationType = "epic"
	RelStory      RelationType = "story"
	RelDependency RelationType = "dependency"
	RelBlocks     RelationType = "blocks"
	RelBlockedBy  RelationType = "blocked_by"
	RelRelates    RelationType = "relates"
)

// Priority ranks relationship types. A record discovered via several paths
// keeps the highest-priority type as its primary relationship.
func (t RelationType) Priority() int {
	switch t {
	case RelParent:
		return 100
	case RelChild:
		return 90
	case RelEpic:
		return 80
	case RelStory:
		return 75
	case RelDependency:
		return 70
	case RelBlocks, RelBlockedBy:
		return 65
	case RelRelates:
		return 60
	default:
		return 50
	}
}

// Structural reports whether the type carries structural context that must
// survive age-based filtering (a parent from five years ago still matters).
func (t RelationType) Structural() bool {
	return t == RelParent || t == RelEpic || t == RelChild
}

// Essential reports whether the type exempts a record from count-based
// limiting. Narrower than Structural: only the direct hierarchy.
func (t RelationType) Essential() bool {
	return t == RelParent || t == RelChild
}

// Relationship is one discovery path from the source item to a related item.
type Relationship struct {
	Type      RelationType `json:"type"`
	Direction string       `json:"direction,omitempty"` // "inward" or "outward"
	Depth     int          `json:"depth"`
	Primary   bool         `json:"primary,omitempty"`
}

// RelatedItem is a work item surfaced by the relationship graph. Fields are
// normalized at the API boundary; anything the upstream omits stays zero.
type RelatedItem struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary,omitempty"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created,omitzero"`
	Updated     time.Time `json:"updated,omitzero"`
}

// RecentTime is the item's most recent known timestamp: Updated when set,
// Created otherwise.
func (it RelatedItem) RecentTime() time.Time {
	if !it.Updated.IsZero() {
		return it.Updated
	}
	return it.Created
}

// ChangeState is the lifecycle state of a code change.
type ChangeState string

const (
	ChangeOpen     ChangeState = "open"
	ChangeMerged   ChangeState = "merged"
	ChangeDeclined ChangeState = "declined"
)

// DiffStat summarizes line-level impact of a change.
type DiffStat struct {
	FilesChanged int `json:"filesChanged"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
}

// BranchInfo names the branches a change moves between.
type BranchInfo struct {
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
}

// Commit is a single commit attached to a change record.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message,omitempty"`
	Date    time.Time `json:"date,omitzero"`
}

// ChangeRecord is a summary of one external code change (a pull request or
// equivalent) associated with a work item. DiffStat, FilesChanged, Commits
// and Branch are the detail fields: a record carrying any of the first two is
// preferred over a summary-only duplicate during merge.
type ChangeRecord struct {
	ID           string      `json:"id"`
	Title        string      `json:"title,omitempty"`
	State        ChangeState `json:"state"`
	Repository   string      `json:"repository,omitempty"`
	Created      time.Time   `json:"created,omitzero"`
	Updated      time.Time   `json:"updated,omitzero"`
	Merged       time.Time   `json:"merged,omitzero"`
	DiffStat     *DiffStat   `json:"diffStat,omitempty"`
	FilesChanged []string    `json:"filesChanged,omitempty"`
	Commits      []Commit    `json:"commits,omitempty"`
	Branch       *BranchInfo `json:"branch,omitempty"`
}

// HasDetail reports whether the record carries file-level detail.
func (c ChangeRecord) HasDetail() bool {
	return c.DiffStat != nil || len(c.FilesChanged) > 0
}

// FileCount is the number of files the change touches, from whichever detail
// field is populated.
func (c ChangeRecord) FileCount() int {
	if c.DiffStat != nil && c.DiffStat.FilesChanged > 0 {
		return c.DiffStat.FilesChanged
	}
	return len(c.FilesChanged)
}

// RelevantTime is the change's most meaningful timestamp: merge date for
// merged changes, then Updated, then Created.
func (c ChangeRecord) RelevantTime() time.Time {
	if !c.Merged.IsZero() {
		return c.Merged
	}
	if !c.Updated.IsZero() {
		return c.Updated
	}
	return c.Created
}

// ContextRecord is one related item with every discovery path that reached
// it, its merged change records (unique by ID), and a relevance score.
type ContextRecord struct {
	Item          RelatedItem    `json:"item"`
	Relationships []Relationship `json:"relationships"`
	Changes       []ChangeRecord `json:"changes,omitempty"`
	Score         int            `json:"relevanceScore"`
}

// Primary returns the record's primary relationship, or a zero Relationship
// if the record has none (defensive; merge always marks one).
func (r ContextRecord) Primary() Relationship {
	for _, rel := range r.Relationships {
		if rel.Primary {
			return rel
		}
	}
	if len(r.Relationships) > 0 {
		return r.Relationships[0]
	}
	return Relationship{}
}

// Structural reports whether any relationship exempts the record from
// age-based filtering.
func (r ContextRecord) Structural() bool {
	for _, rel := range r.Relationships {
		if rel.Type.Structural() {
			return true
		}
	}
	return false
}

// Essential reports whether any relationship exempts the record from
// count-based limiting.
func (r ContextRecord) Essential() bool {
	for _, rel := range r.Relationships {
		if rel.Type.Essential() {
			return true
		}
	}
	return false
}

// Options are the caller-tunable aggregation knobs. Zero values mean "use
// the aggregator's defaults".
type Options struct {
	Depth        int            `json:"depth,omitempty"`
	IncludeTypes []RelationType `json:"includeTypes,omitempty"`
	RepoScope    []string       `json:"repoScope,omitempty"`
	MaxAgeMonths int            `json:"maxAgeMonths,omitempty"`
	MaxRelated   int            `json:"maxRelated,omitempty"`
}

// Summary holds the aggregate counts computed from the final record set.
type Summary struct {
	TotalRelated    int            `json:"totalRelated"`
	FilteredOut     int            `json:"filteredOut"`
	Active          int            `json:"active"`
	Completed       int            `json:"completed"`
	TotalChanges    int            `json:"totalChanges"`
	MergedChanges   int            `json:"mergedChanges"`
	AverageScore    int            `json:"averageScore"`
	StatusBreakdown map[string]int `json:"statusBreakdown,omitempty"`
}

// Metadata describes how and when a result was produced.
type Metadata struct {
	AggregationID    string    `json:"aggregationId"`
	GeneratedAt      time.Time `json:"generatedAt"`
	Scope            string    `json:"scope,omitempty"`
	FallbackMode     bool      `json:"fallbackMode,omitempty"`
	FilteringApplied bool      `json:"filteringApplied"`
}

// Result is the immutable output of one aggregation pass. Callers needing
// fresher data invalidate the cache explicitly; the aggregator never mutates
// a returned Result.
type Result struct {
	SourceKey string          `json:"sourceItemId"`
	Records   []ContextRecord `json:"records"`
	Summary   Summary         `json:"summary"`
	Insights  []string        `json:"insights,omitempty"`
	Metadata  Metadata        `json:"metadata"`
}

package trim

import (
	"encoding/json"

	"taskmaster/internal/taskctx"
)

const (
	// Change-list caps applied by the third stage.
	maxPrimaryChanges = 2
	maxRelatedChanges = 1

	// Free-text caps applied by the fourth stage.
	maxPrimaryText = 500
	maxRelatedText = 200

	truncationMarker = "... [truncated]"

	// OverBudgetWarning is attached when every stage has run and the
	// package still exceeds the budget. Best-effort contract.
	OverBudgetWarning = "context exceeds the requested budget even after full trimming"
)

// Image is a rendered attachment carried alongside the context package.
type Image struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"` // base64
}

// Package is the full payload handed to the downstream consumer: the primary
// item's own fields and changes, attachments, and the aggregated related
// records with their summary.
type Package struct {
	Key            string                  `json:"key"`
	Summary        string                  `json:"summary,omitempty"`
	Status         string                  `json:"status,omitempty"`
	Description    string                  `json:"description,omitempty"`
	Changes        []taskctx.ChangeRecord  `json:"changes,omitempty"` // most-recent-first
	Images         []Image                 `json:"images,omitempty"`
	Related        []taskctx.ContextRecord `json:"related,omitempty"`
	ContextSummary taskctx.Summary         `json:"contextSummary"`
	Insights       []string                `json:"insights,omitempty"`
	Warning        string                  `json:"warning,omitempty"`
}

// Report records what trimming removed, for observability.
type Report struct {
	RecordsRemoved  int  `json:"recordsRemoved"`
	ImagesRemoved   int  `json:"imagesRemoved"`
	ChangesRemoved  int  `json:"changesRemoved"`
	FieldsTruncated int  `json:"fieldsTruncated"`
	OverBudget      bool `json:"overBudget"`
}

// Did reports whether any stage changed the package.
func (r Report) Did() bool {
	return r.RecordsRemoved > 0 || r.ImagesRemoved > 0 || r.ChangesRemoved > 0 ||
		r.FieldsTruncated > 0 || r.OverBudget
}

// Units measures the package against the budget heuristic.
func Units(counter Counter, pkg Package) int {
	b, _ := json.Marshal(pkg)
	return counter.Count(string(b))
}

// ToBudget trims pkg with the default chars/4 estimator.
func ToBudget(pkg Package, maxUnits int) (Package, Report) {
	return ToBudgetWith(Estimator{}, pkg, maxUnits)
}

// ToBudgetWith runs the staged pipeline until the package fits maxUnits or
// every stage is exhausted. Stages run in fixed order and each re-measures
// before the next fires, so a package brought under budget early is left
// otherwise untouched. The input is never mutated; derived summary fields
// are recomputed from the trimmed data only.
func ToBudgetWith(counter Counter, pkg Package, maxUnits int) (Package, Report) {
	var rep Report
	if maxUnits <= 0 || Units(counter, pkg) <= maxUnits {
		return pkg, rep
	}

	// Stage 1: drop all images. The largest single win.
	if len(pkg.Images) > 0 {
		rep.ImagesRemoved = len(pkg.Images)
		pkg.Images = nil
	}

	// Stage 2: shed related records, lowest relevance first, re-measuring
	// after each removal. Essential records (parent/child) are not
	// candidates here; only the last-resort stage may drop those.
	for Units(counter, pkg) > maxUnits {
		related, ok := dropLowest(pkg.Related)
		if !ok {
			break
		}
		pkg.Related = related
		rep.RecordsRemoved++
	}

	// Stage 3: cap change lists.
	if Units(counter, pkg) > maxUnits {
		pkg, rep = capChanges(pkg, rep)
	}

	// Stage 4: truncate long free-text fields.
	if Units(counter, pkg) > maxUnits {
		pkg, rep = truncateText(pkg, rep)
	}

	// Stage 5: last resort, drop whatever related records remain.
	if Units(counter, pkg) > maxUnits && len(pkg.Related) > 0 {
		rep.RecordsRemoved += len(pkg.Related)
		pkg.Related = nil
	}

	if Units(counter, pkg) > maxUnits {
		rep.OverBudget = true
		pkg.Warning = OverBudgetWarning
	}

	// Derived fields always reflect the final data, never the pre-trim set.
	pkg.ContextSummary = taskctx.BuildSummary(pkg.Related,
		pkg.ContextSummary.FilteredOut+rep.RecordsRemoved)
	pkg.Insights = taskctx.BuildInsights(pkg.Related)
	return pkg, rep
}

// dropLowest returns a copy of records without the lowest-relevance
// non-essential entry; ok is false when only essential records remain. When
// no record carries a full score (pre-enrichment packages), the coarser
// priority score orders them instead. Ties drop the later record.
func dropLowest(records []taskctx.ContextRecord) ([]taskctx.ContextRecord, bool) {
	scored := false
	for _, r := range records {
		if r.Score > 0 {
			scored = true
			break
		}
	}
	key := func(r taskctx.ContextRecord) int {
		if scored {
			return r.Score
		}
		return taskctx.PriorityScore(r)
	}

	lowest := -1
	for i, r := range records {
		if r.Essential() {
			continue
		}
		if lowest < 0 || key(r) <= key(records[lowest]) {
			lowest = i
		}
	}
	if lowest < 0 {
		return records, false
	}

	out := make([]taskctx.ContextRecord, 0, len(records)-1)
	out = append(out, records[:lowest]...)
	out = append(out, records[lowest+1:]...)
	return out, true
}

func capChanges(pkg Package, rep Report) (Package, Report) {
	if len(pkg.Changes) > maxPrimaryChanges {
		rep.ChangesRemoved += len(pkg.Changes) - maxPrimaryChanges
		pkg.Changes = pkg.Changes[:maxPrimaryChanges]
	}

	changed := false
	for _, rec := range pkg.Related {
		if len(rec.Changes) > maxRelatedChanges {
			changed = true
			break
		}
	}
	if changed {
		related := make([]taskctx.ContextRecord, len(pkg.Related))
		copy(related, pkg.Related)
		for i, rec := range related {
			if len(rec.Changes) > maxRelatedChanges {
				rep.ChangesRemoved += len(rec.Changes) - maxRelatedChanges
				related[i].Changes = rec.Changes[:maxRelatedChanges]
			}
		}
		pkg.Related = related
	}
	return pkg, rep
}

func truncateText(pkg Package, rep Report) (Package, Report) {
	if cut, ok := truncate(pkg.Description, maxPrimaryText); ok {
		pkg.Description = cut
		rep.FieldsTruncated++
	}

	changed := false
	for _, rec := range pkg.Related {
		if _, ok := truncate(rec.Item.Description, maxRelatedText); ok {
			changed = true
			break
		}
	}
	if changed {
		related := make([]taskctx.ContextRecord, len(pkg.Related))
		copy(related, pkg.Related)
		for i, rec := range related {
			if cut, ok := truncate(rec.Item.Description, maxRelatedText); ok {
				related[i].Item.Description = cut
				rep.FieldsTruncated++
			}
		}
		pkg.Related = related
	}
	return pkg, rep
}

// truncate caps s at limit characters plus the marker. Returns ok=false when
// s already fits (including a previously truncated field, which ends with
// the marker and is never re-cut).
func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit+len(truncationMarker) {
		return s, false
	}
	return s[:limit] + truncationMarker, true
}

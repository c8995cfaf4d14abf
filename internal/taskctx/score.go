package taskctx

import (
	"math"
	"strings"
	"time"
)

// Relevance weights. Relationship dominates; status and change activity
// modulate. The final score is clamped to [0,100].
const (
	statusFactor = 0.3
	changeFactor = 0.4
	changeCap    = 40

	day = 24 * time.Hour
)

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Score computes the relevance of one record relative to now. Pure function
// of (relationship, status, changes): identical input always scores the same.
func Score(rec ContextRecord, now time.Time) int {
	raw := float64(relationshipWeight(rec.Primary().Type)) +
		statusFactor*float64(statusWeight(rec.Item.Status)) +
		changeFactor*math.Min(changeCap, float64(changeScoreSum(rec.Changes, now)))

	s := int(math.Round(raw))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// PriorityScore is the fallback ordering key used before change enrichment
// has happened (or when trimming a package whose records carry no full
// scores). Coarser than Score and unbounded above 100; ordering only.
func PriorityScore(rec ContextRecord) int {
	s := rec.Primary().Type.Priority() + statusWeight(rec.Item.Status)
	if len(rec.Changes) > 0 {
		s += 20
	}
	return s
}

func relationshipWeight(t RelationType) int {
	switch t {
	case RelParent:
		return 100
	case RelChild:
		return 90
	case RelEpic:
		return 80
	case RelStory, RelDependency:
		return 75
	case RelBlocks, RelBlockedBy:
		return 70
	case RelRelates:
		return 60
	default:
		return 50
	}
}

func statusWeight(status string) int {
	switch normalizeStatus(status) {
	case "in progress":
		return 100
	case "done":
		return 90
	case "review", "in review", "testing":
		return 85
	case "to do", "open", "backlog":
		return 70
	default:
		return 50
	}
}

// changeScoreSum accumulates per-change contributions: lifecycle state,
// file-change volume (2 points per file, capped at 20), and recency of the
// change's most relevant date.
func changeScoreSum(changes []ChangeRecord, now time.Time) int {
	total := 0
	for _, c := range changes {
		switch c.State {
		case ChangeMerged:
			total += 30
		case ChangeOpen:
			total += 20
		case ChangeDeclined:
			total += 5
		}

		if files := c.FileCount(); files > 0 {
			volume := 2 * files
			if volume > 20 {
				volume = 20
			}
			total += volume
		}

		if t := c.RelevantTime(); !t.IsZero() {
			age := now.Sub(t)
			switch {
			case age < 30*day:
				total += 15
			case age < 90*day:
				total += 10
			case age < 180*day:
				total += 5
			}
		}
	}
	return total
}

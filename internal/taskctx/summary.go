package taskctx

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
)

// StatusCompleted reports whether a status names terminal work.
func StatusCompleted(status string) bool {
	switch normalizeStatus(status) {
	case "done", "closed", "resolved", "cancelled", "canceled":
		return true
	}
	return false
}

// StatusActive reports whether a status names in-flight work.
func StatusActive(status string) bool {
	switch normalizeStatus(status) {
	case "in progress", "review", "in review", "testing":
		return true
	}
	return false
}

// BuildSummary computes aggregate counts from the final record set.
// filteredOut is supplied by the caller: unique item count before any
// filtering minus the final record count, computed once (never accumulated
// stage by stage).
func BuildSummary(records []ContextRecord, filteredOut int) Summary {
	s := Summary{
		TotalRelated: len(records),
		FilteredOut:  filteredOut,
	}
	if len(records) == 0 {
		return s
	}

	s.StatusBreakdown = make(map[string]int)
	scoreSum := 0
	for _, rec := range records {
		scoreSum += rec.Score
		status := rec.Item.Status
		if status == "" {
			status = "Unknown"
		}
		s.StatusBreakdown[status]++
		if StatusCompleted(rec.Item.Status) {
			s.Completed++
		}
		if StatusActive(rec.Item.Status) {
			s.Active++
		}
		s.TotalChanges += len(rec.Changes)
		for _, c := range rec.Changes {
			if c.State == ChangeMerged {
				s.MergedChanges++
			}
		}
	}
	s.AverageScore = int(math.Round(float64(scoreSum) / float64(len(records))))
	return s
}

// BuildInsights renders human-readable observations about the record set.
func BuildInsights(records []ContextRecord) []string {
	if len(records) == 0 {
		return []string{"No related context available for this item."}
	}

	var insights []string

	active := 0
	completedMerged := 0
	dependencies := 0
	for _, rec := range records {
		if StatusActive(rec.Item.Status) {
			active++
		}
		if StatusCompleted(rec.Item.Status) {
			for _, c := range rec.Changes {
				if c.State == ChangeMerged {
					completedMerged++
					break
				}
			}
		}
		for _, rel := range rec.Relationships {
			if rel.Type == RelDependency || rel.Type == RelBlocks || rel.Type == RelBlockedBy {
				dependencies++
				break
			}
		}
	}

	if active > 0 {
		insights = append(insights, fmt.Sprintf("%d related item(s) have active work in progress.", active))
	}
	if completedMerged > 0 {
		insights = append(insights, fmt.Sprintf("%d completed item(s) shipped merged changes.", completedMerged))
	}
	if tags := technologyTags(records); len(tags) > 0 {
		insights = append(insights, "Technologies involved: "+strings.Join(tags, ", ")+".")
	}
	if dependencies > 0 {
		insights = append(insights, fmt.Sprintf("%d item(s) are linked as dependencies or blockers.", dependencies))
	}
	if len(insights) == 0 {
		insights = append(insights, "Related items found, but no notable activity signals.")
	}
	return insights
}

// extTags maps change-file extensions to display names.
var extTags = map[string]string{
	".go":    "Go",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".py":    "Python",
	".java":  "Java",
	".kt":    "Kotlin",
	".rb":    "Ruby",
	".rs":    "Rust",
	".sql":   "SQL",
	".tf":    "Terraform",
	".yaml":  "YAML",
	".yml":   "YAML",
	".css":   "CSS",
	".scss":  "CSS",
	".html":  "HTML",
	".swift": "Swift",
	".cs":    "C#",
}

// technologyTags infers technology names from the file extensions seen in
// change detail, sorted for deterministic output.
func technologyTags(records []ContextRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, c := range rec.Changes {
			for _, f := range c.FilesChanged {
				if tag, ok := extTags[strings.ToLower(path.Ext(f))]; ok {
					seen[tag] = true
				}
			}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

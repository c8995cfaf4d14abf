package taskctx

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func summaryRecord(key, status string, score int, changes ...ChangeRecord) ContextRecord {
	return ContextRecord{
		Item:          RelatedItem{Key: key, Status: status},
		Relationships: []Relationship{{Type: RelRelates, Primary: true}},
		Changes:       changes,
		Score:         score,
	}
}

func TestBuildSummary_Counts(t *testing.T) {
	records := []ContextRecord{
		summaryRecord("S-1", "In Progress", 80, ChangeRecord{ID: "a", State: ChangeOpen}),
		summaryRecord("S-2", "Done", 60,
			ChangeRecord{ID: "b", State: ChangeMerged},
			ChangeRecord{ID: "c", State: ChangeMerged}),
		summaryRecord("S-3", "To Do", 40),
	}

	got := BuildSummary(records, 2)
	want := Summary{
		TotalRelated:  3,
		FilteredOut:   2,
		Active:        1,
		Completed:     1,
		TotalChanges:  3,
		MergedChanges: 2,
		AverageScore:  60,
		StatusBreakdown: map[string]int{
			"In Progress": 1, "Done": 1, "To Do": 1,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch:\n%s", diff)
	}
}

func TestBuildSummary_Empty(t *testing.T) {
	got := BuildSummary(nil, 0)
	if diff := cmp.Diff(Summary{}, got); diff != "" {
		t.Errorf("empty summary should be zeroed:\n%s", diff)
	}
}

func TestBuildInsights_Signals(t *testing.T) {
	records := []ContextRecord{
		summaryRecord("I-1", "In Progress", 80),
		summaryRecord("I-2", "Done", 70, ChangeRecord{
			ID: "a", State: ChangeMerged, FilesChanged: []string{"main.go", "web/app.ts"},
		}),
		{
			Item:          RelatedItem{Key: "I-3", Status: "To Do"},
			Relationships: []Relationship{{Type: RelDependency, Primary: true}},
		},
	}

	insights := BuildInsights(records)
	joined := strings.Join(insights, "\n")

	for _, want := range []string{"active work", "merged changes", "Go, TypeScript", "dependencies or blockers"} {
		if !strings.Contains(joined, want) {
			t.Errorf("insights missing %q:\n%s", want, joined)
		}
	}
}

func TestBuildInsights_Empty(t *testing.T) {
	insights := BuildInsights(nil)
	if len(insights) != 1 || !strings.Contains(insights[0], "No related context") {
		t.Errorf("expected the generic no-context insight, got %v", insights)
	}
}

func TestTechnologyTags_Deterministic(t *testing.T) {
	records := []ContextRecord{
		summaryRecord("T-1", "Done", 50, ChangeRecord{
			ID: "a", State: ChangeMerged,
			FilesChanged: []string{"db/schema.sql", "svc/main.go", "infra/net.tf", "svc/util.go"},
		}),
	}
	want := []string{"Go", "SQL", "Terraform"}
	if diff := cmp.Diff(want, technologyTags(records)); diff != "" {
		t.Errorf("tags mismatch:\n%s", diff)
	}
}

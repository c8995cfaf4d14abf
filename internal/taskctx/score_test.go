package taskctx

import (
	"testing"
	"time"
)

var scoreNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func scoredRecord(typ RelationType, status string, changes ...ChangeRecord) ContextRecord {
	return ContextRecord{
		Item:          RelatedItem{Key: "X-1", Status: status},
		Relationships: []Relationship{{Type: typ, Primary: true}},
		Changes:       changes,
	}
}

func TestScore_Bounds(t *testing.T) {
	types := []RelationType{RelParent, RelChild, RelEpic, RelStory, RelDependency,
		RelBlocks, RelBlockedBy, RelRelates, RelationType("weird")}
	statuses := []string{"In Progress", "Done", "To Do", "Review", "", "Bizarre"}
	changeSets := [][]ChangeRecord{
		nil,
		{{ID: "a", State: ChangeMerged, Merged: scoreNow.Add(-24 * time.Hour),
			DiffStat: &DiffStat{FilesChanged: 50}}},
		{{ID: "a", State: ChangeMerged}, {ID: "b", State: ChangeMerged},
			{ID: "c", State: ChangeOpen}, {ID: "d", State: ChangeDeclined}},
	}

	for _, typ := range types {
		for _, status := range statuses {
			for _, changes := range changeSets {
				got := Score(scoredRecord(typ, status, changes...), scoreNow)
				if got < 0 || got > 100 {
					t.Errorf("Score(%s, %q, %d changes) = %d, outside [0,100]",
						typ, status, len(changes), got)
				}
			}
		}
	}
}

func TestScore_RelationshipDominates(t *testing.T) {
	parent := Score(scoredRecord(RelParent, "To Do"), scoreNow)
	relates := Score(scoredRecord(RelRelates, "To Do"), scoreNow)
	if parent <= relates {
		t.Errorf("parent score %d should exceed relates score %d", parent, relates)
	}
}

func TestScore_ChangeContribution(t *testing.T) {
	bare := Score(scoredRecord(RelRelates, "To Do"), scoreNow)

	merged := Score(scoredRecord(RelRelates, "To Do",
		ChangeRecord{ID: "a", State: ChangeMerged, Merged: scoreNow.Add(-10 * 24 * time.Hour)}), scoreNow)
	if merged <= bare {
		t.Errorf("recent merged change should raise score: bare=%d merged=%d", bare, merged)
	}

	declined := Score(scoredRecord(RelRelates, "To Do",
		ChangeRecord{ID: "a", State: ChangeDeclined, Updated: scoreNow.AddDate(-2, 0, 0)}), scoreNow)
	if declined >= merged {
		t.Errorf("old declined change should score below recent merged: declined=%d merged=%d", declined, merged)
	}
}

func TestScore_FileVolumeCapped(t *testing.T) {
	few := Score(scoredRecord(RelRelates, "To Do",
		ChangeRecord{ID: "a", State: ChangeOpen, DiffStat: &DiffStat{FilesChanged: 10}}), scoreNow)
	many := Score(scoredRecord(RelRelates, "To Do",
		ChangeRecord{ID: "a", State: ChangeOpen, DiffStat: &DiffStat{FilesChanged: 500}}), scoreNow)
	if few != many {
		t.Errorf("file volume should cap at 20 points: 10 files=%d, 500 files=%d", few, many)
	}
}

func TestScore_Deterministic(t *testing.T) {
	rec := scoredRecord(RelDependency, "In Progress",
		ChangeRecord{ID: "a", State: ChangeMerged, Merged: scoreNow.Add(-40 * 24 * time.Hour),
			FilesChanged: []string{"x.go", "y.go"}})
	first := Score(rec, scoreNow)
	for i := 0; i < 10; i++ {
		if got := Score(rec, scoreNow); got != first {
			t.Fatalf("score changed between calls: %d then %d", first, got)
		}
	}
}

func TestPriorityScore_Ordering(t *testing.T) {
	withChanges := scoredRecord(RelRelates, "To Do", ChangeRecord{ID: "a", State: ChangeOpen})
	without := scoredRecord(RelRelates, "To Do")
	if PriorityScore(withChanges) != PriorityScore(without)+20 {
		t.Errorf("change presence should add 20: with=%d without=%d",
			PriorityScore(withChanges), PriorityScore(without))
	}

	parent := scoredRecord(RelParent, "To Do")
	if PriorityScore(parent) <= PriorityScore(without) {
		t.Errorf("parent should outrank relates: %d vs %d",
			PriorityScore(parent), PriorityScore(without))
	}
}

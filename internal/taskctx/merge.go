package taskctx

// Pair is one discovery of a related item: the item as seen along that path,
// the relationship that reached it, and any change records already attached.
// Multiple enumerations (direct subtask listing, resolved link graph) may
// produce pairs for the same item key.
type Pair struct {
	Item    RelatedItem
	Rel     Relationship
	Changes []ChangeRecord
}

// Merge collapses discovery pairs into exactly one ContextRecord per unique
// item key. The first pair for a key inserts the record with its relationship
// marked primary; later pairs append their relationship and promote it to
// primary only when strictly higher priority. Change lists are merged by
// change ID, preferring the detail-bearing version. Output preserves
// first-seen order, so identical input yields identical output.
func Merge(pairs []Pair) []ContextRecord {
	index := make(map[string]int, len(pairs))
	records := make([]ContextRecord, 0, len(pairs))

	for _, p := range pairs {
		i, seen := index[p.Item.Key]
		if !seen {
			rel := p.Rel
			rel.Primary = true
			rec := ContextRecord{
				Item:          p.Item,
				Relationships: []Relationship{rel},
			}
			for _, c := range p.Changes {
				rec.Changes = mergeChange(rec.Changes, c)
			}
			index[p.Item.Key] = len(records)
			records = append(records, rec)
			continue
		}

		rec := &records[i]
		rel := p.Rel
		rel.Primary = false
		if rel.Type.Priority() > rec.Primary().Type.Priority() {
			for j := range rec.Relationships {
				rec.Relationships[j].Primary = false
			}
			rel.Primary = true
		}
		rec.Relationships = append(rec.Relationships, rel)

		// Later paths may carry richer item fields (a link graph often
		// returns bare keys while a direct listing returns full items).
		if rec.Item.Summary == "" {
			rec.Item.Summary = p.Item.Summary
		}
		if rec.Item.Status == "" {
			rec.Item.Status = p.Item.Status
		}
		if rec.Item.Updated.IsZero() {
			rec.Item.Updated = p.Item.Updated
		}
		if rec.Item.Created.IsZero() {
			rec.Item.Created = p.Item.Created
		}

		for _, c := range p.Changes {
			rec.Changes = mergeChange(rec.Changes, c)
		}
	}

	return records
}

// mergeChange inserts incoming into changes, collapsing by change ID.
func mergeChange(changes []ChangeRecord, incoming ChangeRecord) []ChangeRecord {
	for i, existing := range changes {
		if existing.ID != incoming.ID {
			continue
		}
		changes[i] = mergeChangePair(existing, incoming)
		return changes
	}
	return append(changes, incoming)
}

// mergeChangePair picks between two versions of the same change. A side
// carrying diff-stat or file-change detail wins outright; when both or
// neither do, incoming summary fields win and detail fields fall back to
// whichever side is populated.
func mergeChangePair(existing, incoming ChangeRecord) ChangeRecord {
	if incoming.HasDetail() && !existing.HasDetail() {
		return incoming
	}
	if existing.HasDetail() && !incoming.HasDetail() {
		return existing
	}

	out := incoming
	if out.Title == "" {
		out.Title = existing.Title
	}
	if out.State == "" {
		out.State = existing.State
	}
	if out.Repository == "" {
		out.Repository = existing.Repository
	}
	if out.Created.IsZero() {
		out.Created = existing.Created
	}
	if out.Updated.IsZero() {
		out.Updated = existing.Updated
	}
	if out.Merged.IsZero() {
		out.Merged = existing.Merged
	}
	if out.DiffStat == nil {
		out.DiffStat = existing.DiffStat
	}
	if len(out.FilesChanged) == 0 {
		out.FilesChanged = existing.FilesChanged
	}
	if len(out.Commits) == 0 {
		out.Commits = existing.Commits
	}
	if out.Branch == nil {
		out.Branch = existing.Branch
	}
	return out
}

package taskctx

import "time"

// FilterByAge drops records whose item and changes are all older than
// maxAgeMonths before now. Records with a structural relationship (parent,
// epic, child) are always retained regardless of age. A maxAgeMonths of zero
// or less disables filtering.
func FilterByAge(records []ContextRecord, maxAgeMonths int, now time.Time) []ContextRecord {
	if maxAgeMonths <= 0 {
		return records
	}
	cutoff := now.AddDate(0, -maxAgeMonths, 0)

	out := make([]ContextRecord, 0, len(records))
	for _, rec := range records {
		if rec.Structural() || recentEnough(rec, cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

func recentEnough(rec ContextRecord, cutoff time.Time) bool {
	if rec.Item.RecentTime().After(cutoff) {
		return true
	}
	for _, c := range rec.Changes {
		if c.RelevantTime().After(cutoff) {
			return true
		}
	}
	return false
}

package taskctx

import "sort"

// SortByScore orders records by relevance descending, stable so that ties
// keep their input order. Returns a new slice; the input is not touched.
func SortByScore(records []ContextRecord) []ContextRecord {
	out := make([]ContextRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// LimitCount caps the record count at max, never dropping essential records
// (parent/child relationships). Non-essential records compete on score for
// the remaining slots. When essential records alone exceed max, the cap is
// deliberately overshot: structural context wins over the count limit.
// A max of zero or less disables limiting. Output is score-descending.
func LimitCount(records []ContextRecord, max int) []ContextRecord {
	if max <= 0 || len(records) <= max {
		return SortByScore(records)
	}

	var essential, rest []ContextRecord
	for _, rec := range records {
		if rec.Essential() {
			essential = append(essential, rec)
		} else {
			rest = append(rest, rec)
		}
	}

	slots := max - len(essential)
	if slots < 0 {
		slots = 0
	}
	rest = SortByScore(rest)
	if len(rest) > slots {
		rest = rest[:slots]
	}

	return SortByScore(append(essential, rest...))
}

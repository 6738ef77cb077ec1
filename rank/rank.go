// Package rank orders aggregated counts into the final report sequence.
package rank

import (
	"sort"

	"github.com/emptyOVO/lyricmr-go/countmap"
)

// Entry is one row of a ranked table.
type Entry struct {
	Key   string
	Count int64
	Rank  int // 1-based position after sorting
}

// Top ranks m's entries by count descending, breaking ties by key ascending
// so output is reproducible regardless of hash iteration order. limit <= 0
// disables truncation.
func Top(m *countmap.Map, limit int) []Entry {
	return Entries(m.Entries(), limit)
}

// Entries ranks an already-exported entry list.
func Entries(in []countmap.Entry, limit int) []Entry {
	sorted := make([]countmap.Entry, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Key < sorted[j].Key
	})
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{Key: e.Key, Count: e.Count, Rank: i + 1}
	}
	return out
}

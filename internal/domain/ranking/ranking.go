// Package ranking orders leaderboard entries and collapses them to one row
// per player.
package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/flaggy/internal/domain/model"
)

// Compare orders entries by score descending, then average time
// ascending, then id ascending so the order is total.
func Compare(a, b model.Entry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.AverageTime, b.AverageTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Less reports whether a ranks above b.
func Less(a, b model.Entry) bool { return Compare(a, b) < 0 }

// Sort orders entries in place.
func Sort(entries []model.Entry) {
	slices.SortFunc(entries, Compare)
}

// DedupeByUser keeps the best entry per uid and assigns 1-based ranks.
// The input need not be sorted and is not modified.
func DedupeByUser(entries []model.Entry) []model.Ranked {
	best := make(map[string]model.Entry, len(entries))
	for _, e := range entries {
		if cur, ok := best[e.UID]; !ok || Less(e, cur) {
			best[e.UID] = e
		}
	}
	kept := make([]model.Entry, 0, len(best))
	for _, e := range best {
		kept = append(kept, e)
	}
	Sort(kept)

	out := make([]model.Ranked, len(kept))
	for i, e := range kept {
		out[i] = model.Ranked{Rank: i + 1, Entry: e}
	}
	return out
}

// Top returns at most n ranked rows.
func Top(rows []model.Ranked, n int) []model.Ranked {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

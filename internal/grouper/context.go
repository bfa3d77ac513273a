package grouper

import (
	"sort"

	"github.com/ppiankov/logmedic/internal/logtypes"
	"github.com/ppiankov/logmedic/internal/model"
)

// ContextFor returns entries from all that ran on the same threads as g's
// members and sit near them, excluding the members themselves. At most
// limit entries are returned, in input order, preferring the ones closest
// to a member.
func ContextFor(all []logtypes.LogEntry, g model.ErrorGroup, limit int) []logtypes.LogEntry {
	if limit <= 0 || len(all) == 0 {
		return nil
	}

	threads := make(map[string]bool)
	memberLines := make(map[int]bool, len(g.Members))
	for _, m := range g.Members {
		if m.Thread != "" {
			threads[m.Thread] = true
		}
		memberLines[m.Lines.First] = true
	}
	if len(threads) == 0 {
		return nil
	}

	// distance, in entries, from each candidate to the nearest member
	const unset = -1
	dist := make([]int, len(all))
	last := unset
	for i, e := range all {
		dist[i] = unset
		if memberLines[e.Lines.First] {
			last = i
		}
		if last != unset {
			dist[i] = i - last
		}
	}
	last = unset
	for i := len(all) - 1; i >= 0; i-- {
		if memberLines[all[i].Lines.First] {
			last = i
		}
		if last != unset && (dist[i] == unset || last-i < dist[i]) {
			dist[i] = last - i
		}
	}

	var candidates []int
	for i, e := range all {
		if dist[i] > 0 && threads[e.Thread] {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return dist[candidates[a]] < dist[candidates[b]]
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	sort.Ints(candidates)

	out := make([]logtypes.LogEntry, len(candidates))
	for i, idx := range candidates {
		out[i] = all[idx]
	}
	return out
}

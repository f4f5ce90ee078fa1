package flow

import (
	"sort"
)

// FilterByLiquidity drops entries whose liquidity estimate is unknown or below the floor.
// A non-positive floor disables the filter.
func FilterByLiquidity(entries []ReportEntry, floor float64) []ReportEntry {
	if floor <= 0 {
		return entries
	}
	kept := make([]ReportEntry, 0, len(entries))
	for _, e := range entries {
		if liq, ok := e.Liquidity(); ok && liq >= floor {
			kept = append(kept, e)
		}
	}
	return kept
}

// Rank filters by liquidity, orders by final score descending and truncates to topN.
// Entries with equal scores keep their input order.
func Rank(entries []ReportEntry, floor float64, topN int) []ReportEntry {
	ranked := append([]ReportEntry(nil), FilterByLiquidity(entries, floor)...)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topN >= 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

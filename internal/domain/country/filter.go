package country

import (
	"slices"
	"strings"
)

// AllRegions is the sentinel that disables a region or subregion filter.
const AllRegions = "all"

// FilterByDifficulty keeps the most populous countries for d. Ties keep
// their input order. The input slice is not modified.
func FilterByDifficulty(countries []Country, d Difficulty) []Country {
	sorted := slices.Clone(countries)
	slices.SortStableFunc(sorted, func(a, b Country) int {
		switch {
		case a.Population > b.Population:
			return -1
		case a.Population < b.Population:
			return 1
		default:
			return 0
		}
	})
	if n := d.Limit(); n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FilterByRegion keeps countries whose region and subregion match,
// ignoring case. An empty value or "all" skips that filter.
func FilterByRegion(countries []Country, region, subregion string) []Country {
	out := make([]Country, 0, len(countries))
	for _, c := range countries {
		if !matches(c.Region, region) || !matches(c.Subregion, subregion) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Filter applies the difficulty filter and then the region filter.
func Filter(countries []Country, d Difficulty, region, subregion string) []Country {
	return FilterByRegion(FilterByDifficulty(countries, d), region, subregion)
}

func matches(value, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" || strings.EqualFold(want, AllRegions) {
		return true
	}
	return strings.EqualFold(value, want)
}

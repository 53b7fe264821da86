package country

// Region is a selectable region with its optional subregions.
type Region struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Subregions []string `json:"subregions,omitempty"`
}

// Regions returns the selectable region catalogue, "all" first.
func Regions() []Region {
	return []Region{
		{ID: AllRegions, Label: "All World"},
		{ID: "africa", Label: "Africa", Subregions: []string{"North Africa", "West Africa", "East Africa", "Central Africa", "Southern Africa"}},
		{ID: "americas", Label: "Americas", Subregions: []string{"North America", "Central America", "South America", "Caribbean"}},
		{ID: "asia", Label: "Asia", Subregions: []string{"Eastern Asia", "Western Asia", "South-Eastern Asia", "Southern Asia", "Central Asia"}},
		{ID: "europe", Label: "Europe", Subregions: []string{"Western Europe", "Eastern Europe", "Southern Europe", "Northern Europe"}},
		{ID: "oceania", Label: "Oceania"},
	}
}

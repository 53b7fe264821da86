// Package country holds the country model and the pool filters used to
// build a game: difficulty by population rank and region by name.
package country

// MinPool is the smallest pool a game can be played with.
const MinPool = 3

// Country is a single country as served by the country data source.
// CCA3 is the identity key.
type Country struct {
	Name       Name   `json:"name"`
	CCA3       string `json:"cca3"`
	Flags      Flags  `json:"flags"`
	Region     string `json:"region"`
	Subregion  string `json:"subregion"`
	Population int64  `json:"population"`
}

// Name carries the common and official country names.
type Name struct {
	Common   string `json:"common"`
	Official string `json:"official"`
}

// Flags carries flag image URLs and optional alt text.
type Flags struct {
	PNG string `json:"png"`
	SVG string `json:"svg"`
	Alt string `json:"alt,omitempty"`
}

// Index maps countries by cca3. Later duplicates are ignored.
func Index(countries []Country) map[string]Country {
	m := make(map[string]Country, len(countries))
	for _, c := range countries {
		if _, ok := m[c.CCA3]; !ok {
			m[c.CCA3] = c
		}
	}
	return m
}

package api

import (
	"context"
	"net/http"

	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/session"
)

// CatalogDependencies exposes the country catalogue and geo lookup.
type CatalogDependencies interface {
	Countries(ctx context.Context, settings session.Settings) ([]country.Country, error)
	Regions() []country.Region
	DetectCountry(ctx context.Context, ip string) string
}

// CatalogHandler serves reference data for the game setup screen.
type CatalogHandler struct {
	deps CatalogDependencies
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(deps CatalogDependencies) *CatalogHandler {
	return &CatalogHandler{deps: deps}
}

// HandleCountries handles GET /countries?difficulty=&region=&subregion=.
func (h *CatalogHandler) HandleCountries(w http.ResponseWriter, r *http.Request) {
	const op = "api.countries"
	q := r.URL.Query()
	list, err := h.deps.Countries(r.Context(), session.Settings{
		Difficulty: country.Difficulty(q.Get("difficulty")),
		Region:     q.Get("region"),
		Subregion:  q.Get("subregion"),
	})
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	out := make([]countryDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toCountry(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRegions handles GET /regions.
func (h *CatalogHandler) HandleRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Regions())
}

// HandleGeo handles GET /geo and reports the caller's ISO-2 country.
func (h *CatalogHandler) HandleGeo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"country": h.deps.DetectCountry(r.Context(), clientIP(r)),
	})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
)

// ForwardGeocoder resolves free text to a coordinate.
type ForwardGeocoder interface {
	Search(ctx context.Context, query string) (*geocode.SearchResult, error)
}

// LookupHandler serves forward and reverse place lookups.
type LookupHandler struct {
	geocoder ForwardGeocoder
	locator  geocode.Locator
	logger   *zap.Logger
}

func NewLookupHandler(geocoder ForwardGeocoder, locator geocode.Locator, logger *zap.Logger) *LookupHandler {
	return &LookupHandler{geocoder: geocoder, locator: locator, logger: logger}
}

// LookupResponse is the result of a forward lookup. Place is the nearest
// gazetteer entry to the resolved coordinate, nil for an empty gazetteer.
type LookupResponse struct {
	Query       string          `json:"query"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	DisplayName string          `json:"display_name"`
	Place       *database.Place `json:"place"`
}

// Lookup handles GET /api/lookup?q=...
func (h *LookupHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	if h.geocoder == nil {
		respondError(w, http.StatusNotImplemented, "forward geocoding is not configured")
		return
	}

	hit, err := h.geocoder.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, errkind.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no match for "+query)
			return
		}
		respondErr(w, h.logger, "lookup failed", err)
		return
	}

	resp := LookupResponse{
		Query:       query,
		Latitude:    hit.Latitude,
		Longitude:   hit.Longitude,
		DisplayName: hit.DisplayName,
	}
	place, err := h.locator.Locate(r.Context(), hit.Latitude, hit.Longitude)
	switch {
	case err == nil:
		resp.Place = &place
	case !errors.Is(err, errkind.ErrNotFound):
		respondErr(w, h.logger, "reverse geocoding failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Locate handles GET /api/v1/locate?lat=..&lon=.. and returns the nearest place.
func (h *LookupHandler) Locate(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		respondError(w, http.StatusBadRequest, "lat and lon must be valid coordinates")
		return
	}

	place, err := h.locator.Locate(r.Context(), lat, lon)
	if err != nil {
		respondErr(w, h.logger, "reverse geocoding failed", err)
		return
	}
	respondJSON(w, http.StatusOK, place)
}

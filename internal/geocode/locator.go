// Package geocode maps coordinates to the nearest named place of a gazetteer
// and forwards free-text place lookups to Nominatim.
//
// Distances are squared differences in degree space, so results are skewed
// near the poles and across the antimeridian. The metric is kept because
// stored places were computed with it.
package geocode

import (
	"context"
	"fmt"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// Locator resolves coordinates to a place.
type Locator interface {
	Locate(ctx context.Context, lat, lon float64) (database.Place, error)
}

func squaredDistance(lat, lon, pLat, pLon float64) float64 {
	dLat := lat - pLat
	dLon := lon - pLon
	return dLat*dLat + dLon*dLon
}

// Index is an immutable in-memory gazetteer scanned linearly per query.
// It is safe for concurrent use.
type Index struct {
	points []database.GazetteerPoint
}

// NewIndex builds an index over points in the given order. On equal distance
// the earlier point wins.
func NewIndex(points []database.GazetteerPoint) *Index {
	return &Index{points: append([]database.GazetteerPoint(nil), points...)}
}

// LoadIndex reads the whole gazetteer once.
func LoadIndex(ctx context.Context, reader database.GazetteerReader) (*Index, error) {
	points, err := reader.AllPoints(ctx)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "load gazetteer", err)
	}
	return NewIndex(points), nil
}

// Len returns the number of indexed points.
func (ix *Index) Len() int {
	return len(ix.points)
}

// Nearest returns the closest point, or nil for an empty index.
func (ix *Index) Nearest(lat, lon float64) *database.GazetteerPoint {
	best := -1
	bestDist := 0.0
	for i := range ix.points {
		d := squaredDistance(lat, lon, ix.points[i].Latitude, ix.points[i].Longitude)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return nil
	}
	p := ix.points[best]
	return &p
}

func (ix *Index) Locate(ctx context.Context, lat, lon float64) (database.Place, error) {
	if err := ctx.Err(); err != nil {
		return database.Place{}, err
	}
	p := ix.Nearest(lat, lon)
	if p == nil {
		return database.Place{}, fmt.Errorf("locate %.5f,%.5f: gazetteer is empty: %w", lat, lon, errkind.ErrNotFound)
	}
	return p.Place(), nil
}

// StoreLocator evaluates the nearest-place query in the database on every call.
type StoreLocator struct {
	reader database.GazetteerReader
}

func NewStoreLocator(reader database.GazetteerReader) *StoreLocator {
	return &StoreLocator{reader: reader}
}

func (s *StoreLocator) Locate(ctx context.Context, lat, lon float64) (database.Place, error) {
	p, err := s.reader.Nearest(ctx, lat, lon)
	if err != nil {
		return database.Place{}, errkind.Wrap(errkind.ErrTransientIO, "nearest place", err)
	}
	if p == nil {
		return database.Place{}, fmt.Errorf("locate %.5f,%.5f: gazetteer is empty: %w", lat, lon, errkind.ErrNotFound)
	}
	return p.Place(), nil
}

var (
	_ Locator = (*Index)(nil)
	_ Locator = (*StoreLocator)(nil)
)

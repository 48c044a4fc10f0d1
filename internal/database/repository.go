package database

import (
	"context"
)

// PhotoReader provides read-only access to indexed photos
type PhotoReader interface {
	// Get retrieves a photo by id, returns nil if not found
	Get(ctx context.Context, id string) (*Photo, error)
	// ListPending returns photos matching the enrichment selection predicate,
	// restricted to one collection unless collectionID is empty
	ListPending(ctx context.Context, collectionID string) ([]Photo, error)
	// ListEmbedded returns the photos of a collection that have an embedding,
	// ordered by creation time then id
	ListEmbedded(ctx context.Context, collectionID string) ([]Photo, error)
	// EmbeddingDim returns the dimensionality of the collection's stored
	// embeddings, 0 when none is stored yet
	EmbeddingDim(ctx context.Context, collectionID string) (int, error)
	// ExistingFileNames returns the set of file names already registered in a collection
	ExistingFileNames(ctx context.Context, collectionID string) (map[string]bool, error)
	// Stats summarizes enrichment progress per collection
	Stats(ctx context.Context) ([]CollectionStats, error)
}

// PhotoWriter provides write access to indexed photos
type PhotoWriter interface {
	PhotoReader

	// Insert registers a new photo, returning false if (collection, file name) already exists
	Insert(ctx context.Context, photo *Photo) (bool, error)

	// ApplyPatch persists a partial update in a single write. Fields already
	// set on the stored row are never overwritten. It returns ErrNotFound
	// (wrapped) when the id does not exist.
	ApplyPatch(ctx context.Context, id string, patch *PhotoPatch) error
}

// GazetteerReader provides read-only access to the gazetteer
type GazetteerReader interface {
	// AllPoints returns every point in stored (geoname id) order
	AllPoints(ctx context.Context) ([]GazetteerPoint, error)
	// Nearest returns the point minimizing squared degree distance, nil when empty
	Nearest(ctx context.Context, lat, lon float64) (*GazetteerPoint, error)
	// CountPoints returns the number of gazetteer points
	CountPoints(ctx context.Context) (int, error)
}

// GazetteerWriter bulk-loads gazetteer points
type GazetteerWriter interface {
	GazetteerReader

	// LoadPoints upserts points keyed by geoname id and returns how many were written
	LoadPoints(ctx context.Context, points []GazetteerPoint) (int, error)
}

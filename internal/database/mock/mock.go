// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// PhotoStore is an in-memory database.PhotoWriter. ApplyPatch follows the
// same never-overwrite rules as the PostgreSQL repository.
type PhotoStore struct {
	mu     sync.RWMutex
	photos map[string]*database.Photo
	order  []string

	// Write counters
	Writes  int
	Patches map[string]int

	// Error injection
	ListPendingError  error
	ListEmbeddedError error
	EmbeddingDimError error
	ApplyPatchError   error
	InsertError       error
}

// NewPhotoStore creates an empty store
func NewPhotoStore() *PhotoStore {
	return &PhotoStore{
		photos:  make(map[string]*database.Photo),
		Patches: make(map[string]int),
	}
}

// AddPhoto seeds a photo without counting it as a write
func (m *PhotoStore) AddPhoto(p database.Photo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.photos[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	cp := clonePhoto(&p)
	m.photos[p.ID] = cp
}

// Photo returns a copy of the stored photo, nil if missing
func (m *PhotoStore) Photo(id string) *database.Photo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.photos[id]
	if !ok {
		return nil
	}
	return clonePhoto(p)
}

// WriteCount returns the number of successful ApplyPatch and Insert calls
func (m *PhotoStore) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Writes
}

// PatchCount returns how many patches were applied to a photo
func (m *PhotoStore) PatchCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Patches[id]
}

func (m *PhotoStore) Get(ctx context.Context, id string) (*database.Photo, error) {
	return m.Photo(id), nil
}

func (m *PhotoStore) ListPending(ctx context.Context, collectionID string) ([]database.Photo, error) {
	if m.ListPendingError != nil {
		return nil, m.ListPendingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Photo
	for _, id := range m.order {
		p := m.photos[id]
		if collectionID != "" && p.CollectionID != collectionID {
			continue
		}
		if p.NeedsEnrichment() {
			out = append(out, *clonePhoto(p))
		}
	}
	return out, nil
}

func (m *PhotoStore) ListEmbedded(ctx context.Context, collectionID string) ([]database.Photo, error) {
	if m.ListEmbeddedError != nil {
		return nil, m.ListEmbeddedError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Photo
	for _, id := range m.order {
		p := m.photos[id]
		if p.CollectionID == collectionID && len(p.Embedding) > 0 {
			out = append(out, *clonePhoto(p))
		}
	}
	slices.SortStableFunc(out, func(a, b database.Photo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// EmbeddingDim returns the length of the first stored embedding of a collection, 0 when none
func (m *PhotoStore) EmbeddingDim(ctx context.Context, collectionID string) (int, error) {
	if m.EmbeddingDimError != nil {
		return 0, m.EmbeddingDimError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		p := m.photos[id]
		if p.CollectionID == collectionID && len(p.Embedding) > 0 {
			return len(p.Embedding), nil
		}
	}
	return 0, nil
}

func (m *PhotoStore) ExistingFileNames(ctx context.Context, collectionID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make(map[string]bool)
	for _, p := range m.photos {
		if p.CollectionID == collectionID {
			names[p.FileName] = true
		}
	}
	return names, nil
}

func (m *PhotoStore) Stats(ctx context.Context) ([]database.CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byCollection := make(map[string]*database.CollectionStats)
	for _, p := range m.photos {
		s, ok := byCollection[p.CollectionID]
		if !ok {
			s = &database.CollectionStats{CollectionID: p.CollectionID}
			byCollection[p.CollectionID] = s
		}
		s.Total++
		if p.Description != "" {
			s.Described++
		}
		if len(p.Embedding) > 0 {
			s.Embedded++
		}
		if p.Place != nil {
			s.Located++
		}
		if p.HasCoordinates() {
			s.WithGPS++
		}
	}
	out := make([]database.CollectionStats, 0, len(byCollection))
	for _, s := range byCollection {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b database.CollectionStats) int {
		return cmp.Compare(a.CollectionID, b.CollectionID)
	})
	return out, nil
}

func (m *PhotoStore) Insert(ctx context.Context, photo *database.Photo) (bool, error) {
	if m.InsertError != nil {
		return false, m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.photos {
		if p.CollectionID == photo.CollectionID && p.FileName == photo.FileName {
			return false, nil
		}
	}
	if _, ok := m.photos[photo.ID]; ok {
		return false, nil
	}
	m.photos[photo.ID] = clonePhoto(photo)
	m.order = append(m.order, photo.ID)
	m.Writes++
	return true, nil
}

func (m *PhotoStore) ApplyPatch(ctx context.Context, id string, patch *database.PhotoPatch) error {
	if m.ApplyPatchError != nil {
		return m.ApplyPatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok {
		return fmt.Errorf("apply patch to %s: %w", id, errkind.ErrNotFound)
	}
	patch.Apply(p)
	m.Writes++
	m.Patches[id]++
	return nil
}

func clonePhoto(p *database.Photo) *database.Photo {
	cp := *p
	if p.Embedding != nil {
		cp.Embedding = append([]float32(nil), p.Embedding...)
	}
	if p.Place != nil {
		place := *p.Place
		cp.Place = &place
	}
	return &cp
}

// Gazetteer is an in-memory database.GazetteerWriter
type Gazetteer struct {
	mu     sync.RWMutex
	points []database.GazetteerPoint

	// Error injection
	AllPointsError error
	NearestError   error
}

// NewGazetteer creates a gazetteer holding the given points in order
func NewGazetteer(points ...database.GazetteerPoint) *Gazetteer {
	return &Gazetteer{points: append([]database.GazetteerPoint(nil), points...)}
}

func (m *Gazetteer) AllPoints(ctx context.Context) ([]database.GazetteerPoint, error) {
	if m.AllPointsError != nil {
		return nil, m.AllPointsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.GazetteerPoint(nil), m.points...), nil
}

func (m *Gazetteer) Nearest(ctx context.Context, lat, lon float64) (*database.GazetteerPoint, error) {
	if m.NearestError != nil {
		return nil, m.NearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *database.GazetteerPoint
	bestDist := 0.0
	for i := range m.points {
		dLat := m.points[i].Latitude - lat
		dLon := m.points[i].Longitude - lon
		d := dLat*dLat + dLon*dLon
		if best == nil || d < bestDist {
			p := m.points[i]
			best = &p
			bestDist = d
		}
	}
	return best, nil
}

func (m *Gazetteer) CountPoints(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points), nil
}

func (m *Gazetteer) LoadPoints(ctx context.Context, points []database.GazetteerPoint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := make(map[int64]int, len(m.points))
	for i, p := range m.points {
		index[p.GeonameID] = i
	}
	for _, p := range points {
		if i, ok := index[p.GeonameID]; ok {
			m.points[i] = p
			continue
		}
		index[p.GeonameID] = len(m.points)
		m.points = append(m.points, p)
	}
	return len(points), nil
}

var (
	_ database.PhotoWriter     = (*PhotoStore)(nil)
	_ database.GazetteerWriter = (*Gazetteer)(nil)
)

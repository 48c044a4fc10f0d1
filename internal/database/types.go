package database

import (
	"strings"
	"time"
)

// Place is the administrative location derived from a photo's coordinates.
// State is empty when the gazetteer entry has no first-level admin code.
type Place struct {
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Country string `json:"country"`
}

// Photo is one indexed image and the derived fields attached to it.
type Photo struct {
	ID             string
	CollectionID   string
	FileName       string
	SourceLocation string
	Description    string
	Embedding      []float32
	EmbeddingModel string
	Latitude       *float64
	Longitude      *float64
	Place          *Place
	TakenAt        *time.Time
	Size           int64
	MimeType       string
	CreatedAt      time.Time
}

// HasCoordinates reports whether both latitude and longitude are known.
func (p *Photo) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// NeedsDescription reports whether the description is still missing.
func (p *Photo) NeedsDescription() bool {
	return p.Description == ""
}

// NeedsEmbedding reports whether the embedding is still missing.
func (p *Photo) NeedsEmbedding() bool {
	return len(p.Embedding) == 0
}

// NeedsPlace reports whether the place is missing while coordinates are present.
func (p *Photo) NeedsPlace() bool {
	return p.Place == nil && p.HasCoordinates()
}

// NeedsEnrichment is the selection predicate of an enrichment pass.
// A photo without coordinates and without a place is not selected for the place alone.
func (p *Photo) NeedsEnrichment() bool {
	return p.NeedsEmbedding() || p.NeedsDescription() || p.NeedsPlace()
}

// PhotoPatch is a partial update staged by one enrichment of one photo.
// Nil or empty fields mean "leave unchanged".
type PhotoPatch struct {
	Description *string
	// Embedding is only applied when the row's description (after applying
	// Description) equals EmbeddingSource, the text it was computed from.
	Embedding       []float32
	EmbeddingSource string
	EmbeddingModel  string
	Place           *Place
}

// IsEmpty reports whether the patch would change nothing.
func (p *PhotoPatch) IsEmpty() bool {
	return p.Description == nil && len(p.Embedding) == 0 && p.Place == nil
}

// Fields lists the names of the staged fields, for logging.
func (p *PhotoPatch) Fields() []string {
	var fields []string
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if len(p.Embedding) > 0 {
		fields = append(fields, "embedding")
	}
	if p.Place != nil {
		fields = append(fields, "place")
	}
	return fields
}

// Apply merges the patch into photo using the same rules the repositories enforce:
// a field already set is never overwritten. It reports whether anything changed.
func (p *PhotoPatch) Apply(photo *Photo) bool {
	changed := false
	if p.Description != nil && photo.Description == "" && strings.TrimSpace(*p.Description) != "" {
		photo.Description = *p.Description
		changed = true
	}
	if len(p.Embedding) > 0 && len(photo.Embedding) == 0 &&
		photo.Description != "" && photo.Description == p.EmbeddingSource {
		photo.Embedding = append([]float32(nil), p.Embedding...)
		photo.EmbeddingModel = p.EmbeddingModel
		changed = true
	}
	if p.Place != nil && photo.Place == nil && photo.HasCoordinates() {
		place := *p.Place
		photo.Place = &place
		changed = true
	}
	return changed
}

// GazetteerPoint is one named populated place.
type GazetteerPoint struct {
	GeonameID   int64
	Name        string
	ASCIIName   string
	Admin1Code  string
	CountryCode string
	Latitude    float64
	Longitude   float64
	Population  int64
}

// Place projects the gazetteer entry onto the place triple stored on photos.
func (g *GazetteerPoint) Place() Place {
	return Place{City: g.Name, State: g.Admin1Code, Country: g.CountryCode}
}

// CollectionStats summarizes enrichment progress of one collection.
type CollectionStats struct {
	CollectionID string `json:"collection_id"`
	Total        int    `json:"total"`
	Described    int    `json:"described"`
	Embedded     int    `json:"embedded"`
	Located      int    `json:"located"`
	WithGPS      int    `json:"with_gps"`
}

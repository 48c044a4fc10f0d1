package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

const photoColumns = `id, collection_id, file_name, source_location, description, embedding, embedding_model,
	latitude, longitude, city, state, country, taken_at, size, mime_type, created_at`

// pendingPredicate mirrors database.Photo.NeedsEnrichment.
const pendingPredicate = `(embedding IS NULL OR description = '' OR (city IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL))`

// PhotoRepository provides PostgreSQL-backed photo storage
type PhotoRepository struct {
	pool *Pool
}

// NewPhotoRepository creates a new PostgreSQL photo repository
func NewPhotoRepository(pool *Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*database.Photo, error) {
	var (
		p                    database.Photo
		vec                  *pgvector.Vector
		model                sql.NullString
		lat, lon             sql.NullFloat64
		city, state, country sql.NullString
		takenAt              sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.CollectionID, &p.FileName, &p.SourceLocation, &p.Description, &vec, &model,
		&lat, &lon, &city, &state, &country, &takenAt, &p.Size, &p.MimeType, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if vec != nil {
		p.Embedding = vec.Slice()
	}
	p.EmbeddingModel = model.String
	if lat.Valid {
		p.Latitude = &lat.Float64
	}
	if lon.Valid {
		p.Longitude = &lon.Float64
	}
	if city.Valid {
		p.Place = &database.Place{City: city.String, State: state.String, Country: country.String}
	}
	if takenAt.Valid {
		t := takenAt.Time
		p.TakenAt = &t
	}
	return &p, nil
}

func (r *PhotoRepository) queryPhotos(ctx context.Context, query string, args ...any) ([]database.Photo, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "query photos", err)
	}
	defer rows.Close()

	var photos []database.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "iterate photos", err)
	}
	return photos, nil
}

// Get retrieves a photo by id, returns nil if not found
func (r *PhotoRepository) Get(ctx context.Context, id string) (*database.Photo, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = $1", id)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query photo: %w", err)
	}
	return p, nil
}

// ListPending returns photos still missing at least one derived field
func (r *PhotoRepository) ListPending(ctx context.Context, collectionID string) ([]database.Photo, error) {
	query := "SELECT " + photoColumns + " FROM photos WHERE " + pendingPredicate +
		" AND ($1 = '' OR collection_id = $1) ORDER BY created_at, id"
	return r.queryPhotos(ctx, query, collectionID)
}

// ListEmbedded returns the embedded photos of a collection in creation order
func (r *PhotoRepository) ListEmbedded(ctx context.Context, collectionID string) ([]database.Photo, error) {
	query := "SELECT " + photoColumns + " FROM photos WHERE collection_id = $1 AND embedding IS NOT NULL ORDER BY created_at, id"
	return r.queryPhotos(ctx, query, collectionID)
}

// EmbeddingDim returns the dimensionality of the collection's stored embeddings, 0 when none
func (r *PhotoRepository) EmbeddingDim(ctx context.Context, collectionID string) (int, error) {
	var dim int
	err := r.pool.QueryRow(ctx,
		"SELECT vector_dims(embedding) FROM photos WHERE collection_id = $1 AND embedding IS NOT NULL ORDER BY created_at, id LIMIT 1",
		collectionID,
	).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query embedding dimension: %w", err)
	}
	return dim, nil
}

// ExistingFileNames returns file names already registered in a collection
func (r *PhotoRepository) ExistingFileNames(ctx context.Context, collectionID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, "SELECT file_name FROM photos WHERE collection_id = $1", collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan file name: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file names: %w", err)
	}
	return names, nil
}

// Stats summarizes enrichment progress per collection
func (r *PhotoRepository) Stats(ctx context.Context) ([]database.CollectionStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT collection_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE description <> ''),
			COUNT(*) FILTER (WHERE embedding IS NOT NULL),
			COUNT(*) FILTER (WHERE city IS NOT NULL),
			COUNT(*) FILTER (WHERE latitude IS NOT NULL AND longitude IS NOT NULL)
		FROM photos
		GROUP BY collection_id
		ORDER BY collection_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []database.CollectionStats
	for rows.Next() {
		var s database.CollectionStats
		if err := rows.Scan(&s.CollectionID, &s.Total, &s.Described, &s.Embedded, &s.Located, &s.WithGPS); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Insert registers a new photo. Returns false when the id or the
// (collection, file name) pair is already present.
func (r *PhotoRepository) Insert(ctx context.Context, p *database.Photo) (bool, error) {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var takenAt any
	if p.TakenAt != nil {
		takenAt = *p.TakenAt
	}

	result, err := r.pool.Exec(ctx, `
		INSERT INTO photos (id, collection_id, file_name, source_location, latitude, longitude, taken_at, size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`, p.ID, p.CollectionID, p.FileName, p.SourceLocation, p.Latitude, p.Longitude, takenAt, p.Size, p.MimeType, createdAt)
	if err != nil {
		return false, errkind.Wrap(errkind.ErrTransientIO, "insert photo", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ApplyPatch writes every staged field in one UPDATE. Each column is guarded
// so that a value already present is kept; SET expressions see the old row,
// so the embedding guard compares against the description the row will have.
func (r *PhotoRepository) ApplyPatch(ctx context.Context, id string, patch *database.PhotoPatch) error {
	var description any
	if patch.Description != nil && strings.TrimSpace(*patch.Description) != "" {
		description = *patch.Description
	}

	var embedding any
	if len(patch.Embedding) > 0 {
		embedding = pgvector.NewVector(patch.Embedding)
	}

	var city, state, country any
	if patch.Place != nil {
		city = patch.Place.City
		if patch.Place.State != "" {
			state = patch.Place.State
		}
		country = patch.Place.Country
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE photos SET
			description = CASE
				WHEN description = '' AND $2::text IS NOT NULL THEN $2::text
				ELSE description END,
			embedding_model = CASE
				WHEN embedding IS NULL AND $3::vector IS NOT NULL AND $4::text <> ''
					AND COALESCE(NULLIF(description, ''), $2::text) = $4::text THEN $5::text
				ELSE embedding_model END,
			embedding = CASE
				WHEN embedding IS NULL AND $3::vector IS NOT NULL AND $4::text <> ''
					AND COALESCE(NULLIF(description, ''), $2::text) = $4::text THEN $3::vector
				ELSE embedding END,
			state = CASE
				WHEN city IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL AND $6::text IS NOT NULL THEN $7::text
				ELSE state END,
			country = CASE
				WHEN city IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL AND $6::text IS NOT NULL THEN $8::text
				ELSE country END,
			city = CASE
				WHEN city IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL AND $6::text IS NOT NULL THEN $6::text
				ELSE city END,
			updated_at = NOW()
		WHERE id = $1
	`, id, description, embedding, patch.EmbeddingSource, patch.EmbeddingModel, city, state, country)
	if err != nil {
		return errkind.Wrap(errkind.ErrTransientIO, "update photo "+id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update photo %s: %w", id, errkind.ErrNotFound)
	}
	return nil
}

var _ database.PhotoWriter = (*PhotoRepository)(nil)

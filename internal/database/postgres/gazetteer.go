package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/kozaktomas/photo-indexer/internal/database"
)

const gazetteerColumns = `geoname_id, name, ascii_name, COALESCE(admin1_code, ''), country_code, latitude, longitude, population`

// GazetteerRepository provides PostgreSQL-backed gazetteer storage
type GazetteerRepository struct {
	pool *Pool
}

// NewGazetteerRepository creates a new PostgreSQL gazetteer repository
func NewGazetteerRepository(pool *Pool) *GazetteerRepository {
	return &GazetteerRepository{pool: pool}
}

func scanPoint(row rowScanner) (*database.GazetteerPoint, error) {
	var g database.GazetteerPoint
	if err := row.Scan(&g.GeonameID, &g.Name, &g.ASCIIName, &g.Admin1Code, &g.CountryCode,
		&g.Latitude, &g.Longitude, &g.Population); err != nil {
		return nil, err
	}
	return &g, nil
}

// AllPoints returns every gazetteer point ordered by geoname id
func (r *GazetteerRepository) AllPoints(ctx context.Context) ([]database.GazetteerPoint, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+gazetteerColumns+" FROM gazetteer ORDER BY geoname_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []database.GazetteerPoint
	for rows.Next() {
		g, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gazetteer point: %w", err)
		}
		points = append(points, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gazetteer: %w", err)
	}
	return points, nil
}

// Nearest evaluates the squared degree distance in the database. Ties go to
// the lowest geoname id, matching the order of AllPoints.
func (r *GazetteerRepository) Nearest(ctx context.Context, lat, lon float64) (*database.GazetteerPoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+gazetteerColumns+`
		FROM gazetteer
		ORDER BY (latitude - $1) * (latitude - $1) + (longitude - $2) * (longitude - $2), geoname_id
		LIMIT 1
	`, lat, lon)

	g, err := scanPoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query nearest place: %w", err)
	}
	return g, nil
}

// CountPoints returns the number of gazetteer points
func (r *GazetteerRepository) CountPoints(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM gazetteer").Scan(&count); err != nil {
		return 0, fmt.Errorf("count gazetteer: %w", err)
	}
	return count, nil
}

// LoadPoints copies points into a temporary staging table and merges them
// into the gazetteer keyed by geoname id, all in one transaction.
func (r *GazetteerRepository) LoadPoints(ctx context.Context, points []database.GazetteerPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE gazetteer_staging (LIKE gazetteer INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("gazetteer_staging",
		"geoname_id", "name", "ascii_name", "admin1_code", "country_code", "latitude", "longitude", "population"))
	if err != nil {
		return 0, fmt.Errorf("prepare copy: %w", err)
	}

	for _, g := range points {
		var admin1 any
		if g.Admin1Code != "" {
			admin1 = g.Admin1Code
		}
		if _, err := stmt.ExecContext(ctx, g.GeonameID, g.Name, g.ASCIIName, admin1, g.CountryCode,
			g.Latitude, g.Longitude, g.Population); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("copy point %d: %w", g.GeonameID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("close copy: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO gazetteer (geoname_id, name, ascii_name, admin1_code, country_code, latitude, longitude, population)
		SELECT DISTINCT ON (geoname_id) geoname_id, name, ascii_name, admin1_code, country_code, latitude, longitude, population
		FROM gazetteer_staging
		ORDER BY geoname_id
		ON CONFLICT (geoname_id) DO UPDATE SET
			name = EXCLUDED.name,
			ascii_name = EXCLUDED.ascii_name,
			admin1_code = EXCLUDED.admin1_code,
			country_code = EXCLUDED.country_code,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			population = EXCLUDED.population
	`)
	if err != nil {
		return 0, fmt.Errorf("merge gazetteer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit gazetteer load: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return len(points), nil
	}
	return int(n), nil
}

var _ database.GazetteerWriter = (*GazetteerRepository)(nil)

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/spawntrack/internal/bounds"
	"github.com/udisondev/spawntrack/internal/model"
)

// SpawnpointRepository reads and writes spawn point records.
type SpawnpointRepository struct {
	pool *pgxpool.Pool
}

// NewSpawnpointRepository creates a new spawnpoint repository.
func NewSpawnpointRepository(pool *pgxpool.Pool) *SpawnpointRepository {
	return &SpawnpointRepository{pool: pool}
}

// LoadAll loads all spawnpoints, prefiltered to the boundary's bounding
// box when one is set. Polygon refinement is the caller's job; the store
// only understands rectangles.
func (r *SpawnpointRepository) LoadAll(ctx context.Context, b *bounds.Boundary) ([]model.Spawnpoint, error) {
	query := `
		SELECT spawn_id, lat, lon, alt, despawn_second, duration, updated
		FROM spawnpoints
	`
	var args []any
	if b != nil {
		north, south, east, west := b.BBox()
		query += ` WHERE lat >= $1 AND lat <= $2 AND lon >= $3 AND lon <= $4`
		args = append(args, south, north, west, east)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading spawnpoints: %w", err)
	}
	defer rows.Close()

	points := make([]model.Spawnpoint, 0, 256)
	for rows.Next() {
		sp, err := scanSpawnpoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spawnpoint rows: %w", err)
	}

	return points, nil
}

// LoadByID loads a single spawnpoint. Returns pgx.ErrNoRows wrapped when
// the identifier is unknown.
func (r *SpawnpointRepository) LoadByID(ctx context.Context, spawnID int64) (model.Spawnpoint, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT spawn_id, lat, lon, alt, despawn_second, duration, updated
		FROM spawnpoints
		WHERE spawn_id = $1
	`, spawnID)

	sp, err := scanSpawnpoint(row)
	if err != nil {
		return model.Spawnpoint{}, fmt.Errorf("loading spawnpoint %d: %w", spawnID, err)
	}
	return sp, nil
}

// Upsert inserts or updates a spawnpoint record.
func (r *SpawnpointRepository) Upsert(ctx context.Context, sp model.Spawnpoint) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO spawnpoints (spawn_id, lat, lon, alt, despawn_second, duration, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (spawn_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			alt = EXCLUDED.alt,
			despawn_second = EXCLUDED.despawn_second,
			duration = EXCLUDED.duration,
			updated = EXCLUDED.updated
	`, sp.ID, sp.Point.Lat, sp.Point.Lon, sp.Altitude, sp.DespawnSecond, sp.DurationMinutes, sp.Updated)
	if err != nil {
		return fmt.Errorf("upserting spawnpoint %d: %w", sp.ID, err)
	}
	return nil
}

// Count returns the number of stored spawnpoints.
func (r *SpawnpointRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM spawnpoints`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting spawnpoints: %w", err)
	}
	return count, nil
}

func scanSpawnpoint(row pgx.Row) (model.Spawnpoint, error) {
	var (
		sp       model.Spawnpoint
		lat, lon float64
	)
	if err := row.Scan(&sp.ID, &lat, &lon, &sp.Altitude, &sp.DespawnSecond, &sp.DurationMinutes, &sp.Updated); err != nil {
		return model.Spawnpoint{}, fmt.Errorf("scanning spawnpoint row: %w", err)
	}
	sp.Point = model.NewPoint(lat, lon)
	return sp, nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrNoDataForMonth is returned when a month has no DGVI rows.
var ErrNoDataForMonth = errors.New("no DGVI data for month")

// MatchedGVIPointsForEdge returns the month's GVI points within a 1-meter
// buffer of the edge geometry, projected onto the line and ordered by the
// resulting parameter.
func (s *Store) MatchedGVIPointsForEdge(ctx context.Context, edgeID int64, month string) ([]models.GVISample, error) {
	query := `
		SELECT ST_LineLocatePoint(r.geom, g.geom), g.gvi
		FROM road_network r
		JOIN gvi_points g
		  ON g.month = $2
		 AND ST_DWithin(r.geom::geography, g.geom::geography, 1.0)
		WHERE r.id = $1
		ORDER BY 1
	`

	rows, err := s.db.Query(ctx, query, edgeID, month)
	if err != nil {
		return nil, fmt.Errorf("matched GVI points query failed: %w", err)
	}
	defer rows.Close()

	var samples []models.GVISample
	for rows.Next() {
		var sample models.GVISample
		if err := rows.Scan(&sample.Position, &sample.Value); err != nil {
			return nil, fmt.Errorf("failed to scan GVI sample: %w", err)
		}
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// RoadEdgeRefs enumerates all road edges (id and length) ordered by id.
// The DGVI rebuild iterates this listing in chunks.
func (s *Store) RoadEdgeRefs(ctx context.Context) ([]models.EdgeRef, error) {
	rows, err := s.db.Query(ctx, `SELECT id, length_m FROM road_network ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("road edge listing failed: %w", err)
	}
	defer rows.Close()

	var refs []models.EdgeRef
	for rows.Next() {
		var ref models.EdgeRef
		if err := rows.Scan(&ref.ID, &ref.LengthM); err != nil {
			return nil, fmt.Errorf("failed to scan edge ref: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// UpsertDGVI writes a chunk of (road, month) DGVI rows. Normalized values
// are recomputed separately by NormalizeMonth once a rebuild completes.
func (s *Store) UpsertDGVI(ctx context.Context, dgviRows []models.RoadDGVI) error {
	batch := &pgx.Batch{}
	for _, row := range dgviRows {
		batch.Queue(`
			INSERT INTO road_dgvi (road_id, month, dgvi, dgvi_normalized)
			VALUES ($1, $2, $3, 0)
			ON CONFLICT (road_id, month) DO UPDATE SET dgvi = EXCLUDED.dgvi
		`, row.RoadID, row.Month, row.DGVI)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range dgviRows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("DGVI upsert failed: %w", err)
		}
	}

	return nil
}

// NormalizeMonth recomputes dgvi_normalized as the min-max normalization
// over all of the month's rows. A degenerate month (min = max) normalizes
// to all zeros.
func (s *Store) NormalizeMonth(ctx context.Context, month string) error {
	query := `
		WITH bounds AS (
			SELECT MIN(dgvi) AS mn, MAX(dgvi) AS mx
			FROM road_dgvi
			WHERE month = $1
		)
		UPDATE road_dgvi d
		SET dgvi_normalized = CASE
			WHEN b.mx = b.mn THEN 0
			ELSE (d.dgvi - b.mn) / (b.mx - b.mn)
		END
		FROM bounds b
		WHERE d.month = $1
	`

	tag, err := s.db.Exec(ctx, query, month)
	if err != nil {
		return fmt.Errorf("normalization for %s failed: %w", month, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoDataForMonth
	}

	return nil
}

// DGVIForEdges returns the raw DGVI per edge for one month. Edges without a
// row are simply absent from the map; callers treat them as 0.
func (s *Store) DGVIForEdges(ctx context.Context, edgeIDs []int64, month string) (map[int64]float64, error) {
	if len(edgeIDs) == 0 {
		return map[int64]float64{}, nil
	}

	query := `
		SELECT road_id, dgvi
		FROM road_dgvi
		WHERE month = $1 AND road_id = ANY($2)
	`

	rows, err := s.db.Query(ctx, query, month, edgeIDs)
	if err != nil {
		return nil, fmt.Errorf("DGVI lookup failed: %w", err)
	}
	defer rows.Close()

	values := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var dgvi float64
		if err := rows.Scan(&id, &dgvi); err != nil {
			return nil, fmt.Errorf("failed to scan DGVI row: %w", err)
		}
		values[id] = dgvi
	}

	return values, rows.Err()
}

// GreennessForEdges returns the given road edges with the mean GVI of the
// month's points matched within a 1-meter buffer of each edge (0 when none
// matched).
func (s *Store) GreennessForEdges(ctx context.Context, edgeIDs []int64, month string) ([]models.EdgeGreenness, error) {
	if len(edgeIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT r.id, r.length_m, COALESCE(g.avg_gvi, 0)
		FROM road_network r
		LEFT JOIN LATERAL (
			SELECT AVG(gp.gvi) AS avg_gvi
			FROM gvi_points gp
			WHERE gp.month = $2
			  AND ST_DWithin(r.geom::geography, gp.geom::geography, 1.0)
		) g ON true
		WHERE r.id = ANY($1)
	`

	rows, err := s.db.Query(ctx, query, edgeIDs, month)
	if err != nil {
		return nil, fmt.Errorf("edge greenness query failed: %w", err)
	}
	defer rows.Close()

	var edges []models.EdgeGreenness
	for rows.Next() {
		var e models.EdgeGreenness
		if err := rows.Scan(&e.EdgeID, &e.LengthM, &e.AvgGVI); err != nil {
			return nil, fmt.Errorf("failed to scan edge greenness: %w", err)
		}
		edges = append(edges, e)
	}

	return edges, rows.Err()
}

// EdgesWithin returns the ids of road edges whose geometry lies within
// radiusMeters of the point.
func (s *Store) EdgesWithin(ctx context.Context, lat, lon, radiusMeters float64) ([]int64, error) {
	query := `
		SELECT id
		FROM road_network
		WHERE ST_DWithin(
			geom::geography,
			ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			$3
		)
	`

	rows, err := s.db.Query(ctx, query, lon, lat, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("edges within query failed: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan edge id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// AvailableMonths lists the months with DGVI rows, newest first.
func (s *Store) AvailableMonths(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT month FROM road_dgvi ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("months query failed: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("failed to scan month: %w", err)
		}
		months = append(months, m)
	}

	return months, rows.Err()
}

// RecommendedMonth is the newest month with DGVI data.
func (s *Store) RecommendedMonth(ctx context.Context) (string, error) {
	months, err := s.AvailableMonths(ctx)
	if err != nil {
		return "", err
	}
	if len(months) == 0 {
		return "", ErrNoDataForMonth
	}
	return months[0], nil
}

// MonthStats summarizes the DGVI table for one month.
func (s *Store) MonthStats(ctx context.Context, month string) (*models.DGVIStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(MIN(dgvi), 0), COALESCE(MAX(dgvi), 0), COALESCE(AVG(dgvi), 0),
		       COALESCE(MIN(dgvi_normalized), 0), COALESCE(MAX(dgvi_normalized), 0)
		FROM road_dgvi
		WHERE month = $1
	`

	stats := models.DGVIStats{Month: month}
	err := s.db.QueryRow(ctx, query, month).Scan(
		&stats.RoadCount, &stats.MinDGVI, &stats.MaxDGVI, &stats.AvgDGVI,
		&stats.MinNormalized, &stats.MaxNormalized,
	)
	if err != nil {
		return nil, fmt.Errorf("DGVI stats query failed: %w", err)
	}
	if stats.RoadCount == 0 {
		return nil, ErrNoDataForMonth
	}

	return &stats, nil
}

// GVIPointsForMonth returns up to limit raw GVI points of one month.
func (s *Store) GVIPointsForMonth(ctx context.Context, month string, limit int) ([]models.GVIPoint, error) {
	query := `
		SELECT id, ST_Y(geom), ST_X(geom), month, gvi
		FROM gvi_points
		WHERE month = $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, month, limit)
	if err != nil {
		return nil, fmt.Errorf("GVI points query failed: %w", err)
	}
	defer rows.Close()

	var points []models.GVIPoint
	for rows.Next() {
		var p models.GVIPoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon, &p.Month, &p.GVI); err != nil {
			return nil, fmt.Errorf("failed to scan GVI point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// InsertGVIPoints persists greenness values returned by the external GVI
// service. Returns the number of rows written.
func (s *Store) InsertGVIPoints(ctx context.Context, points []models.GVIPoint) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO gvi_points (geom, month, gvi)
			VALUES (ST_SetSRID(ST_MakePoint($1, $2), 4326), $3, $4)
		`, p.Lon, p.Lat, p.Month, p.GVI)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	written := 0
	for range points {
		if _, err := results.Exec(); err != nil {
			return written, fmt.Errorf("GVI point insert failed: %w", err)
		}
		written++
	}

	return written, nil
}

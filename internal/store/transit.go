package store

import (
	"context"
	"fmt"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/jackc/pgx/v5"
)

// StopNeighbor is the successor of a stop point on one (line, direction).
type StopNeighbor struct {
	StopPointID int64
	SiteID      int64
	Name        string
}

// ReachableSite is a target site hit by a forward walk along a line,
// together with the stop point where the line serves it and the hop count.
type ReachableSite struct {
	SiteID      int64
	StopPointID int64
	Depth       int
}

// StopsWithinAndNearest returns the union of (a) sites within radiusMeters
// of the point and (b) the k nearest sites overall, annotated with the
// straight-line walking distance, closest first, capped at limit.
func (s *Store) StopsWithinAndNearest(ctx context.Context, lat, lon, radiusMeters float64, k, limit int) ([]models.Site, error) {
	query := `
		WITH q AS (
			SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326) AS g
		),
		within AS (
			SELECT b.site_id
			FROM bus_sites b, q
			WHERE ST_DWithin(b.geom::geography, q.g::geography, $3)
		),
		nearest AS (
			SELECT b.site_id
			FROM bus_sites b, q
			ORDER BY b.geom <-> q.g
			LIMIT $4
		)
		SELECT b.site_id, b.name,
		       ST_Y(b.geom), ST_X(b.geom),
		       ST_Distance(b.geom::geography, q.g::geography)
		FROM bus_sites b, q
		WHERE b.site_id IN (SELECT site_id FROM within UNION SELECT site_id FROM nearest)
		ORDER BY 5
		LIMIT $5
	`

	rows, err := s.db.Query(ctx, query, lon, lat, radiusMeters, k, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby sites query failed: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		var site models.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.Lat, &site.Lon, &site.WalkingDistance); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// StopPoint returns one stop point by id.
func (s *Store) StopPoint(ctx context.Context, stopPointID int64) (*models.StopPoint, error) {
	query := `
		SELECT stop_point_id, site_id, name, direction_code,
		       ST_Y(geom), ST_X(geom)
		FROM stop_points
		WHERE stop_point_id = $1
	`

	var sp models.StopPoint
	err := s.db.QueryRow(ctx, query, stopPointID).
		Scan(&sp.ID, &sp.SiteID, &sp.Name, &sp.DirectionCode, &sp.Lat, &sp.Lon)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("stop point %d not found", stopPointID)
	}
	if err != nil {
		return nil, fmt.Errorf("stop point %d lookup failed: %w", stopPointID, err)
	}

	return &sp, nil
}

// NextStop returns the successor of a stop point on (lineID, directionCode),
// or nil when the stop is the end of the line.
func (s *Store) NextStop(ctx context.Context, lineID, directionCode int, stopPointID int64) (*StopNeighbor, error) {
	query := `
		SELECT ss.next_stop_point_id, sp.site_id, sp.name
		FROM stop_sequences ss
		JOIN stop_points sp ON sp.stop_point_id = ss.next_stop_point_id
		WHERE ss.line_id = $1
		  AND ss.direction_code = $2
		  AND ss.stop_point_id = $3
		LIMIT 1
	`

	var n StopNeighbor
	err := s.db.QueryRow(ctx, query, lineID, directionCode, stopPointID).
		Scan(&n.StopPointID, &n.SiteID, &n.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next stop lookup failed: %w", err)
	}

	return &n, nil
}

// ReachableSitesFrom walks the stop sequence forward from stopPointID along
// (lineID, directionCode) for at most maxDepth hops and reports which of the
// target sites the line reaches, nearest hop first.
func (s *Store) ReachableSitesFrom(ctx context.Context, lineID, directionCode int, stopPointID int64, targetSiteIDs []int64, maxDepth int) ([]ReachableSite, error) {
	if len(targetSiteIDs) == 0 {
		return nil, nil
	}

	query := `
		WITH RECURSIVE walk AS (
			SELECT ss.next_stop_point_id AS stop_point_id, 1 AS depth
			FROM stop_sequences ss
			WHERE ss.line_id = $1 AND ss.direction_code = $2 AND ss.stop_point_id = $3
			UNION ALL
			SELECT ss.next_stop_point_id, w.depth + 1
			FROM walk w
			JOIN stop_sequences ss
			  ON ss.line_id = $1 AND ss.direction_code = $2 AND ss.stop_point_id = w.stop_point_id
			WHERE w.depth < $4
		)
		SELECT sp.site_id, w.stop_point_id, w.depth
		FROM walk w
		JOIN stop_points sp ON sp.stop_point_id = w.stop_point_id
		WHERE sp.site_id = ANY($5)
		ORDER BY w.depth
	`

	rows, err := s.db.Query(ctx, query, lineID, directionCode, stopPointID, maxDepth, targetSiteIDs)
	if err != nil {
		return nil, fmt.Errorf("reachable sites query failed: %w", err)
	}
	defer rows.Close()

	var reachable []ReachableSite
	for rows.Next() {
		var r ReachableSite
		if err := rows.Scan(&r.SiteID, &r.StopPointID, &r.Depth); err != nil {
			return nil, fmt.Errorf("failed to scan reachable site: %w", err)
		}
		reachable = append(reachable, r)
	}

	return reachable, rows.Err()
}

// StopsAlong enumerates the stops between two stop points of one
// (line, direction) in sequence order, bounded to maxDepth hops. Used for
// display of intermediate stops on a ride segment.
func (s *Store) StopsAlong(ctx context.Context, lineID, directionCode int, fromStopID, toStopID int64, maxDepth int) ([]models.StopPoint, error) {
	query := `
		WITH RECURSIVE walk AS (
			SELECT $3::bigint AS stop_point_id, 0 AS depth
			UNION ALL
			SELECT ss.next_stop_point_id, w.depth + 1
			FROM walk w
			JOIN stop_sequences ss
			  ON ss.line_id = $1 AND ss.direction_code = $2 AND ss.stop_point_id = w.stop_point_id
			WHERE w.depth < $5 AND w.stop_point_id <> $4::bigint
		)
		SELECT sp.stop_point_id, sp.site_id, sp.name, sp.direction_code,
		       ST_Y(sp.geom), ST_X(sp.geom)
		FROM walk w
		JOIN stop_points sp ON sp.stop_point_id = w.stop_point_id
		ORDER BY w.depth
	`

	rows, err := s.db.Query(ctx, query, lineID, directionCode, fromStopID, toStopID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("stops along query failed: %w", err)
	}
	defer rows.Close()

	var stops []models.StopPoint
	for rows.Next() {
		var sp models.StopPoint
		if err := rows.Scan(&sp.ID, &sp.SiteID, &sp.Name, &sp.DirectionCode, &sp.Lat, &sp.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		stops = append(stops, sp)

		// the walk terminates at toStopID; keep it as the last element
		if sp.ID == toStopID {
			break
		}
	}

	return stops, rows.Err()
}

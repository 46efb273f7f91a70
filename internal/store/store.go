package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoVertex is returned when no road vertex exists near a query point.
	ErrNoVertex = errors.New("no road vertex found")

	// ErrNoPath is returned when the road graph holds no path between the
	// requested vertices. Callers treat this as a dropped candidate, not a
	// request failure.
	ErrNoPath = errors.New("no path between vertices")
)

// Store is the read-mostly query surface over the geospatial database:
// road network and topology, GVI point layer, per-month DGVI table, and
// the static transit tables.
type Store struct {
	db *pgxpool.Pool
}

// New creates a store on top of a shared connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EdgePath is a solved path: edge ids in traversal order, total length in
// meters, and the stitched polyline as GeoJSON.
type EdgePath struct {
	EdgeIDs  []int64
	LengthM  float64
	Geometry json.RawMessage
}

// NearestVertex returns the id of the road-graph vertex closest to the
// query point. Ties break toward the smaller id.
func (s *Store) NearestVertex(ctx context.Context, lat, lon float64) (int64, error) {
	query := `
		SELECT id
		FROM road_network_vertices_pgr
		ORDER BY the_geom <-> ST_SetSRID(ST_MakePoint($1, $2), 4326), id
		LIMIT 1
	`

	var id int64
	err := s.db.QueryRow(ctx, query, lon, lat).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, ErrNoVertex
	}
	if err != nil {
		return 0, fmt.Errorf("nearest vertex lookup failed: %w", err)
	}

	return id, nil
}

// ShortestEdgePath solves single-source-single-target shortest path over the
// undirected road graph with per-edge cost
//
//	wTime * length_normalized + wGreen * (1 - COALESCE(dgvi_normalized, 0))
//
// for the given month. Weights and month travel as bound parameters and are
// composed into the inner pgr_dijkstra query server-side with format(), so
// no caller input is interpolated into SQL text.
func (s *Store) ShortestEdgePath(ctx context.Context, fromVertex, toVertex int64, month string, wTime, wGreen float64) (*EdgePath, error) {
	if fromVertex == toVertex {
		return &EdgePath{EdgeIDs: []int64{}}, nil
	}

	query := `
		WITH solved AS (
			SELECT pd.edge, pd.path_seq
			FROM pgr_dijkstra(
				format(
					'SELECT r.id, r.source, r.target,
					        (%s * r.length_normalized
					         + %s * (1 - COALESCE(d.dgvi_normalized, 0)))::float8 AS cost
					 FROM road_network r
					 LEFT JOIN road_dgvi d
					   ON d.road_id = r.id AND d.month = %L',
					$3::float8, $4::float8, $5::text
				),
				$1::bigint, $2::bigint, directed := false
			) pd
			WHERE pd.edge <> -1
		)
		SELECT COALESCE(array_agg(r.id ORDER BY solved.path_seq), '{}'),
		       COALESCE(SUM(r.length_m), 0),
		       COALESCE(ST_AsGeoJSON(ST_LineMerge(ST_Union(r.geom))), '')
		FROM solved
		JOIN road_network r ON r.id = solved.edge
	`

	var edgeIDs []int64
	var lengthM float64
	var geomJSON string

	err := s.db.QueryRow(ctx, query, fromVertex, toVertex, wTime, wGreen, month).
		Scan(&edgeIDs, &lengthM, &geomJSON)
	if err != nil {
		return nil, fmt.Errorf("shortest path query failed: %w", err)
	}

	if len(edgeIDs) == 0 {
		return nil, ErrNoPath
	}

	return &EdgePath{
		EdgeIDs:  edgeIDs,
		LengthM:  lengthM,
		Geometry: json.RawMessage(geomJSON),
	}, nil
}

// BusPathGeometry reconstructs the polyline a bus ride follows between two
// stop points, solving over pure edge length. The result is used for map
// display only; its greenness is never accumulated into a route total.
func (s *Store) BusPathGeometry(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (*EdgePath, error) {
	fromVertex, err := s.NearestVertex(ctx, fromLat, fromLon)
	if err != nil {
		return nil, err
	}
	toVertex, err := s.NearestVertex(ctx, toLat, toLon)
	if err != nil {
		return nil, err
	}
	if fromVertex == toVertex {
		return &EdgePath{EdgeIDs: []int64{}}, nil
	}

	query := `
		WITH solved AS (
			SELECT pd.edge, pd.path_seq
			FROM pgr_dijkstra(
				'SELECT id, source, target, length_m::float8 AS cost FROM road_network',
				$1::bigint, $2::bigint, directed := false
			) pd
			WHERE pd.edge <> -1
		)
		SELECT COALESCE(array_agg(r.id ORDER BY solved.path_seq), '{}'),
		       COALESCE(SUM(r.length_m), 0),
		       COALESCE(ST_AsGeoJSON(ST_LineMerge(ST_Union(r.geom))), '')
		FROM solved
		JOIN road_network r ON r.id = solved.edge
	`

	var edgeIDs []int64
	var lengthM float64
	var geomJSON string

	err = s.db.QueryRow(ctx, query, fromVertex, toVertex).Scan(&edgeIDs, &lengthM, &geomJSON)
	if err != nil {
		return nil, fmt.Errorf("bus path query failed: %w", err)
	}

	if len(edgeIDs) == 0 {
		return nil, ErrNoPath
	}

	return &EdgePath{
		EdgeIDs:  edgeIDs,
		LengthM:  lengthM,
		Geometry: json.RawMessage(geomJSON),
	}, nil
}

// EdgeGeometryAndLength returns one road edge's polyline and length.
func (s *Store) EdgeGeometryAndLength(ctx context.Context, edgeID int64) (json.RawMessage, float64, error) {
	query := `
		SELECT ST_AsGeoJSON(geom), length_m
		FROM road_network
		WHERE id = $1
	`

	var geomJSON string
	var lengthM float64
	err := s.db.QueryRow(ctx, query, edgeID).Scan(&geomJSON, &lengthM)
	if err != nil {
		return nil, 0, fmt.Errorf("edge %d lookup failed: %w", edgeID, err)
	}

	return json.RawMessage(geomJSON), lengthM, nil
}

package models

import (
	"encoding/json"
	"time"
)

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RoadEdge is one edge of the walkable road network.
// LengthNormalized is min-max normalized over the whole graph at load time.
type RoadEdge struct {
	ID               int64
	Geometry         json.RawMessage // GeoJSON LineString
	LengthM          float64
	LengthNormalized float64
	Source           int64
	Target           int64
}

// GVIPoint is a single green-view sample for a given month.
type GVIPoint struct {
	ID    int64   `json:"id"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Month string  `json:"month"`
	GVI   float64 `json:"gvi"`
}

// RoadDGVI is the per-(road, month) accumulated greenness row.
// DGVINormalized is min-max normalized over all rows of the same month.
type RoadDGVI struct {
	RoadID         int64
	Month          string
	DGVI           float64
	DGVINormalized float64
}

// Site is a user-facing stop aggregate (e.g. "Odenplan").
type Site struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`

	// WalkingDistance is the straight-line distance in meters from the
	// query point, filled in by nearby-site lookups.
	WalkingDistance float64 `json:"walking_distance"`
}

// StopPoint is a specific platform belonging to exactly one site.
type StopPoint struct {
	ID            int64   `json:"id"`
	SiteID        int64   `json:"site_id"`
	Name          string  `json:"name"`
	DirectionCode int     `json:"direction_code"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
}

// StopSequenceEdge is the static successor relation per (line, direction),
// pre-extracted from historical departure observations. At most one
// successor exists per (line, direction, stop).
type StopSequenceEdge struct {
	LineID          int
	DirectionCode   int
	StopPointID     int64
	NextStopPointID int64
	JourneyID       int64
	SequenceOrder   int
}

// Departure is a transient forecast record from the transit feed.
type Departure struct {
	JourneyID       int64
	LineID          int
	LineDesignation string
	DirectionCode   int
	Expected        time.Time
	StopPointID     int64
	StopPointName   string
	Destination     string
}

// GVISample is a GVI point projected onto an edge polyline: Position is the
// line parameter in [0,1], Value the sampled greenness.
type GVISample struct {
	Position float64
	Value    float64
}

// EdgeRef is a road edge id with its length, as enumerated for DGVI rebuilds.
type EdgeRef struct {
	ID      int64
	LengthM float64
}

// EdgeGreenness is an edge near a waiting stop with the mean greenness of
// its matched GVI points (0 when none matched).
type EdgeGreenness struct {
	EdgeID  int64
	LengthM float64
	AvgGVI  float64
}

// DGVIStats summarizes the DGVI table for one month.
type DGVIStats struct {
	Month         string  `json:"month"`
	RoadCount     int64   `json:"road_count"`
	MinDGVI       float64 `json:"min_dgvi"`
	MaxDGVI       float64 `json:"max_dgvi"`
	AvgDGVI       float64 `json:"avg_dgvi"`
	MinNormalized float64 `json:"min_normalized"`
	MaxNormalized float64 `json:"max_normalized"`
}

package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/greenroute/greenroute_core/internal/config"
	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/store"
)

// ErrInvalidInput marks malformed planning requests.
var ErrInvalidInput = errors.New("invalid input")

// SpatialStore is the slice of the spatial store the planner consumes.
type SpatialStore interface {
	NearestVertex(ctx context.Context, lat, lon float64) (int64, error)
	ShortestEdgePath(ctx context.Context, fromVertex, toVertex int64, month string, wTime, wGreen float64) (*store.EdgePath, error)
	BusPathGeometry(ctx context.Context, fromLat, fromLon, toLat, toLon float64) (*store.EdgePath, error)
	StopsWithinAndNearest(ctx context.Context, lat, lon, radiusMeters float64, k, limit int) ([]models.Site, error)
	StopPoint(ctx context.Context, stopPointID int64) (*models.StopPoint, error)
	NextStop(ctx context.Context, lineID, directionCode int, stopPointID int64) (*store.StopNeighbor, error)
	ReachableSitesFrom(ctx context.Context, lineID, directionCode int, stopPointID int64, targetSiteIDs []int64, maxDepth int) ([]store.ReachableSite, error)
	StopsAlong(ctx context.Context, lineID, directionCode int, fromStopID, toStopID int64, maxDepth int) ([]models.StopPoint, error)
	RecommendedMonth(ctx context.Context) (string, error)
}

// DepartureFeed is the transit feed surface the planner consumes.
type DepartureFeed interface {
	GetBatchDepartures(ctx context.Context, siteIDs []int64, forecastSeconds int) (map[int64][]models.Departure, error)
}

// GreenScorer accumulates DGVI for walking paths and waiting stops.
type GreenScorer interface {
	WalkingDGVI(ctx context.Context, edgeIDs []int64, month string) (float64, error)
	WaitingDGVI(ctx context.Context, lat, lon float64, month string) (float64, error)
}

// PlanRequest is one origin/destination planning request.
type PlanRequest struct {
	Origin      models.LatLon
	Destination models.LatLon
	Month       string
	Preference  Preference
	MaxResults  int
}

// Validate checks coordinates and weights.
func (r *PlanRequest) Validate() error {
	for _, p := range []models.LatLon{r.Origin, r.Destination} {
		if p.Lat < -90 || p.Lat > 90 {
			return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidInput)
		}
		if p.Lon < -180 || p.Lon > 180 {
			return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidInput)
		}
	}
	if r.Preference.Time < 0 || r.Preference.Green < 0 {
		return fmt.Errorf("%w: preference weights must be non-negative", ErrInvalidInput)
	}
	if math.Abs(r.Preference.Time+r.Preference.Green-1) > 1e-6 {
		return fmt.Errorf("%w: preference weights must sum to 1", ErrInvalidInput)
	}
	return nil
}

// Planner orchestrates walking and transit candidate generation, scoring,
// ranking, and visualization enrichment.
type Planner struct {
	store SpatialStore
	feed  DepartureFeed
	green GreenScorer
	opts  config.Options

	// now is injectable for tests
	now func() time.Time
}

// New creates a planner.
func New(spatial SpatialStore, feed DepartureFeed, green GreenScorer, opts config.Options) *Planner {
	return &Planner{
		store: spatial,
		feed:  feed,
		green: green,
		opts:  opts,
		now:   time.Now,
	}
}

// PlanRoutes produces up to MaxResults scored route plans: at most two
// walking variants and two bus itineraries. Candidate-level failures
// degrade the result set; an empty result is not an error.
func (p *Planner) PlanRoutes(ctx context.Context, req PlanRequest) ([]models.RoutePlan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 4
	}

	if req.Month == "" {
		month, err := p.store.RecommendedMonth(ctx)
		if err != nil {
			return nil, fmt.Errorf("no GVI month available: %w", err)
		}
		req.Month = month
	}

	walking := p.walkingCandidates(ctx, req)
	walking = rankCategory(walking, req.Preference, 2)

	var bus []models.RoutePlan
	busCandidates, err := p.transitCandidates(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// upstream outage degrades to walking-only results
		log.Printf("Transit search unavailable, returning walking-only: %v", err)
	} else {
		bus = rankCategory(busCandidates, req.Preference, 2)
	}

	for i := range bus {
		p.enrich(ctx, &bus[i])
	}

	results := make([]models.RoutePlan, 0, len(walking)+len(bus))
	results = append(results, walking...)
	results = append(results, bus...)
	if len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}

	for i := range results {
		results[i].RouteID = fmt.Sprintf("%s-%d", results[i].Type, i+1)
	}

	return results, nil
}

// rankCategory normalizes scores within one category, orders by descending
// total score, and keeps the best keep candidates.
func rankCategory(plans []models.RoutePlan, pref Preference, keep int) []models.RoutePlan {
	if len(plans) == 0 {
		return nil
	}

	scoreCategory(plans, pref)

	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].TotalScore > plans[j].TotalScore
	})

	if len(plans) > keep {
		plans = plans[:keep]
	}
	return plans
}

// solveWalk runs the path solver between two points with the given weights
// and wraps the result as a walking segment.
func (p *Planner) solveWalk(ctx context.Context, from, to models.LatLon, month string, weights Preference) (*models.Segment, error) {
	fromVertex, err := p.store.NearestVertex(ctx, from.Lat, from.Lon)
	if err != nil {
		return nil, err
	}
	toVertex, err := p.store.NearestVertex(ctx, to.Lat, to.Lon)
	if err != nil {
		return nil, err
	}

	path, err := p.store.ShortestEdgePath(ctx, fromVertex, toVertex, month, weights.Time, weights.Green)
	if err != nil {
		return nil, err
	}

	return &models.Segment{
		Type:     models.SegmentWalking,
		Duration: path.LengthM / p.opts.WalkingSpeed,
		Distance: path.LengthM,
		EdgeIDs:  path.EdgeIDs,
		Geometry: path.Geometry,
	}, nil
}

// haversineMeters calculates the great-circle distance between two
// coordinates in meters.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

package dgvi

import (
	"context"
	"fmt"
	"sort"

	"github.com/greenroute/greenroute_core/internal/models"
)

// waitingRadiusMeters is the circular buffer around a waiting stop whose
// road edges contribute to the waiting DGVI.
const waitingRadiusMeters = 200

// Store is the slice of the spatial store the evaluator reads and writes.
type Store interface {
	MatchedGVIPointsForEdge(ctx context.Context, edgeID int64, month string) ([]models.GVISample, error)
	DGVIForEdges(ctx context.Context, edgeIDs []int64, month string) (map[int64]float64, error)
	EdgesWithin(ctx context.Context, lat, lon, radiusMeters float64) ([]int64, error)
	GreennessForEdges(ctx context.Context, edgeIDs []int64, month string) ([]models.EdgeGreenness, error)
	RoadEdgeRefs(ctx context.Context) ([]models.EdgeRef, error)
	UpsertDGVI(ctx context.Context, rows []models.RoadDGVI) error
	NormalizeMonth(ctx context.Context, month string) error
}

// Evaluator computes greenness accumulation for walking paths, waiting
// stops, and the per-month DGVI table.
type Evaluator struct {
	store Store
}

// NewEvaluator creates an evaluator over the given store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// EdgeDGVI integrates greenness along one edge of length lengthM from its
// matched GVI samples. Samples are ordered by line parameter; missing
// endpoints are synthesized from the nearest matched value. Over each
// interval [p1, p2] the contribution is
//
//	(p2 - p1) * L * ((v1 + v2)/2 - 1)
//
// so fully green coverage scores 0 and anything less scores negative,
// bounded below by -L. An edge with no matched samples scores 0.
func EdgeDGVI(samples []models.GVISample, lengthM float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	pts := make([]models.GVISample, len(samples))
	copy(pts, samples)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Position < pts[j].Position })

	if pts[0].Position > 0 {
		pts = append([]models.GVISample{{Position: 0, Value: pts[0].Value}}, pts...)
	}
	if last := pts[len(pts)-1]; last.Position < 1 {
		pts = append(pts, models.GVISample{Position: 1, Value: last.Value})
	}

	var total float64
	for i := 0; i+1 < len(pts); i++ {
		span := pts[i+1].Position - pts[i].Position
		avg := (pts[i].Value + pts[i+1].Value) / 2
		total += span * lengthM * (avg - 1)
	}

	return total
}

// WaitingContribution accumulates the greenness of the edges around a
// waiting stop: each edge contributes L*avgGVI - L.
func WaitingContribution(edges []models.EdgeGreenness) float64 {
	var total float64
	for _, e := range edges {
		total += e.LengthM*e.AvgGVI - e.LengthM
	}
	return total
}

// WalkingDGVI sums the per-edge DGVI over an ordered edge-id list. The list
// is the path's edge list, so duplicates are counted as often as they occur.
func (e *Evaluator) WalkingDGVI(ctx context.Context, edgeIDs []int64, month string) (float64, error) {
	values, err := e.store.DGVIForEdges(ctx, edgeIDs, month)
	if err != nil {
		return 0, fmt.Errorf("walking DGVI lookup failed: %w", err)
	}

	var total float64
	for _, id := range edgeIDs {
		total += values[id] // absent rows default to 0
	}

	return total, nil
}

// WaitingDGVI accumulates greenness around a waiting stop from the road
// edges within the 200 m buffer.
func (e *Evaluator) WaitingDGVI(ctx context.Context, lat, lon float64, month string) (float64, error) {
	edgeIDs, err := e.store.EdgesWithin(ctx, lat, lon, waitingRadiusMeters)
	if err != nil {
		return 0, fmt.Errorf("waiting DGVI edge lookup failed: %w", err)
	}
	if len(edgeIDs) == 0 {
		return 0, nil
	}

	edges, err := e.store.GreennessForEdges(ctx, edgeIDs, month)
	if err != nil {
		return 0, fmt.Errorf("waiting DGVI lookup failed: %w", err)
	}

	return WaitingContribution(edges), nil
}

// ComputeEdge computes one edge's DGVI from its matched samples. Exposed
// for the rebuild path and spot checks.
func (e *Evaluator) ComputeEdge(ctx context.Context, edge models.EdgeRef, month string) (float64, error) {
	samples, err := e.store.MatchedGVIPointsForEdge(ctx, edge.ID, month)
	if err != nil {
		return 0, err
	}
	return EdgeDGVI(samples, edge.LengthM), nil
}

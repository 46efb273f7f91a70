package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greenroute/greenroute_core/internal/config"
	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

// fakeSpatial implements SpatialStore with overridable behavior per test.
type fakeSpatial struct {
	nearestFn    func(lat, lon float64) (int64, error)
	pathFn       func(from, to int64, wTime, wGreen float64) (*store.EdgePath, error)
	sitesFn      func(lat, lon float64) ([]models.Site, error)
	stopPoints   map[int64]*models.StopPoint
	nextFn       func(lineID, dir int, stop int64) (*store.StopNeighbor, error)
	reachFn      func(lineID, dir int, stop int64, targets []int64, depth int) ([]store.ReachableSite, error)
	stopsAlongFn func(lineID, dir int, from, to int64, depth int) ([]models.StopPoint, error)
}

func (f *fakeSpatial) NearestVertex(_ context.Context, lat, lon float64) (int64, error) {
	if f.nearestFn != nil {
		return f.nearestFn(lat, lon)
	}
	return 1, nil
}

func (f *fakeSpatial) ShortestEdgePath(_ context.Context, from, to int64, _ string, wTime, wGreen float64) (*store.EdgePath, error) {
	if f.pathFn != nil {
		return f.pathFn(from, to, wTime, wGreen)
	}
	return &store.EdgePath{EdgeIDs: []int64{10, 11}, LengthM: 140}, nil
}

func (f *fakeSpatial) BusPathGeometry(_ context.Context, _, _, _, _ float64) (*store.EdgePath, error) {
	return &store.EdgePath{EdgeIDs: []int64{90}, LengthM: 900}, nil
}

func (f *fakeSpatial) StopsWithinAndNearest(_ context.Context, lat, lon, _ float64, _, _ int) ([]models.Site, error) {
	if f.sitesFn != nil {
		return f.sitesFn(lat, lon)
	}
	return nil, nil
}

func (f *fakeSpatial) StopPoint(_ context.Context, id int64) (*models.StopPoint, error) {
	if sp, ok := f.stopPoints[id]; ok {
		return sp, nil
	}
	return nil, errors.New("stop point not found")
}

func (f *fakeSpatial) NextStop(_ context.Context, lineID, dir int, stop int64) (*store.StopNeighbor, error) {
	if f.nextFn != nil {
		return f.nextFn(lineID, dir, stop)
	}
	return nil, nil
}

func (f *fakeSpatial) ReachableSitesFrom(_ context.Context, lineID, dir int, stop int64, targets []int64, depth int) ([]store.ReachableSite, error) {
	if f.reachFn != nil {
		return f.reachFn(lineID, dir, stop, targets, depth)
	}
	return nil, nil
}

func (f *fakeSpatial) StopsAlong(_ context.Context, lineID, dir int, from, to int64, depth int) ([]models.StopPoint, error) {
	if f.stopsAlongFn != nil {
		return f.stopsAlongFn(lineID, dir, from, to, depth)
	}
	return nil, nil
}

func (f *fakeSpatial) RecommendedMonth(_ context.Context) (string, error) {
	return "2025-08", nil
}

// fakeFeed serves canned departure batches or a fixed error.
type fakeFeed struct {
	departures map[int64][]models.Departure
	err        error
}

func (f *fakeFeed) GetBatchDepartures(_ context.Context, siteIDs []int64, _ int) (map[int64][]models.Departure, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64][]models.Departure, len(siteIDs))
	for _, id := range siteIDs {
		out[id] = f.departures[id]
	}
	return out, nil
}

// fakeGreen scores edges by the negative sum of their ids unless overridden.
type fakeGreen struct {
	walkFn func(edgeIDs []int64, month string) (float64, error)
	waitFn func(lat, lon float64, month string) (float64, error)
}

func (f *fakeGreen) WalkingDGVI(_ context.Context, edgeIDs []int64, month string) (float64, error) {
	if f.walkFn != nil {
		return f.walkFn(edgeIDs, month)
	}
	var total float64
	for _, id := range edgeIDs {
		total -= float64(id)
	}
	return total, nil
}

func (f *fakeGreen) WaitingDGVI(_ context.Context, lat, lon float64, month string) (float64, error) {
	if f.waitFn != nil {
		return f.waitFn(lat, lon, month)
	}
	return 0, nil
}

func newTestPlanner(spatial *fakeSpatial, feed *fakeFeed, green *fakeGreen) *Planner {
	p := New(spatial, feed, green, config.Defaults())
	p.now = func() time.Time { return testNow }
	return p
}

func testRequest() PlanRequest {
	return PlanRequest{
		Origin:      models.LatLon{Lat: 59.3446, Lon: 18.0577},
		Destination: models.LatLon{Lat: 59.3433, Lon: 18.0506},
		Month:       "2025-08",
		Preference:  DefaultPreference(),
	}
}

func TestPlanRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlanRequest)
		wantErr bool
	}{
		{"Valid request", func(*PlanRequest) {}, false},
		{"Latitude out of range", func(r *PlanRequest) { r.Origin.Lat = 91 }, true},
		{"Longitude out of range", func(r *PlanRequest) { r.Destination.Lon = -181 }, true},
		{"Negative weight", func(r *PlanRequest) { r.Preference = Preference{Time: -0.1, Green: 1.1} }, true},
		{"Weights not summing to one", func(r *PlanRequest) { r.Preference = Preference{Time: 0.5, Green: 0.6} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlanRoutesWalkingOnly(t *testing.T) {
	p := newTestPlanner(&fakeSpatial{}, &fakeFeed{}, &fakeGreen{})

	routes, err := p.PlanRoutes(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, routes, 1) // identical path under all three strategies

	r := routes[0]
	assert.Equal(t, models.RouteWalking, r.Type)
	assert.Equal(t, "walking-1", r.RouteID)
	assert.Equal(t, "user", r.Strategy)
	assert.InDelta(t, 100.0, r.TotalDuration, 1e-9) // 140 m at 1.4 m/s
	assert.InDelta(t, 1.0, r.TotalScore, 1e-9)      // lone survivor
	assert.NoError(t, r.Validate())
}

func TestPlanRoutesFeedOutageDegradesToWalking(t *testing.T) {
	spatial := &fakeSpatial{
		sitesFn: func(_, _ float64) ([]models.Site, error) {
			return []models.Site{{ID: 1, Name: "Odenplan", WalkingDistance: 100}}, nil
		},
	}
	feed := &fakeFeed{err: errors.New("upstream down")}
	p := newTestPlanner(spatial, feed, &fakeGreen{})

	routes, err := p.PlanRoutes(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotEmpty(t, routes)
	for _, r := range routes {
		assert.Equal(t, models.RouteWalking, r.Type)
	}
}

func TestPlanRoutesNoNearbySites(t *testing.T) {
	p := newTestPlanner(&fakeSpatial{}, &fakeFeed{}, &fakeGreen{})

	routes, err := p.PlanRoutes(context.Background(), testRequest())
	require.NoError(t, err)
	for _, r := range routes {
		assert.Equal(t, models.RouteWalking, r.Type)
	}
}

func TestPlanRoutesEmptyResultIsNotAnError(t *testing.T) {
	spatial := &fakeSpatial{
		pathFn: func(_, _ int64, _, _ float64) (*store.EdgePath, error) {
			return nil, store.ErrNoPath
		},
	}
	p := newTestPlanner(spatial, &fakeFeed{}, &fakeGreen{})

	routes, err := p.PlanRoutes(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestPlanRoutesDefaultsMonth(t *testing.T) {
	p := newTestPlanner(&fakeSpatial{}, &fakeFeed{}, &fakeGreen{})

	req := testRequest()
	req.Month = ""

	routes, err := p.PlanRoutes(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, routes)
	assert.Equal(t, "2025-08", routes[0].Month)
}

func TestPlanRoutesMaxResultsCap(t *testing.T) {
	spatial := &fakeSpatial{
		pathFn: func(_, _ int64, wTime, _ float64) (*store.EdgePath, error) {
			// distinct path per strategy weight
			return &store.EdgePath{EdgeIDs: []int64{int64(wTime * 100)}, LengthM: 140 + wTime*10}, nil
		},
	}
	p := newTestPlanner(spatial, &fakeFeed{}, &fakeGreen{})

	req := testRequest()
	req.MaxResults = 1

	routes, err := p.PlanRoutes(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

package dgvi

import (
	"context"
	"testing"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeDGVI(t *testing.T) {
	tests := []struct {
		name     string
		samples  []models.GVISample
		lengthM  float64
		expected float64
	}{
		{
			name:     "No matched points scores zero",
			samples:  nil,
			lengthM:  100,
			expected: 0,
		},
		{
			name: "Baseline greenness scores zero",
			samples: []models.GVISample{
				{Position: 0, Value: 1},
				{Position: 1, Value: 1},
			},
			lengthM:  100,
			expected: 0,
		},
		{
			name: "Uniform surplus greenness",
			samples: []models.GVISample{
				{Position: 0, Value: 0.8},
				{Position: 1, Value: 0.8},
			},
			lengthM:  100,
			expected: -20, // 100 * (0.8 - 1)
		},
		{
			name: "Single interior sample extends to both endpoints",
			samples: []models.GVISample{
				{Position: 0.5, Value: 0.8},
			},
			lengthM:  100,
			expected: -20,
		},
		{
			name: "Mixed values integrate piecewise",
			samples: []models.GVISample{
				{Position: 0.25, Value: 1},
				{Position: 0.75, Value: 0},
			},
			lengthM: 100,
			// [0,0.25]: avg 1 -> 0; [0.25,0.75]: avg 0.5 -> -25; [0.75,1]: avg 0 -> -25
			expected: -50,
		},
		{
			name: "Unsorted samples are ordered first",
			samples: []models.GVISample{
				{Position: 1, Value: 0.8},
				{Position: 0, Value: 0.8},
			},
			lengthM:  100,
			expected: -20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EdgeDGVI(tt.samples, tt.lengthM)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestEdgeDGVIDoesNotMutateInput(t *testing.T) {
	samples := []models.GVISample{
		{Position: 1, Value: 0.5},
		{Position: 0, Value: 0.2},
	}
	EdgeDGVI(samples, 50)

	assert.Equal(t, 1.0, samples[0].Position)
	assert.Equal(t, 0.0, samples[1].Position)
}

func TestWaitingContribution(t *testing.T) {
	tests := []struct {
		name     string
		edges    []models.EdgeGreenness
		expected float64
	}{
		{
			name:     "No nearby edges",
			edges:    nil,
			expected: 0,
		},
		{
			name: "Unmatched edges contribute their negative length",
			edges: []models.EdgeGreenness{
				{EdgeID: 1, LengthM: 100, AvgGVI: 0},
				{EdgeID: 2, LengthM: 50, AvgGVI: 0},
			},
			expected: -150,
		},
		{
			name: "Baseline greenness cancels out",
			edges: []models.EdgeGreenness{
				{EdgeID: 1, LengthM: 100, AvgGVI: 1},
			},
			expected: 0,
		},
		{
			name: "Mixed greenness",
			edges: []models.EdgeGreenness{
				{EdgeID: 1, LengthM: 100, AvgGVI: 0.5}, // -50
				{EdgeID: 2, LengthM: 200, AvgGVI: 0.9}, // -20
			},
			expected: -70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, WaitingContribution(tt.edges), 1e-9)
		})
	}
}

// fakeStore implements Store over in-memory fixtures.
type fakeStore struct {
	samples   map[int64][]models.GVISample
	dgvi      map[int64]float64
	within    []int64
	greenness []models.EdgeGreenness
	edges     []models.EdgeRef
	upserted  map[int64]float64

	withinRadius   float64
	greennessIDs   []int64
	normalizeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		samples:  make(map[int64][]models.GVISample),
		dgvi:     make(map[int64]float64),
		upserted: make(map[int64]float64),
	}
}

func (f *fakeStore) MatchedGVIPointsForEdge(_ context.Context, edgeID int64, _ string) ([]models.GVISample, error) {
	return f.samples[edgeID], nil
}

func (f *fakeStore) DGVIForEdges(_ context.Context, edgeIDs []int64, _ string) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for _, id := range edgeIDs {
		if v, ok := f.dgvi[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (f *fakeStore) EdgesWithin(_ context.Context, _, _, radiusMeters float64) ([]int64, error) {
	f.withinRadius = radiusMeters
	return f.within, nil
}

func (f *fakeStore) GreennessForEdges(_ context.Context, edgeIDs []int64, _ string) ([]models.EdgeGreenness, error) {
	f.greennessIDs = edgeIDs
	return f.greenness, nil
}

func (f *fakeStore) RoadEdgeRefs(_ context.Context) ([]models.EdgeRef, error) {
	return f.edges, nil
}

func (f *fakeStore) UpsertDGVI(_ context.Context, rows []models.RoadDGVI) error {
	for _, r := range rows {
		f.upserted[r.RoadID] = r.DGVI
	}
	return nil
}

func (f *fakeStore) NormalizeMonth(_ context.Context, _ string) error {
	f.normalizeCalls++
	return nil
}

func TestWalkingDGVICountsDuplicates(t *testing.T) {
	store := newFakeStore()
	store.dgvi[7] = -10
	store.dgvi[8] = 5

	e := NewEvaluator(store)

	total, err := e.WalkingDGVI(context.Background(), []int64{7, 8, 7}, "2025-08")
	require.NoError(t, err)
	assert.InDelta(t, -15.0, total, 1e-9) // 7 counted twice

	t.Run("edges without rows default to zero", func(t *testing.T) {
		total, err := e.WalkingDGVI(context.Background(), []int64{7, 999}, "2025-08")
		require.NoError(t, err)
		assert.InDelta(t, -10.0, total, 1e-9)
	})
}

func TestWaitingDGVIAccumulatesBufferedEdges(t *testing.T) {
	store := newFakeStore()
	store.within = []int64{4, 9}
	store.greenness = []models.EdgeGreenness{
		{EdgeID: 4, LengthM: 100, AvgGVI: 0.5}, // -50
		{EdgeID: 9, LengthM: 200, AvgGVI: 0.9}, // -20
	}

	e := NewEvaluator(store)

	total, err := e.WaitingDGVI(context.Background(), 59.34, 18.05, "2025-08")
	require.NoError(t, err)
	assert.InDelta(t, -70.0, total, 1e-9)
	assert.InDelta(t, 200.0, store.withinRadius, 1e-9)
	assert.Equal(t, []int64{4, 9}, store.greennessIDs)

	t.Run("no edges in the buffer", func(t *testing.T) {
		e := NewEvaluator(newFakeStore())
		total, err := e.WaitingDGVI(context.Background(), 59.34, 18.05, "2025-08")
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestRebuildMonth(t *testing.T) {
	store := newFakeStore()
	for i := int64(1); i <= 250; i++ {
		store.edges = append(store.edges, models.EdgeRef{ID: i, LengthM: 100})
	}
	store.samples[1] = []models.GVISample{{Position: 0, Value: 0.5}, {Position: 1, Value: 0.5}}

	e := NewEvaluator(store)

	processed, err := e.RebuildMonth(context.Background(), "2025-08")
	require.NoError(t, err)
	assert.Equal(t, 250, processed)
	assert.Equal(t, 1, store.normalizeCalls)
	assert.InDelta(t, -50.0, store.upserted[1], 1e-9)
	assert.InDelta(t, 0.0, store.upserted[2], 1e-9)

	t.Run("rerun yields identical values", func(t *testing.T) {
		first := make(map[int64]float64, len(store.upserted))
		for k, v := range store.upserted {
			first[k] = v
		}

		_, err := e.RebuildMonth(context.Background(), "2025-08")
		require.NoError(t, err)
		assert.Equal(t, first, store.upserted)
	})
}

func TestRebuildMonthCancellation(t *testing.T) {
	store := newFakeStore()
	for i := int64(1); i <= 500; i++ {
		store.edges = append(store.edges, models.EdgeRef{ID: i, LengthM: 10})
	}

	e := NewEvaluator(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := e.RebuildMonth(ctx, "2025-08")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, processed)
	assert.Zero(t, store.normalizeCalls)
}

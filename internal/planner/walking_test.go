package planner

import (
	"context"
	"testing"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkingCandidatesDedup(t *testing.T) {
	// every strategy finds the same path: one survivor, under "user"
	p := newTestPlanner(&fakeSpatial{}, &fakeFeed{}, &fakeGreen{})

	candidates := p.walkingCandidates(context.Background(), testRequest())
	require.Len(t, candidates, 1)
	assert.Equal(t, "user", candidates[0].Strategy)
}

func TestWalkingCandidatesDistinctPathsKeepTwo(t *testing.T) {
	spatial := &fakeSpatial{
		pathFn: func(_, _ int64, wTime, _ float64) (*store.EdgePath, error) {
			switch {
			case wTime == 1:
				return &store.EdgePath{EdgeIDs: []int64{1}, LengthM: 100}, nil
			case wTime == 0:
				return &store.EdgePath{EdgeIDs: []int64{2}, LengthM: 300}, nil
			default:
				return &store.EdgePath{EdgeIDs: []int64{3}, LengthM: 200}, nil
			}
		},
	}
	p := newTestPlanner(spatial, &fakeFeed{}, &fakeGreen{})

	candidates := p.walkingCandidates(context.Background(), testRequest())
	require.Len(t, candidates, 2)
	assert.Equal(t, "user", candidates[0].Strategy)
	assert.Equal(t, "asap", candidates[1].Strategy)
}

func TestWalkingCandidatesNoSharedFingerprint(t *testing.T) {
	spatial := &fakeSpatial{
		pathFn: func(_, _ int64, wTime, _ float64) (*store.EdgePath, error) {
			if wTime == 1 {
				// same edge set as the user path, different order
				return &store.EdgePath{EdgeIDs: []int64{11, 10}, LengthM: 140}, nil
			}
			return &store.EdgePath{EdgeIDs: []int64{10, 11}, LengthM: 140}, nil
		},
	}
	p := newTestPlanner(spatial, &fakeFeed{}, &fakeGreen{})

	candidates := p.walkingCandidates(context.Background(), testRequest())
	require.Len(t, candidates, 1)

	seen := map[string]bool{}
	for _, c := range candidates {
		fp := c.Fingerprint()
		assert.False(t, seen[fp])
		seen[fp] = true
	}
}

func TestWalkingCandidatesPartialFailure(t *testing.T) {
	spatial := &fakeSpatial{
		pathFn: func(_, _ int64, wTime, _ float64) (*store.EdgePath, error) {
			if wTime == 0 {
				return nil, store.ErrNoPath
			}
			return &store.EdgePath{EdgeIDs: []int64{int64(wTime * 10)}, LengthM: 140}, nil
		},
	}
	p := newTestPlanner(spatial, &fakeFeed{}, &fakeGreen{})

	candidates := p.walkingCandidates(context.Background(), testRequest())
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.NotEqual(t, "groot", c.Strategy)
	}
}

func TestWalkingPlanAccumulatesDGVI(t *testing.T) {
	green := &fakeGreen{
		walkFn: func(edgeIDs []int64, _ string) (float64, error) {
			return -25, nil
		},
	}
	p := newTestPlanner(&fakeSpatial{}, &fakeFeed{}, green)

	plan, err := p.walkingPlan(context.Background(), testRequest(), &UserStrategy{})
	require.NoError(t, err)
	assert.InDelta(t, -25.0, plan.TotalAcDGVI, 1e-9)
	assert.Equal(t, models.RouteWalking, plan.Type)
	assert.NoError(t, plan.Validate())
}

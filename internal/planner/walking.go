package planner

import (
	"context"
	"errors"
	"log"

	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/store"
)

type walkResult struct {
	strategy string
	plan     *models.RoutePlan
	err      error
}

// walkingCandidates solves the origin-to-destination walk under every
// strategy in parallel, deduplicates identical paths in strategy priority
// order, and returns the surviving candidates unscored. Per-strategy
// failures are logged and skipped.
func (p *Planner) walkingCandidates(ctx context.Context, req PlanRequest) []models.RoutePlan {
	strategies := AllStrategies()
	results := make(chan walkResult, len(strategies))

	for _, strat := range strategies {
		go func(strat Strategy) {
			plan, err := p.walkingPlan(ctx, req, strat)
			results <- walkResult{strategy: strat.Name(), plan: plan, err: err}
		}(strat)
	}

	byStrategy := make(map[string]*models.RoutePlan, len(strategies))
	for range strategies {
		r := <-results
		if r.err != nil {
			if !errors.Is(r.err, store.ErrNoPath) && !errors.Is(r.err, store.ErrNoVertex) {
				log.Printf("Walking strategy %s failed: %v", r.strategy, r.err)
			}
			continue
		}
		byStrategy[r.strategy] = r.plan
	}

	seen := make(map[string]bool)
	var candidates []models.RoutePlan
	for _, strat := range strategies {
		plan, ok := byStrategy[strat.Name()]
		if !ok {
			continue
		}
		fp := plan.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		candidates = append(candidates, *plan)
		if len(candidates) == 2 {
			break
		}
	}

	return candidates
}

// walkingPlan builds one walking route plan under the given strategy.
func (p *Planner) walkingPlan(ctx context.Context, req PlanRequest, strat Strategy) (*models.RoutePlan, error) {
	seg, err := p.solveWalk(ctx, req.Origin, req.Destination, req.Month, strat.Weights(req.Preference))
	if err != nil {
		return nil, err
	}

	dgvi, err := p.green.WalkingDGVI(ctx, seg.EdgeIDs, req.Month)
	if err != nil {
		return nil, err
	}

	return &models.RoutePlan{
		Type:          models.RouteWalking,
		Origin:        req.Origin,
		Destination:   req.Destination,
		Segments:      []models.Segment{*seg},
		TotalDuration: seg.Duration,
		TotalAcDGVI:   dgvi,
		Month:         req.Month,
		Strategy:      strat.Name(),
	}, nil
}

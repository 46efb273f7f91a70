package planner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/greenroute/greenroute_core/internal/feed"
	"github.com/greenroute/greenroute_core/internal/models"
)

// nearestSiteCount is the k of the within-radius-or-k-nearest site lookup.
const nearestSiteCount = 3

// maxNearbySites caps the sites considered per endpoint.
const maxNearbySites = 5

// maxScoredBusCandidates is how many bus candidates, ordered by earliest
// arrival, proceed to assembly and DGVI scoring.
const maxScoredBusCandidates = 5

// busCandidate is a not-yet-assembled bus itinerary. Direct candidates carry
// the arrival observation; transfer candidates carry the full transfer plan.
type busCandidate struct {
	originSite models.Site
	destSite   models.Site
	dep        models.Departure
	arrival    time.Time

	// direct variant
	arrStopPointID int64

	// transfer variant
	transfer *transferPlan
}

// transitCandidates generates direct and one-transfer bus itineraries,
// keeps the earliest-arriving ones, and assembles them into scored-ready
// route plans. A feed outage is returned as an error so the caller can
// degrade to walking-only results.
func (p *Planner) transitCandidates(ctx context.Context, req PlanRequest) ([]models.RoutePlan, error) {
	radius := p.opts.MaxWalkingDistance()

	originSites, err := p.store.StopsWithinAndNearest(ctx, req.Origin.Lat, req.Origin.Lon, radius, nearestSiteCount, maxNearbySites)
	if err != nil {
		return nil, fmt.Errorf("origin site lookup failed: %w", err)
	}
	destSites, err := p.store.StopsWithinAndNearest(ctx, req.Destination.Lat, req.Destination.Lon, radius, nearestSiteCount, maxNearbySites)
	if err != nil {
		return nil, fmt.Errorf("destination site lookup failed: %w", err)
	}
	if len(originSites) == 0 || len(destSites) == 0 {
		return nil, nil
	}

	siteIDs := make([]int64, 0, len(originSites)+len(destSites))
	seen := make(map[int64]bool)
	for _, s := range append(append([]models.Site{}, originSites...), destSites...) {
		if !seen[s.ID] {
			seen[s.ID] = true
			siteIDs = append(siteIDs, s.ID)
		}
	}

	departures, err := p.feed.GetBatchDepartures(ctx, siteIDs, feed.MaxForecastSeconds)
	if err != nil {
		return nil, fmt.Errorf("departure batch failed: %w", err)
	}

	candidates := p.directCandidates(originSites, destSites, departures)
	candidates = append(candidates, p.transferCandidates(ctx, req, originSites, destSites, departures)...)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].arrival.Before(candidates[j].arrival)
	})
	if len(candidates) > maxScoredBusCandidates {
		candidates = candidates[:maxScoredBusCandidates]
	}

	var plans []models.RoutePlan
	for _, c := range candidates {
		plan, err := p.assembleBus(ctx, req, c)
		if err != nil {
			log.Printf("Dropping bus candidate on line %s: %v", c.dep.LineDesignation, err)
			continue
		}
		plans = append(plans, *plan)
	}

	return plans, nil
}

// directCandidates correlates origin- and destination-site departures by
// journey id. A journey id seen at both endpoints with matching line and
// direction is a seat-through itinerary.
func (p *Planner) directCandidates(originSites, destSites []models.Site, departures map[int64][]models.Departure) []busCandidate {
	now := p.now()

	type originObs struct {
		site models.Site
		dep  models.Departure
	}
	origins := make(map[int64]originObs)
	for _, site := range originSites {
		for _, dep := range departures[site.ID] {
			if !p.boardable(site, dep, now) {
				continue
			}
			if prev, ok := origins[dep.JourneyID]; ok && prev.dep.Expected.Before(dep.Expected) {
				continue
			}
			origins[dep.JourneyID] = originObs{site: site, dep: dep}
		}
	}
	if len(origins) == 0 {
		return nil
	}

	var candidates []busCandidate
	for _, site := range destSites {
		for _, arr := range departures[site.ID] {
			obs, ok := origins[arr.JourneyID]
			if !ok || obs.dep.LineID != arr.LineID || obs.dep.DirectionCode != arr.DirectionCode {
				continue
			}

			ride := arr.Expected.Sub(obs.dep.Expected)
			if ride <= 0 || ride > p.opts.BusSearchMaxDuration {
				continue
			}

			candidates = append(candidates, busCandidate{
				originSite:     obs.site,
				destSite:       site,
				dep:            obs.dep,
				arrival:        arr.Expected,
				arrStopPointID: arr.StopPointID,
			})
		}
	}

	return candidates
}

// boardable applies the departure feasibility rule: the straight-line walk
// to the origin site plus the transfer margin must fit before the expected
// departure.
func (p *Planner) boardable(site models.Site, dep models.Departure, now time.Time) bool {
	walk := time.Duration(site.WalkingDistance / p.opts.WalkingSpeed * float64(time.Second))
	return now.Add(walk).Add(p.opts.TransferMargin).Before(dep.Expected) ||
		now.Add(walk).Add(p.opts.TransferMargin).Equal(dep.Expected)
}

// assembleBus turns a candidate into a full route plan with walking
// sub-segments, waiting and ride segments, and waiting-DGVI accumulation.
func (p *Planner) assembleBus(ctx context.Context, req PlanRequest, c busCandidate) (*models.RoutePlan, error) {
	if c.transfer != nil {
		return p.assembleTransfer(ctx, req, c)
	}

	boardStop, err := p.store.StopPoint(ctx, c.dep.StopPointID)
	if err != nil {
		return nil, err
	}
	alightStop, err := p.store.StopPoint(ctx, c.arrStopPointID)
	if err != nil {
		return nil, err
	}

	walkIn, err := p.solveWalk(ctx, req.Origin, models.LatLon{Lat: boardStop.Lat, Lon: boardStop.Lon}, req.Month, req.Preference)
	if err != nil {
		return nil, err
	}
	walkOut, err := p.solveWalk(ctx, models.LatLon{Lat: alightStop.Lat, Lon: alightStop.Lon}, req.Destination, req.Month, req.Preference)
	if err != nil {
		return nil, err
	}

	now := p.now()
	wait := c.dep.Expected.Sub(now).Seconds() - walkIn.Duration
	if wait < 0 {
		wait = 0
	}

	segments := []models.Segment{
		*walkIn,
		{
			Type:              models.SegmentBusWaiting,
			Duration:          wait,
			StopPointID:       boardStop.ID,
			StopPointName:     boardStop.Name,
			SiteID:            boardStop.SiteID,
			StopLat:           boardStop.Lat,
			StopLon:           boardStop.Lon,
			ExpectedDeparture: c.dep.Expected,
			LineID:            c.dep.LineID,
			LineDesignation:   c.dep.LineDesignation,
			DirectionCode:     c.dep.DirectionCode,
		},
		{
			Type:            models.SegmentBusRide,
			Duration:        c.arrival.Sub(c.dep.Expected).Seconds(),
			FromStop:        boardStop,
			ToStop:          alightStop,
			ExpectedArrival: c.arrival,
			LineID:          c.dep.LineID,
			LineDesignation: c.dep.LineDesignation,
			DirectionCode:   c.dep.DirectionCode,
		},
		*walkOut,
	}

	plan := &models.RoutePlan{
		Type:        models.RouteDirectBus,
		Origin:      req.Origin,
		Destination: req.Destination,
		Segments:    segments,
		Month:       req.Month,
		Strategy:    "user",
	}
	p.finishBusPlan(ctx, plan)
	return plan, nil
}

// finishBusPlan sums segment durations and accumulates waiting-DGVI over
// the plan's bus_waiting stops. A DGVI failure contributes zero for that
// stop and is logged; the route survives.
func (p *Planner) finishBusPlan(ctx context.Context, plan *models.RoutePlan) {
	var total, dgvi float64
	for _, s := range plan.Segments {
		total += s.Duration
		if s.Type != models.SegmentBusWaiting {
			continue
		}
		v, err := p.green.WaitingDGVI(ctx, s.StopLat, s.StopLon, plan.Month)
		if err != nil {
			log.Printf("Waiting DGVI at stop %d failed, counting 0: %v", s.StopPointID, err)
			continue
		}
		dgvi += v
	}
	plan.TotalDuration = total
	plan.TotalAcDGVI = dgvi
}

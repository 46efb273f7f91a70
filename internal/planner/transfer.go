package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/greenroute/greenroute_core/internal/feed"
	"github.com/greenroute/greenroute_core/internal/models"
	"github.com/greenroute/greenroute_core/internal/store"
)

// Emission bounds of the transfer search.
const (
	maxTransfersPerAgent = 2
	maxTransfersGlobal   = 20
)

// transferPlan records one emitted transfer itinerary: board the first
// departure, ride to the transfer stop, catch the second departure, ride to
// a stop at a destination site. Arrival times past the feed's forecast
// window are estimated with the average inter-stop time.
type transferPlan struct {
	alightStopID   int64
	transferSiteID int64
	estArrival     time.Time

	secondDep  models.Departure
	destSiteID int64
	destStopID int64
	destHops   int
}

// agentKey suppresses consecutive duplicates within one scan of a
// transfer site's cached departures. Every feasible origin departure
// spawns its own agent, duplicates included.
type agentKey struct {
	stopPointID   int64
	directionCode int
}

// transferCandidates runs the query-agent search: each feasible origin
// departure is a virtual passenger walked forward along its (line,
// direction) for a bounded number of hops, checking at every reached site
// for onward departures that reach a destination site.
func (p *Planner) transferCandidates(ctx context.Context, req PlanRequest, originSites, destSites []models.Site, departures map[int64][]models.Departure) []busCandidate {
	destSiteIDs := make([]int64, 0, len(destSites))
	destByID := make(map[int64]models.Site, len(destSites))
	for _, s := range destSites {
		destSiteIDs = append(destSiteIDs, s.ID)
		destByID[s.ID] = s
	}

	now := p.now()
	search := &transferSearch{
		planner:    p,
		departures: departures,
		nextStops:  make(map[string]*store.StopNeighbor),
	}

	var candidates []busCandidate
	emitted := 0

	for _, site := range originSites {
		for _, dep := range departures[site.ID] {
			if emitted >= maxTransfersGlobal {
				return candidates
			}

			if !p.boardable(site, dep, now) {
				continue
			}

			plans, err := search.runAgent(ctx, dep, destSiteIDs, maxTransfersGlobal-emitted)
			if err != nil {
				log.Printf("Transfer agent on line %s aborted: %v", dep.LineDesignation, err)
				continue
			}

			for _, tp := range plans {
				tp := tp
				arrival := tp.secondDep.Expected.Add(time.Duration(tp.destHops) * p.opts.TransferInterStopAvg)
				candidates = append(candidates, busCandidate{
					originSite: site,
					destSite:   destByID[tp.destSiteID],
					dep:        dep,
					arrival:    arrival,
					transfer:   &tp,
				})
				emitted++
			}
		}
	}

	return candidates
}

// transferSearch carries the per-request caches of the agent walk: the
// departure batches already fetched and the stop-sequence successors.
type transferSearch struct {
	planner    *Planner
	departures map[int64][]models.Departure
	nextStops  map[string]*store.StopNeighbor
}

// runAgent walks one boarding forward and emits up to maxEmit transfer
// plans, capped by the per-agent bound.
func (s *transferSearch) runAgent(ctx context.Context, dep models.Departure, destSiteIDs []int64, maxEmit int) ([]transferPlan, error) {
	p := s.planner
	if maxEmit > maxTransfersPerAgent {
		maxEmit = maxTransfersPerAgent
	}

	var plans []transferPlan
	cur := dep.StopPointID

	for hop := 1; hop <= p.opts.TransferSearchDepth && len(plans) < maxEmit; hop++ {
		next, err := s.nextStop(ctx, dep.LineID, dep.DirectionCode, cur)
		if err != nil {
			return plans, err
		}
		if next == nil {
			break
		}
		cur = next.StopPointID

		estArrival := dep.Expected.Add(time.Duration(hop) * p.opts.TransferInterStopAvg)

		siteDeps, err := s.siteDepartures(ctx, next.SiteID)
		if err != nil {
			return plans, err
		}

		var prev agentKey
		for _, cand := range siteDeps {
			if len(plans) >= maxEmit {
				break
			}
			key := agentKey{stopPointID: cand.StopPointID, directionCode: cand.DirectionCode}
			if key == prev {
				continue
			}
			prev = key

			if cand.LineID == dep.LineID {
				continue
			}
			if cand.Expected.Before(estArrival.Add(p.opts.TransferMargin)) {
				continue
			}

			reachable, err := p.store.ReachableSitesFrom(ctx, cand.LineID, cand.DirectionCode, cand.StopPointID, destSiteIDs, p.opts.DestinationSearchDepth)
			if err != nil {
				return plans, err
			}
			if len(reachable) == 0 {
				continue
			}

			hit := reachable[0]
			plans = append(plans, transferPlan{
				alightStopID:   next.StopPointID,
				transferSiteID: next.SiteID,
				estArrival:     estArrival,
				secondDep:      cand,
				destSiteID:     hit.SiteID,
				destStopID:     hit.StopPointID,
				destHops:       hit.Depth,
			})
		}
	}

	return plans, nil
}

// nextStop resolves the stop-sequence successor with a per-request cache.
func (s *transferSearch) nextStop(ctx context.Context, lineID, directionCode int, stopPointID int64) (*store.StopNeighbor, error) {
	key := fmt.Sprintf("%d:%d:%d", lineID, directionCode, stopPointID)
	if n, ok := s.nextStops[key]; ok {
		return n, nil
	}
	n, err := s.planner.store.NextStop(ctx, lineID, directionCode, stopPointID)
	if err != nil {
		return nil, err
	}
	s.nextStops[key] = n
	return n, nil
}

// siteDepartures serves the transfer site's departures from the batch
// already loaded, fetching and caching a fresh batch for sites outside it.
func (s *transferSearch) siteDepartures(ctx context.Context, siteID int64) ([]models.Departure, error) {
	if deps, ok := s.departures[siteID]; ok {
		return deps, nil
	}
	batch, err := s.planner.feed.GetBatchDepartures(ctx, []int64{siteID}, feed.MaxForecastSeconds)
	if err != nil {
		return nil, err
	}
	s.departures[siteID] = batch[siteID]
	return batch[siteID], nil
}

// assembleTransfer builds the seven-segment transfer route: walk, wait,
// first ride, optional intra-site walk, transfer wait, estimated second
// ride, final walk. The second ride duration is a stop-sequence estimate,
// so the plan is marked approximate.
func (p *Planner) assembleTransfer(ctx context.Context, req PlanRequest, c busCandidate) (*models.RoutePlan, error) {
	t := c.transfer

	boardStop, err := p.store.StopPoint(ctx, c.dep.StopPointID)
	if err != nil {
		return nil, err
	}
	alightStop, err := p.store.StopPoint(ctx, t.alightStopID)
	if err != nil {
		return nil, err
	}
	secondBoardStop, err := p.store.StopPoint(ctx, t.secondDep.StopPointID)
	if err != nil {
		return nil, err
	}
	destStop, err := p.store.StopPoint(ctx, t.destStopID)
	if err != nil {
		return nil, err
	}

	walkIn, err := p.solveWalk(ctx, req.Origin, models.LatLon{Lat: boardStop.Lat, Lon: boardStop.Lon}, req.Month, req.Preference)
	if err != nil {
		return nil, err
	}
	walkOut, err := p.solveWalk(ctx, models.LatLon{Lat: destStop.Lat, Lon: destStop.Lon}, req.Destination, req.Month, req.Preference)
	if err != nil {
		return nil, err
	}

	now := p.now()
	wait1 := c.dep.Expected.Sub(now).Seconds() - walkIn.Duration
	if wait1 < 0 {
		wait1 = 0
	}

	segments := []models.Segment{
		*walkIn,
		{
			Type:              models.SegmentBusWaiting,
			Duration:          wait1,
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
			Duration:        t.estArrival.Sub(c.dep.Expected).Seconds(),
			FromStop:        boardStop,
			ToStop:          alightStop,
			ExpectedArrival: t.estArrival,
			LineID:          c.dep.LineID,
			LineDesignation: c.dep.LineDesignation,
			DirectionCode:   c.dep.DirectionCode,
		},
	}

	intraWalk := 0.0
	if alightStop.ID != secondBoardStop.ID {
		dist := haversineMeters(alightStop.Lat, alightStop.Lon, secondBoardStop.Lat, secondBoardStop.Lon)
		intraWalk = dist / p.opts.WalkingSpeed
		segments = append(segments, models.Segment{
			Type:              models.SegmentWalking,
			Duration:          intraWalk,
			Distance:          dist,
			IntraSiteTransfer: true,
			FromStopPointID:   alightStop.ID,
			ToStopPointID:     secondBoardStop.ID,
			TransferSiteID:    t.transferSiteID,
		})
	}

	wait2 := t.secondDep.Expected.Sub(t.estArrival).Seconds() - intraWalk
	if wait2 < 0 {
		wait2 = 0
	}
	secondArrival := t.secondDep.Expected.Add(time.Duration(t.destHops) * p.opts.TransferInterStopAvg)

	segments = append(segments,
		models.Segment{
			Type:              models.SegmentBusWaiting,
			Duration:          wait2,
			StopPointID:       secondBoardStop.ID,
			StopPointName:     secondBoardStop.Name,
			SiteID:            secondBoardStop.SiteID,
			StopLat:           secondBoardStop.Lat,
			StopLon:           secondBoardStop.Lon,
			ExpectedDeparture: t.secondDep.Expected,
			LineID:            t.secondDep.LineID,
			LineDesignation:   t.secondDep.LineDesignation,
			DirectionCode:     t.secondDep.DirectionCode,
			Transfer: &models.TransferInfo{
				WaitingTime:   wait2,
				FromLine:      c.dep.LineDesignation,
				ToLine:        t.secondDep.LineDesignation,
				IntraSiteWalk: intraWalk > 0,
				Margin:        p.opts.TransferMargin.Seconds(),
			},
		},
		models.Segment{
			Type:            models.SegmentBusRide,
			Duration:        secondArrival.Sub(t.secondDep.Expected).Seconds(),
			FromStop:        secondBoardStop,
			ToStop:          destStop,
			ExpectedArrival: secondArrival,
			LineID:          t.secondDep.LineID,
			LineDesignation: t.secondDep.LineDesignation,
			DirectionCode:   t.secondDep.DirectionCode,
		},
		*walkOut,
	)

	plan := &models.RoutePlan{
		Type:        models.RouteTransferBus,
		Origin:      req.Origin,
		Destination: req.Destination,
		Segments:    segments,
		Month:       req.Month,
		Strategy:    "user",
		Approximate: true,
	}
	p.finishBusPlan(ctx, plan)
	return plan, nil
}

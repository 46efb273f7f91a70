package planner

import (
	"context"
	"log"

	"github.com/greenroute/greenroute_core/internal/models"
)

// enrich reconstructs the geometry and intermediate stops of every bus_ride
// segment of a surviving route. Enrichment is display-only: failures are
// logged and leave the segment bare, they never drop the route.
func (p *Planner) enrich(ctx context.Context, plan *models.RoutePlan) {
	for i := range plan.Segments {
		s := &plan.Segments[i]
		if s.Type != models.SegmentBusRide || s.FromStop == nil || s.ToStop == nil {
			continue
		}

		path, err := p.store.BusPathGeometry(ctx, s.FromStop.Lat, s.FromStop.Lon, s.ToStop.Lat, s.ToStop.Lon)
		if err != nil {
			log.Printf("Bus geometry for line %s failed: %v", s.LineDesignation, err)
		} else {
			s.EdgeIDs = path.EdgeIDs
			s.Geometry = path.Geometry
		}

		stops, err := p.store.StopsAlong(ctx, s.LineID, s.DirectionCode, s.FromStop.ID, s.ToStop.ID, p.opts.StopsAlongDepth)
		if err != nil {
			log.Printf("Intermediate stops for line %s failed: %v", s.LineDesignation, err)
			continue
		}
		s.IntermediateStops = stops
	}
}

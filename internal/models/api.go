package models

import (
	"encoding/json"
	"fmt"
)

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// APISegment is the wire representation of one segment.
type APISegment struct {
	Type              SegmentType     `json:"type"`
	Duration          float64         `json:"duration"`
	Distance          float64         `json:"distance,omitempty"`
	EdgeIDs           []int64         `json:"edge_ids,omitempty"`
	Geometry          json.RawMessage `json:"geometry,omitempty"`
	IntraSiteTransfer bool            `json:"intra_site_transfer,omitempty"`
	StopPointID       int64           `json:"stop_point_id,omitempty"`
	StopPointName     string          `json:"stop_point_name,omitempty"`
	SiteID            int64           `json:"site_id,omitempty"`
	Line              string          `json:"line,omitempty"`
	DirectionCode     int             `json:"direction_code,omitempty"`
	ExpectedDeparture string          `json:"expected_departure,omitempty"`
	ExpectedArrival   string          `json:"expected_arrival,omitempty"`
	FromStop          *StopPoint      `json:"from_stop,omitempty"`
	ToStop            *StopPoint      `json:"to_stop,omitempty"`
	IntermediateStops []StopPoint     `json:"intermediate_stops,omitempty"`
	Transfer          *TransferInfo   `json:"transfer,omitempty"`
}

// APIRoute is the wire representation of a RoutePlan.
type APIRoute struct {
	RouteID         string            `json:"route_id"`
	RouteType       RouteType         `json:"route_type"`
	TotalDuration   float64           `json:"total_duration"`
	DurationScore   float64           `json:"duration_score"`
	AcDGVIScore     float64           `json:"acdgvi_score"`
	TotalAcDGVI     float64           `json:"total_acdgvi"`
	TotalScore      float64           `json:"total_score"`
	GVIDataMonth    string            `json:"gvi_data_month"`
	Summary         string            `json:"summary"`
	Instructions    []string          `json:"instructions"`
	TimingDetails   []string          `json:"timing_details"`
	TransferSummary *TransferInfo     `json:"transfer_summary"`
	Approximate     bool              `json:"approximate,omitempty"`
	GeoJSON         FeatureCollection `json:"geojson"`
	Segments        []APISegment      `json:"segments"`
}

// ToAPI flattens the plan into the response surface consumed by the web layer.
func (r *RoutePlan) ToAPI() APIRoute {
	out := APIRoute{
		RouteID:       r.RouteID,
		RouteType:     r.Type,
		TotalDuration: r.TotalDuration,
		DurationScore: r.DurationScore,
		AcDGVIScore:   r.AcDGVIScore,
		TotalAcDGVI:   r.TotalAcDGVI,
		TotalScore:    r.TotalScore,
		GVIDataMonth:  r.Month,
		Summary:       r.summary(),
		Instructions:  []string{},
		TimingDetails: []string{},
		Approximate:   r.Approximate,
		GeoJSON:       r.geoJSON(),
		Segments:      []APISegment{},
	}

	for _, s := range r.Segments {
		out.Segments = append(out.Segments, toAPISegment(s))
		out.Instructions = append(out.Instructions, s.instruction())
		out.TimingDetails = append(out.TimingDetails, s.timing())

		if s.Type == SegmentBusWaiting && s.Transfer != nil {
			out.TransferSummary = s.Transfer
		}
	}

	return out
}

func toAPISegment(s Segment) APISegment {
	api := APISegment{
		Type:     s.Type,
		Duration: s.Duration,
	}

	switch s.Type {
	case SegmentWalking:
		api.Distance = s.Distance
		api.EdgeIDs = s.EdgeIDs
		api.Geometry = s.Geometry
		api.IntraSiteTransfer = s.IntraSiteTransfer
		if s.IntraSiteTransfer {
			api.SiteID = s.TransferSiteID
		}
	case SegmentBusWaiting:
		api.StopPointID = s.StopPointID
		api.StopPointName = s.StopPointName
		api.SiteID = s.SiteID
		api.Line = s.LineDesignation
		api.DirectionCode = s.DirectionCode
		api.ExpectedDeparture = s.ExpectedDeparture.Format("2006-01-02T15:04:05")
		api.Transfer = s.Transfer
	case SegmentBusRide:
		api.Line = s.LineDesignation
		api.DirectionCode = s.DirectionCode
		api.FromStop = s.FromStop
		api.ToStop = s.ToStop
		api.EdgeIDs = s.EdgeIDs
		api.Geometry = s.Geometry
		api.IntermediateStops = s.IntermediateStops
		api.ExpectedDeparture = s.ExpectedDeparture.Format("2006-01-02T15:04:05")
		api.ExpectedArrival = s.ExpectedArrival.Format("2006-01-02T15:04:05")
	}

	return api
}

func (r *RoutePlan) summary() string {
	mins := int(r.TotalDuration/60 + 0.5)
	switch r.Type {
	case RouteWalking:
		return fmt.Sprintf("Walking route (%d min)", mins)
	case RouteDirectBus:
		for _, s := range r.Segments {
			if s.Type == SegmentBusRide {
				return fmt.Sprintf("Bus %s, %d min total", s.LineDesignation, mins)
			}
		}
	case RouteTransferBus:
		rides := r.Rides()
		if len(rides) == 2 {
			return fmt.Sprintf("Bus %s then bus %s, %d min total",
				rides[0].LineDesignation, rides[1].LineDesignation, mins)
		}
	}
	return fmt.Sprintf("Route (%d min)", mins)
}

func (s Segment) instruction() string {
	switch s.Type {
	case SegmentWalking:
		if s.IntraSiteTransfer {
			return fmt.Sprintf("Walk to the connecting stop within the site (%d s)", int(s.Duration))
		}
		return fmt.Sprintf("Walk %.0f m (%d min)", s.Distance, int(s.Duration/60+0.5))
	case SegmentBusWaiting:
		return fmt.Sprintf("Wait at %s for bus %s", s.StopPointName, s.LineDesignation)
	case SegmentBusRide:
		from, to := "?", "?"
		if s.FromStop != nil {
			from = s.FromStop.Name
		}
		if s.ToStop != nil {
			to = s.ToStop.Name
		}
		return fmt.Sprintf("Ride bus %s from %s to %s", s.LineDesignation, from, to)
	}
	return ""
}

func (s Segment) timing() string {
	switch s.Type {
	case SegmentBusWaiting:
		return fmt.Sprintf("%s: %.0f s until departure at %s",
			s.Type, s.Duration, s.ExpectedDeparture.Format("15:04"))
	case SegmentBusRide:
		return fmt.Sprintf("%s: %.0f s, arriving %s",
			s.Type, s.Duration, s.ExpectedArrival.Format("15:04"))
	default:
		return fmt.Sprintf("%s: %.0f s", s.Type, s.Duration)
	}
}

// geoJSON assembles one feature per segment: line geometries where they were
// reconstructed, a point feature for each waiting stop.
func (r *RoutePlan) geoJSON() FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}

	for i, s := range r.Segments {
		props := map[string]interface{}{
			"segment_index": i,
			"segment_type":  string(s.Type),
			"duration":      s.Duration,
		}

		var geom json.RawMessage
		switch s.Type {
		case SegmentWalking, SegmentBusRide:
			if len(s.Geometry) == 0 {
				continue
			}
			geom = s.Geometry
			if s.LineDesignation != "" {
				props["line"] = s.LineDesignation
			}
		case SegmentBusWaiting:
			geom = PointGeometry(s.StopLat, s.StopLon)
			props["stop_point_name"] = s.StopPointName
			props["line"] = s.LineDesignation
		}

		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   geom,
			Properties: props,
		})
	}

	return fc
}

// PointGeometry encodes a GeoJSON Point in lon/lat order.
func PointGeometry(lat, lon float64) json.RawMessage {
	b, _ := json.Marshal(map[string]interface{}{
		"type":        "Point",
		"coordinates": []float64{lon, lat},
	})
	return b
}

package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// RouteType classifies a route plan.
type RouteType string

const (
	RouteWalking     RouteType = "walking"
	RouteDirectBus   RouteType = "direct_bus"
	RouteTransferBus RouteType = "transfer_bus"
)

// SegmentType classifies one leg of a route plan.
type SegmentType string

const (
	SegmentWalking    SegmentType = "walking"
	SegmentBusWaiting SegmentType = "bus_waiting"
	SegmentBusRide    SegmentType = "bus_ride"
)

// TransferInfo annotates the waiting segment at a transfer site.
type TransferInfo struct {
	WaitingTime   float64 `json:"waiting_time"`
	FromLine      string  `json:"from_line"`
	ToLine        string  `json:"to_line"`
	IntraSiteWalk bool    `json:"intra_site_walk"`
	Margin        float64 `json:"margin"`
}

// Segment is one leg of a route plan, tagged by Type. Only the fields of
// the matching variant are populated.
type Segment struct {
	Type     SegmentType
	Duration float64 // seconds

	// walking variant
	Distance          float64
	EdgeIDs           []int64
	Geometry          json.RawMessage // GeoJSON LineString
	IntraSiteTransfer bool
	FromStopPointID   int64
	ToStopPointID     int64
	TransferSiteID    int64

	// bus_waiting variant
	StopPointID       int64
	StopPointName     string
	SiteID            int64
	StopLat           float64
	StopLon           float64
	ExpectedDeparture time.Time
	Transfer          *TransferInfo

	// shared line fields (bus_waiting and bus_ride)
	LineID          int
	LineDesignation string
	DirectionCode   int

	// bus_ride variant
	FromStop          *StopPoint
	ToStop            *StopPoint
	ExpectedArrival   time.Time
	IntermediateStops []StopPoint
}

// RoutePlan is a complete scored journey candidate.
type RoutePlan struct {
	RouteID     string
	Type        RouteType
	Origin      LatLon
	Destination LatLon
	Segments    []Segment

	TotalDuration float64 // seconds
	TotalAcDGVI   float64
	DurationScore float64
	AcDGVIScore   float64
	TotalScore    float64

	Month    string
	Strategy string

	// Approximate marks transfer routes whose second ride duration is a
	// stop-sequence estimate rather than a feed-confirmed time.
	Approximate bool
}

// Rides returns the bus_ride segments in order.
func (r *RoutePlan) Rides() []Segment {
	var rides []Segment
	for _, s := range r.Segments {
		if s.Type == SegmentBusRide {
			rides = append(rides, s)
		}
	}
	return rides
}

// Validate checks the segment-sequence invariants:
//   - a bus_waiting is immediately followed by a bus_ride starting at the
//     same stop point with consistent line and direction
//   - two consecutive walking segments require one to be an intra-site transfer
//   - direct_bus routes hold exactly one ride, transfer_bus exactly two,
//     walking routes none
//   - segment durations sum to the route total within one second
func (r *RoutePlan) Validate() error {
	rideCount := 0
	var sum float64

	for i, s := range r.Segments {
		sum += s.Duration

		switch s.Type {
		case SegmentBusRide:
			rideCount++
		case SegmentBusWaiting:
			if i+1 >= len(r.Segments) {
				return fmt.Errorf("segment %d: bus_waiting is the last segment", i)
			}
			next := r.Segments[i+1]
			if next.Type != SegmentBusRide {
				return fmt.Errorf("segment %d: bus_waiting not followed by bus_ride", i)
			}
			if next.FromStop == nil || next.FromStop.ID != s.StopPointID {
				return fmt.Errorf("segment %d: ride does not start at waiting stop point", i)
			}
			if next.LineID != s.LineID || next.DirectionCode != s.DirectionCode {
				return fmt.Errorf("segment %d: ride line/direction mismatch", i)
			}
		case SegmentWalking:
			if i > 0 && r.Segments[i-1].Type == SegmentWalking {
				if !s.IntraSiteTransfer && !r.Segments[i-1].IntraSiteTransfer {
					return fmt.Errorf("segment %d: consecutive plain walking segments", i)
				}
			}
		default:
			return fmt.Errorf("segment %d: unknown type %q", i, s.Type)
		}
	}

	want := map[RouteType]int{RouteWalking: 0, RouteDirectBus: 1, RouteTransferBus: 2}
	if n, ok := want[r.Type]; !ok {
		return fmt.Errorf("unknown route type %q", r.Type)
	} else if rideCount != n {
		return fmt.Errorf("%s route has %d bus_ride segments, want %d", r.Type, rideCount, n)
	}

	if math.Abs(sum-r.TotalDuration) > 1.0 {
		return fmt.Errorf("segment durations sum to %.1fs, route total is %.1fs", sum, r.TotalDuration)
	}

	return nil
}

// Fingerprint identifies a walking route by its edge set, ignoring order.
func (r *RoutePlan) Fingerprint() string {
	var ids []int64
	for _, s := range r.Segments {
		if s.Type == SegmentWalking {
			ids = append(ids, s.EdgeIDs...)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%d,", id)...)
	}
	return string(out)
}

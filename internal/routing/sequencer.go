// Package routing orders a driver's remaining stops and picks the next one.
package routing

import (
	"math"
	"sort"

	"medwaste-backend/internal/geo"
)

// MaxProviderStops is the number of stops (intermediate waypoints plus the
// destination) an external routing provider accepts in one request
const MaxProviderStops = 8

// Strategy names how a route order was produced
type Strategy string

const (
	StrategyExternal     Strategy = "external"
	StrategyProximity    Strategy = "proximity"
	StrategySessionOrder Strategy = "session_order"
)

// Stop is an unvisited container the driver still has to reach
type Stop struct {
	ContainerID string     `json:"container_id"`
	Label       string     `json:"label"`
	Location    *geo.Point `json:"location,omitempty"`
}

// RankedStop is a stop with its position in the computed order
type RankedStop struct {
	Stop
	Rank int `json:"rank"`
	// DistanceMeters is the straight-line distance from the driver, when known
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// Route is the computed visiting order
type Route struct {
	Stops    []RankedStop `json:"stops"`
	Next     *Stop        `json:"next_stop"`
	Strategy Strategy     `json:"strategy"`

	// Set only when an external provider answered
	Polyline string `json:"polyline,omitempty"`
	Legs     []Leg  `json:"legs,omitempty"`
}

// Sequence orders unvisited stops.
//
// With an external order the optimized stops come first and everything the
// provider did not see keeps input order after them. Without one, a known
// position sorts stops by haversine distance, and otherwise input order is
// kept. Inputs are never mutated.
func Sequence(pos *geo.Point, unvisited []Stop, external []string) Route {
	stops := make([]Stop, len(unvisited))
	copy(stops, unvisited)

	if len(stops) == 0 {
		return Route{Stops: []RankedStop{}, Strategy: strategyFor(pos, external)}
	}

	if ordered, ok := applyExternalOrder(stops, external); ok {
		return rank(ordered, pos, StrategyExternal)
	}

	if pos != nil {
		return rank(sortByDistance(*pos, stops), pos, StrategyProximity)
	}

	return rank(stops, nil, StrategySessionOrder)
}

func strategyFor(pos *geo.Point, external []string) Strategy {
	switch {
	case len(external) > 0:
		return StrategyExternal
	case pos != nil:
		return StrategyProximity
	}
	return StrategySessionOrder
}

// applyExternalOrder puts stops named in external first, in that order.
// IDs not in the pool (already visited, unknown) are skipped.
func applyExternalOrder(stops []Stop, external []string) ([]Stop, bool) {
	if len(external) == 0 {
		return nil, false
	}

	byID := make(map[string]int, len(stops))
	for i, s := range stops {
		byID[s.ContainerID] = i
	}

	used := make([]bool, len(stops))
	ordered := make([]Stop, 0, len(stops))
	for _, id := range external {
		i, ok := byID[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		ordered = append(ordered, stops[i])
	}

	if len(ordered) == 0 {
		return nil, false
	}

	for i, s := range stops {
		if !used[i] {
			ordered = append(ordered, s)
		}
	}
	return ordered, true
}

// sortByDistance sorts located stops nearest first; stops without
// coordinates go last. Ties keep input order.
func sortByDistance(pos geo.Point, stops []Stop) []Stop {
	dist := make(map[string]float64, len(stops))
	for _, s := range stops {
		if s.Location != nil {
			dist[s.ContainerID] = geo.Distance(pos, *s.Location)
		} else {
			dist[s.ContainerID] = math.Inf(1)
		}
	}

	sort.SliceStable(stops, func(i, j int) bool {
		return dist[stops[i].ContainerID] < dist[stops[j].ContainerID]
	})
	return stops
}

func rank(stops []Stop, pos *geo.Point, strategy Strategy) Route {
	ranked := make([]RankedStop, len(stops))
	for i, s := range stops {
		ranked[i] = RankedStop{Stop: s, Rank: i + 1}
		if pos != nil && s.Location != nil {
			d := geo.Distance(*pos, *s.Location)
			ranked[i].DistanceMeters = &d
		}
	}

	route := Route{Stops: ranked, Strategy: strategy}
	if len(stops) > 0 {
		next := stops[0]
		route.Next = &next
	}
	return route
}

// ProviderPrefix returns the stops an external provider should optimize:
// the first MaxProviderStops located stops, in input order
func ProviderPrefix(unvisited []Stop) []Stop {
	prefix := make([]Stop, 0, MaxProviderStops)
	for _, s := range unvisited {
		if s.Location == nil {
			continue
		}
		prefix = append(prefix, s)
		if len(prefix) == MaxProviderStops {
			break
		}
	}
	return prefix
}

// PlanInitialOrder chains stops greedily, always visiting the closest
// remaining stop next. Stops without coordinates keep input order at the end.
func PlanInitialOrder(start geo.Point, stops []Stop) []Stop {
	remaining := make([]Stop, 0, len(stops))
	unlocated := make([]Stop, 0)
	for _, s := range stops {
		if s.Location == nil {
			unlocated = append(unlocated, s)
			continue
		}
		remaining = append(remaining, s)
	}

	ordered := make([]Stop, 0, len(stops))
	current := start

	for len(remaining) > 0 {
		bestIdx := 0
		bestDistance := math.MaxFloat64

		for i, s := range remaining {
			d := geo.Distance(current, *s.Location)
			// strict < keeps the earliest stop on ties
			if d < bestDistance {
				bestDistance = d
				bestIdx = i
			}
		}

		best := remaining[bestIdx]
		ordered = append(ordered, best)
		current = *best.Location
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return append(ordered, unlocated...)
}

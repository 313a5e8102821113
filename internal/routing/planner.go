package routing

import (
	"context"
	"fmt"
	"log"
	"time"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/geo"
)

// DirectionsRequest asks a provider for a route through at most
// MaxProviderStops-1 intermediate waypoints
type DirectionsRequest struct {
	Origin      geo.Point
	Destination geo.Point
	Waypoints   []geo.Point
	Optimize    bool
}

// Leg is one segment of a provider route
type Leg struct {
	DistanceMeters  int `json:"distance_meters"`
	DurationSeconds int `json:"duration_seconds"`
}

// Directions is a provider answer. WaypointOrder is a permutation of the
// request's waypoint indexes.
type Directions struct {
	Polyline      string `json:"polyline"`
	Legs          []Leg  `json:"legs"`
	WaypointOrder []int  `json:"waypoint_order"`
}

// Provider is an external routing service
type Provider interface {
	Directions(ctx context.Context, req DirectionsRequest) (*Directions, error)
}

// Planner combines an optional external provider with the local fallback.
// A nil provider always uses the fallback.
type Planner struct {
	provider Provider
	timeout  time.Duration
}

// NewPlanner creates a planner. timeout bounds each provider call.
func NewPlanner(provider Provider, timeout time.Duration) *Planner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Planner{provider: provider, timeout: timeout}
}

// Plan computes the visiting order. It never fails: provider errors are
// logged and the proximity or session order fallback is used instead.
func (p *Planner) Plan(ctx context.Context, pos *geo.Point, unvisited []Stop) Route {
	external, dirs, err := p.externalOrder(ctx, pos, unvisited)
	if err != nil {
		log.Printf("⚠️  [ROUTING] %v - falling back to local ordering", err)
	}

	route := Sequence(pos, unvisited, external)
	if dirs != nil && route.Strategy == StrategyExternal {
		route.Polyline = dirs.Polyline
		route.Legs = dirs.Legs
	}
	return route
}

func (p *Planner) externalOrder(ctx context.Context, pos *geo.Point, unvisited []Stop) ([]string, *Directions, error) {
	if p == nil || p.provider == nil || pos == nil {
		return nil, nil, nil
	}

	prefix := ProviderPrefix(unvisited)
	if len(prefix) == 0 {
		return nil, nil, nil
	}

	destination := prefix[len(prefix)-1]
	waypoints := prefix[:len(prefix)-1]

	req := DirectionsRequest{
		Origin:      *pos,
		Destination: *destination.Location,
		Waypoints:   make([]geo.Point, len(waypoints)),
		Optimize:    true,
	}
	for i, w := range waypoints {
		req.Waypoints[i] = *w.Location
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	dirs, err := p.provider.Directions(callCtx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperr.ErrExternalProviderUnavailable, err)
	}
	if dirs == nil {
		return nil, nil, fmt.Errorf("%w: empty response", apperr.ErrExternalProviderUnavailable)
	}
	if !isPermutation(dirs.WaypointOrder, len(waypoints)) {
		return nil, nil, fmt.Errorf("%w: waypoint order %v is not a permutation of %d waypoints",
			apperr.ErrExternalProviderUnavailable, dirs.WaypointOrder, len(waypoints))
	}

	order := make([]string, 0, len(prefix))
	for _, idx := range dirs.WaypointOrder {
		order = append(order, waypoints[idx].ContainerID)
	}
	order = append(order, destination.ContainerID)

	return order, dirs, nil
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

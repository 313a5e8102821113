package routing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	lastReq  DirectionsRequest
	response *Directions
	err      error
	delay    time.Duration
}

func (f *fakeProvider) Directions(ctx context.Context, req DirectionsRequest) (*Directions, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.response, f.err
}

func TestPlannerUsesProviderOrder(t *testing.T) {
	provider := &fakeProvider{response: &Directions{
		Polyline:      "abc",
		Legs:          []Leg{{DistanceMeters: 100, DurationSeconds: 10}},
		WaypointOrder: []int{1, 0},
	}}
	planner := NewPlanner(provider, time.Second)

	// C is the destination, A and B are waypoints reordered to B, A
	stops := []Stop{
		{ContainerID: "A", Location: pt(0, 0)},
		{ContainerID: "B", Location: pt(0, 0.01)},
		{ContainerID: "C", Location: pt(0, 0.02)},
	}
	route := planner.Plan(context.Background(), pt(0, 0), stops)

	if route.Strategy != StrategyExternal {
		t.Fatalf("strategy = %s, want external", route.Strategy)
	}
	if got, want := ids(route.Stops), []string{"B", "A", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Polyline != "abc" || len(route.Legs) != 1 {
		t.Fatalf("expected provider polyline and legs, got %q %v", route.Polyline, route.Legs)
	}
	if len(provider.lastReq.Waypoints) != 2 || !provider.lastReq.Optimize {
		t.Fatalf("unexpected request: %+v", provider.lastReq)
	}
}

func TestPlannerCapsWaypoints(t *testing.T) {
	provider := &fakeProvider{response: &Directions{WaypointOrder: []int{0, 1, 2, 3, 4, 5, 6}}}
	planner := NewPlanner(provider, time.Second)

	var stops []Stop
	for i := 0; i < 12; i++ {
		stops = append(stops, Stop{ContainerID: fmt.Sprintf("S%d", i), Location: pt(0, float64(i)*0.01)})
	}

	route := planner.Plan(context.Background(), pt(0, 0), stops)
	if len(provider.lastReq.Waypoints) != MaxProviderStops-1 {
		t.Fatalf("waypoints = %d, want %d", len(provider.lastReq.Waypoints), MaxProviderStops-1)
	}
	if len(route.Stops) != 12 {
		t.Fatalf("stops = %d, want 12", len(route.Stops))
	}
	if route.Stops[8].ContainerID != "S8" || route.Stops[11].ContainerID != "S11" {
		t.Fatalf("tail not in input order: %v", ids(route.Stops))
	}
}

func TestPlannerFallsBackOnProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	planner := NewPlanner(provider, time.Second)

	route := planner.Plan(context.Background(), pt(0, 0), abcStops())
	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
	if route.Next.ContainerID != "A" {
		t.Fatalf("next = %s, want A", route.Next.ContainerID)
	}
}

func TestPlannerFallsBackOnTimeout(t *testing.T) {
	provider := &fakeProvider{delay: time.Second, response: &Directions{WaypointOrder: []int{0, 1}}}
	planner := NewPlanner(provider, 20*time.Millisecond)

	route := planner.Plan(context.Background(), pt(0, 0), abcStops())
	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
}

func TestPlannerRejectsBadPermutation(t *testing.T) {
	provider := &fakeProvider{response: &Directions{WaypointOrder: []int{0, 0}}}
	planner := NewPlanner(provider, time.Second)

	route := planner.Plan(context.Background(), pt(0, 0), abcStops())
	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
}

func TestPlannerSkipsProviderWithoutPosition(t *testing.T) {
	provider := &fakeProvider{response: &Directions{}}
	planner := NewPlanner(provider, time.Second)

	route := planner.Plan(context.Background(), nil, abcStops())
	if provider.calls != 0 {
		t.Fatalf("provider called %d times, want 0", provider.calls)
	}
	if route.Strategy != StrategySessionOrder {
		t.Fatalf("strategy = %s, want session_order", route.Strategy)
	}
}

func TestNilProviderPlanner(t *testing.T) {
	planner := NewPlanner(nil, 0)
	route := planner.Plan(context.Background(), pt(0, 0), abcStops())
	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
}

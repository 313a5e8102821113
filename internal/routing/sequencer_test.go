package routing

import (
	"fmt"
	"reflect"
	"testing"

	"medwaste-backend/internal/geo"
)

func pt(lat, lng float64) *geo.Point {
	return &geo.Point{Lat: lat, Lng: lng}
}

func ids(stops []RankedStop) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = s.ContainerID
	}
	return out
}

func abcStops() []Stop {
	return []Stop{
		{ContainerID: "C", Location: pt(0, 0.02)},
		{ContainerID: "A", Location: pt(0, 0)},
		{ContainerID: "B", Location: pt(0, 0.01)},
	}
}

func TestSequenceProximityFallback(t *testing.T) {
	route := Sequence(pt(0, 0), abcStops(), nil)

	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
	if got, want := ids(route.Stops), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Next == nil || route.Next.ContainerID != "A" {
		t.Fatalf("next = %+v, want A", route.Next)
	}
}

func TestSequenceNextStopAfterVisit(t *testing.T) {
	stops := abcStops()

	// A visited: it leaves the unvisited pool
	var unvisited []Stop
	for _, s := range stops {
		if s.ContainerID != "A" {
			unvisited = append(unvisited, s)
		}
	}

	route := Sequence(pt(0, 0), unvisited, nil)
	if route.Next == nil || route.Next.ContainerID != "B" {
		t.Fatalf("next = %+v, want B", route.Next)
	}
}

func TestSequenceSessionOrderWithoutPosition(t *testing.T) {
	route := Sequence(nil, abcStops(), nil)

	if route.Strategy != StrategySessionOrder {
		t.Fatalf("strategy = %s, want session_order", route.Strategy)
	}
	if got, want := ids(route.Stops), []string{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Next.ContainerID != "C" {
		t.Fatalf("next = %s, want C", route.Next.ContainerID)
	}
}

func TestSequenceExternalOrderWinsAndTailKeepsInputOrder(t *testing.T) {
	var stops []Stop
	for i := 0; i < 10; i++ {
		stops = append(stops, Stop{ContainerID: fmt.Sprintf("S%d", i), Location: pt(0, float64(i)*0.01)})
	}

	external := []string{"S3", "S1", "S0", "S2", "S7", "S5", "S4", "S6"}
	route := Sequence(pt(0, 0), stops, external)

	if route.Strategy != StrategyExternal {
		t.Fatalf("strategy = %s, want external", route.Strategy)
	}
	want := append(append([]string{}, external...), "S8", "S9")
	if got := ids(route.Stops); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Next.ContainerID != "S3" {
		t.Fatalf("next = %s, want S3", route.Next.ContainerID)
	}
}

func TestSequenceExternalOrderSkipsVisitedIDs(t *testing.T) {
	route := Sequence(pt(0, 0), abcStops(), []string{"X", "B", "B", "C"})

	if got, want := ids(route.Stops), []string{"B", "C", "A"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestSequenceExternalOrderWithNoKnownIDsFallsBack(t *testing.T) {
	route := Sequence(pt(0, 0), abcStops(), []string{"gone"})
	if route.Strategy != StrategyProximity {
		t.Fatalf("strategy = %s, want proximity", route.Strategy)
	}
}

func TestSequenceUnlocatedStopsSortLast(t *testing.T) {
	stops := []Stop{
		{ContainerID: "nowhere-1"},
		{ContainerID: "far", Location: pt(0, 1)},
		{ContainerID: "nowhere-2"},
		{ContainerID: "near", Location: pt(0, 0.001)},
	}

	route := Sequence(pt(0, 0), stops, nil)
	if got, want := ids(route.Stops), []string{"near", "far", "nowhere-1", "nowhere-2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if route.Stops[2].DistanceMeters != nil {
		t.Fatal("unlocated stop should have no distance")
	}
}

func TestSequenceTiesKeepInputOrder(t *testing.T) {
	stops := []Stop{
		{ContainerID: "first", Location: pt(0, 0.01)},
		{ContainerID: "second", Location: pt(0, -0.01)},
	}
	route := Sequence(pt(0, 0), stops, nil)
	if route.Next.ContainerID != "first" {
		t.Fatalf("next = %s, want first", route.Next.ContainerID)
	}
}

func TestSequenceEmptyPool(t *testing.T) {
	route := Sequence(pt(0, 0), nil, nil)
	if route.Next != nil {
		t.Fatalf("next = %+v, want nil", route.Next)
	}
	if len(route.Stops) != 0 {
		t.Fatalf("stops = %v, want empty", route.Stops)
	}
}

func TestSequenceDoesNotMutateInput(t *testing.T) {
	stops := abcStops()
	before := append([]Stop(nil), stops...)

	Sequence(pt(0, 0), stops, nil)
	Sequence(pt(0, 0), stops, []string{"B"})

	if !reflect.DeepEqual(stops, before) {
		t.Fatalf("input mutated: %v", stops)
	}
}

func TestSequenceIsRepeatable(t *testing.T) {
	first := Sequence(pt(0, 0.015), abcStops(), nil)
	for i := 0; i < 5; i++ {
		again := Sequence(pt(0, 0.015), abcStops(), nil)
		if !reflect.DeepEqual(ids(first.Stops), ids(again.Stops)) {
			t.Fatalf("run %d order = %v, want %v", i, ids(again.Stops), ids(first.Stops))
		}
	}
}

func TestProviderPrefixCapsAndSkipsUnlocated(t *testing.T) {
	var stops []Stop
	stops = append(stops, Stop{ContainerID: "unlocated"})
	for i := 0; i < 12; i++ {
		stops = append(stops, Stop{ContainerID: fmt.Sprintf("S%d", i), Location: pt(0, float64(i))})
	}

	prefix := ProviderPrefix(stops)
	if len(prefix) != MaxProviderStops {
		t.Fatalf("prefix len = %d, want %d", len(prefix), MaxProviderStops)
	}
	if prefix[0].ContainerID != "S0" || prefix[7].ContainerID != "S7" {
		t.Fatalf("prefix = %v", prefix)
	}
}

func TestPlanInitialOrderChainsNearestNeighbour(t *testing.T) {
	stops := []Stop{
		{ContainerID: "far", Location: pt(0, 0.05)},
		{ContainerID: "mid", Location: pt(0, 0.03)},
		{ContainerID: "none"},
		{ContainerID: "near", Location: pt(0, 0.01)},
	}

	got := PlanInitialOrder(geo.Point{Lat: 0, Lng: 0}, stops)
	var order []string
	for _, s := range got {
		order = append(order, s.ContainerID)
	}
	if want := []string{"near", "mid", "far", "none"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if stops[0].ContainerID != "far" {
		t.Fatal("input slice was reordered")
	}
}

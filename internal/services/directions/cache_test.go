package directions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"medwaste-backend/internal/geo"
	"medwaste-backend/internal/routing"
)

func sampleDirections() *routing.Directions {
	return &routing.Directions{
		Polyline:      "abc",
		Legs:          []routing.Leg{{DistanceMeters: 10, DurationSeconds: 2}},
		WaypointOrder: []int{0},
	}
}

func TestSignatureIgnoresJitter(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()
	b.Origin.Lat += 0.00001
	if Signature(a) != Signature(b) {
		t.Fatal("sub-metre jitter changed the signature")
	}

	c := sampleRequest()
	c.Waypoints = []geo.Point{c.Waypoints[1], c.Waypoints[0]}
	if Signature(a) == Signature(c) {
		t.Fatal("waypoint order must change the signature")
	}
}

func TestMemoryCacheTTLAndStats(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)
	defer c.Close()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("empty cache hit")
	}
	if err := c.Set(ctx, "k", sampleDirections()); err != nil {
		t.Fatal(err)
	}
	d, ok, _ := c.Get(ctx, "k")
	if !ok || d.Polyline != "abc" {
		t.Fatalf("Get = %+v, %v", d, ok)
	}
	d.Legs[0].DistanceMeters = 999
	again, _, _ := c.Get(ctx, "k")
	if again.Legs[0].DistanceMeters != 10 {
		t.Fatal("cached value aliased by caller")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry returned")
	}

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 2 || s.Evictions != 1 || s.Size != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Hour)
	defer c.Close()

	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", sampleDirections())
	now = now.Add(time.Second)
	c.Set(ctx, "b", sampleDirections())
	now = now.Add(time.Second)
	c.Get(ctx, "a")
	now = now.Add(time.Second)
	c.Set(ctx, "c", sampleDirections())

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Fatal("least recently used entry survived")
	}
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("recently used entry evicted")
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	c := NewRedisCache(rdb, time.Minute)

	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty cache = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "k", sampleDirections()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("directions:k") {
		t.Fatal("value not stored under directions: prefix")
	}

	d, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || d.Polyline != "abc" || d.WaypointOrder[0] != 0 {
		t.Fatalf("Get = %+v, %v, %v", d, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expired value returned")
	}
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.Directions, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return sampleDirections(), nil
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{}
	cache := NewMemoryCache(10, time.Hour)
	defer cache.Close()
	p := NewCachedProvider(inner, cache)

	for i := 0; i < 3; i++ {
		if _, err := p.Directions(ctx, sampleRequest()); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", inner.calls)
	}

	other := sampleRequest()
	other.Destination.Lat += 1
	p.Directions(ctx, other)
	if inner.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", inner.calls)
	}
}

func TestCachedProviderSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	inner := &countingProvider{}
	p := NewCachedProvider(inner, NewRedisCache(rdb, time.Minute))

	mr.Close()

	d, err := p.Directions(ctx, sampleRequest())
	if err != nil || d == nil {
		t.Fatalf("Directions = %v, %v", d, err)
	}
	if inner.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", inner.calls)
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{err: errors.New("quota exceeded")}
	cache := NewMemoryCache(10, time.Hour)
	defer cache.Close()
	p := NewCachedProvider(inner, cache)

	p.Directions(ctx, sampleRequest())
	p.Directions(ctx, sampleRequest())
	if inner.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", inner.calls)
	}
	if cache.Stats().Size != 0 {
		t.Fatal("error cached")
	}
}

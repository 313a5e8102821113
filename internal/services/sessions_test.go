package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/geo"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/routing"
)

func containerOrder(sess *models.CollectionSession) []string {
	ids := make([]string, len(sess.Containers))
	for i, c := range sess.Containers {
		ids[i] = c.ContainerID
	}
	return ids
}

// closeHookStore runs beforeClose right before the session lock is taken
type closeHookStore struct {
	Store
	beforeClose func()
}

func (s *closeHookStore) CloseSession(ctx context.Context, id string, fn func(*models.CollectionSession, []*models.Handoff) error) (*models.CollectionSession, error) {
	if s.beforeClose != nil {
		s.beforeClose()
	}
	return s.Store.CloseSession(ctx, id, fn)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)

	sess, err := f.sessions.Start(f.ctx, f.driver, []string{"Z", "X", "Y"}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.Status != models.SessionStatusActive || sess.DriverID != "d1" {
		t.Fatalf("session = %+v", sess)
	}
	if got := containerOrder(sess); !equalIDs(got, []string{"Z", "X", "Y"}) {
		t.Fatalf("order = %v, want input order", got)
	}

	if _, err := f.sessions.Start(f.ctx, f.driver, []string{"X"}, nil); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second active session err = %v, want conflict", err)
	}

	active, err := f.sessions.Active(f.ctx, "d1")
	if err != nil || active.ID != sess.ID {
		t.Fatalf("Active = %v, %v", active, err)
	}
	if _, err := f.sessions.Active(f.ctx, "d2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("no active session err = %v, want not found", err)
	}
}

func TestStartSessionValidation(t *testing.T) {
	f := newFixture(t)

	if _, err := f.sessions.Start(f.ctx, f.driver, []string{"X", "X"}, nil); apperr.Field(err) != "container_ids" {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := f.sessions.Start(f.ctx, f.driver, []string{"nope"}, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown container err = %v", err)
	}
	if _, err := f.sessions.Start(f.ctx, f.driver, nil, &geo.Point{Lat: 91}); apperr.Field(err) != "start_location" {
		t.Fatalf("bad start err = %v", err)
	}
}

func TestStartWithLocationOrdersNearestFirst(t *testing.T) {
	f := newFixture(t)

	sess, err := f.sessions.Start(f.ctx, f.driver, nil, &geo.Point{Lat: 0, Lng: 0.025})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := containerOrder(sess); !equalIDs(got, []string{"Z", "Y", "X"}) {
		t.Fatalf("order = %v, want [Z Y X]", got)
	}
	for i, c := range sess.Containers {
		if c.SequenceOrder != i {
			t.Fatalf("sequence order of %s = %d, want %d", c.ContainerID, c.SequenceOrder, i)
		}
	}
	if sess.StartLatitude == nil || *sess.StartLongitude != 0.025 {
		t.Fatal("start location not recorded")
	}
}

func TestMarkVisited(t *testing.T) {
	f := newFixture(t)
	sess := f.startVisited(t, []string{"X", "Y"}, nil)

	if _, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "X", ptr(-1.0)); apperr.Field(err) != "collected_weight" {
		t.Fatalf("negative weight err = %v", err)
	}

	got, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "X", ptr(12.0))
	if err != nil {
		t.Fatalf("MarkVisited: %v", err)
	}
	c, _ := got.Container("X")
	if !c.Visited || c.VisitedAt == nil || *c.CollectedWeight != 12 {
		t.Fatalf("container = %+v", c)
	}

	again, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "X", ptr(5.0))
	if err != nil {
		t.Fatalf("second MarkVisited: %v", err)
	}
	c, _ = again.Container("X")
	if *c.CollectedWeight != 12 || again.VisitedCount() != 1 {
		t.Fatalf("repeat visit changed state: %+v", c)
	}

	if _, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "Z", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("container outside session err = %v", err)
	}
	if _, err := f.sessions.MarkVisited(f.ctx, f.otherDriver, sess.ID, "Y", nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other driver err = %v", err)
	}

	if _, err := f.sessions.Stop(f.ctx, f.driver, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "Y", nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("visit on completed session err = %v", err)
	}
}

func TestStopSession(t *testing.T) {
	t.Run("no handoffs closes directly and is idempotent", func(t *testing.T) {
		f := newFixture(t)
		sess := f.startVisited(t, []string{"X"}, nil)

		closed, err := f.sessions.Stop(f.ctx, f.driver, sess.ID)
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if !closed.IsCompleted() || closed.EndTime == nil {
			t.Fatalf("session = %+v", closed)
		}
		end := *closed.EndTime

		f.clock.Advance(time.Minute)
		again, err := f.sessions.Stop(f.ctx, f.driver, sess.ID)
		if err != nil {
			t.Fatalf("second Stop: %v", err)
		}
		if *again.EndTime != end {
			t.Fatal("closing twice changed the end time")
		}
	})

	t.Run("open custody blocks closing", func(t *testing.T) {
		f := newFixture(t)
		sess := f.startVisited(t, []string{"X"}, map[string]float64{"X": 1})
		f.completedPickup(t, sess.ID, "X")

		if _, err := f.sessions.Stop(f.ctx, f.driver, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("err = %v, want invalid transition", err)
		}

		if _, err := f.handoffs.CreateDriverToIncinerator(f.ctx, f.driver, sess.ID, nil, plantID); err != nil {
			t.Fatal(err)
		}
		if _, err := f.sessions.Stop(f.ctx, f.driver, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("pending incineration err = %v, want invalid transition", err)
		}
	})

	t.Run("pickup created just before close blocks it", func(t *testing.T) {
		f := newFixture(t)
		sess := f.startVisited(t, []string{"X"}, map[string]float64{"X": 1})

		var pickup *models.Handoff
		hooked := &closeHookStore{Store: f.store, beforeClose: func() {
			var err error
			pickup, err = f.handoffs.CreateFacilityToDriver(f.ctx, f.facility, sess.ID, []string{"X"}, "")
			if err != nil {
				t.Fatalf("pickup before close: %v", err)
			}
		}}
		sessions := NewSessionService(hooked, nil, f.notes)
		sessions.now = f.clock.Now

		if _, err := sessions.Stop(f.ctx, f.driver, sess.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("err = %v, want invalid transition", err)
		}
		got, err := f.store.GetSession(f.ctx, sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.IsCompleted() {
			t.Fatalf("session closed while pickup %s is %s", pickup.HandoffID, f.status(t, pickup.ID))
		}
	})

	t.Run("racing pickup and close never leave open custody on a closed session", func(t *testing.T) {
		for i := 0; i < 25; i++ {
			f := newFixture(t)
			sess := f.startVisited(t, []string{"X"}, map[string]float64{"X": 1})

			var wg sync.WaitGroup
			var stopErr, pickupErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, stopErr = f.sessions.Stop(f.ctx, f.driver, sess.ID)
			}()
			go func() {
				defer wg.Done()
				_, pickupErr = f.handoffs.CreateFacilityToDriver(f.ctx, f.facility, sess.ID, []string{"X"}, "")
			}()
			wg.Wait()

			if (stopErr == nil) == (pickupErr == nil) {
				t.Fatalf("run %d: stop err = %v, pickup err = %v, want exactly one to win", i, stopErr, pickupErr)
			}
			if stopErr != nil && !errors.Is(stopErr, apperr.ErrInvalidTransition) {
				t.Fatalf("run %d: stop err = %v", i, stopErr)
			}
			if pickupErr != nil && !errors.Is(pickupErr, apperr.ErrInvalidTransition) {
				t.Fatalf("run %d: pickup err = %v", i, pickupErr)
			}
		}
	})

	t.Run("other driver", func(t *testing.T) {
		f := newFixture(t)
		sess := f.startVisited(t, []string{"X"}, nil)
		if _, err := f.sessions.Stop(f.ctx, f.otherDriver, sess.ID); !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("err = %v, want forbidden", err)
		}
	})
}

func TestRouteNextStop(t *testing.T) {
	f := newFixture(t)
	sess := f.startVisited(t, []string{"Z", "X", "Y"}, nil)
	origin := &geo.Point{Lat: 0, Lng: 0}

	route, err := f.sessions.Route(f.ctx, f.driver, sess.ID, origin)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Strategy != routing.StrategyProximity || route.Next.ContainerID != "X" {
		t.Fatalf("route = %+v", route)
	}

	if _, err := f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, "X", nil); err != nil {
		t.Fatal(err)
	}
	route, _ = f.sessions.Route(f.ctx, f.driver, sess.ID, origin)
	if route.Next.ContainerID != "Y" || len(route.Stops) != 2 {
		t.Fatalf("after visiting X: %+v", route)
	}

	route, _ = f.sessions.Route(f.ctx, f.driver, sess.ID, nil)
	if route.Strategy != routing.StrategySessionOrder || route.Next.ContainerID != "Z" {
		t.Fatalf("without position: %+v", route)
	}

	_, byDriver, err := f.sessions.RouteForDriver(f.ctx, "d1", origin)
	if err != nil || byDriver.Next.ContainerID != "Y" {
		t.Fatalf("RouteForDriver = %+v, %v", byDriver, err)
	}
}

func TestRecordLocation(t *testing.T) {
	f := newFixture(t)

	loc := &models.DriverLocation{DriverID: "d1", Latitude: 0, Longitude: 0.021}
	sess, route, err := f.sessions.RecordLocation(f.ctx, loc)
	if err != nil {
		t.Fatalf("RecordLocation without session: %v", err)
	}
	if sess != nil || route.Next != nil {
		t.Fatalf("no active session should give no route, got %+v", route)
	}

	started := f.startVisited(t, []string{"X", "Y", "Z"}, map[string]float64{"Z": 3})
	loc = &models.DriverLocation{DriverID: "d1", Latitude: 0, Longitude: 0.021, Timestamp: 42}
	sess, route, err = f.sessions.RecordLocation(f.ctx, loc)
	if err != nil {
		t.Fatalf("RecordLocation: %v", err)
	}
	if sess == nil || sess.ID != started.ID {
		t.Fatalf("session = %v, want %s", sess, started.ID)
	}
	if route.Next == nil || route.Next.ContainerID != "Y" {
		t.Fatalf("next = %+v, want Y (Z visited)", route.Next)
	}

	saved, err := f.store.GetDriverLocation(f.ctx, "d1")
	if err != nil {
		t.Fatalf("GetDriverLocation: %v", err)
	}
	if !saved.IsConnected || saved.SessionID == nil || *saved.SessionID != started.ID || saved.Timestamp != 42 {
		t.Fatalf("saved = %+v", saved)
	}

	if err := f.sessions.Disconnected(f.ctx, "d1"); err != nil {
		t.Fatalf("Disconnected: %v", err)
	}
	saved, _ = f.store.GetDriverLocation(f.ctx, "d1")
	if saved.IsConnected || saved.Longitude != 0.021 {
		t.Fatalf("after disconnect = %+v, want last position kept", saved)
	}

	bad := &models.DriverLocation{DriverID: "d1", Latitude: 91}
	if _, _, err := f.sessions.RecordLocation(f.ctx, bad); apperr.Field(err) != "position" {
		t.Fatalf("invalid position err = %v", err)
	}
}

package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"medwaste-backend/internal/custody"
	"medwaste-backend/internal/database/memstore"
	"medwaste-backend/internal/models"
)

const (
	companyID   = "acme-hospital"
	plantID     = "plant-north"
	closedPlant = "plant-closed"
	publicBase  = "https://custody.example"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu          sync.Mutex
	pendingURLs []string
	updates     []models.HandoffStatus
	sessions    []models.SessionStatus
}

func (r *recorder) HandoffPending(ctx context.Context, h *models.Handoff, confirmURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingURLs = append(r.pendingURLs, confirmURL)
}

func (r *recorder) HandoffUpdated(ctx context.Context, h *models.Handoff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, h.Status)
}

func (r *recorder) SessionUpdated(ctx context.Context, s *models.CollectionSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s.Status)
}

type fixture struct {
	ctx      context.Context
	store    *memstore.Store
	clock    *testClock
	notes    *recorder
	sessions *SessionService
	handoffs *HandoffService

	driver, otherDriver, facility, operator, admin models.Actor
}

func ptr[T any](v T) *T { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memstore.New()

	users := []models.User{
		{ID: "d1", Email: "dana@example.com", Name: "Dana Driver", Role: models.RoleDriver, CompanyID: ptr(companyID)},
		{ID: "d2", Email: "drew@example.com", Name: "Drew Driver", Role: models.RoleDriver, CompanyID: ptr(companyID)},
		{ID: "f1", Email: "sam@example.com", Name: "Sam Supervisor", Role: models.RoleFacility, CompanyID: ptr(companyID)},
		{ID: "op1", Email: "olga@example.com", Name: "Olga Operator", Role: models.RoleIncinerator, PlantID: ptr(plantID)},
		{ID: "a1", Email: "ada@example.com", Name: "Ada Admin", Role: models.RoleAdmin},
	}
	for i := range users {
		if err := store.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	for _, c := range []struct {
		id  string
		lng float64
	}{{"X", 0}, {"Y", 0.01}, {"Z", 0.02}} {
		store.PutContainer(models.WasteContainer{
			ID:        c.id,
			Label:     "Container " + c.id,
			CompanyID: companyID,
			Latitude:  ptr(0.0),
			Longitude: ptr(c.lng),
			WasteType: models.WasteTypeInfectious,
		})
	}
	store.PutPlant(models.IncinerationPlant{ID: plantID, Name: "North Incineration", Active: true})
	store.PutPlant(models.IncinerationPlant{ID: closedPlant, Name: "Closed Plant", Active: false})

	clock := &testClock{t: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	notes := &recorder{}

	sessions := NewSessionService(store, nil, notes)
	sessions.now = clock.Now
	handoffs := NewHandoffService(store, custody.NewTokenIssuer("test-secret", time.Hour), notes, publicBase+"/")
	handoffs.now = clock.Now

	actor := func(u models.User) models.Actor {
		return models.Actor{UserID: u.ID, Name: u.Name, Role: u.Role, CompanyID: u.CompanyID, PlantID: u.PlantID}
	}

	return &fixture{
		ctx:         ctx,
		store:       store,
		clock:       clock,
		notes:       notes,
		sessions:    sessions,
		handoffs:    handoffs,
		driver:      actor(users[0]),
		otherDriver: actor(users[1]),
		facility:    actor(users[2]),
		operator:    actor(users[3]),
		admin:       actor(users[4]),
	}
}

// startVisited starts a driver session over ids and marks the given
// containers visited with the given weights
func (f *fixture) startVisited(t *testing.T, ids []string, visited map[string]float64) *models.CollectionSession {
	t.Helper()
	sess, err := f.sessions.Start(f.ctx, f.driver, ids, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for id, w := range visited {
		if sess, err = f.sessions.MarkVisited(f.ctx, f.driver, sess.ID, id, ptr(w)); err != nil {
			t.Fatalf("MarkVisited(%s): %v", id, err)
		}
	}
	return sess
}

// completedPickup creates a facility handoff and has the driver confirm it
func (f *fixture) completedPickup(t *testing.T, sessionID string, ids ...string) *models.Handoff {
	t.Helper()
	h, err := f.handoffs.CreateFacilityToDriver(f.ctx, f.facility, sessionID, ids, "")
	if err != nil {
		t.Fatalf("CreateFacilityToDriver: %v", err)
	}
	h, err = f.handoffs.Confirm(f.ctx, f.driver, h.ID)
	if err != nil {
		t.Fatalf("driver confirm: %v", err)
	}
	return h
}

// readyIncineration returns a pending driver to incinerator handoff
func (f *fixture) readyIncineration(t *testing.T) (*models.CollectionSession, *models.Handoff) {
	t.Helper()
	sess := f.startVisited(t, []string{"X", "Y"}, map[string]float64{"X": 12})
	f.completedPickup(t, sess.ID, "X")
	h, err := f.handoffs.CreateDriverToIncinerator(f.ctx, f.driver, sess.ID, nil, plantID)
	if err != nil {
		t.Fatalf("CreateDriverToIncinerator: %v", err)
	}
	return sess, h
}

func (f *fixture) status(t *testing.T, handoffID string) models.HandoffStatus {
	t.Helper()
	h, err := f.store.GetHandoff(f.ctx, handoffID)
	if err != nil {
		t.Fatalf("GetHandoff: %v", err)
	}
	return h.Status
}

func hasPrefix(urls []string, prefix string) bool {
	for _, u := range urls {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

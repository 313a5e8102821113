package memstore

import (
	"context"
	"errors"
	"testing"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
)

var _ services.Store = (*Store)(nil)

func session(id, driver string) *models.CollectionSession {
	return &models.CollectionSession{
		ID:         id,
		SessionID:  "SES-" + id,
		DriverID:   driver,
		Status:     models.SessionStatusActive,
		Containers: []models.SelectedContainer{{ContainerID: "c1"}},
	}
}

func TestOneActiveSessionPerDriver(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateSession(ctx, session("s1", "d1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateSession(ctx, session("s2", "d1")); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second active session err = %v, want conflict", err)
	}
	if err := s.CreateSession(ctx, session("s3", "d2")); err != nil {
		t.Fatalf("other driver: %v", err)
	}

	if _, err := s.UpdateSession(ctx, "s1", func(sess *models.CollectionSession) error {
		sess.Status = models.SessionStatusCompleted
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSession(ctx, session("s4", "d1")); err != nil {
		t.Fatalf("after completing the first session: %v", err)
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateSession(ctx, session("s1", "d1")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := s.UpdateSession(ctx, "s1", func(sess *models.CollectionSession) error {
		sess.Containers[0].Visited = true
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Containers[0].Visited {
		t.Fatal("failed update leaked a write")
	}

	got.Containers[0].Visited = true
	again, _ := s.GetSession(ctx, "s1")
	if again.Containers[0].Visited {
		t.Fatal("returned session aliases stored state")
	}
}

func TestOneIncinerationHandoffPerSession(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateSession(ctx, session("s1", "d1")); err != nil {
		t.Fatal(err)
	}

	build := func(id string) func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error) {
		return func(sess *models.CollectionSession, _ []*models.Handoff) (*models.Handoff, error) {
			return &models.Handoff{ID: id, Type: models.HandoffDriverToIncinerator, SessionID: sess.ID}, nil
		}
	}

	if _, err := s.CreateHandoff(ctx, "s1", build("h1")); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.CreateHandoff(ctx, "s1", build("h2")); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second err = %v, want conflict", err)
	}
	if _, err := s.CreateHandoff(ctx, "missing", build("h3")); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown session err = %v, want not found", err)
	}

	list, _ := s.ListHandoffs(ctx, models.HandoffFilter{SessionID: "s1"})
	if len(list) != 1 || list[0].ID != "h1" {
		t.Fatalf("handoffs = %+v", list)
	}
}

func TestLapsedHandoffIDs(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateSession(ctx, session("s1", "d1")); err != nil {
		t.Fatal(err)
	}

	exp := int64(100)
	_, err := s.CreateHandoff(ctx, "s1", func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error) {
		return &models.Handoff{
			ID:             "h1",
			Type:           models.HandoffDriverToIncinerator,
			Status:         models.HandoffStatusPending,
			SessionID:      "s1",
			TokenExpiresAt: &exp,
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if ids, _ := s.LapsedHandoffIDs(ctx, 99); len(ids) != 0 {
		t.Fatalf("lapsed before expiry: %v", ids)
	}
	if ids, _ := s.LapsedHandoffIDs(ctx, 100); len(ids) != 1 || ids[0] != "h1" {
		t.Fatalf("lapsed at expiry: %v", ids)
	}

	stamp := int64(50)
	for _, h := range []*models.Handoff{
		{ID: "h2", Status: models.HandoffStatusConfirmedBySender, Sender: models.HandoffParty{ConfirmedAt: &stamp}},
		{ID: "h3", Status: models.HandoffStatusConfirmedByReceiver, Receiver: models.HandoffParty{ConfirmedAt: &stamp}},
	} {
		sid := "s-" + h.ID
		if err := s.CreateSession(ctx, session(sid, "d-"+h.ID)); err != nil {
			t.Fatal(err)
		}
		h.Type = models.HandoffDriverToIncinerator
		h.SessionID = sid
		h.TokenExpiresAt = &exp
		if _, err := s.CreateHandoff(ctx, sid, func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error) {
			return h, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	ids, _ := s.LapsedHandoffIDs(ctx, 100)
	if len(ids) != 2 || ids[0] != "h1" || ids[1] != "h2" {
		t.Fatalf("lapsed = %v, want the pending and the driver-confirmed handoff", ids)
	}
}

func TestCloseSessionSeesHandoffsUnderLock(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateSession(ctx, session("s1", "d1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateHandoff(ctx, "s1", func(sess *models.CollectionSession, _ []*models.Handoff) (*models.Handoff, error) {
		return &models.Handoff{ID: "h1", Type: models.HandoffFacilityToDriver, SessionID: sess.ID}, nil
	}); err != nil {
		t.Fatal(err)
	}

	blocked := errors.New("open handoff")
	_, err := s.CloseSession(ctx, "s1", func(sess *models.CollectionSession, handoffs []*models.Handoff) error {
		if len(handoffs) != 1 || handoffs[0].ID != "h1" {
			t.Fatalf("handoffs = %+v", handoffs)
		}
		sess.Status = models.SessionStatusCompleted
		return blocked
	})
	if !errors.Is(err, blocked) {
		t.Fatalf("err = %v, want the callback error", err)
	}
	if got, _ := s.GetSession(ctx, "s1"); got.IsCompleted() {
		t.Fatal("rejected close leaked a write")
	}

	closed, err := s.CloseSession(ctx, "s1", func(sess *models.CollectionSession, _ []*models.Handoff) error {
		sess.Status = models.SessionStatusCompleted
		return nil
	})
	if err != nil || !closed.IsCompleted() {
		t.Fatalf("close = %+v, %v", closed, err)
	}
	if _, err := s.CloseSession(ctx, "missing", func(*models.CollectionSession, []*models.Handoff) error { return nil }); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown session err = %v, want not found", err)
	}
}

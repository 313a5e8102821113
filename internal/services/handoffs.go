package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/custody"
	"medwaste-backend/internal/models"
)

// HandoffService creates custody handoffs, enforces the per-session rules
// around them and drives the custody state machine
type HandoffService struct {
	store    Store
	tokens   *custody.TokenIssuer
	notifier Notifier
	baseURL  string
	now      func() time.Time
}

// NewHandoffService creates a handoff service. publicBaseURL prefixes the
// confirmation links sent to plant operators.
func NewHandoffService(store Store, tokens *custody.TokenIssuer, notifier Notifier, publicBaseURL string) *HandoffService {
	if notifier == nil {
		notifier = MultiNotifier{}
	}
	return &HandoffService{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		now:      time.Now,
	}
}

// ConfirmURL is the link a plant operator follows to confirm receipt
func (s *HandoffService) ConfirmURL(token string) string {
	return fmt.Sprintf("%s/api/public/handoffs/%s", s.baseURL, token)
}

// List returns the handoffs visible to actor, optionally for one session
func (s *HandoffService) List(ctx context.Context, actor models.Actor, sessionID string) ([]*models.Handoff, error) {
	f := models.HandoffFilter{SessionID: sessionID}
	switch {
	case actor.Role == models.RoleAdmin:
	case actor.Role == models.RoleIncinerator && actor.PlantID != nil:
		f.PlantID = *actor.PlantID
	default:
		f.PartyUserID = actor.UserID
	}
	return s.store.ListHandoffs(ctx, f)
}

// Get returns a handoff the actor is a party to
func (s *HandoffService) Get(ctx context.Context, actor models.Actor, id string) (*models.Handoff, error) {
	h, err := s.store.GetHandoff(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		if _, err := partyOf(actor, h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// CreateFacilityToDriver records a facility supervisor handing containers to
// the session's driver. The supervisor's confirmation is implicit, so the
// handoff completes on the driver's confirmation alone.
func (s *HandoffService) CreateFacilityToDriver(ctx context.Context, sender models.Actor, sessionID string, containerIDs []string, driverID string) (*models.Handoff, error) {
	if sender.Role != models.RoleFacility && sender.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only facility staff can hand containers to a driver", apperr.ErrForbidden)
	}
	if len(containerIDs) == 0 {
		return nil, apperr.Validation("container_ids", "at least one container is required")
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if driverID == "" {
		driverID = sess.DriverID
	}
	if driverID != sess.DriverID {
		return nil, apperr.Validation("driver_id", "driver %s does not own session %s", driverID, sess.SessionID)
	}
	driver, err := s.store.GetUser(ctx, driverID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	h, err := s.store.CreateHandoff(ctx, sessionID, func(sess *models.CollectionSession, _ []*models.Handoff) (*models.Handoff, error) {
		if sess.IsCompleted() {
			return nil, fmt.Errorf("%w: session %s is completed", apperr.ErrInvalidTransition, sess.SessionID)
		}
		containers, err := handoffContainers(sess, containerIDs, false)
		if err != nil {
			return nil, err
		}

		senderID := sender.UserID
		receiverID := driver.ID
		h, err := custody.New(custody.NewHandoffParams{
			Type:       models.HandoffFacilityToDriver,
			SessionID:  sess.ID,
			Sender:     models.HandoffParty{UserID: &senderID, Name: actorName(sender)},
			Receiver:   models.HandoffParty{UserID: &receiverID, Name: driver.Name},
			Containers: containers,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := custody.Open(h, "system", now); err != nil {
			return nil, err
		}
		if err := custody.Confirm(h, models.PartySender, actorName(sender), now); err != nil {
			return nil, err
		}
		return h, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Handoff %s created: %s -> %s (%d containers)", h.HandoffID, h.Sender.Name, h.Receiver.Name, h.TotalContainers)
	s.notifier.HandoffPending(ctx, h, "")
	return h, nil
}

// CreateDriverToIncinerator records the driver delivering collected containers
// to an incineration plant. With no container ids every visited container of
// the session is declared.
func (s *HandoffService) CreateDriverToIncinerator(ctx context.Context, driver models.Actor, sessionID string, containerIDs []string, plantID string) (*models.Handoff, error) {
	if plantID == "" {
		return nil, apperr.Validation("plant_id", "incineration plant is required")
	}
	plant, err := s.store.GetPlant(ctx, plantID)
	if err != nil {
		return nil, err
	}
	if !plant.Active {
		return nil, apperr.Validation("plant_id", "plant %s is not accepting deliveries", plant.Name)
	}

	now := s.now()
	id := uuid.New().String()
	token, expiresAt, err := s.tokens.Issue(id, now)
	if err != nil {
		return nil, err
	}

	h, err := s.store.CreateHandoff(ctx, sessionID, func(sess *models.CollectionSession, existing []*models.Handoff) (*models.Handoff, error) {
		if err := checkOwner(driver, sess); err != nil {
			return nil, err
		}
		if err := IncinerationEligible(sess, existing); err != nil {
			return nil, err
		}
		containers, err := handoffContainers(sess, containerIDs, true)
		if err != nil {
			return nil, err
		}

		driverID := sess.DriverID
		pid := plant.ID
		h, err := custody.New(custody.NewHandoffParams{
			ID:             id,
			Type:           models.HandoffDriverToIncinerator,
			SessionID:      sess.ID,
			PlantID:        &pid,
			Sender:         models.HandoffParty{UserID: &driverID, Name: actorName(driver)},
			Receiver:       models.HandoffParty{Name: plant.Name},
			Containers:     containers,
			Token:          token,
			TokenExpiresAt: expiresAt,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := custody.Open(h, "system", now); err != nil {
			return nil, err
		}
		return h, nil
	})
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("%w: session already has an incineration handoff", apperr.ErrNotEligibleForIncinerationHandoff)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Incineration handoff %s created for plant %s (%.1f kg)", h.HandoffID, plant.Name, h.DeclaredWeight())
	s.notifier.HandoffPending(ctx, h, s.ConfirmURL(token))
	return h, nil
}

// IncinerationEligible reports whether a driver to incinerator handoff may be
// created for sess given its existing handoffs
func IncinerationEligible(sess *models.CollectionSession, existing []*models.Handoff) error {
	notEligible := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", apperr.ErrNotEligibleForIncinerationHandoff, fmt.Sprintf(format, args...))
	}

	if sess.IsCompleted() {
		return notEligible("session %s is completed", sess.SessionID)
	}

	facility := 0
	for _, h := range existing {
		switch h.Type {
		case models.HandoffDriverToIncinerator:
			return notEligible("session already has incineration handoff %s", h.HandoffID)
		case models.HandoffFacilityToDriver:
			facility++
			if h.Status != models.HandoffStatusCompleted {
				return notEligible("facility handoff %s is %s", h.HandoffID, h.Status)
			}
		}
	}
	if facility == 0 {
		return notEligible("session has no facility handoff")
	}
	if sess.VisitedCount() == 0 {
		return notEligible("no container has been visited")
	}
	return nil
}

// handoffContainers resolves ids against the session. An empty list means
// every visited container.
func handoffContainers(sess *models.CollectionSession, ids []string, requireVisited bool) ([]models.HandoffContainer, error) {
	if len(ids) == 0 {
		for _, c := range sess.Containers {
			if c.Visited {
				ids = append(ids, c.ContainerID)
			}
		}
		if len(ids) == 0 {
			return nil, apperr.Validation("container_ids", "at least one container is required")
		}
	}

	out := make([]models.HandoffContainer, 0, len(ids))
	for _, id := range ids {
		c, ok := sess.Container(id)
		if !ok {
			return nil, apperr.Validation("container_ids", "container %s is not part of session %s", id, sess.SessionID)
		}
		if requireVisited && !c.Visited {
			return nil, apperr.Validation("container_ids", "container %s has not been collected", id)
		}
		weight := 0.0
		if c.CollectedWeight != nil {
			weight = *c.CollectedWeight
		}
		out = append(out, models.HandoffContainer{
			ContainerID:    c.ContainerID,
			Label:          c.Label,
			DeclaredWeight: weight,
		})
	}
	return out, nil
}

// Confirm records the actor's confirmation as whichever party they are
func (s *HandoffService) Confirm(ctx context.Context, actor models.Actor, id string) (*models.Handoff, error) {
	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		party, err := partyOf(actor, h)
		if err != nil {
			return err
		}
		return custody.Confirm(h, party, actorName(actor), now)
	})
	if err != nil {
		return nil, err
	}
	s.afterUpdate(ctx, h)
	return h, nil
}

// ConfirmWithToken confirms receipt from a confirmation link. The operator
// has no account, so their name is the recorded actor.
func (s *HandoffService) ConfirmWithToken(ctx context.Context, token, operatorName string) (*models.Handoff, error) {
	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		return nil, apperr.Validation("name", "your name is required to confirm receipt")
	}

	id, err := s.parseToken(ctx, token)
	if err != nil {
		return nil, linkExpired(err)
	}

	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		if err := checkToken(h, token); err != nil {
			return err
		}
		return custody.Confirm(h, models.PartyReceiver, operatorName, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterUpdate(ctx, h)
	return h.PublicView(), nil
}

// Dispute contests a handoff on behalf of the actor's party
func (s *HandoffService) Dispute(ctx context.Context, actor models.Actor, id string, reason models.DisputeReason, description string) (*models.Handoff, error) {
	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		party, err := partyOf(actor, h)
		if err != nil {
			return err
		}
		return custody.Dispute(h, party, actorName(actor), reason, description, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("⚠️  Handoff %s disputed by %s: %s", h.HandoffID, actorName(actor), reason)
	s.afterUpdate(ctx, h)
	return h, nil
}

// DisputeWithToken contests a handoff from a confirmation link
func (s *HandoffService) DisputeWithToken(ctx context.Context, token, operatorName string, reason models.DisputeReason, description string) (*models.Handoff, error) {
	operatorName = strings.TrimSpace(operatorName)
	if operatorName == "" {
		return nil, apperr.Validation("name", "your name is required to raise a dispute")
	}

	id, err := s.parseToken(ctx, token)
	if err != nil {
		return nil, linkExpired(err)
	}

	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		if err := checkToken(h, token); err != nil {
			return err
		}
		return custody.Dispute(h, models.PartyReceiver, operatorName, reason, description, now)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("⚠️  Handoff %s disputed by plant operator %s: %s", h.HandoffID, operatorName, reason)
	s.afterUpdate(ctx, h)
	return h.PublicView(), nil
}

// Resend issues a fresh confirmation link. Only the sender may resend.
func (s *HandoffService) Resend(ctx context.Context, actor models.Actor, id string) (*models.Handoff, error) {
	now := s.now()
	token, expiresAt, err := s.tokens.Issue(id, now)
	if err != nil {
		return nil, err
	}

	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		if actor.Role != models.RoleAdmin {
			party, err := partyOf(actor, h)
			if err != nil {
				return err
			}
			if party != models.PartySender {
				return fmt.Errorf("%w: only the sender can resend a confirmation", apperr.ErrForbidden)
			}
		}
		return custody.Resend(h, actorName(actor), token, expiresAt, now)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("📨 Confirmation for handoff %s resent, valid until %s", h.HandoffID, expiresAt.Format(time.RFC3339))
	s.notifier.HandoffPending(ctx, h, s.ConfirmURL(token))
	return h, nil
}

// BeginResolving records that an administrator picked up a dispute
func (s *HandoffService) BeginResolving(ctx context.Context, admin models.Actor, id string) (*models.Handoff, error) {
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only administrators resolve disputes", apperr.ErrForbidden)
	}
	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		return custody.BeginResolving(h, actorName(admin), now)
	})
	if err != nil {
		return nil, err
	}
	s.afterUpdate(ctx, h)
	return h, nil
}

// Resolve closes a dispute with the administrator's notes
func (s *HandoffService) Resolve(ctx context.Context, admin models.Actor, id, notes string) (*models.Handoff, error) {
	if admin.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: only administrators resolve disputes", apperr.ErrForbidden)
	}
	h, err := s.mutate(ctx, id, func(h *models.Handoff, now time.Time) error {
		return custody.Resolve(h, actorName(admin), notes, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterUpdate(ctx, h)
	return h, nil
}

// Lookup returns the public view of the handoff behind a confirmation link
func (s *HandoffService) Lookup(ctx context.Context, token string) (*models.Handoff, error) {
	id, err := s.parseToken(ctx, token)
	if err != nil {
		return nil, err
	}
	h, err := s.store.GetHandoff(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkToken(h, token); err != nil {
		return nil, err
	}
	return h.PublicView(), nil
}

// ExpireLapsed moves every pending handoff whose token has lapsed to expired.
// Expiry also happens lazily on access; this keeps listings accurate.
func (s *HandoffService) ExpireLapsed(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.LapsedHandoffIDs(ctx, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed handoffs: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if s.expire(ctx, id, now) {
			expired++
		}
	}
	return expired, nil
}

// mutate runs op under the store's per-handoff lock. A lapsed pending
// handoff is expired and committed first, then op runs against the expired
// state, so expiry is never rolled back by op's failure.
func (s *HandoffService) mutate(ctx context.Context, id string, op func(*models.Handoff, time.Time) error) (*models.Handoff, error) {
	now := s.now()
	lapsed := false
	h, err := s.store.UpdateHandoff(ctx, id, func(h *models.Handoff) error {
		if custody.Expire(h, now) {
			lapsed = true
			return nil
		}
		return op(h, now)
	})
	if err != nil {
		return nil, err
	}
	if !lapsed {
		return h, nil
	}

	log.Printf("⏰ Handoff %s expired before the receiver confirmed", h.HandoffID)
	s.notifier.HandoffUpdated(ctx, h)
	return s.store.UpdateHandoff(ctx, id, func(h *models.Handoff) error {
		return op(h, now)
	})
}

func (s *HandoffService) expire(ctx context.Context, id string, now time.Time) bool {
	changed := false
	h, err := s.store.UpdateHandoff(ctx, id, func(h *models.Handoff) error {
		changed = custody.Expire(h, now)
		return nil
	})
	if err != nil {
		log.Printf("❌ Failed to expire handoff %s: %v", id, err)
		return false
	}
	if changed {
		log.Printf("⏰ Handoff %s expired", h.HandoffID)
		s.notifier.HandoffUpdated(ctx, h)
	}
	return changed
}

// parseToken verifies a confirmation link. An expired link also expires its
// handoff so the sender sees why nobody confirmed.
func (s *HandoffService) parseToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.Validation("token", "confirmation token is required")
	}
	now := s.now()
	id, err := s.tokens.Parse(token, now)
	if errors.Is(err, apperr.ErrTokenExpired) && id != "" {
		s.expire(ctx, id, now)
	}
	return id, err
}

// linkExpired reports a lapsed link on a confirm or dispute as a transition
// out of expired. errors.Is still matches apperr.ErrTokenExpired, which keeps
// the 410 and the token_expired code.
func linkExpired(err error) error {
	if errors.Is(err, apperr.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidTransition, err)
	}
	return err
}

func (s *HandoffService) afterUpdate(ctx context.Context, h *models.Handoff) {
	s.notifier.HandoffUpdated(ctx, h)

	if h.Type == models.HandoffDriverToIncinerator && h.Status == models.HandoffStatusCompleted {
		s.closeSession(ctx, h.SessionID)
	}
}

// closeSession completes the session once its incineration handoff has
// completed. It runs as its own write after the handoff commit and a failure
// is only logged. The handoff stays completed, so the session is then still
// closable through SessionService.Stop.
func (s *HandoffService) closeSession(ctx context.Context, sessionID string) {
	now := s.now()
	changed := false
	sess, err := s.store.UpdateSession(ctx, sessionID, func(sess *models.CollectionSession) error {
		if sess.IsCompleted() {
			return nil
		}
		completeSession(sess, now)
		changed = true
		return nil
	})
	if err != nil {
		log.Printf("❌ Failed to close session %s after incineration handoff: %v", sessionID, err)
		return
	}
	if changed {
		log.Printf("✅ Session %s closed by completed incineration handoff", sess.SessionID)
		s.notifier.SessionUpdated(ctx, sess)
	}
}

func checkToken(h *models.Handoff, token string) error {
	if h.Type != models.HandoffDriverToIncinerator || h.Token == nil || *h.Token != token {
		return apperr.Validation("token", "this confirmation link has been replaced by a newer one")
	}
	return nil
}

// partyOf maps an authenticated actor onto a side of the handoff. Plant
// operators with an account act as the receiver of their plant's handoffs.
func partyOf(actor models.Actor, h *models.Handoff) (models.Party, error) {
	if actor.UserID != "" {
		if h.Sender.UserID != nil && *h.Sender.UserID == actor.UserID {
			return models.PartySender, nil
		}
		if h.Receiver.UserID != nil && *h.Receiver.UserID == actor.UserID {
			return models.PartyReceiver, nil
		}
	}
	if h.Type == models.HandoffDriverToIncinerator && actor.Role == models.RoleIncinerator &&
		actor.PlantID != nil && h.PlantID != nil && *actor.PlantID == *h.PlantID {
		return models.PartyReceiver, nil
	}
	return "", fmt.Errorf("%w: not a party to handoff %s", apperr.ErrForbidden, h.HandoffID)
}

func actorName(a models.Actor) string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.UserID
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/geo"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/routing"
)

// SessionService runs a driver's collection session from start to close
type SessionService struct {
	store    Store
	planner  *routing.Planner
	notifier Notifier
	now      func() time.Time
}

// NewSessionService creates a session service. planner and notifier may be nil.
func NewSessionService(store Store, planner *routing.Planner, notifier Notifier) *SessionService {
	if notifier == nil {
		notifier = MultiNotifier{}
	}
	return &SessionService{store: store, planner: planner, notifier: notifier, now: time.Now}
}

// Start opens a session for the driver. With no container ids every container
// of the driver's company is selected. A known start location orders the
// containers nearest-first along a greedy chain.
func (s *SessionService) Start(ctx context.Context, driver models.Actor, containerIDs []string, start *geo.Point) (*models.CollectionSession, error) {
	if start != nil && !start.Valid() {
		return nil, apperr.Validation("start_location", "coordinates out of range")
	}

	containers, err := s.selectContainers(ctx, driver, containerIDs)
	if err != nil {
		return nil, err
	}

	stops := make([]routing.Stop, len(containers))
	byID := make(map[string]models.WasteContainer, len(containers))
	for i, c := range containers {
		stops[i] = routing.Stop{ContainerID: c.ID, Label: c.Label, Location: c.Location()}
		byID[c.ID] = c
	}
	if start != nil {
		stops = routing.PlanInitialOrder(*start, stops)
	}

	now := s.now()
	sess := &models.CollectionSession{
		ID:         uuid.New().String(),
		SessionID:  models.NewReference("SES", now),
		DriverID:   driver.UserID,
		Status:     models.SessionStatusActive,
		StartTime:  now.Unix(),
		Containers: make([]models.SelectedContainer, len(stops)),
		CreatedAt:  now.Unix(),
		UpdatedAt:  now.Unix(),
	}
	if start != nil {
		lat, lng := start.Lat, start.Lng
		sess.StartLatitude = &lat
		sess.StartLongitude = &lng
	}
	for i, stop := range stops {
		c := byID[stop.ContainerID]
		sess.Containers[i] = models.SelectedContainer{
			ContainerID:   c.ID,
			Label:         c.Label,
			SequenceOrder: i,
			Latitude:      c.Latitude,
			Longitude:     c.Longitude,
		}
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("driver %s: %w", driver.UserID, err)
	}

	log.Printf("✅ Session %s started by driver %s with %d containers", sess.SessionID, driver.UserID, len(sess.Containers))
	s.notifier.SessionUpdated(ctx, sess)
	return sess, nil
}

func (s *SessionService) selectContainers(ctx context.Context, driver models.Actor, ids []string) ([]models.WasteContainer, error) {
	if len(ids) == 0 {
		if driver.CompanyID == nil {
			return nil, nil
		}
		return s.store.ListContainers(ctx, *driver.CompanyID)
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, apperr.Validation("container_ids", "container id must not be empty")
		}
		if seen[id] {
			return nil, apperr.Validation("container_ids", "container %s listed twice", id)
		}
		seen[id] = true
	}
	return s.store.GetContainers(ctx, ids)
}

// Active returns the driver's active session, or ErrNotFound
func (s *SessionService) Active(ctx context.Context, driverID string) (*models.CollectionSession, error) {
	return s.store.ActiveSession(ctx, driverID)
}

// Get returns a session the actor may see
func (s *SessionService) Get(ctx context.Context, actor models.Actor, id string) (*models.CollectionSession, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(actor, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkVisited records a container pickup. Marking a visited container again
// changes nothing and is not an error.
func (s *SessionService) MarkVisited(ctx context.Context, driver models.Actor, sessionID, containerID string, weight *float64) (*models.CollectionSession, error) {
	if weight != nil && *weight < 0 {
		return nil, apperr.Validation("collected_weight", "weight must not be negative")
	}

	now := s.now()
	changed := false
	sess, err := s.store.UpdateSession(ctx, sessionID, func(sess *models.CollectionSession) error {
		if err := checkOwner(driver, sess); err != nil {
			return err
		}
		if sess.IsCompleted() {
			return fmt.Errorf("%w: session %s is completed", apperr.ErrInvalidTransition, sess.SessionID)
		}

		for i := range sess.Containers {
			c := &sess.Containers[i]
			if c.ContainerID != containerID {
				continue
			}
			if c.Visited {
				return nil
			}
			at := now.Unix()
			c.Visited = true
			c.VisitedAt = &at
			if weight != nil {
				w := *weight
				c.CollectedWeight = &w
			}
			sess.UpdatedAt = at
			changed = true
			return nil
		}
		return apperr.NotFound("container in session", containerID)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("✅ Container %s visited in session %s", containerID, sess.SessionID)
		s.notifier.SessionUpdated(ctx, sess)
	}
	return sess, nil
}

// Stop closes a session. Allowed when the session has no handoffs at all or
// its driver to incinerator handoff is completed. Closing a completed session
// is a no-op.
func (s *SessionService) Stop(ctx context.Context, actor models.Actor, sessionID string) (*models.CollectionSession, error) {
	now := s.now()
	changed := false
	sess, err := s.store.CloseSession(ctx, sessionID, func(sess *models.CollectionSession, handoffs []*models.Handoff) error {
		if err := checkOwner(actor, sess); err != nil {
			return err
		}
		if sess.IsCompleted() {
			return nil
		}
		if err := closeEligible(handoffs); err != nil {
			return err
		}
		completeSession(sess, now)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Printf("✅ Session %s closed", sess.SessionID)
		s.notifier.SessionUpdated(ctx, sess)
	}
	return sess, nil
}

func closeEligible(handoffs []*models.Handoff) error {
	if len(handoffs) == 0 {
		return nil
	}
	for _, h := range handoffs {
		if h.Type == models.HandoffDriverToIncinerator {
			if h.Status == models.HandoffStatusCompleted {
				return nil
			}
			return fmt.Errorf("%w: incineration handoff %s is %s", apperr.ErrInvalidTransition, h.HandoffID, h.Status)
		}
	}
	return fmt.Errorf("%w: session has handoffs but no incineration handoff", apperr.ErrInvalidTransition)
}

func completeSession(sess *models.CollectionSession, now time.Time) {
	end := now.Unix()
	sess.Status = models.SessionStatusCompleted
	sess.EndTime = &end
	sess.UpdatedAt = end
}

// Route computes the visiting order of the remaining containers from pos
func (s *SessionService) Route(ctx context.Context, actor models.Actor, sessionID string, pos *geo.Point) (routing.Route, error) {
	sess, err := s.Get(ctx, actor, sessionID)
	if err != nil {
		return routing.Route{}, err
	}
	return s.route(ctx, sess, pos)
}

// RouteForDriver is Route for the driver's active session
func (s *SessionService) RouteForDriver(ctx context.Context, driverID string, pos *geo.Point) (*models.CollectionSession, routing.Route, error) {
	sess, err := s.store.ActiveSession(ctx, driverID)
	if err != nil {
		return nil, routing.Route{}, err
	}
	route, err := s.route(ctx, sess, pos)
	return sess, route, err
}

func (s *SessionService) route(ctx context.Context, sess *models.CollectionSession, pos *geo.Point) (routing.Route, error) {
	if pos != nil && !pos.Valid() {
		return routing.Route{}, apperr.Validation("position", "coordinates out of range")
	}

	unvisited := sess.Unvisited()
	stops := make([]routing.Stop, len(unvisited))
	for i, c := range unvisited {
		stops[i] = routing.Stop{ContainerID: c.ContainerID, Label: c.Label, Location: c.Location()}
	}

	if s.planner == nil {
		return routing.Sequence(pos, stops, nil), nil
	}
	return s.planner.Plan(ctx, pos, stops), nil
}

// RecordLocation stores the driver's last position. When the driver has an
// active session the route from that position is recomputed and returned,
// otherwise the session is nil.
func (s *SessionService) RecordLocation(ctx context.Context, loc *models.DriverLocation) (*models.CollectionSession, routing.Route, error) {
	pos := geo.Point{Lat: loc.Latitude, Lng: loc.Longitude}
	if !pos.Valid() {
		return nil, routing.Route{}, apperr.Validation("position", "coordinates out of range")
	}

	sess, err := s.store.ActiveSession(ctx, loc.DriverID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, routing.Route{}, err
	}
	if sess != nil {
		loc.SessionID = &sess.ID
	}

	loc.UpdatedAt = s.now().Unix()
	if loc.Timestamp == 0 {
		loc.Timestamp = loc.UpdatedAt
	}
	if err := s.store.SaveDriverLocation(ctx, loc); err != nil {
		return nil, routing.Route{}, fmt.Errorf("save location for driver %s: %w", loc.DriverID, err)
	}

	if sess == nil {
		return nil, routing.Route{}, nil
	}
	route, err := s.route(ctx, sess, &pos)
	return sess, route, err
}

// Disconnected keeps the driver's last position but flags it stale
func (s *SessionService) Disconnected(ctx context.Context, driverID string) error {
	return s.store.MarkDriverDisconnected(ctx, driverID)
}

func checkOwner(actor models.Actor, sess *models.CollectionSession) error {
	if actor.Role == models.RoleAdmin || actor.UserID == sess.DriverID {
		return nil
	}
	return fmt.Errorf("%w: session %s belongs to another driver", apperr.ErrForbidden, sess.SessionID)
}

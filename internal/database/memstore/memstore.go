// Package memstore is an in-process store with the same uniqueness rules as
// the Postgres schema. Used by tests and by STORE=memory for local runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

// Store keeps everything behind one mutex. Callbacks run under the lock and
// must not call back into the store.
type Store struct {
	mu         sync.Mutex
	users      map[string]models.User
	tokens     map[string]models.FCMToken // keyed by token
	containers map[string]models.WasteContainer
	plants     map[string]models.IncinerationPlant
	sessions   map[string]*models.CollectionSession
	handoffs   map[string]*models.Handoff
	locations  map[string]models.DriverLocation
	seq        int
}

func New() *Store {
	return &Store{
		users:      make(map[string]models.User),
		tokens:     make(map[string]models.FCMToken),
		containers: make(map[string]models.WasteContainer),
		plants:     make(map[string]models.IncinerationPlant),
		sessions:   make(map[string]*models.CollectionSession),
		handoffs:   make(map[string]*models.Handoff),
		locations:  make(map[string]models.DriverLocation),
	}
}

// PutContainer adds or replaces reference data
func (s *Store) PutContainer(c models.WasteContainer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[c.ID] = c
}

// PutPlant adds or replaces reference data
func (s *Store) PutPlant(p models.IncinerationPlant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[p.ID] = p
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user", email)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("email %s: %w", u.Email, apperr.ErrConflict)
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, apperr.ErrConflict)
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) PlantUserIDs(ctx context.Context, plantID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, u := range s.users {
		if u.Role == models.RoleIncinerator && u.PlantID != nil && *u.PlantID == plantID {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []string
	for token, t := range s.tokens {
		if want[t.UserID] {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SaveDeviceToken(ctx context.Context, t *models.FCMToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[t.Token]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		s.seq++
		t.ID = s.seq
	}
	s.tokens[t.Token] = *t
	return nil
}

func (s *Store) ListContainers(ctx context.Context, companyID string) ([]models.WasteContainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.WasteContainer, 0)
	for _, c := range s.containers {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *Store) GetContainer(ctx context.Context, id string) (*models.WasteContainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[id]
	if !ok {
		return nil, apperr.NotFound("container", id)
	}
	return &c, nil
}

func (s *Store) GetContainers(ctx context.Context, ids []string) ([]models.WasteContainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.WasteContainer, 0, len(ids))
	for _, id := range ids {
		c, ok := s.containers[id]
		if !ok {
			return nil, apperr.NotFound("container", id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListPlants(ctx context.Context) ([]models.IncinerationPlant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.IncinerationPlant, 0, len(s.plants))
	for _, p := range s.plants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetPlant(ctx context.Context, id string) (*models.IncinerationPlant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plants[id]
	if !ok {
		return nil, apperr.NotFound("incineration plant", id)
	}
	return &p, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.CollectionSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.DriverID == sess.DriverID && existing.Status == models.SessionStatusActive {
			return fmt.Errorf("active session %s: %w", existing.SessionID, apperr.ErrConflict)
		}
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.CollectionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	return sess.Clone(), nil
}

func (s *Store) ActiveSession(ctx context.Context, driverID string) (*models.CollectionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.DriverID == driverID && sess.Status == models.SessionStatusActive {
			return sess.Clone(), nil
		}
	}
	return nil, apperr.NotFound("active session for driver", driverID)
}

func (s *Store) UpdateSession(ctx context.Context, id string, fn func(*models.CollectionSession) error) (*models.CollectionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	work := sess.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	s.sessions[id] = work
	return work.Clone(), nil
}

func (s *Store) CloseSession(ctx context.Context, id string, fn func(*models.CollectionSession, []*models.Handoff) error) (*models.CollectionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session", id)
	}
	work := sess.Clone()
	if err := fn(work, s.filterLocked(models.HandoffFilter{SessionID: id})); err != nil {
		return nil, err
	}
	s.sessions[id] = work
	return work.Clone(), nil
}

func (s *Store) CreateHandoff(ctx context.Context, sessionID string, build func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error)) (*models.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("session", sessionID)
	}

	existing := s.filterLocked(models.HandoffFilter{SessionID: sessionID})
	h, err := build(sess.Clone(), existing)
	if err != nil {
		return nil, err
	}

	if _, dup := s.handoffs[h.ID]; dup {
		return nil, fmt.Errorf("handoff %s: %w", h.ID, apperr.ErrConflict)
	}
	if h.Type == models.HandoffDriverToIncinerator {
		for _, other := range s.handoffs {
			if other.SessionID == h.SessionID && other.Type == models.HandoffDriverToIncinerator {
				return nil, fmt.Errorf("incineration handoff for session %s: %w", h.SessionID, apperr.ErrConflict)
			}
		}
	}

	s.handoffs[h.ID] = h.Clone()
	return h.Clone(), nil
}

func (s *Store) GetHandoff(ctx context.Context, id string) (*models.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handoffs[id]
	if !ok {
		return nil, apperr.NotFound("handoff", id)
	}
	return h.Clone(), nil
}

func (s *Store) ListHandoffs(ctx context.Context, f models.HandoffFilter) ([]*models.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.filterLocked(f), nil
}

func (s *Store) filterLocked(f models.HandoffFilter) []*models.Handoff {
	out := make([]*models.Handoff, 0)
	for _, h := range s.handoffs {
		if f.Matches(h) {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) UpdateHandoff(ctx context.Context, id string, fn func(*models.Handoff) error) (*models.Handoff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handoffs[id]
	if !ok {
		return nil, apperr.NotFound("handoff", id)
	}
	work := h.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	s.handoffs[id] = work
	return work.Clone(), nil
}

func (s *Store) LapsedHandoffIDs(ctx context.Context, now int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, h := range s.handoffs {
		if h.LinkLapsed(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) SaveDriverLocation(ctx context.Context, loc *models.DriverLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *loc
	cp.IsConnected = true
	s.locations[loc.DriverID] = cp
	loc.IsConnected = true
	return nil
}

func (s *Store) MarkDriverDisconnected(ctx context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loc, ok := s.locations[driverID]; ok {
		loc.IsConnected = false
		s.locations[driverID] = loc
	}
	return nil
}

func (s *Store) GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[driverID]
	if !ok {
		return nil, apperr.NotFound("driver location", driverID)
	}
	return &loc, nil
}

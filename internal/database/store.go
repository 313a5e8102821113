package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

// Postgres error code for unique_violation
const uniqueViolation = "23505"

// Store implements services.Store on Postgres. Every Update* call runs in a
// transaction holding SELECT ... FOR UPDATE on the row.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func mapErr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s %s (%s): %w", kind, id, pqErr.Constraint, apperr.ErrConflict)
	}
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ---- users ----

const userColumns = `id, email, password, name, role, company_id, plant_id, created_at, updated_at`

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	if err != nil {
		return nil, mapErr(err, "user", email)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password, name, role, company_id, plant_id, created_at, updated_at)
		VALUES (:id, :email, :password, :name, :role, :company_id, :plant_id, :created_at, :updated_at)
	`, u)
	if err != nil {
		return mapErr(err, "user", u.Email)
	}
	return nil
}

func (s *Store) PlantUserIDs(ctx context.Context, plantID string) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM users WHERE role = 'incinerator' AND plant_id = $1 ORDER BY id
	`, plantID)
	return ids, err
}

func (s *Store) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := s.db.SelectContext(ctx, &tokens, `
		SELECT token FROM fcm_tokens WHERE user_id = ANY($1) ORDER BY token
	`, pq.Array(userIDs))
	return tokens, err
}

func (s *Store) SaveDeviceToken(ctx context.Context, t *models.FCMToken) error {
	query := `INSERT INTO fcm_tokens (user_id, token, device_type, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT(token) DO UPDATE SET
				  user_id = excluded.user_id,
				  device_type = excluded.device_type,
				  updated_at = excluded.updated_at
			  RETURNING id, created_at`
	return s.db.QueryRowxContext(ctx, query, t.UserID, t.Token, t.DeviceType, t.CreatedAt, t.UpdatedAt).
		Scan(&t.ID, &t.CreatedAt)
}

// ---- containers and plants ----

const containerColumns = `id, label, company_id, latitude, longitude, fullness, temperature, waste_type, last_update, created_at, updated_at`

func (s *Store) ListContainers(ctx context.Context, companyID string) ([]models.WasteContainer, error) {
	containers := []models.WasteContainer{}
	err := s.db.SelectContext(ctx, &containers, `
		SELECT `+containerColumns+` FROM waste_containers WHERE company_id = $1 ORDER BY label
	`, companyID)
	return containers, err
}

func (s *Store) GetContainer(ctx context.Context, id string) (*models.WasteContainer, error) {
	var c models.WasteContainer
	err := s.db.GetContext(ctx, &c, `SELECT `+containerColumns+` FROM waste_containers WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err, "container", id)
	}
	return &c, nil
}

func (s *Store) GetContainers(ctx context.Context, ids []string) ([]models.WasteContainer, error) {
	var found []models.WasteContainer
	err := s.db.SelectContext(ctx, &found, `
		SELECT `+containerColumns+` FROM waste_containers WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.WasteContainer, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]models.WasteContainer, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("container", id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListPlants(ctx context.Context) ([]models.IncinerationPlant, error) {
	plants := []models.IncinerationPlant{}
	err := s.db.SelectContext(ctx, &plants, `
		SELECT id, name, address, latitude, longitude, active FROM incineration_plants ORDER BY name
	`)
	return plants, err
}

func (s *Store) GetPlant(ctx context.Context, id string) (*models.IncinerationPlant, error) {
	var p models.IncinerationPlant
	err := s.db.GetContext(ctx, &p, `
		SELECT id, name, address, latitude, longitude, active FROM incineration_plants WHERE id = $1
	`, id)
	if err != nil {
		return nil, mapErr(err, "incineration plant", id)
	}
	return &p, nil
}

// ---- sessions ----

const sessionColumns = `id, session_id, driver_id, status, start_time, end_time, start_latitude, start_longitude, created_at, updated_at`

func loadSession(ctx context.Context, q sqlx.QueryerContext, where string, args ...interface{}) (*models.CollectionSession, error) {
	var sess models.CollectionSession
	if err := sqlx.GetContext(ctx, q, &sess, `SELECT `+sessionColumns+` FROM collection_sessions WHERE `+where, args...); err != nil {
		return nil, err
	}

	sess.Containers = []models.SelectedContainer{}
	err := sqlx.SelectContext(ctx, q, &sess.Containers, `
		SELECT container_id, label, sequence_order, latitude, longitude, visited, visited_at, collected_weight
		FROM session_containers
		WHERE session_id = $1
		ORDER BY sequence_order
	`, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session containers: %w", err)
	}
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.CollectionSession) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO collection_sessions (`+sessionColumns+`)
			VALUES (:id, :session_id, :driver_id, :status, :start_time, :end_time,
					:start_latitude, :start_longitude, :created_at, :updated_at)
		`, sess)
		if err != nil {
			return mapErr(err, "session for driver", sess.DriverID)
		}

		for _, c := range sess.Containers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO session_containers (
					session_id, container_id, label, sequence_order, latitude, longitude,
					visited, visited_at, collected_weight
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, sess.ID, c.ContainerID, c.Label, c.SequenceOrder, c.Latitude, c.Longitude,
				c.Visited, c.VisitedAt, c.CollectedWeight)
			if err != nil {
				return mapErr(err, "session container", c.ContainerID)
			}
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.CollectionSession, error) {
	sess, err := loadSession(ctx, s.db, `id = $1`, id)
	if err != nil {
		return nil, mapErr(err, "session", id)
	}
	return sess, nil
}

func (s *Store) ActiveSession(ctx context.Context, driverID string) (*models.CollectionSession, error) {
	sess, err := loadSession(ctx, s.db, `driver_id = $1 AND status = 'active'`, driverID)
	if err != nil {
		return nil, mapErr(err, "active session for driver", driverID)
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, id string, fn func(*models.CollectionSession) error) (*models.CollectionSession, error) {
	var out *models.CollectionSession
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		sess, err := loadSession(ctx, tx, `id = $1 FOR UPDATE`, id)
		if err != nil {
			return mapErr(err, "session", id)
		}
		if err := fn(sess); err != nil {
			return err
		}
		if err := writeSession(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

// CloseSession locks the session and reads its handoffs in the same
// transaction, so a handoff created concurrently is either seen by fn or
// waits for the close to commit.
func (s *Store) CloseSession(ctx context.Context, id string, fn func(*models.CollectionSession, []*models.Handoff) error) (*models.CollectionSession, error) {
	var out *models.CollectionSession
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		sess, err := loadSession(ctx, tx, `id = $1 FOR UPDATE`, id)
		if err != nil {
			return mapErr(err, "session", id)
		}
		handoffs, err := loadHandoffs(ctx, tx, `session_id = $1 ORDER BY created_at DESC, id`, id)
		if err != nil {
			return err
		}
		if err := fn(sess, handoffs); err != nil {
			return err
		}
		if err := writeSession(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	return out, err
}

func writeSession(ctx context.Context, tx *sqlx.Tx, sess *models.CollectionSession) error {
	_, err := tx.NamedExecContext(ctx, `
		UPDATE collection_sessions
		SET status = :status, end_time = :end_time, updated_at = :updated_at
		WHERE id = :id
	`, sess)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	for _, c := range sess.Containers {
		_, err := tx.ExecContext(ctx, `
			UPDATE session_containers
			SET visited = $3, visited_at = $4, collected_weight = $5
			WHERE session_id = $1 AND container_id = $2
		`, sess.ID, c.ContainerID, c.Visited, c.VisitedAt, c.CollectedWeight)
		if err != nil {
			return fmt.Errorf("failed to update session container %s: %w", c.ContainerID, err)
		}
	}
	return nil
}

// ---- handoffs ----

// handoffRow is the flat shape of the handoffs table
type handoffRow struct {
	ID                  string   `db:"id"`
	HandoffID           string   `db:"handoff_id"`
	Type                string   `db:"type"`
	Status              string   `db:"status"`
	SessionID           string   `db:"session_id"`
	PlantID             *string  `db:"plant_id"`
	SenderUserID        *string  `db:"sender_user_id"`
	SenderName          string   `db:"sender_name"`
	SenderConfirmedAt   *int64   `db:"sender_confirmed_at"`
	SenderConfirmedBy   *string  `db:"sender_confirmed_by"`
	ReceiverUserID      *string  `db:"receiver_user_id"`
	ReceiverName        string   `db:"receiver_name"`
	ReceiverConfirmedAt *int64   `db:"receiver_confirmed_at"`
	ReceiverConfirmedBy *string  `db:"receiver_confirmed_by"`
	TotalDeclaredWeight *float64 `db:"total_declared_weight"`
	TotalContainers     int      `db:"total_containers"`
	Token               *string  `db:"token"`
	TokenExpiresAt      *int64   `db:"token_expires_at"`
	DisputeReason       *string  `db:"dispute_reason"`
	DisputeDescription  *string  `db:"dispute_description"`
	DisputeRaisedBy     *string  `db:"dispute_raised_by"`
	DisputeRaisedName   *string  `db:"dispute_raised_name"`
	DisputeRaisedAt     *int64   `db:"dispute_raised_at"`
	ResolvingAt         *int64   `db:"resolving_at"`
	ResolvedAt          *int64   `db:"resolved_at"`
	ResolutionNotes     *string  `db:"resolution_notes"`
	CreatedAt           int64    `db:"created_at"`
	UpdatedAt           int64    `db:"updated_at"`
	CompletedAt         *int64   `db:"completed_at"`
}

const handoffColumns = `id, handoff_id, type, status, session_id, plant_id,
	sender_user_id, sender_name, sender_confirmed_at, sender_confirmed_by,
	receiver_user_id, receiver_name, receiver_confirmed_at, receiver_confirmed_by,
	total_declared_weight, total_containers, token, token_expires_at,
	dispute_reason, dispute_description, dispute_raised_by, dispute_raised_name, dispute_raised_at,
	resolving_at, resolved_at, resolution_notes, created_at, updated_at, completed_at`

type handoffContainerRow struct {
	HandoffID string `db:"handoff_id"`
	Position  int    `db:"position"`
	models.HandoffContainer
}

type handoffEventRow struct {
	HandoffID string `db:"handoff_id"`
	models.StatusChange
}

func toRow(h *models.Handoff) handoffRow {
	row := handoffRow{
		ID:                  h.ID,
		HandoffID:           h.HandoffID,
		Type:                string(h.Type),
		Status:              string(h.Status),
		SessionID:           h.SessionID,
		PlantID:             h.PlantID,
		SenderUserID:        h.Sender.UserID,
		SenderName:          h.Sender.Name,
		SenderConfirmedAt:   h.Sender.ConfirmedAt,
		SenderConfirmedBy:   h.Sender.ConfirmedBy,
		ReceiverUserID:      h.Receiver.UserID,
		ReceiverName:        h.Receiver.Name,
		ReceiverConfirmedAt: h.Receiver.ConfirmedAt,
		ReceiverConfirmedBy: h.Receiver.ConfirmedBy,
		TotalDeclaredWeight: h.TotalDeclaredWeight,
		TotalContainers:     h.TotalContainers,
		Token:               h.Token,
		TokenExpiresAt:      h.TokenExpiresAt,
		ResolvingAt:         h.ResolvingAt,
		ResolvedAt:          h.ResolvedAt,
		ResolutionNotes:     h.ResolutionNotes,
		CreatedAt:           h.CreatedAt,
		UpdatedAt:           h.UpdatedAt,
		CompletedAt:         h.CompletedAt,
	}
	if d := h.Dispute; d != nil {
		reason, raisedBy, name, at := string(d.Reason), string(d.RaisedBy), d.RaisedName, d.RaisedAt
		row.DisputeReason = &reason
		row.DisputeDescription = d.Description
		row.DisputeRaisedBy = &raisedBy
		row.DisputeRaisedName = &name
		row.DisputeRaisedAt = &at
	}
	return row
}

func (r handoffRow) toModel() *models.Handoff {
	h := &models.Handoff{
		ID:        r.ID,
		HandoffID: r.HandoffID,
		Type:      models.HandoffType(r.Type),
		Status:    models.HandoffStatus(r.Status),
		SessionID: r.SessionID,
		PlantID:   r.PlantID,
		Sender: models.HandoffParty{
			UserID:      r.SenderUserID,
			Name:        r.SenderName,
			ConfirmedAt: r.SenderConfirmedAt,
			ConfirmedBy: r.SenderConfirmedBy,
		},
		Receiver: models.HandoffParty{
			UserID:      r.ReceiverUserID,
			Name:        r.ReceiverName,
			ConfirmedAt: r.ReceiverConfirmedAt,
			ConfirmedBy: r.ReceiverConfirmedBy,
		},
		Containers:          []models.HandoffContainer{},
		TotalDeclaredWeight: r.TotalDeclaredWeight,
		TotalContainers:     r.TotalContainers,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		CompletedAt:         r.CompletedAt,
		Token:               r.Token,
		TokenExpiresAt:      r.TokenExpiresAt,
		ResolvingAt:         r.ResolvingAt,
		ResolvedAt:          r.ResolvedAt,
		ResolutionNotes:     r.ResolutionNotes,
		History:             []models.StatusChange{},
	}
	if r.DisputeReason != nil {
		d := &models.Dispute{
			Reason:      models.DisputeReason(*r.DisputeReason),
			Description: r.DisputeDescription,
		}
		if r.DisputeRaisedBy != nil {
			d.RaisedBy = models.Party(*r.DisputeRaisedBy)
		}
		if r.DisputeRaisedName != nil {
			d.RaisedName = *r.DisputeRaisedName
		}
		if r.DisputeRaisedAt != nil {
			d.RaisedAt = *r.DisputeRaisedAt
		}
		h.Dispute = d
	}
	return h
}

// loadHandoffs selects handoff rows and attaches containers and history in
// two batched queries
func loadHandoffs(ctx context.Context, q sqlx.QueryerContext, where string, args ...interface{}) ([]*models.Handoff, error) {
	var rows []handoffRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+handoffColumns+` FROM handoffs WHERE `+where, args...); err != nil {
		return nil, err
	}

	out := make([]*models.Handoff, len(rows))
	ids := make([]string, len(rows))
	byID := make(map[string]*models.Handoff, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
		ids[i] = r.ID
		byID[r.ID] = out[i]
	}
	if len(rows) == 0 {
		return out, nil
	}

	var containers []handoffContainerRow
	err := sqlx.SelectContext(ctx, q, &containers, `
		SELECT handoff_id, position, container_id, label, declared_weight, confirmed_weight, bag_count
		FROM handoff_containers
		WHERE handoff_id = ANY($1)
		ORDER BY handoff_id, position
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load handoff containers: %w", err)
	}
	for _, c := range containers {
		h := byID[c.HandoffID]
		h.Containers = append(h.Containers, c.HandoffContainer)
	}

	var events []handoffEventRow
	err = sqlx.SelectContext(ctx, q, &events, `
		SELECT handoff_id, from_status, to_status, actor, at, note
		FROM handoff_events
		WHERE handoff_id = ANY($1)
		ORDER BY handoff_id, id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load handoff history: %w", err)
	}
	for _, e := range events {
		h := byID[e.HandoffID]
		h.History = append(h.History, e.StatusChange)
	}

	return out, nil
}

func (s *Store) CreateHandoff(ctx context.Context, sessionID string, build func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error)) (*models.Handoff, error) {
	var out *models.Handoff
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		sess, err := loadSession(ctx, tx, `id = $1 FOR UPDATE`, sessionID)
		if err != nil {
			return mapErr(err, "session", sessionID)
		}
		existing, err := loadHandoffs(ctx, tx, `session_id = $1 ORDER BY created_at DESC, id`, sessionID)
		if err != nil {
			return err
		}

		h, err := build(sess, existing)
		if err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO handoffs (`+handoffColumns+`)
			VALUES (:id, :handoff_id, :type, :status, :session_id, :plant_id,
					:sender_user_id, :sender_name, :sender_confirmed_at, :sender_confirmed_by,
					:receiver_user_id, :receiver_name, :receiver_confirmed_at, :receiver_confirmed_by,
					:total_declared_weight, :total_containers, :token, :token_expires_at,
					:dispute_reason, :dispute_description, :dispute_raised_by, :dispute_raised_name, :dispute_raised_at,
					:resolving_at, :resolved_at, :resolution_notes, :created_at, :updated_at, :completed_at)
		`, toRow(h)); err != nil {
			return mapErr(err, "handoff for session", sessionID)
		}

		for i, c := range h.Containers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO handoff_containers (
					handoff_id, container_id, position, label, declared_weight, confirmed_weight, bag_count
				) VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, h.ID, c.ContainerID, i, c.Label, c.DeclaredWeight, c.ConfirmedWeight, c.BagCount)
			if err != nil {
				return mapErr(err, "handoff container", c.ContainerID)
			}
		}

		if err := insertEvents(ctx, tx, h.ID, h.History); err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, handoffID string, events []models.StatusChange) error {
	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO handoff_events (handoff_id, from_status, to_status, actor, at, note)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, handoffID, e.From, e.To, e.Actor, e.At, e.Note)
		if err != nil {
			return fmt.Errorf("failed to record handoff event: %w", err)
		}
	}
	return nil
}

func (s *Store) GetHandoff(ctx context.Context, id string) (*models.Handoff, error) {
	handoffs, err := loadHandoffs(ctx, s.db, `id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(handoffs) == 0 {
		return nil, apperr.NotFound("handoff", id)
	}
	return handoffs[0], nil
}

func (s *Store) ListHandoffs(ctx context.Context, f models.HandoffFilter) ([]*models.Handoff, error) {
	conds := []string{"TRUE"}
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if f.PlantID != "" {
		add("plant_id = $%d", f.PlantID)
	}
	if f.PartyUserID != "" {
		args = append(args, f.PartyUserID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(sender_user_id = $%d OR receiver_user_id = $%d)", n, n))
	}

	return loadHandoffs(ctx, s.db, strings.Join(conds, " AND ")+` ORDER BY created_at DESC, id`, args...)
}

func (s *Store) UpdateHandoff(ctx context.Context, id string, fn func(*models.Handoff) error) (*models.Handoff, error) {
	var out *models.Handoff
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM handoffs WHERE id = $1 FOR UPDATE`, id); err != nil {
			return mapErr(err, "handoff", id)
		}
		handoffs, err := loadHandoffs(ctx, tx, `id = $1`, id)
		if err != nil {
			return err
		}
		h := handoffs[0]
		recorded := len(h.History)

		if err := fn(h); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			UPDATE handoffs SET
				status = :status,
				sender_confirmed_at = :sender_confirmed_at, sender_confirmed_by = :sender_confirmed_by,
				receiver_user_id = :receiver_user_id, receiver_name = :receiver_name,
				receiver_confirmed_at = :receiver_confirmed_at, receiver_confirmed_by = :receiver_confirmed_by,
				token = :token, token_expires_at = :token_expires_at,
				dispute_reason = :dispute_reason, dispute_description = :dispute_description,
				dispute_raised_by = :dispute_raised_by, dispute_raised_name = :dispute_raised_name,
				dispute_raised_at = :dispute_raised_at,
				resolving_at = :resolving_at, resolved_at = :resolved_at, resolution_notes = :resolution_notes,
				updated_at = :updated_at, completed_at = :completed_at
			WHERE id = :id
		`, toRow(h)); err != nil {
			return fmt.Errorf("failed to update handoff: %w", err)
		}

		for _, c := range h.Containers {
			_, err := tx.ExecContext(ctx, `
				UPDATE handoff_containers SET confirmed_weight = $3, bag_count = $4
				WHERE handoff_id = $1 AND container_id = $2
			`, h.ID, c.ContainerID, c.ConfirmedWeight, c.BagCount)
			if err != nil {
				return fmt.Errorf("failed to update handoff container %s: %w", c.ContainerID, err)
			}
		}

		if len(h.History) > recorded {
			if err := insertEvents(ctx, tx, h.ID, h.History[recorded:]); err != nil {
				return err
			}
		}
		out = h
		return nil
	})
	return out, err
}

func (s *Store) LapsedHandoffIDs(ctx context.Context, now int64) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM handoffs
		WHERE type = 'driver_to_incinerator'
		  AND status IN ('pending', 'confirmed_by_sender')
		  AND receiver_confirmed_at IS NULL
		  AND token_expires_at IS NOT NULL AND token_expires_at <= $1
		ORDER BY id
	`, now)
	return ids, err
}

// ---- driver location ----

func (s *Store) SaveDriverLocation(ctx context.Context, loc *models.DriverLocation) error {
	// UPSERT: update if exists, insert if not
	query := `
		INSERT INTO driver_current_location (
			driver_id, latitude, longitude, heading, speed, accuracy, session_id, timestamp, is_connected, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
		ON CONFLICT (driver_id)
		DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			accuracy = EXCLUDED.accuracy,
			session_id = EXCLUDED.session_id,
			timestamp = EXCLUDED.timestamp,
			is_connected = TRUE,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		loc.DriverID, loc.Latitude, loc.Longitude, loc.Heading, loc.Speed, loc.Accuracy,
		loc.SessionID, loc.Timestamp, loc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save location: %w", err)
	}
	loc.IsConnected = true
	return nil
}

func (s *Store) MarkDriverDisconnected(ctx context.Context, driverID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE driver_current_location
		SET is_connected = FALSE,
		    updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
		WHERE driver_id = $1
	`, driverID)
	if err != nil {
		return err
	}
	log.Printf("🔴 Driver %s marked as disconnected (last position preserved)", driverID)
	return nil
}

func (s *Store) GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	var loc models.DriverLocation
	err := s.db.GetContext(ctx, &loc, `
		SELECT driver_id, latitude, longitude, heading, speed, accuracy, session_id, timestamp, is_connected, updated_at
		FROM driver_current_location
		WHERE driver_id = $1
	`, driverID)
	if err != nil {
		return nil, mapErr(err, "driver location", driverID)
	}
	return &loc, nil
}

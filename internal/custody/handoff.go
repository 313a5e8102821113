package custody

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

// NewHandoffParams describes a handoff before it exists
type NewHandoffParams struct {
	ID         string // generated when empty
	Type       models.HandoffType
	SessionID  string
	PlantID    *string
	Sender     models.HandoffParty
	Receiver   models.HandoffParty
	Containers []models.HandoffContainer

	// Driver to incinerator only
	Token          string
	TokenExpiresAt time.Time
}

// New builds a handoff in the created state with cached totals
func New(p NewHandoffParams, now time.Time) (*models.Handoff, error) {
	if !p.Type.Valid() {
		return nil, apperr.Validation("type", "unknown handoff type %q", p.Type)
	}
	if p.SessionID == "" {
		return nil, apperr.Validation("session_id", "session is required")
	}
	if len(p.Containers) == 0 {
		return nil, apperr.Validation("container_ids", "at least one container is required")
	}
	if strings.TrimSpace(p.Sender.Name) == "" {
		return nil, apperr.Validation("sender", "sender name is required")
	}
	if strings.TrimSpace(p.Receiver.Name) == "" {
		return nil, apperr.Validation("receiver", "receiver name is required")
	}

	seen := make(map[string]bool, len(p.Containers))
	total := 0.0
	for _, c := range p.Containers {
		if seen[c.ContainerID] {
			return nil, apperr.Validation("container_ids", "container %s listed twice", c.ContainerID)
		}
		if c.DeclaredWeight < 0 {
			return nil, apperr.Validation("declared_weight", "weight of %s must not be negative", c.ContainerID)
		}
		seen[c.ContainerID] = true
		total += c.DeclaredWeight
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	h := &models.Handoff{
		ID:                  id,
		HandoffID:           models.NewReference("HND", now),
		Type:                p.Type,
		Status:              models.HandoffStatusCreated,
		SessionID:           p.SessionID,
		PlantID:             p.PlantID,
		Sender:              p.Sender,
		Receiver:            p.Receiver,
		Containers:          append([]models.HandoffContainer(nil), p.Containers...),
		TotalDeclaredWeight: &total,
		TotalContainers:     len(p.Containers),
		CreatedAt:           now.Unix(),
		UpdatedAt:           now.Unix(),
		History: []models.StatusChange{{
			To:    models.HandoffStatusCreated,
			Actor: p.Sender.Name,
			At:    now.Unix(),
		}},
	}

	if p.Type == models.HandoffDriverToIncinerator {
		if p.PlantID == nil || *p.PlantID == "" {
			return nil, apperr.Validation("plant_id", "incineration plant is required")
		}
		if p.Token == "" {
			return nil, apperr.Validation("token", "confirmation token is required")
		}
		if !p.TokenExpiresAt.After(now) {
			return nil, apperr.Validation("token_expires_at", "expiry must be in the future")
		}
		token := p.Token
		exp := p.TokenExpiresAt.Unix()
		h.Token = &token
		h.TokenExpiresAt = &exp
	}

	return h, nil
}

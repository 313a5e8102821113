package models

// HandoffType distinguishes the two custody legs of a session
type HandoffType string

const (
	HandoffFacilityToDriver    HandoffType = "facility_to_driver"
	HandoffDriverToIncinerator HandoffType = "driver_to_incinerator"
)

// Valid reports whether t is a known handoff type
func (t HandoffType) Valid() bool {
	return t == HandoffFacilityToDriver || t == HandoffDriverToIncinerator
}

// HandoffStatus is the custody state of a handoff.
// Transitions live in the custody package only.
type HandoffStatus string

const (
	HandoffStatusCreated             HandoffStatus = "created"
	HandoffStatusPending             HandoffStatus = "pending"
	HandoffStatusConfirmedBySender   HandoffStatus = "confirmed_by_sender"
	HandoffStatusConfirmedByReceiver HandoffStatus = "confirmed_by_receiver"
	HandoffStatusCompleted           HandoffStatus = "completed"
	HandoffStatusDisputed            HandoffStatus = "disputed"
	HandoffStatusResolving           HandoffStatus = "resolving"
	HandoffStatusResolved            HandoffStatus = "resolved"
	HandoffStatusExpired             HandoffStatus = "expired"
)

// IsTerminal returns true for states that end normal operation
func (s HandoffStatus) IsTerminal() bool {
	return s == HandoffStatusCompleted || s == HandoffStatusResolved
}

// Party identifies which side of a handoff an actor is on
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

// DisputeReason is the closed set of dispute reasons
type DisputeReason string

const (
	DisputeWeightMismatch DisputeReason = "weight_mismatch"
	DisputeCountMismatch  DisputeReason = "count_mismatch"
	DisputeDamagedGoods   DisputeReason = "damaged_goods"
	DisputeOther          DisputeReason = "other"
)

// Valid reports whether r is one of the accepted reasons
func (r DisputeReason) Valid() bool {
	switch r {
	case DisputeWeightMismatch, DisputeCountMismatch, DisputeDamagedGoods, DisputeOther:
		return true
	}
	return false
}

// HandoffParty is one side of a custody transfer
type HandoffParty struct {
	UserID      *string `json:"user_id,omitempty"`
	Name        string  `json:"name"`
	ConfirmedAt *int64  `json:"confirmed_at,omitempty"`
	ConfirmedBy *string `json:"confirmed_by,omitempty"` // actor name recorded at confirmation
}

// Confirmed returns true once the party has recorded confirmation
func (p HandoffParty) Confirmed() bool {
	return p.ConfirmedAt != nil
}

// HandoffContainer is a container declared on a handoff
type HandoffContainer struct {
	ContainerID     string   `json:"container_id" db:"container_id"`
	Label           string   `json:"label" db:"label"`
	DeclaredWeight  float64  `json:"declared_weight" db:"declared_weight"`
	ConfirmedWeight *float64 `json:"confirmed_weight,omitempty" db:"confirmed_weight"`
	BagCount        *int     `json:"bag_count,omitempty" db:"bag_count"`
}

// Dispute records why custody was contested
type Dispute struct {
	Reason      DisputeReason `json:"reason"`
	Description *string       `json:"description,omitempty"`
	RaisedBy    Party         `json:"raised_by"`
	RaisedName  string        `json:"raised_by_name"`
	RaisedAt    int64         `json:"raised_at"`
}

// StatusChange is one audit point in a handoff's history
type StatusChange struct {
	From  HandoffStatus `json:"from" db:"from_status"`
	To    HandoffStatus `json:"to" db:"to_status"`
	Actor string        `json:"actor" db:"actor"`
	At    int64         `json:"at" db:"at"`
	Note  string        `json:"note,omitempty" db:"note"`
}

// Handoff is a custody-transfer record between two parties
type Handoff struct {
	ID                  string             `json:"id"`
	HandoffID           string             `json:"handoff_id"`
	Type                HandoffType        `json:"type"`
	Status              HandoffStatus      `json:"status"`
	SessionID           string             `json:"session_id"`
	PlantID             *string            `json:"plant_id,omitempty"`
	Sender              HandoffParty       `json:"sender"`
	Receiver            HandoffParty       `json:"receiver"`
	Containers          []HandoffContainer `json:"containers"`
	TotalDeclaredWeight *float64           `json:"total_declared_weight,omitempty"`
	TotalContainers     int                `json:"total_containers"`
	CreatedAt           int64              `json:"created_at"`
	UpdatedAt           int64              `json:"updated_at"`
	CompletedAt         *int64             `json:"completed_at,omitempty"`
	Token               *string            `json:"token,omitempty"`
	TokenExpiresAt      *int64             `json:"token_expires_at,omitempty"`
	Dispute             *Dispute           `json:"dispute,omitempty"`
	ResolvingAt         *int64             `json:"resolving_at,omitempty"`
	ResolvedAt          *int64             `json:"resolved_at,omitempty"`
	ResolutionNotes     *string            `json:"resolution_notes,omitempty"`
	History             []StatusChange     `json:"history"`
}

// IsTerminal returns true once the handoff is completed or resolved
func (h *Handoff) IsTerminal() bool {
	return h.Status.IsTerminal()
}

// PartyRecord returns a pointer to the sender or receiver record
func (h *Handoff) PartyRecord(p Party) *HandoffParty {
	if p == PartySender {
		return &h.Sender
	}
	return &h.Receiver
}

// DeclaredWeight returns the cached handoff total when present, otherwise the
// sum of per-container declared weights
func (h *Handoff) DeclaredWeight() float64 {
	if h.TotalDeclaredWeight != nil {
		return *h.TotalDeclaredWeight
	}
	total := 0.0
	for _, c := range h.Containers {
		total += c.DeclaredWeight
	}
	return total
}

// HasContainer reports whether the handoff declares containerID
func (h *Handoff) HasContainer(containerID string) bool {
	for _, c := range h.Containers {
		if c.ContainerID == containerID {
			return true
		}
	}
	return false
}

// TokenExpired reports whether the confirmation token has lapsed at now (unix seconds)
func (h *Handoff) TokenExpired(now int64) bool {
	return h.TokenExpiresAt != nil && now >= *h.TokenExpiresAt
}

// LinkLapsed reports whether a driver to incinerator handoff is still waiting
// on the plant while its confirmation link has lapsed. A sender confirmation
// does not stop the link from lapsing.
func (h *Handoff) LinkLapsed(now int64) bool {
	if h.Type != HandoffDriverToIncinerator || h.Receiver.Confirmed() {
		return false
	}
	if h.Status != HandoffStatusPending && h.Status != HandoffStatusConfirmedBySender {
		return false
	}
	return h.TokenExpired(now)
}

// PublicView hides the token from parties who only hold the link
func (h *Handoff) PublicView() *Handoff {
	cp := h.Clone()
	cp.Token = nil
	cp.Sender.UserID = nil
	cp.Receiver.UserID = nil
	return cp
}

// Clone returns a deep copy of the handoff
func (h *Handoff) Clone() *Handoff {
	cp := *h
	cp.PlantID = cloneString(h.PlantID)
	cp.Sender = cloneParty(h.Sender)
	cp.Receiver = cloneParty(h.Receiver)
	cp.Containers = make([]HandoffContainer, len(h.Containers))
	for i, c := range h.Containers {
		c.ConfirmedWeight = cloneFloat64(c.ConfirmedWeight)
		c.BagCount = cloneInt(c.BagCount)
		cp.Containers[i] = c
	}
	cp.TotalDeclaredWeight = cloneFloat64(h.TotalDeclaredWeight)
	cp.CompletedAt = cloneInt64(h.CompletedAt)
	cp.Token = cloneString(h.Token)
	cp.TokenExpiresAt = cloneInt64(h.TokenExpiresAt)
	if h.Dispute != nil {
		d := *h.Dispute
		d.Description = cloneString(h.Dispute.Description)
		cp.Dispute = &d
	}
	cp.ResolvingAt = cloneInt64(h.ResolvingAt)
	cp.ResolvedAt = cloneInt64(h.ResolvedAt)
	cp.ResolutionNotes = cloneString(h.ResolutionNotes)
	cp.History = append([]StatusChange(nil), h.History...)
	return &cp
}

func cloneParty(p HandoffParty) HandoffParty {
	p.UserID = cloneString(p.UserID)
	p.ConfirmedAt = cloneInt64(p.ConfirmedAt)
	p.ConfirmedBy = cloneString(p.ConfirmedBy)
	return p
}

// HandoffFilter narrows a handoff listing. Zero fields match everything.
type HandoffFilter struct {
	SessionID   string
	PartyUserID string // sender or receiver
	PlantID     string
}

// Matches reports whether h passes the filter
func (f HandoffFilter) Matches(h *Handoff) bool {
	if f.SessionID != "" && h.SessionID != f.SessionID {
		return false
	}
	if f.PlantID != "" && (h.PlantID == nil || *h.PlantID != f.PlantID) {
		return false
	}
	if f.PartyUserID != "" {
		sender := h.Sender.UserID != nil && *h.Sender.UserID == f.PartyUserID
		receiver := h.Receiver.UserID != nil && *h.Receiver.UserID == f.PartyUserID
		if !sender && !receiver {
			return false
		}
	}
	return true
}

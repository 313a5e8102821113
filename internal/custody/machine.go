// Package custody is the single place where handoff status changes.
//
// Every operation takes the handoff by pointer, validates first and only then
// mutates, so a returned error always leaves the handoff untouched.
package custody

import (
	"fmt"
	"strings"
	"time"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

var transitions = map[models.HandoffStatus][]models.HandoffStatus{
	models.HandoffStatusCreated: {models.HandoffStatusPending},
	models.HandoffStatusPending: {
		models.HandoffStatusConfirmedBySender,
		models.HandoffStatusConfirmedByReceiver,
		models.HandoffStatusDisputed,
		models.HandoffStatusExpired,
	},
	models.HandoffStatusConfirmedBySender: {
		models.HandoffStatusCompleted,
		models.HandoffStatusDisputed,
		models.HandoffStatusExpired,
	},
	models.HandoffStatusConfirmedByReceiver: {
		models.HandoffStatusCompleted,
		models.HandoffStatusDisputed,
	},
	models.HandoffStatusDisputed:  {models.HandoffStatusResolving},
	models.HandoffStatusResolving: {models.HandoffStatusResolved},
	models.HandoffStatusExpired:   {models.HandoffStatusPending},
}

// CanTransition reports whether from -> to is a legal custody transition
func CanTransition(from, to models.HandoffStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func confirmedStatus(p models.Party) models.HandoffStatus {
	if p == models.PartySender {
		return models.HandoffStatusConfirmedBySender
	}
	return models.HandoffStatusConfirmedByReceiver
}

func other(p models.Party) models.Party {
	if p == models.PartySender {
		return models.PartyReceiver
	}
	return models.PartySender
}

func validParty(p models.Party) bool {
	return p == models.PartySender || p == models.PartyReceiver
}

// move appends an audit point and sets the new status. Callers have already
// checked CanTransition.
func move(h *models.Handoff, to models.HandoffStatus, actor string, now time.Time, note string) {
	h.History = append(h.History, models.StatusChange{
		From:  h.Status,
		To:    to,
		Actor: actor,
		At:    now.Unix(),
		Note:  note,
	})
	h.Status = to
	h.UpdatedAt = now.Unix()
}

func checkTransition(h *models.Handoff, to models.HandoffStatus) error {
	if h.IsTerminal() {
		return fmt.Errorf("handoff %s is %s: %w", h.HandoffID, h.Status, apperr.ErrHandoffAlreadyFinalized)
	}
	if !CanTransition(h.Status, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, h.Status, to)
	}
	return nil
}

// Open moves a freshly created handoff to pending once the receiving party
// has been notified
func Open(h *models.Handoff, actor string, now time.Time) error {
	if err := checkTransition(h, models.HandoffStatusPending); err != nil {
		return err
	}
	if h.Status != models.HandoffStatusCreated {
		return fmt.Errorf("%w: open from %s", apperr.ErrInvalidTransition, h.Status)
	}
	move(h, models.HandoffStatusPending, actor, now, "receiver notified")
	return nil
}

// Confirm records confirmation by one party. The handoff completes once both
// sides have confirmed. A party confirming twice is rejected.
func Confirm(h *models.Handoff, party models.Party, actor string, now time.Time) error {
	if h.IsTerminal() {
		return fmt.Errorf("handoff %s is %s: %w", h.HandoffID, h.Status, apperr.ErrHandoffAlreadyFinalized)
	}
	if !validParty(party) {
		return apperr.Validation("party", "unknown party %q", party)
	}
	if strings.TrimSpace(actor) == "" {
		return apperr.Validation("actor", "confirming actor is required")
	}

	switch h.Status {
	case models.HandoffStatusPending, models.HandoffStatusConfirmedBySender, models.HandoffStatusConfirmedByReceiver:
	default:
		return fmt.Errorf("%w: cannot confirm a %s handoff", apperr.ErrInvalidTransition, h.Status)
	}

	rec := h.PartyRecord(party)
	if rec.Confirmed() || h.Status == confirmedStatus(party) {
		return fmt.Errorf("%w: %s has already confirmed", apperr.ErrInvalidTransition, party)
	}

	otherConfirmed := h.PartyRecord(other(party)).Confirmed() || h.Status == confirmedStatus(other(party))

	stamp := now.Unix()
	name := actor
	rec.ConfirmedAt = &stamp
	rec.ConfirmedBy = &name

	if h.Status == models.HandoffStatusPending {
		move(h, confirmedStatus(party), actor, now, "")
	}

	if otherConfirmed {
		move(h, models.HandoffStatusCompleted, actor, now, "")
		h.CompletedAt = &stamp
	}
	return nil
}

// Dispute contests custody before completion. Reason other needs a description.
func Dispute(h *models.Handoff, party models.Party, actor string, reason models.DisputeReason, description string, now time.Time) error {
	if err := checkTransition(h, models.HandoffStatusDisputed); err != nil {
		return err
	}
	if !validParty(party) {
		return apperr.Validation("party", "unknown party %q", party)
	}
	if !reason.Valid() {
		return apperr.Validation("reason", "must be one of weight_mismatch, count_mismatch, damaged_goods, other")
	}

	description = strings.TrimSpace(description)
	if reason == models.DisputeOther && description == "" {
		return apperr.Validation("description", "description is required when reason is other")
	}

	d := &models.Dispute{
		Reason:     reason,
		RaisedBy:   party,
		RaisedName: actor,
		RaisedAt:   now.Unix(),
	}
	if description != "" {
		d.Description = &description
	}
	h.Dispute = d
	move(h, models.HandoffStatusDisputed, actor, now, string(reason))
	return nil
}

// Resend installs a fresh confirmation token. Valid on expired handoffs
// (back to pending) and on pending ones (token refresh).
func Resend(h *models.Handoff, actor, token string, expiresAt, now time.Time) error {
	if h.IsTerminal() {
		return fmt.Errorf("handoff %s is %s: %w", h.HandoffID, h.Status, apperr.ErrHandoffAlreadyFinalized)
	}
	if h.Type != models.HandoffDriverToIncinerator {
		return fmt.Errorf("%w: %s handoffs have no confirmation token", apperr.ErrInvalidTransition, h.Type)
	}
	if h.Status != models.HandoffStatusExpired && h.Status != models.HandoffStatusPending {
		return fmt.Errorf("%w: cannot resend confirmation for a %s handoff", apperr.ErrInvalidTransition, h.Status)
	}
	if token == "" {
		return apperr.Validation("token", "new token is required")
	}
	if h.Token != nil && *h.Token == token {
		return apperr.Validation("token", "new token must differ from the previous one")
	}
	if !expiresAt.After(now) {
		return apperr.Validation("token_expires_at", "expiry must be in the future")
	}

	exp := expiresAt.Unix()
	h.Token = &token
	h.TokenExpiresAt = &exp

	if h.Status == models.HandoffStatusExpired {
		move(h, models.HandoffStatusPending, actor, now, "confirmation resent")
		return nil
	}

	h.History = append(h.History, models.StatusChange{
		From:  h.Status,
		To:    h.Status,
		Actor: actor,
		At:    now.Unix(),
		Note:  "token refreshed",
	})
	h.UpdatedAt = now.Unix()
	return nil
}

// Expire moves a driver to incinerator handoff whose link lapsed before the
// plant confirmed to expired. A driver confirmation already recorded is kept,
// so after a resend the plant's confirmation completes the handoff. It
// reports whether the handoff changed.
func Expire(h *models.Handoff, now time.Time) bool {
	if !h.LinkLapsed(now.Unix()) {
		return false
	}
	move(h, models.HandoffStatusExpired, "system", now, "confirmation token lapsed")
	return true
}

// BeginResolving records that an administrator has started triaging a dispute
func BeginResolving(h *models.Handoff, actor string, now time.Time) error {
	if err := checkTransition(h, models.HandoffStatusResolving); err != nil {
		return err
	}
	at := now.Unix()
	h.ResolvingAt = &at
	move(h, models.HandoffStatusResolving, actor, now, "")
	return nil
}

// Resolve closes a dispute. The outcome is decided outside the system; only
// the notes and timestamp are recorded.
func Resolve(h *models.Handoff, actor, notes string, now time.Time) error {
	if err := checkTransition(h, models.HandoffStatusResolved); err != nil {
		return err
	}
	at := now.Unix()
	h.ResolvedAt = &at
	if n := strings.TrimSpace(notes); n != "" {
		h.ResolutionNotes = &n
	}
	move(h, models.HandoffStatusResolved, actor, now, "")
	return nil
}

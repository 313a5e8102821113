package services

import (
	"context"

	"medwaste-backend/internal/models"
)

// Notifier delivers invalidation signals to interested parties. Delivery is
// best effort: implementations log failures and never return them.
type Notifier interface {
	// HandoffPending fires when a handoff is waiting on its receiver.
	// confirmURL is empty for handoffs without a confirmation link.
	HandoffPending(ctx context.Context, h *models.Handoff, confirmURL string)
	HandoffUpdated(ctx context.Context, h *models.Handoff)
	SessionUpdated(ctx context.Context, s *models.CollectionSession)
}

// MultiNotifier fans a signal out to every wrapped notifier
type MultiNotifier []Notifier

func (m MultiNotifier) HandoffPending(ctx context.Context, h *models.Handoff, confirmURL string) {
	for _, n := range m {
		n.HandoffPending(ctx, h, confirmURL)
	}
}

func (m MultiNotifier) HandoffUpdated(ctx context.Context, h *models.Handoff) {
	for _, n := range m {
		n.HandoffUpdated(ctx, h)
	}
}

func (m MultiNotifier) SessionUpdated(ctx context.Context, s *models.CollectionSession) {
	for _, n := range m {
		n.SessionUpdated(ctx, s)
	}
}

// HandoffRecipients returns the account holders that should hear about h
func HandoffRecipients(ctx context.Context, store Store, h *models.Handoff) []string {
	var ids []string
	for _, p := range []models.HandoffParty{h.Sender, h.Receiver} {
		if p.UserID != nil && *p.UserID != "" {
			ids = append(ids, *p.UserID)
		}
	}
	if h.Type == models.HandoffDriverToIncinerator && h.PlantID != nil && store != nil {
		operators, err := store.PlantUserIDs(ctx, *h.PlantID)
		if err == nil {
			ids = append(ids, operators...)
		}
	}
	return ids
}

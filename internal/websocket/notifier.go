package websocket

import (
	"context"

	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
)

// Notifier pushes invalidation messages to connected clients. Parties get
// the handoff directly; admins see every change.
type Notifier struct {
	hub   *Hub
	store services.Store
}

func NewNotifier(hub *Hub, store services.Store) *Notifier {
	return &Notifier{hub: hub, store: store}
}

func (n *Notifier) HandoffPending(ctx context.Context, h *models.Handoff, confirmURL string) {
	n.handoff(ctx, "handoff_pending", h)
}

func (n *Notifier) HandoffUpdated(ctx context.Context, h *models.Handoff) {
	n.handoff(ctx, "handoff_updated", h)
}

func (n *Notifier) handoff(ctx context.Context, kind string, h *models.Handoff) {
	msg := map[string]interface{}{
		"type": kind,
		"data": h.PublicView(),
	}
	for _, userID := range services.HandoffRecipients(ctx, n.store, h) {
		n.hub.BroadcastToUser(userID, msg)
	}
	n.hub.BroadcastToRole(models.RoleAdmin, msg)
}

func (n *Notifier) SessionUpdated(ctx context.Context, s *models.CollectionSession) {
	msg := map[string]interface{}{
		"type": "session_updated",
		"data": s.Summarize(),
	}
	n.hub.BroadcastToUser(s.DriverID, msg)
	n.hub.BroadcastToRole(models.RoleAdmin, msg)
}

package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"medwaste-backend/internal/models"
)

// FCMService pushes handoff and session signals to mobile devices
type FCMService struct {
	client *messaging.Client
	store  Store
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string, store Store) (*FCMService, error) {
	return newFCMService(option.WithCredentialsFile(credentialsFile), store)
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials
// This is useful for cloud deployments where you can't upload files easily
func NewFCMServiceFromBase64(credentialsBase64 string, store Store) (*FCMService, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}
	return newFCMService(option.WithCredentialsJSON(credentialsJSON), store)
}

func newFCMService(opt option.ClientOption, store Store) (*FCMService, error) {
	ctx := context.Background()

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client, store: store}, nil
}

// HandoffPending notifies the receiver that a handoff awaits confirmation
func (s *FCMService) HandoffPending(ctx context.Context, h *models.Handoff, confirmURL string) {
	data := handoffData("handoff_pending", h)
	if confirmURL != "" {
		data["confirm_url"] = confirmURL
	}
	body := fmt.Sprintf("%d containers (%.1f kg) from %s are waiting for your confirmation.",
		h.TotalContainers, h.DeclaredWeight(), h.Sender.Name)
	s.send(ctx, HandoffRecipients(ctx, s.store, h), "Handoff awaiting confirmation", body, data)
}

// HandoffUpdated notifies both parties of a status change
func (s *FCMService) HandoffUpdated(ctx context.Context, h *models.Handoff) {
	body := fmt.Sprintf("Handoff %s is now %s", h.HandoffID, h.Status)
	s.send(ctx, HandoffRecipients(ctx, s.store, h), "Handoff update", body, handoffData("handoff_updated", h))
}

// SessionUpdated notifies the driver that their session changed
func (s *FCMService) SessionUpdated(ctx context.Context, sess *models.CollectionSession) {
	data := map[string]string{
		"type":       "session_updated",
		"session_id": sess.ID,
		"status":     string(sess.Status),
		"visited":    strconv.Itoa(sess.VisitedCount()),
		"total":      strconv.Itoa(len(sess.Containers)),
	}
	body := fmt.Sprintf("Session %s is %s", sess.SessionID, sess.Status)
	s.send(ctx, []string{sess.DriverID}, "Session update", body, data)
}

func handoffData(kind string, h *models.Handoff) map[string]string {
	return map[string]string{
		"type":       kind,
		"handoff_id": h.ID,
		"reference":  h.HandoffID,
		"status":     string(h.Status),
		"session_id": h.SessionID,
	}
}

func (s *FCMService) send(ctx context.Context, userIDs []string, title, body string, data map[string]string) {
	if len(userIDs) == 0 {
		return
	}

	tokens, err := s.store.DeviceTokens(ctx, userIDs)
	if err != nil {
		log.Printf("⚠️  [FCM] Failed to load device tokens: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := s.SendMulticast(ctx, tokens, title, body, data); err != nil {
		log.Printf("⚠️  [FCM] %v", err)
	}
}

// SendMulticast sends the same message to multiple tokens
func (s *FCMService) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending multicast message: %w", err)
	}

	log.Printf("✅ Multicast sent: %d success, %d failures", response.SuccessCount, response.FailureCount)
	return nil
}

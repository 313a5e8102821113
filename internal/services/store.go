package services

import (
	"context"

	"medwaste-backend/internal/models"
)

// Store is the persistence port. Implemented by the Postgres store in
// internal/database and by internal/database/memstore.
//
// Update* calls hold an exclusive lock on the row for the duration of fn and
// write nothing when fn returns an error. Missing rows yield apperr.ErrNotFound.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error // ErrConflict on duplicate email
	PlantUserIDs(ctx context.Context, plantID string) ([]string, error)
	DeviceTokens(ctx context.Context, userIDs []string) ([]string, error)
	SaveDeviceToken(ctx context.Context, t *models.FCMToken) error

	ListContainers(ctx context.Context, companyID string) ([]models.WasteContainer, error)
	GetContainer(ctx context.Context, id string) (*models.WasteContainer, error)
	// GetContainers returns containers in ids order, ErrNotFound if any is missing
	GetContainers(ctx context.Context, ids []string) ([]models.WasteContainer, error)

	ListPlants(ctx context.Context) ([]models.IncinerationPlant, error)
	GetPlant(ctx context.Context, id string) (*models.IncinerationPlant, error)

	// CreateSession returns ErrConflict when the driver already has an active session
	CreateSession(ctx context.Context, s *models.CollectionSession) error
	GetSession(ctx context.Context, id string) (*models.CollectionSession, error)
	ActiveSession(ctx context.Context, driverID string) (*models.CollectionSession, error)
	UpdateSession(ctx context.Context, id string, fn func(*models.CollectionSession) error) (*models.CollectionSession, error)
	// CloseSession is UpdateSession with the session's handoffs read under
	// the same lock. CreateHandoff takes that lock too, so fn always sees
	// every handoff committed before the close.
	CloseSession(ctx context.Context, id string, fn func(*models.CollectionSession, []*models.Handoff) error) (*models.CollectionSession, error)

	// CreateHandoff locks the session, hands it and its existing handoffs to
	// build and inserts the result in the same transaction. A second
	// driver_to_incinerator handoff for a session yields ErrConflict.
	CreateHandoff(ctx context.Context, sessionID string, build func(*models.CollectionSession, []*models.Handoff) (*models.Handoff, error)) (*models.Handoff, error)
	GetHandoff(ctx context.Context, id string) (*models.Handoff, error)
	ListHandoffs(ctx context.Context, f models.HandoffFilter) ([]*models.Handoff, error)
	UpdateHandoff(ctx context.Context, id string, fn func(*models.Handoff) error) (*models.Handoff, error)
	// LapsedHandoffIDs lists handoffs whose link lapsed at or before now while
	// the receiver had not confirmed (see models.Handoff.LinkLapsed)
	LapsedHandoffIDs(ctx context.Context, now int64) ([]string, error)

	// SaveDriverLocation upserts the driver's last position and marks them connected
	SaveDriverLocation(ctx context.Context, loc *models.DriverLocation) error
	MarkDriverDisconnected(ctx context.Context, driverID string) error
	GetDriverLocation(ctx context.Context, driverID string) (*models.DriverLocation, error)
}

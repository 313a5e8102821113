package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
)

// ErrBadCredentials is returned by Authenticate for an unknown email or a
// wrong password, without saying which
var ErrBadCredentials = errors.New("invalid email or password")

// UserService manages accounts and their push tokens
type UserService struct {
	store Store
	cost  int
	now   func() time.Time
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

// Authenticate checks an email and password pair
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// NewUser is the input for Create
type NewUser struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	CompanyID *string `json:"company_id,omitempty"`
	PlantID   *string `json:"plant_id,omitempty"`
}

// Create adds an account. Facility staff need a company and plant operators
// an existing plant.
func (s *UserService) Create(ctx context.Context, req NewUser) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, apperr.Validation("email", "a valid email is required")
	}
	if len(req.Password) < 8 {
		return nil, apperr.Validation("password", "password must be at least 8 characters")
	}
	if req.Name == "" {
		return nil, apperr.Validation("name", "name is required")
	}
	if !models.ValidRole(req.Role) {
		return nil, apperr.Validation("role", "role must be one of driver, facility, incinerator, admin")
	}
	if req.Role == models.RoleFacility && (req.CompanyID == nil || *req.CompanyID == "") {
		return nil, apperr.Validation("company_id", "facility users need a company")
	}
	if req.Role == models.RoleIncinerator {
		if req.PlantID == nil || *req.PlantID == "" {
			return nil, apperr.Validation("plant_id", "incinerator users need a plant")
		}
		if _, err := s.store.GetPlant(ctx, *req.PlantID); err != nil {
			return nil, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().Unix()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Password:  string(hashed),
		Name:      req.Name,
		Role:      req.Role,
		CompanyID: req.CompanyID,
		PlantID:   req.PlantID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("✅ User created: %s (%s)", user.Email, user.Role)
	return user, nil
}

// RegisterDevice stores a push token for the user. Re-registering a token
// moves it to the latest user.
func (s *UserService) RegisterDevice(ctx context.Context, userID, token, deviceType string) (*models.FCMToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Validation("token", "token is required")
	}
	if deviceType != "ios" && deviceType != "android" {
		return nil, apperr.Validation("device_type", "device_type must be ios or android")
	}

	now := s.now().Unix()
	t := &models.FCMToken{
		UserID:     userID,
		Token:      token,
		DeviceType: deviceType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveDeviceToken(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"medwaste-backend/internal/middleware"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool                 `json:"ok"`
	Token string               `json:"token,omitempty"`
	User  *models.UserResponse `json:"user,omitempty"`
}

func Login(users *services.UserService, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		log.Printf("🔐 Login attempt for: %s", req.Email)

		user, err := users.Authenticate(r.Context(), req.Email, req.Password)
		if errors.Is(err, services.ErrBadCredentials) {
			log.Printf("❌ Invalid credentials for: %s", req.Email)
			utils.RespondJSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}

		tokenString, err := middleware.IssueUserToken(jwtSecret, user, time.Now())
		if err != nil {
			log.Printf("❌ Failed to create token: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create token")
			return
		}

		userResponse := user.ToUserResponse()
		log.Printf("✅ Login successful: %s (%s)", user.Email, user.Role)

		utils.RespondJSON(w, http.StatusOK, LoginResponse{
			OK:    true,
			Token: tokenString,
			User:  &userResponse,
		})
	}
}

// GetAuthStatus returns the account behind the bearer token
func GetAuthStatus(users services.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}
		user, err := users.GetUser(r.Context(), actor.UserID)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, user.ToUserResponse())
	}
}

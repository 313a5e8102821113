package handlers

import (
	"log"
	"net/http"

	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// CreateUser creates a new account of any role. Requires admin authentication.
func CreateUser(users *services.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("📥 REQUEST: POST /api/users - Create new user")

		var req services.NewUser
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		user, err := users.Create(r.Context(), req)
		if err != nil {
			log.Printf("❌ Create user failed: %v", err)
			utils.RespondAppError(w, err)
			return
		}

		log.Printf("✅ USER CREATED: %s (%s) %s", user.Email, user.Role, user.ID)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		respondData(w, http.StatusCreated, user.ToUserResponse())
	}
}

type RegisterFCMTokenRequest struct {
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
}

// RegisterFCMToken stores the caller's push token
func RegisterFCMToken(users *services.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req RegisterFCMTokenRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		if _, err := users.RegisterDevice(r.Context(), actor.UserID, req.Token, req.DeviceType); err != nil {
			log.Printf("❌ Error registering FCM token: %v", err)
			utils.RespondAppError(w, err)
			return
		}

		log.Printf("✅ FCM token registered for %s (%s)", actor.UserID, req.DeviceType)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "FCM token registered",
		})
	}
}

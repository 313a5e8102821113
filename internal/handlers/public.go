package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// Token routes serve plant operators who only hold a confirmation link. They
// never expose the token or party user ids.

func GetHandoffByToken(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := handoffs.Lookup(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, h)
	}
}

type TokenConfirmRequest struct {
	Name string `json:"name"`
}

func ConfirmHandoffByToken(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenConfirmRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		h, err := handoffs.ConfirmWithToken(r.Context(), chi.URLParam(r, "token"), req.Name)
		if err != nil {
			log.Printf("❌ Token confirmation failed: %v", err)
			utils.RespondAppError(w, err)
			return
		}
		log.Printf("✅ Handoff %s confirmed by %s via link", h.HandoffID, req.Name)
		respondData(w, http.StatusOK, h)
	}
}

type TokenDisputeRequest struct {
	Name        string               `json:"name"`
	Reason      models.DisputeReason `json:"reason"`
	Description string               `json:"description,omitempty"`
}

func DisputeHandoffByToken(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenDisputeRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		h, err := handoffs.DisputeWithToken(r.Context(), chi.URLParam(r, "token"), req.Name, req.Reason, req.Description)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		log.Printf("⚠️ Handoff %s disputed by %s via link: %s", h.HandoffID, req.Name, req.Reason)
		respondData(w, http.StatusOK, h)
	}
}

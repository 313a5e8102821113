package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// handoffBody adds the confirmation link to handoffs that carry a token
func handoffBody(handoffs *services.HandoffService, h *models.Handoff) map[string]interface{} {
	body := map[string]interface{}{"handoff": h}
	if h.Token != nil {
		body["confirm_url"] = handoffs.ConfirmURL(*h.Token)
	}
	return body
}

func GetHandoffs(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		list, err := handoffs.List(r.Context(), actor, r.URL.Query().Get("session_id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, list)
	}
}

func GetHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		h, err := handoffs.Get(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, handoffBody(handoffs, h))
	}
}

type CreateHandoffRequest struct {
	Type         models.HandoffType `json:"type"`
	SessionID    string             `json:"session_id"`
	ContainerIDs []string           `json:"container_ids"`
	// facility_to_driver: the receiving driver, defaults to the session's driver
	DriverID string `json:"driver_id,omitempty"`
	// driver_to_incinerator: the receiving plant
	PlantID string `json:"plant_id,omitempty"`
}

func CreateHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Println("📥 REQUEST: POST /api/handoffs")

		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req CreateHandoffRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}
		if req.SessionID == "" {
			utils.RespondAppError(w, apperr.Validation("session_id", "session_id is required"))
			return
		}

		var (
			h   *models.Handoff
			err error
		)
		switch req.Type {
		case models.HandoffFacilityToDriver:
			h, err = handoffs.CreateFacilityToDriver(r.Context(), actor, req.SessionID, req.ContainerIDs, req.DriverID)
		case models.HandoffDriverToIncinerator:
			h, err = handoffs.CreateDriverToIncinerator(r.Context(), actor, req.SessionID, req.ContainerIDs, req.PlantID)
		default:
			err = apperr.Validation("type", "type must be facility_to_driver or driver_to_incinerator")
		}
		if err != nil {
			log.Printf("❌ Create handoff failed: %v", err)
			utils.RespondAppError(w, err)
			return
		}

		log.Printf("✅ Handoff %s created (%s, %s)", h.HandoffID, h.Type, h.Status)
		respondData(w, http.StatusCreated, handoffBody(handoffs, h))
	}
}

func ConfirmHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		h, err := handoffs.Confirm(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, handoffBody(handoffs, h))
	}
}

type DisputeRequest struct {
	Reason      models.DisputeReason `json:"reason"`
	Description string               `json:"description,omitempty"`
}

func DisputeHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req DisputeRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		h, err := handoffs.Dispute(r.Context(), actor, chi.URLParam(r, "id"), req.Reason, req.Description)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		log.Printf("⚠️ Handoff %s disputed by %s: %s", h.HandoffID, actor.Name, req.Reason)
		respondData(w, http.StatusOK, handoffBody(handoffs, h))
	}
}

// ResendHandoff issues a fresh confirmation link for an incineration handoff
func ResendHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		h, err := handoffs.Resend(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, handoffBody(handoffs, h))
	}
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// BeginResolving records that an administrator has picked up a disputed handoff
func BeginResolving(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		h, err := handoffs.BeginResolving(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, h)
	}
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

func ResolveHandoff(handoffs *services.HandoffService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req ResolveRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		h, err := handoffs.Resolve(r.Context(), actor, chi.URLParam(r, "id"), req.Notes)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, h)
	}
}

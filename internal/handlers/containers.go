package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// GetContainers lists a company's containers. Facility staff default to
// their own company.
func GetContainers(containers *services.ContainerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		list, err := containers.List(r.Context(), actor, r.URL.Query().Get("company_id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, list)
	}
}

func GetContainer(containers *services.ContainerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		c, err := containers.Get(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, c)
	}
}

// GetPlants lists incineration plants; ?active=true hides plants that are offline
func GetPlants(plants *services.PlantService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := plants.List(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, list)
	}
}

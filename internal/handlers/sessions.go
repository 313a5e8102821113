package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medwaste-backend/internal/apperr"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
	"medwaste-backend/pkg/utils"
)

// GetCurrentSession returns the driver's active session, or null data
func GetCurrentSession(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Printf("📥 REQUEST: GET /api/driver/session/current")

		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		sess, err := sessions.Active(r.Context(), actor.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			log.Printf("📤 RESPONSE: 200 - No active session found")
			respondData(w, http.StatusOK, nil)
			return
		}
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}

		log.Printf("📤 RESPONSE: 200 OK - session %s, %d/%d visited", sess.SessionID, sess.VisitedCount(), len(sess.Containers))
		respondData(w, http.StatusOK, sess.Summarize())
	}
}

type StartSessionRequest struct {
	ContainerIDs  []string `json:"container_ids"`
	StartLocation *LatLng  `json:"start_location,omitempty"`
}

func StartSession(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Printf("📥 REQUEST: POST /api/driver/session/start")

		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req StartSessionRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		sess, err := sessions.Start(r.Context(), actor, req.ContainerIDs, req.StartLocation.point())
		if err != nil {
			log.Printf("❌ Start session failed: %v", err)
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusCreated, sess.Summarize())
	}
}

type MarkVisitedRequest struct {
	ContainerID     string   `json:"container_id"`
	CollectedWeight *float64 `json:"collected_weight,omitempty"`
}

func MarkVisited(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req MarkVisitedRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}
		if req.ContainerID == "" {
			utils.RespondAppError(w, apperr.Validation("container_id", "container_id is required"))
			return
		}

		sess, err := sessions.MarkVisited(r.Context(), actor, chi.URLParam(r, "id"), req.ContainerID, req.CollectedWeight)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, sess.Summarize())
	}
}

func StopSession(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		sess, err := sessions.Stop(r.Context(), actor, chi.URLParam(r, "id"))
		if err != nil {
			log.Printf("❌ Stop session failed: %v", err)
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, sess.Summarize())
	}
}

// GetNextStop orders the remaining containers from ?lat=&lng= when given
func GetNextStop(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		pos, ok := positionQuery(r)
		if !ok {
			utils.RespondAppError(w, apperr.Validation("position", "lat and lng must both be numbers"))
			return
		}

		route, err := sessions.Route(r.Context(), actor, chi.URLParam(r, "id"), pos)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		respondData(w, http.StatusOK, route)
	}
}

type LocationRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// UpdateLocation is the HTTP fallback for the WebSocket location_update message
func UpdateLocation(sessions *services.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentActor(w, r)
		if !ok {
			return
		}

		var req LocationRequest
		if err := utils.DecodeJSON(r, &req); err != nil {
			utils.RespondAppError(w, err)
			return
		}

		loc := &models.DriverLocation{
			DriverID:  actor.UserID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Heading:   req.Heading,
			Speed:     req.Speed,
			Accuracy:  req.Accuracy,
			Timestamp: req.Timestamp,
		}
		sess, route, err := sessions.RecordLocation(r.Context(), loc)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}

		data := map[string]interface{}{"location": loc}
		if sess != nil {
			data["session_id"] = sess.ID
			data["route"] = route
		}
		respondData(w, http.StatusOK, data)
	}
}

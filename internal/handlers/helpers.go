package handlers

import (
	"net/http"
	"strconv"

	"medwaste-backend/internal/geo"
	"medwaste-backend/internal/middleware"
	"medwaste-backend/internal/models"
	"medwaste-backend/pkg/utils"
)

// currentActor reads the authenticated user, answering 401 when absent
func currentActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	userClaims, ok := middleware.GetUserFromContext(r)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return models.Actor{}, false
	}
	return userClaims.Actor(), true
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	utils.RespondJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// LatLng is the wire form of a coordinate pair
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *LatLng) point() *geo.Point {
	if p == nil {
		return nil
	}
	return &geo.Point{Lat: p.Latitude, Lng: p.Longitude}
}

// positionQuery reads optional ?lat=&lng= parameters. Both or neither must be set.
func positionQuery(r *http.Request) (*geo.Point, bool) {
	latStr, lngStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, true
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, false
	}
	return &geo.Point{Lat: lat, Lng: lng}, true
}

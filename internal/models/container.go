package models

import (
	"time"

	"medwaste-backend/internal/geo"
)

// WasteType tags the hazard class of a container's contents
type WasteType string

const (
	WasteTypeInfectious     WasteType = "infectious"
	WasteTypeSharps         WasteType = "sharps"
	WasteTypePathological   WasteType = "pathological"
	WasteTypePharmaceutical WasteType = "pharmaceutical"
	WasteTypeChemical       WasteType = "chemical"
	WasteTypeGeneral        WasteType = "general"
)

// WasteContainer is a facility-owned container with live telemetry.
// Sessions and handoffs reference containers by ID, they never own them.
type WasteContainer struct {
	ID          string    `json:"id" db:"id"`
	Label       string    `json:"label" db:"label"`
	CompanyID   string    `json:"company_id" db:"company_id"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	Fullness    int       `json:"fullness" db:"fullness"`                  // 0-100
	Temperature *float64  `json:"temperature,omitempty" db:"temperature"` // Celsius
	WasteType   WasteType `json:"waste_type" db:"waste_type"`
	LastUpdate  int64     `json:"last_update" db:"last_update"` // Unix timestamp
	CreatedAt   int64     `json:"created_at" db:"created_at"`
	UpdatedAt   int64     `json:"updated_at" db:"updated_at"`
}

// Location returns the container position, or nil when it has none
func (c *WasteContainer) Location() *geo.Point {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &geo.Point{Lat: *c.Latitude, Lng: *c.Longitude}
}

// IsStale reports whether telemetry is older than maxAge
func (c *WasteContainer) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(time.Unix(c.LastUpdate, 0)) > maxAge
}

// IncinerationPlant is read-only reference data for driver to incinerator handoffs
type IncinerationPlant struct {
	ID        string   `json:"id" db:"id"`
	Name      string   `json:"name" db:"name"`
	Address   string   `json:"address" db:"address"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	Active    bool     `json:"active" db:"active"`
}

package models

// DriverLocation is the latest reported position of a driver, one row per driver
type DriverLocation struct {
	DriverID    string   `json:"driver_id" db:"driver_id"`
	Latitude    float64  `json:"latitude" db:"latitude"`
	Longitude   float64  `json:"longitude" db:"longitude"`
	Heading     *float64 `json:"heading,omitempty" db:"heading"`
	Speed       *float64 `json:"speed,omitempty" db:"speed"`
	Accuracy    *float64 `json:"accuracy,omitempty" db:"accuracy"`
	SessionID   *string  `json:"session_id,omitempty" db:"session_id"`
	Timestamp   int64    `json:"timestamp" db:"timestamp"`
	IsConnected bool     `json:"is_connected" db:"is_connected"`
	UpdatedAt   int64    `json:"updated_at" db:"updated_at"`
}

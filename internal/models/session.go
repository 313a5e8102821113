package models

import "medwaste-backend/internal/geo"

// SessionStatus represents the lifecycle of a collection session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// SelectedContainer is a container picked for a session, in visiting order
type SelectedContainer struct {
	ContainerID     string   `json:"container_id" db:"container_id"`
	Label           string   `json:"label" db:"label"`
	SequenceOrder   int      `json:"sequence_order" db:"sequence_order"`
	Latitude        *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude       *float64 `json:"longitude,omitempty" db:"longitude"`
	Visited         bool     `json:"visited" db:"visited"`
	VisitedAt       *int64   `json:"visited_at,omitempty" db:"visited_at"`
	CollectedWeight *float64 `json:"collected_weight,omitempty" db:"collected_weight"` // kg
}

// Location returns the container position, or nil when it has none
func (c SelectedContainer) Location() *geo.Point {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &geo.Point{Lat: *c.Latitude, Lng: *c.Longitude}
}

// CollectionSession is a driver's single collection run.
// Immutable once Status is completed.
type CollectionSession struct {
	ID             string              `json:"id" db:"id"`
	SessionID      string              `json:"session_id" db:"session_id"`
	DriverID       string              `json:"driver_id" db:"driver_id"`
	Status         SessionStatus       `json:"status" db:"status"`
	StartTime      int64               `json:"start_time" db:"start_time"`
	EndTime        *int64              `json:"end_time,omitempty" db:"end_time"`
	StartLatitude  *float64            `json:"start_latitude,omitempty" db:"start_latitude"`
	StartLongitude *float64            `json:"start_longitude,omitempty" db:"start_longitude"`
	Containers     []SelectedContainer `json:"containers" db:"-"`
	CreatedAt      int64               `json:"created_at" db:"created_at"`
	UpdatedAt      int64               `json:"updated_at" db:"updated_at"`
}

// IsCompleted returns true once the session has been closed
func (s *CollectionSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// VisitedCount returns the number of visited containers
func (s *CollectionSession) VisitedCount() int {
	n := 0
	for _, c := range s.Containers {
		if c.Visited {
			n++
		}
	}
	return n
}

// TotalCollectedWeight sums the weights recorded at mark-visited time
func (s *CollectionSession) TotalCollectedWeight() float64 {
	total := 0.0
	for _, c := range s.Containers {
		if c.CollectedWeight != nil {
			total += *c.CollectedWeight
		}
	}
	return total
}

// Container finds a selected container by container ID
func (s *CollectionSession) Container(containerID string) (SelectedContainer, bool) {
	for _, c := range s.Containers {
		if c.ContainerID == containerID {
			return c, true
		}
	}
	return SelectedContainer{}, false
}

// Unvisited returns a copy of the unvisited containers in session order
func (s *CollectionSession) Unvisited() []SelectedContainer {
	out := make([]SelectedContainer, 0, len(s.Containers))
	for _, c := range s.Containers {
		if !c.Visited {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy so callers can't mutate shared state
func (s *CollectionSession) Clone() *CollectionSession {
	cp := *s
	cp.EndTime = cloneInt64(s.EndTime)
	cp.StartLatitude = cloneFloat64(s.StartLatitude)
	cp.StartLongitude = cloneFloat64(s.StartLongitude)
	cp.Containers = make([]SelectedContainer, len(s.Containers))
	for i, c := range s.Containers {
		c.Latitude = cloneFloat64(c.Latitude)
		c.Longitude = cloneFloat64(c.Longitude)
		c.VisitedAt = cloneInt64(c.VisitedAt)
		c.CollectedWeight = cloneFloat64(c.CollectedWeight)
		cp.Containers[i] = c
	}
	return &cp
}

// SessionSummary is the response body for session progress
type SessionSummary struct {
	Session              *CollectionSession `json:"session"`
	VisitedCount         int                `json:"visited_count"`
	TotalContainers      int                `json:"total_containers"`
	TotalCollectedWeight float64            `json:"total_collected_weight"`
}

// Summarize builds a SessionSummary for API responses
func (s *CollectionSession) Summarize() SessionSummary {
	return SessionSummary{
		Session:              s,
		VisitedCount:         s.VisitedCount(),
		TotalContainers:      len(s.Containers),
		TotalCollectedWeight: s.TotalCollectedWeight(),
	}
}

func cloneFloat64(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"medwaste-backend/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048 // Increased for location_update messages

	// Upper bound on handling one location_update, route provider included
	locationTimeout = 15 * time.Second
)

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	UserID   string
	UserRole string
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"` // For location_update data
}

// NewClient creates a new WebSocket client
func NewClient(userID string, userRole string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID:   userID,
		UserRole: userRole,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		// Mark driver as disconnected when WebSocket closes
		c.markAsDisconnected()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Parse incoming message
		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		// Handle different message types
		switch msg.Type {
		case "ping":
			// Respond with pong
			response := map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			}
			c.reply(response)

		case "location_update":
			if c.UserRole != models.RoleDriver {
				log.Printf("⚠️ Ignoring location_update from non-driver %s", c.UserID)
				continue
			}
			c.handleLocationUpdate(msg.Data)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("❌ Failed to marshal reply: %v", err)
		return
	}
	c.hub.sendTo(c, data)
}

func (c *Client) replyError(message string) {
	c.reply(map[string]interface{}{
		"type":  "error",
		"error": message,
	})
}

// handleLocationUpdate stores the driver's position and answers with the
// recomputed next stop of their active session
func (c *Client) handleLocationUpdate(data map[string]interface{}) {
	log.Printf("📍 Received location_update from driver %s", c.UserID)

	latitude, ok := data["latitude"].(float64)
	if !ok {
		log.Printf("❌ Invalid latitude in location update")
		c.replyError("latitude is required")
		return
	}

	longitude, ok := data["longitude"].(float64)
	if !ok {
		log.Printf("❌ Invalid longitude in location update")
		c.replyError("longitude is required")
		return
	}

	loc := &models.DriverLocation{
		DriverID:  c.UserID,
		Latitude:  latitude,
		Longitude: longitude,
	}

	// Optional fields (may be nil)
	if h, ok := data["heading"].(float64); ok {
		loc.Heading = &h
	}
	if s, ok := data["speed"].(float64); ok {
		loc.Speed = &s
	}
	if a, ok := data["accuracy"].(float64); ok {
		loc.Accuracy = &a
	}
	if ts, ok := data["timestamp"].(float64); ok {
		loc.Timestamp = int64(ts)
	}

	if c.hub.locations == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), locationTimeout)
	defer cancel()

	sess, route, err := c.hub.locations.RecordLocation(ctx, loc)
	if err != nil {
		log.Printf("❌ Error recording location for driver %s: %v", c.UserID, err)
		c.replyError(err.Error())
		return
	}

	// Broadcast to all managers (users with role "admin")
	c.hub.BroadcastToRole(models.RoleAdmin, map[string]interface{}{
		"type": "driver_location_update",
		"data": loc,
	})

	if sess == nil {
		return
	}

	c.reply(map[string]interface{}{
		"type": "next_stop",
		"data": map[string]interface{}{
			"session_id":       sess.ID,
			"session_ref":      sess.SessionID,
			"next_stop":        route.Next,
			"stops":            route.Stops,
			"strategy":         route.Strategy,
			"polyline":         route.Polyline,
			"legs":             route.Legs,
			"remaining_count":  len(route.Stops),
			"visited_count":    sess.VisitedCount(),
			"total_containers": len(sess.Containers),
		},
	})
	log.Printf("📤 Sent next stop to driver %s (%s, %d remaining)", c.UserID, route.Strategy, len(route.Stops))
}

// markAsDisconnected flags the driver offline while keeping their last
// known location for managers to see
func (c *Client) markAsDisconnected() {
	// Only mark drivers as disconnected (not managers)
	if c.UserRole != models.RoleDriver || c.hub.locations == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := c.hub.locations.Disconnected(ctx, c.UserID); err != nil {
		log.Printf("❌ Error marking driver as disconnected: %v", err)
	}
}

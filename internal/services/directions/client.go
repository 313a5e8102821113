// Package directions talks to the Google Directions API on behalf of the
// route planner and caches its answers.
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medwaste-backend/internal/geo"
	"medwaste-backend/internal/routing"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/directions/json"

// GoogleClient implements routing.Provider with the Google Directions API
type GoogleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewGoogleClient creates a Directions API client
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
		WaypointOrder []int `json:"waypoint_order"`
	} `json:"routes"`
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directions API returned status %d: %s", e.Code, e.Body)
}

// Directions asks Google for an optimized route through the request's waypoints
func (c *GoogleClient) Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.Directions, error) {
	if c.apiKey == "" {
		return nil, errors.New("GOOGLE_MAPS_API_KEY not configured")
	}
	if len(req.Waypoints) > routing.MaxProviderStops-1 {
		return nil, fmt.Errorf("%d waypoints exceeds the limit of %d", len(req.Waypoints), routing.MaxProviderStops-1)
	}

	params := url.Values{}
	params.Set("origin", latLng(req.Origin))
	params.Set("destination", latLng(req.Destination))
	if len(req.Waypoints) > 0 {
		parts := make([]string, 0, len(req.Waypoints)+1)
		if req.Optimize {
			parts = append(parts, "optimize:true")
		}
		for _, w := range req.Waypoints {
			parts = append(parts, latLng(w))
		}
		params.Set("waypoints", strings.Join(parts, "|"))
	}
	params.Set("key", c.apiKey)

	body, err := c.getWithRetry(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var apiResp directionsResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if apiResp.Status != "OK" {
		return nil, fmt.Errorf("directions API status %s: %s", apiResp.Status, apiResp.ErrorMessage)
	}
	if len(apiResp.Routes) == 0 {
		return nil, errors.New("directions API returned no routes")
	}

	route := apiResp.Routes[0]
	out := &routing.Directions{
		Polyline:      route.OverviewPolyline.Points,
		Legs:          make([]routing.Leg, len(route.Legs)),
		WaypointOrder: route.WaypointOrder,
	}
	for i, leg := range route.Legs {
		out.Legs[i] = routing.Leg{DistanceMeters: leg.Distance.Value, DurationSeconds: leg.Duration.Value}
	}
	// Without optimization Google omits the order; identity is what it did
	if len(out.WaypointOrder) == 0 && len(req.Waypoints) > 0 {
		out.WaypointOrder = make([]int, len(req.Waypoints))
		for i := range out.WaypointOrder {
			out.WaypointOrder[i] = i
		}
	}

	log.Printf("🗺️  Directions: %d legs, %d waypoints optimized", len(out.Legs), len(req.Waypoints))
	return out, nil
}

// getWithRetry retries network errors, 429 and 5xx with exponential backoff
func (c *GoogleClient) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.maxRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *GoogleClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func latLng(p geo.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"dispatchcore/platform/logger"
)

// DrivingDistanceProvider returns a road distance in meters between two points.
// Implementations must honor the request context deadline.
type DrivingDistanceProvider interface {
	DrivingDistanceMeters(ctx context.Context, from, to Coordinates, travelMode string) (float64, error)
}

// HTTPDrivingProvider queries an OSRM-compatible routing endpoint.
type HTTPDrivingProvider struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPDrivingProvider creates a provider against the given base URL.
func NewHTTPDrivingProvider(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPDrivingProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDrivingProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

// DrivingDistanceMeters queries the routing engine for a single route.
func (p *HTTPDrivingProvider) DrivingDistanceMeters(ctx context.Context, from, to Coordinates, travelMode string) (float64, error) {
	if travelMode == "" {
		travelMode = "driving"
	}

	// OSRM expects lon,lat ordering.
	path := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f",
		p.baseURL, url.PathEscape(travelMode),
		from.Longitude, from.Latitude, to.Longitude, to.Latitude)

	params := url.Values{}
	params.Add("overview", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("routing request failed", "error", err)
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.log.Error("routing upstream error", "status", resp.StatusCode)
		return 0, fmt.Errorf("upstream api error: %d", resp.StatusCode)
	}

	var route routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		p.log.Error("failed to decode routing payload", "error", err)
		return 0, err
	}

	if route.Code != "Ok" || len(route.Routes) == 0 {
		return 0, fmt.Errorf("no route found: %s", route.Code)
	}

	return route.Routes[0].Distance, nil
}

package greenery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/greenroute/greenroute_core/internal/models"
)

// MaxPointsPerCall bounds one batch against the greenness service.
const MaxPointsPerCall = 20

// Client calls the external greenness service, which computes a GVI value
// at a geographic point from a satellite-image model.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a greenery client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type calculateRequest struct {
	Points []models.LatLon `json:"points"`
	Month  string          `json:"month"`
}

type calculateResponse struct {
	Results []struct {
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
		GVI     float64 `json:"gvi"`
		Success bool    `json:"success"`
		Error   string  `json:"error"`
	} `json:"results"`
	ProcessedCount int `json:"processed_count"`
	FailedCount    int `json:"failed_count"`
}

// CalculateGVI submits up to MaxPointsPerCall points for one month and
// returns the successfully computed GVI points. Failed points are reported
// in the second return value as the service's per-point error strings.
func (c *Client) CalculateGVI(ctx context.Context, points []models.LatLon, month string) ([]models.GVIPoint, []string, error) {
	if len(points) == 0 {
		return nil, nil, nil
	}
	if len(points) > MaxPointsPerCall {
		return nil, nil, fmt.Errorf("at most %d points per call, got %d", MaxPointsPerCall, len(points))
	}

	body, err := json.Marshal(calculateRequest{Points: points, Month: month})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode GVI request: %w", err)
	}

	url := c.baseURL + "/api/v1/calculate_gvi"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build GVI request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GVI service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, nil, fmt.Errorf("GVI service returned status %d", resp.StatusCode)
	}

	var payload calculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode GVI response: %w", err)
	}

	var computed []models.GVIPoint
	var failures []string
	for _, r := range payload.Results {
		if !r.Success {
			failures = append(failures, r.Error)
			continue
		}
		computed = append(computed, models.GVIPoint{
			Lat:   r.Lat,
			Lon:   r.Lon,
			Month: month,
			GVI:   r.GVI,
		})
	}

	return computed, failures, nil
}

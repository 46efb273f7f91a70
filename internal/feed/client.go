package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/greenroute/greenroute_core/internal/models"
)

const (
	// MaxForecastSeconds is the upstream API's hard forecast window.
	MaxForecastSeconds = 1200

	transportModeBus = "BUS"
)

// Client queries the transit departures API. It is stateless and safe to
// share across concurrent planning requests.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// apiDelay paces successive requests within a batch. The upstream API
	// has unstated rate limits; batches are deliberately sequential.
	apiDelay time.Duration
}

// NewClient creates a feed client. timeout bounds each individual call.
func NewClient(baseURL string, apiDelay, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		apiDelay:   apiDelay,
	}
}

// departuresResponse mirrors the upstream wire format.
type departuresResponse struct {
	Departures []struct {
		Destination   string `json:"destination"`
		DirectionCode int    `json:"direction_code"`
		Expected      string `json:"expected"`
		Journey       struct {
			ID int64 `json:"id"`
		} `json:"journey"`
		Line struct {
			ID            int    `json:"id"`
			Designation   string `json:"designation"`
			TransportMode string `json:"transport_mode"`
		} `json:"line"`
		StopPoint struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"stop_point"`
	} `json:"departures"`
}

// GetDepartures returns the bus departures expected at a site within the
// forecast window. forecastSeconds is clamped to the upstream maximum.
func (c *Client) GetDepartures(ctx context.Context, siteID int64, forecastSeconds int) ([]models.Departure, error) {
	if forecastSeconds <= 0 || forecastSeconds > MaxForecastSeconds {
		forecastSeconds = MaxForecastSeconds
	}

	url := fmt.Sprintf("%s/sites/%d/departures?forecast=%d", c.baseURL, siteID, forecastSeconds)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build departures request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("departures request for site %d failed: %w", siteID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("departures request for site %d returned status %d", siteID, resp.StatusCode)
	}

	var payload departuresResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode departures for site %d: %w", siteID, err)
	}

	departures := []models.Departure{}
	for _, d := range payload.Departures {
		if d.Line.TransportMode != transportModeBus {
			continue
		}

		expected, err := parseExpected(d.Expected)
		if err != nil {
			log.Printf("Skipping departure with bad timestamp %q at site %d: %v", d.Expected, siteID, err)
			continue
		}

		departures = append(departures, models.Departure{
			JourneyID:       d.Journey.ID,
			LineID:          d.Line.ID,
			LineDesignation: d.Line.Designation,
			DirectionCode:   d.DirectionCode,
			Expected:        expected,
			StopPointID:     d.StopPoint.ID,
			StopPointName:   d.StopPoint.Name,
			Destination:     d.Destination,
		})
	}

	return departures, nil
}

// GetBatchDepartures fetches departures for each site sequentially with the
// pacing delay between successive requests. A per-site failure yields an
// empty list for that site and is logged; the batch itself never fails for
// partial errors. Request order follows the input site-id order.
func (c *Client) GetBatchDepartures(ctx context.Context, siteIDs []int64, forecastSeconds int) (map[int64][]models.Departure, error) {
	result := make(map[int64][]models.Departure, len(siteIDs))

	for i, siteID := range siteIDs {
		if i > 0 && c.apiDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.apiDelay):
			}
		}

		departures, err := c.GetDepartures(ctx, siteID, forecastSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Departures for site %d unavailable, continuing: %v", siteID, err)
			result[siteID] = []models.Departure{}
			continue
		}
		result[siteID] = departures
	}

	return result, nil
}

// parseExpected accepts both zoned and local upstream timestamps.
func parseExpected(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, time.Local)
}

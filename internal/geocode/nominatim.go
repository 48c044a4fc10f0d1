package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// NominatimClient forward-geocodes free text with the OpenStreetMap Nominatim API.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// SearchResult is one forward-geocoding hit.
type SearchResult struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

type nominatimHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search returns the best match for query. No hits is ErrNotFound.
func (c *NominatimClient) Search(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errkind.Wrap(errkind.ErrValidation, "empty query", nil)
	}

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("limit", "1")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Nominatim's usage policy requires an identifying User-Agent
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "nominatim request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrTransientIO, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.Wrap(errkind.ErrTransientIO,
			fmt.Sprintf("nominatim API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var hits []nominatimHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("no results for %q: %w", query, errkind.ErrNotFound)
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", hits[0].Lon, err)
	}

	return &SearchResult{Latitude: lat, Longitude: lon, DisplayName: hits[0].DisplayName}, nil
}

// Package usgs fetches earthquake events from the USGS FDSN event service.
// The feed is public and unauthenticated. The natural key is the USGS feature
// ID (e.g. "us7000abcd"), which is stable across repeated queries.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/source"
)

// SourceName is the human-readable provider name used for health grouping.
const SourceName = "USGS Earthquake Hazards Program"

// Client queries the FDSN event API for one bounding box.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	bbox         [4]float64 // minLon, minLat, maxLon, maxLat
	minMagnitude float64
	logger       *slog.Logger
}

// NewClient creates a USGS adapter scoped to the given bounding box.
func NewClient(bbox [4]float64, minMagnitude float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      "https://earthquake.usgs.gov/fdsnws/event/1",
		bbox:         bbox,
		minMagnitude: minMagnitude,
		logger:       logger,
	}
}

func (c *Client) Name() string              { return SourceName }
func (c *Client) DataType() domain.DataType { return domain.TypeEarthquake }

// Fetch returns all earthquakes in the window at or above the configured
// minimum magnitude.
func (c *Client) Fetch(ctx context.Context, win source.Window) ([]domain.RawRecord, error) {
	params := url.Values{
		"format":       {"geojson"},
		"starttime":    {win.Start.UTC().Format(time.RFC3339)},
		"endtime":      {win.End.UTC().Format(time.RFC3339)},
		"minmagnitude": {fmt.Sprintf("%g", c.minMagnitude)},
		"minlongitude": {fmt.Sprintf("%g", c.bbox[0])},
		"minlatitude":  {fmt.Sprintf("%g", c.bbox[1])},
		"maxlongitude": {fmt.Sprintf("%g", c.bbox[2])},
		"maxlatitude":  {fmt.Sprintf("%g", c.bbox[3])},
		"orderby":      {"time"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, source.Classify(SourceName, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.Classify(SourceName, fmt.Errorf("fdsn query: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, source.Errorf(SourceName, source.KindHTTP, "fdsn query: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, source.Errorf(SourceName, source.KindDecode, "decode fdsn response: %w", err)
	}

	records := make([]domain.RawRecord, 0, len(payload.Features))
	for _, f := range payload.Features {
		rec := domain.RawRecord{
			NaturalKey: f.ID,
			Metrics: map[string]float64{
				domain.MetricMagnitude: f.Properties.Mag,
			},
			Metadata: map[string]any{
				"place":    f.Properties.Place,
				"url":      f.Properties.URL,
				"magType":  f.Properties.MagType,
				"felt":     f.Properties.Felt,
				"tsunami":  f.Properties.Tsunami,
				"detailId": f.ID,
			},
		}
		if f.Properties.Time > 0 {
			rec.OccurredAt = time.UnixMilli(f.Properties.Time).UTC()
		}
		// Coordinates are [lon, lat, depth_km].
		if len(f.Geometry.Coordinates) >= 2 {
			rec.Lon = f.Geometry.Coordinates[0]
			rec.Lat = f.Geometry.Coordinates[1]
			rec.HasLocation = true
		}
		if len(f.Geometry.Coordinates) >= 3 {
			rec.Metrics[domain.MetricDepthKM] = f.Geometry.Coordinates[2]
		}
		records = append(records, rec)
	}
	return records, nil
}

// FDSN GeoJSON response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string `json:"id"`
	Properties struct {
		Mag     float64 `json:"mag"`
		Place   string  `json:"place"`
		Time    int64   `json:"time"` // ms since epoch
		URL     string  `json:"url"`
		MagType string  `json:"magType"`
		Felt    int     `json:"felt"`
		Tsunami int     `json:"tsunami"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

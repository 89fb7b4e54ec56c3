// Package airnow fetches current air quality observations from the AirNow
// monitoring-site data API. Requires an API key. The natural key is
// site|parameter|observation-hour, where site is the AQS site code (display
// names are not unique nationwide); each monitoring site reports one value
// per parameter per hour.
package airnow

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

const SourceName = "AirNow"

// utcHourLayout is the timestamp format the AirNow data API uses.
const utcHourLayout = "2006-01-02T15"

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	bbox       [4]float64
	logger     *slog.Logger
}

// NewClient creates an AirNow adapter. apiKey may be empty; Fetch then fails
// with a config error without attempting network I/O.
func NewClient(apiKey string, bbox [4]float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://www.airnowapi.org",
		bbox:       bbox,
		logger:     logger,
	}
}

func (c *Client) Name() string              { return SourceName }
func (c *Client) DataType() domain.DataType { return domain.TypeAirQuality }

func (c *Client) Fetch(ctx context.Context, win source.Window) ([]domain.RawRecord, error) {
	if c.apiKey == "" {
		return nil, source.Errorf(SourceName, source.KindConfig, "AIRNOW_API_KEY is not set")
	}

	params := url.Values{
		"startDate":  {win.Start.UTC().Format(utcHourLayout)},
		"endDate":    {win.End.UTC().Format(utcHourLayout)},
		"parameters": {"PM25,OZONE"},
		"BBOX":       {fmt.Sprintf("%g,%g,%g,%g", c.bbox[0], c.bbox[1], c.bbox[2], c.bbox[3])},
		"dataType":   {"B"}, // both AQI and concentration
		"format":     {"application/json"},
		"verbose":    {"1"},
		"API_KEY":    {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/aq/data/?"+params.Encode(), nil)
	if err != nil {
		return nil, source.Classify(SourceName, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.Classify(SourceName, fmt.Errorf("data query: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, source.Errorf(SourceName, source.KindHTTP, "data query: status %d: %s", resp.StatusCode, body)
	}

	var observations []observation
	if err := json.NewDecoder(resp.Body).Decode(&observations); err != nil {
		return nil, source.Errorf(SourceName, source.KindDecode, "decode observations: %w", err)
	}

	records := make([]domain.RawRecord, 0, len(observations))
	for _, obs := range observations {
		rec := domain.RawRecord{
			NaturalKey:  fmt.Sprintf("%s|%s|%s", siteID(obs), obs.Parameter, obs.UTC),
			Lat:         obs.Latitude,
			Lon:         obs.Longitude,
			HasLocation: true, // every monitoring site has fixed coordinates
			Metrics: map[string]float64{
				domain.MetricAQI: float64(obs.AQI),
			},
			Metadata: map[string]any{
				"site":      obs.SiteName,
				"agency":    obs.AgencyName,
				"parameter": obs.Parameter,
				"category":  obs.Category,
			},
		}
		if t, err := time.Parse(utcHourLayout, obs.UTC); err == nil {
			rec.OccurredAt = t.UTC()
		}
		if obs.Parameter == "PM2.5" {
			rec.Metrics[domain.MetricPM25] = obs.Value
		}
		records = append(records, rec)
	}
	return records, nil
}

// siteID picks the site identifier for the natural key: the AQS site code
// when the verbose response carries one, falling back to the display name for
// agencies that do not report a code.
func siteID(obs observation) string {
	if obs.FullAQSCode != "" {
		return obs.FullAQSCode
	}
	if obs.IntlAQSCode != "" {
		return obs.IntlAQSCode
	}
	return obs.SiteName
}

// observation is one row of the AirNow monitoring-site data response.
type observation struct {
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
	UTC         string  `json:"UTC"` // "2024-04-26T15"
	Parameter   string  `json:"Parameter"`
	AQI         int     `json:"AQI"`
	Value       float64 `json:"Value"` // raw concentration
	Category    int     `json:"Category"`
	SiteName    string  `json:"SiteName"`
	AgencyName  string  `json:"AgencyName"`
	FullAQSCode string  `json:"FullAQSCode"`
	IntlAQSCode string  `json:"IntlAQSCode"`
}

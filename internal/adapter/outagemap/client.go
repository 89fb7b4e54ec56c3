// Package outagemap fetches county-level power outage counts from an outage
// aggregator API. Requires an API key. The natural key is
// state|county|snapshot-time: the aggregator publishes one count per county
// per snapshot, and re-fetching the same snapshot must update in place.
package outagemap

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

const SourceName = "PowerOutage.us"

type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an outage aggregator adapter. apiKey may be empty; Fetch
// then fails with a config error without attempting network I/O.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.poweroutage.us",
		logger:     logger,
	}
}

func (c *Client) Name() string              { return SourceName }
func (c *Client) DataType() domain.DataType { return domain.TypePowerOutage }

func (c *Client) Fetch(ctx context.Context, win source.Window) ([]domain.RawRecord, error) {
	if c.apiKey == "" {
		return nil, source.Errorf(SourceName, source.KindConfig, "OUTAGEMAP_API_KEY is not set")
	}

	params := url.Values{
		"key":   {c.apiKey},
		"since": {win.Start.UTC().Format(time.RFC3339)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/counties?"+params.Encode(), nil)
	if err != nil {
		return nil, source.Classify(SourceName, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.Classify(SourceName, fmt.Errorf("county query: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, source.Errorf(SourceName, source.KindHTTP, "county query: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, source.Errorf(SourceName, source.KindDecode, "decode county response: %w", err)
	}

	records := make([]domain.RawRecord, 0, len(payload.Counties))
	for _, county := range payload.Counties {
		rec := domain.RawRecord{
			NaturalKey:  fmt.Sprintf("%s|%s|%s", county.State, county.County, payload.AsOf),
			Lat:         county.Lat,
			Lon:         county.Lon,
			HasLocation: true, // the aggregator always reports the county seat
			Metrics: map[string]float64{
				domain.MetricCustomersOut: float64(county.CustomersOut),
				domain.MetricCustomers:    float64(county.CustomersTracked),
			},
			Metadata: map[string]any{
				"state":  county.State,
				"county": county.County,
			},
		}
		if t, err := time.Parse(time.RFC3339, payload.AsOf); err == nil {
			rec.OccurredAt = t.UTC()
		}
		records = append(records, rec)
	}
	return records, nil
}

type response struct {
	AsOf     string   `json:"asOf"`
	Counties []county `json:"counties"`
}

type county struct {
	State            string  `json:"state"`
	County           string  `json:"county"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	CustomersOut     int     `json:"customersOut"`
	CustomersTracked int     `json:"customersTracked"`
}

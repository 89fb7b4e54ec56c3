// Package nws fetches active severe weather alerts from the National Weather
// Service API. The feed is public but rejects requests without an identifying
// User-Agent. The natural key is the alert identifier from properties.id;
// alert updates reuse the ID and overwrite the stored event.
//
// The alerts endpoint paginates via an opaque cursor link; pages are followed
// sequentially because each cursor comes from the previous response.
package nws

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

const SourceName = "NWS Alerts"

// maxPages bounds cursor-following so a misbehaving pagination link cannot
// loop a tick forever.
const maxPages = 5

type Client struct {
	userAgent  string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.weather.gov",
		logger:     logger,
	}
}

func (c *Client) Name() string              { return SourceName }
func (c *Client) DataType() domain.DataType { return domain.TypeSevereWeather }

func (c *Client) Fetch(ctx context.Context, win source.Window) ([]domain.RawRecord, error) {
	if c.userAgent == "" {
		return nil, source.Errorf(SourceName, source.KindConfig, "NWS_USER_AGENT is not set")
	}

	params := url.Values{
		"status":       {"actual"},
		"message_type": {"alert,update"},
		"start":        {win.Start.UTC().Format(time.RFC3339)},
		"end":          {win.End.UTC().Format(time.RFC3339)},
		"limit":        {"500"},
	}
	next := c.baseURL + "/alerts?" + params.Encode()

	var records []domain.RawRecord
	for page := 0; next != "" && page < maxPages; page++ {
		payload, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, f := range payload.Features {
			records = append(records, mapAlert(f))
		}
		next = payload.Pagination.Next
		if len(payload.Features) == 0 {
			break
		}
	}
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, source.Classify(SourceName, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.Classify(SourceName, fmt.Errorf("alerts query: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, source.Errorf(SourceName, source.KindHTTP, "alerts query: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, source.Errorf(SourceName, source.KindDecode, "decode alerts response: %w", err)
	}
	return &payload, nil
}

func mapAlert(f feature) domain.RawRecord {
	rec := domain.RawRecord{
		NaturalKey: f.Properties.ID,
		Labels: map[string]string{
			domain.LabelSeverity:        f.Properties.Severity,
			domain.LabelConfidenceClass: certaintyClass(f.Properties.Certainty),
		},
		Metadata: map[string]any{
			"event":    f.Properties.Event,
			"headline": f.Properties.Headline,
			"areaDesc": f.Properties.AreaDesc,
			"urgency":  f.Properties.Urgency,
		},
	}
	onset := f.Properties.Onset
	if onset == "" {
		onset = f.Properties.Effective
	}
	if t, err := time.Parse(time.RFC3339, onset); err == nil {
		rec.OccurredAt = t.UTC()
	}
	rec.Lat, rec.Lon, rec.HasLocation = centroid(f.Geometry)
	return rec
}

func certaintyClass(certainty string) string {
	switch certainty {
	case "Observed":
		return string(domain.ConfidenceHigh)
	case "Likely":
		return string(domain.ConfidenceMedium)
	default:
		return string(domain.ConfidenceLow)
	}
}

// centroid reduces an alert geometry to a representative point. Many alerts
// carry no geometry at all (zone-coded only); those report ok=false and the
// record is dropped during normalization rather than stored at 0,0.
func centroid(g geometry) (lat, lon float64, ok bool) {
	switch g.Type {
	case "Point":
		var coords []float64
		if json.Unmarshal(g.Coordinates, &coords) == nil && len(coords) >= 2 {
			return coords[1], coords[0], true
		}
	case "Polygon":
		var rings [][][]float64
		if json.Unmarshal(g.Coordinates, &rings) == nil && len(rings) > 0 && len(rings[0]) > 0 {
			var sumLat, sumLon float64
			for _, pt := range rings[0] {
				if len(pt) >= 2 {
					sumLon += pt[0]
					sumLat += pt[1]
				}
			}
			n := float64(len(rings[0]))
			return sumLat / n, sumLon / n, true
		}
	}
	return 0, 0, false
}

// NWS GeoJSON response types.

type response struct {
	Features   []feature `json:"features"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

type feature struct {
	Properties struct {
		ID        string `json:"id"`
		Event     string `json:"event"`
		Severity  string `json:"severity"` // Extreme, Severe, Moderate, Minor, Unknown
		Certainty string `json:"certainty"`
		Urgency   string `json:"urgency"`
		Onset     string `json:"onset"`
		Effective string `json:"effective"`
		Headline  string `json:"headline"`
		AreaDesc  string `json:"areaDesc"`
	} `json:"properties"`
	Geometry geometry `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

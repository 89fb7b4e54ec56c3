// Package firms fetches active-fire detections from the NASA FIRMS area CSV
// API. Requires a MAP_KEY credential. The natural key is
// satellite|lat|lon|acq_date|acq_time: one satellite pass detects a given
// pixel at most once, so the tuple is stable across re-fetches.
package firms

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/source"
)

const SourceName = "NASA FIRMS"

// Client queries the FIRMS area endpoint for one bounding box.
type Client struct {
	mapKey     string
	satellite  string
	httpClient *http.Client
	baseURL    string
	bbox       [4]float64
	logger     *slog.Logger
}

// NewClient creates a FIRMS adapter. mapKey may be empty; Fetch then fails
// with a config error without attempting network I/O.
func NewClient(mapKey, satellite string, bbox [4]float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		mapKey:     mapKey,
		satellite:  satellite,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://firms.modaps.eosdis.nasa.gov",
		bbox:       bbox,
		logger:     logger,
	}
}

func (c *Client) Name() string              { return SourceName }
func (c *Client) DataType() domain.DataType { return domain.TypeWildfire }

func (c *Client) Fetch(ctx context.Context, win source.Window) ([]domain.RawRecord, error) {
	if c.mapKey == "" {
		return nil, source.Errorf(SourceName, source.KindConfig, "FIRMS_MAP_KEY is not set")
	}

	// The API serves whole days only: a day count plus a start date, ranging
	// forward from that date. Anchoring to the window's first UTC day keeps
	// backfills on the requested day instead of the most recent one, and the
	// count covers every day the window touches.
	startDay := win.Start.UTC().Truncate(24 * time.Hour)
	lastDay := win.End.Add(-time.Second).UTC().Truncate(24 * time.Hour)
	days := int(lastDay.Sub(startDay)/(24*time.Hour)) + 1
	if days < 1 {
		days = 1
	}
	if days > 10 {
		days = 10 // API maximum
	}

	bbox := fmt.Sprintf("%g,%g,%g,%g", c.bbox[0], c.bbox[1], c.bbox[2], c.bbox[3])
	u := fmt.Sprintf("%s/api/area/csv/%s/%s/%s/%d/%s",
		c.baseURL, c.mapKey, c.satellite, bbox, days, startDay.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, source.Classify(SourceName, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, source.Classify(SourceName, fmt.Errorf("area query: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, source.Errorf(SourceName, source.KindHTTP, "area query: status %d: %s", resp.StatusCode, body)
	}

	records, err := parseCSV(resp.Body, c.satellite)
	if err != nil {
		return nil, source.Errorf(SourceName, source.KindDecode, "parse area CSV: %w", err)
	}
	return records, nil
}

// parseCSV converts the FIRMS CSV payload into raw records. Column order
// varies between instruments, so fields are resolved by header name.
func parseCSV(r io.Reader, satellite string) ([]domain.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []domain.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		latField := field(row, "latitude")
		lonField := field(row, "longitude")
		acqDate := field(row, "acq_date")
		acqTime := field(row, "acq_time")
		confidence, class := parseConfidence(field(row, "confidence"))

		rec := domain.RawRecord{
			NaturalKey:  strings.Join([]string{satellite, latField, lonField, acqDate, acqTime}, "|"),
			OccurredAt:  parseAcqTime(acqDate, acqTime),
			Lat:         parseFloatOrZero(latField),
			Lon:         parseFloatOrZero(lonField),
			HasLocation: latField != "" && lonField != "",
			Metrics: map[string]float64{
				domain.MetricConfidence: confidence,
				domain.MetricBrightness: parseFloatOrZero(firstNonEmpty(field(row, "bright_ti4"), field(row, "brightness"))),
				domain.MetricFRP:        parseFloatOrZero(field(row, "frp")),
			},
			Labels: map[string]string{
				domain.LabelConfidenceClass: class,
			},
			Metadata: map[string]any{
				"satellite":  satellite,
				"instrument": field(row, "instrument"),
				"daynight":   field(row, "daynight"),
			},
		}
		records = append(records, rec)
	}
	return records, nil
}

// parseConfidence handles both encodings FIRMS uses: MODIS reports a 0-100
// integer, VIIRS reports l/n/h classes. Classes map to representative values
// so the shared normalization rule applies either way.
func parseConfidence(s string) (float64, string) {
	switch strings.ToLower(s) {
	case "h":
		return 90, string(domain.ConfidenceHigh)
	case "n":
		return 60, string(domain.ConfidenceMedium)
	case "l":
		return 30, string(domain.ConfidenceLow)
	}
	v := parseFloatOrZero(s)
	switch {
	case v >= 80:
		return v, string(domain.ConfidenceHigh)
	case v >= 50:
		return v, string(domain.ConfidenceMedium)
	default:
		return v, string(domain.ConfidenceLow)
	}
}

// parseAcqTime combines the acquisition date ("2024-04-26") with the HHMM
// overpass time ("0512"). Three-digit times are zero-padded.
func parseAcqTime(date, hhmm string) time.Time {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}
	}
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return day
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour > 23 || mins > 59 {
		return day
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(mins)*time.Minute)
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

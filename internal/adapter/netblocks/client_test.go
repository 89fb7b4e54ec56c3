package netblocks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/source"
)

var testWindow = source.Window{
	Start: time.Date(2026, time.August, 15, 6, 0, 0, 0, time.UTC),
	End:   time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC),
}

const outagesJSON = `{
	"outages": [
		{
			"id": "nb-2026-0815-001",
			"country": "US",
			"asn": 7018,
			"scope": "REGIONAL",
			"cause": "fiber cut",
			"startedAt": "2026-08-15T09:30:00Z",
			"lat": 32.78,
			"lon": -96.80
		},
		{
			"country": "US",
			"asn": 701,
			"scope": "LOCAL",
			"startedAt": "2026-08-15T10:00:00Z",
			"lat": 40.71,
			"lon": -74.00
		}
	]
}`

func TestFetch_MissingToken(t *testing.T) {
	c := NewClient("", 5*time.Second, slog.Default())

	_, err := c.Fetch(context.Background(), testWindow)
	require.Error(t, err)

	var se *source.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindConfig, se.Kind)
}

func TestFetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "2026-08-15T06:00:00Z", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-08-15T12:00:00Z", r.URL.Query().Get("to"))
		w.Write([]byte(outagesJSON)) //nolint:errcheck
	}))
	defer server.Close()

	c := NewClient("token-123", 5*time.Second, slog.Default())
	c.baseURL = server.URL

	records, err := c.Fetch(context.Background(), testWindow)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Bearer token-123", gotAuth)

	t.Run("annotation with stable ID", func(t *testing.T) {
		rec := records[0]
		assert.Equal(t, "nb-2026-0815-001", rec.NaturalKey)
		assert.Equal(t, time.Date(2026, time.August, 15, 9, 30, 0, 0, time.UTC), rec.OccurredAt)
		assert.True(t, rec.HasLocation)
		assert.Equal(t, "REGIONAL", rec.Labels[domain.LabelScope])
		assert.Equal(t, "fiber cut", rec.Metadata["cause"])
	})

	t.Run("annotation without ID falls back to the tuple", func(t *testing.T) {
		assert.Equal(t, "US|701|2026-08-15T10:00:00Z", records[1].NaturalKey)
	})
}

func TestFetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient("stale", 5*time.Second, slog.Default())
	c.baseURL = server.URL

	_, err := c.Fetch(context.Background(), testWindow)
	var se *source.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, source.KindHTTP, se.Kind)
}

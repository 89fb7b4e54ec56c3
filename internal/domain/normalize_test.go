package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSource = "Test Feed"

var testTime = time.Date(2026, time.August, 15, 12, 30, 0, 0, time.UTC)

func makeRaw(metrics map[string]float64, labels map[string]string) RawRecord {
	return RawRecord{
		NaturalKey:  "key-1",
		OccurredAt:  testTime,
		Lat:         35.0,
		Lon:         -97.0,
		HasLocation: true,
		Metrics:     metrics,
		Labels:      labels,
	}
}

func TestNormalizeEarthquake(t *testing.T) {
	tests := []struct {
		name      string
		magnitude float64
		expected  Severity
	}{
		{"micro", 2.0, SeverityLow},
		{"light", 3.9, SeverityLow},
		{"moderate boundary", 4.0, SeverityMedium},
		{"moderate", 4.5, SeverityMedium},
		{"strong boundary", 6.0, SeverityHigh},
		{"strong", 6.5, SeverityHigh},
		{"major boundary", 7.0, SeverityCritical},
		{"major", 7.5, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(map[string]float64{MetricMagnitude: tt.magnitude}, nil)
			event, err := Normalize(TypeEarthquake, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.Severity)
			assert.Equal(t, tt.magnitude, event.PrimaryValue)
		})
	}

	t.Run("depth carried as secondary value", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricMagnitude: 5.0, MetricDepthKM: 12.3}, nil)
		event, err := Normalize(TypeEarthquake, testSource, raw)

		require.NoError(t, err)
		require.NotNil(t, event.SecondaryValue)
		assert.Equal(t, 12.3, *event.SecondaryValue)
	})

	t.Run("missing depth leaves secondary nil", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricMagnitude: 5.0}, nil)
		event, err := Normalize(TypeEarthquake, testSource, raw)

		require.NoError(t, err)
		assert.Nil(t, event.SecondaryValue)
	})
}

func TestNormalizeWildfire(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		brightness float64
		expected   Severity
	}{
		{"high confidence hot fire", 85, 360, SeverityCritical},
		{"critical boundary", 80, 350, SeverityCritical},
		{"high confidence cooler fire", 85, 340, SeverityHigh},
		{"hot fire low confidence", 40, 340, SeverityHigh},
		{"medium confidence", 60, 300, SeverityMedium},
		{"medium boundary", 50, 0, SeverityMedium},
		{"low confidence", 30, 300, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(map[string]float64{
				MetricConfidence: tt.confidence,
				MetricBrightness: tt.brightness,
			}, nil)
			event, err := Normalize(TypeWildfire, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.Severity)
			assert.Equal(t, tt.confidence, event.PrimaryValue)
		})
	}

	t.Run("confidence clamped to 0..100", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricConfidence: 120}, nil)
		event, err := Normalize(TypeWildfire, testSource, raw)

		require.NoError(t, err)
		assert.Equal(t, 100.0, event.PrimaryValue)
	})

	t.Run("frp carried as secondary value", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricConfidence: 85, MetricBrightness: 360, MetricFRP: 42.5}, nil)
		event, err := Normalize(TypeWildfire, testSource, raw)

		require.NoError(t, err)
		require.NotNil(t, event.SecondaryValue)
		assert.Equal(t, 42.5, *event.SecondaryValue)
	})
}

func TestNormalizeAirQuality(t *testing.T) {
	tests := []struct {
		name             string
		aqi              float64
		expectedSeverity Severity
		expectedPrimary  float64
	}{
		{"good", 42, SeverityLow, 8.4},
		{"moderate boundary", 100, SeverityMedium, 20},
		{"unhealthy boundary", 150, SeverityHigh, 30},
		{"hazardous boundary", 300, SeverityCritical, 60},
		{"beyond scale capped", 600, SeverityCritical, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(map[string]float64{MetricAQI: tt.aqi}, nil)
			event, err := Normalize(TypeAirQuality, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedSeverity, event.Severity)
			assert.InDelta(t, tt.expectedPrimary, event.PrimaryValue, 0.0001)
		})
	}
}

func TestNormalizePowerOutage(t *testing.T) {
	tests := []struct {
		name     string
		out      float64
		expected Severity
	}{
		{"small outage", 500, SeverityLow},
		{"medium boundary", 10_000, SeverityMedium},
		{"high boundary", 50_000, SeverityHigh},
		{"critical boundary", 100_000, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(map[string]float64{MetricCustomersOut: tt.out}, nil)
			event, err := Normalize(TypePowerOutage, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.Severity)
		})
	}

	t.Run("primary value is log scaled", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricCustomersOut: 99_999}, nil)
		event, err := Normalize(TypePowerOutage, testSource, raw)

		require.NoError(t, err)
		// log10(100000)/7*100 ~= 71.43
		assert.InDelta(t, 71.43, event.PrimaryValue, 0.01)
	})

	t.Run("outage share as secondary value", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricCustomersOut: 2_500, MetricCustomers: 10_000}, nil)
		event, err := Normalize(TypePowerOutage, testSource, raw)

		require.NoError(t, err)
		require.NotNil(t, event.SecondaryValue)
		assert.InDelta(t, 25.0, *event.SecondaryValue, 0.0001)
	})

	t.Run("zero tracked customers leaves secondary nil", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricCustomersOut: 2_500}, nil)
		event, err := Normalize(TypePowerOutage, testSource, raw)

		require.NoError(t, err)
		assert.Nil(t, event.SecondaryValue)
	})
}

func TestNormalizeSevereWeather(t *testing.T) {
	tests := []struct {
		name             string
		severity         string
		expectedPrimary  float64
		expectedSeverity Severity
	}{
		{"extreme", "Extreme", 100, SeverityCritical},
		{"severe", "Severe", 75, SeverityHigh},
		{"moderate", "Moderate", 50, SeverityMedium},
		{"minor", "Minor", 25, SeverityLow},
		{"missing label", "", 25, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(nil, map[string]string{LabelSeverity: tt.severity})
			event, err := Normalize(TypeSevereWeather, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedPrimary, event.PrimaryValue)
			assert.Equal(t, tt.expectedSeverity, event.Severity)
		})
	}
}

func TestNormalizeInternetOutage(t *testing.T) {
	tests := []struct {
		name             string
		scope            string
		expectedPrimary  float64
		expectedSeverity Severity
	}{
		{"nationwide", "NATIONWIDE", 100, SeverityCritical},
		{"regional", "REGIONAL", 75, SeverityHigh},
		{"local", "LOCAL", 50, SeverityMedium},
		{"unknown scope", "PARTIAL", 25, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(nil, map[string]string{LabelScope: tt.scope})
			event, err := Normalize(TypeInternetOutage, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedPrimary, event.PrimaryValue)
			assert.Equal(t, tt.expectedSeverity, event.Severity)
		})
	}
}

func TestNormalizeValidation(t *testing.T) {
	t.Run("missing natural key", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		raw.NaturalKey = ""
		_, err := Normalize(TypeEarthquake, testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("zero timestamp", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		raw.OccurredAt = time.Time{}
		_, err := Normalize(TypeEarthquake, testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("missing location", func(t *testing.T) {
		raw := makeRaw(nil, map[string]string{LabelSeverity: "Extreme"})
		raw.Lat, raw.Lon, raw.HasLocation = 0, 0, false
		_, err := Normalize(TypeSevereWeather, testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("zero coordinates with a reported location are kept", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		raw.Lat, raw.Lon = 0, 0
		event, err := Normalize(TypeEarthquake, testSource, raw)

		require.NoError(t, err)
		assert.Equal(t, Geo{}, event.Location)
	})

	t.Run("latitude out of range", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		raw.Lat = 91
		_, err := Normalize(TypeEarthquake, testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("longitude out of range", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		raw.Lon = -181
		_, err := Normalize(TypeEarthquake, testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("unsupported data type", func(t *testing.T) {
		raw := makeRaw(nil, nil)
		_, err := Normalize(DataType("volcano"), testSource, raw)

		require.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("valid record populates common fields", func(t *testing.T) {
		raw := makeRaw(map[string]float64{MetricMagnitude: 5.0}, nil)
		raw.Metadata = map[string]any{"place": "35 km W of Somewhere"}
		event, err := Normalize(TypeEarthquake, testSource, raw)

		require.NoError(t, err)
		expected := Event{
			ID:           event.ID,
			DataType:     TypeEarthquake,
			Timestamp:    testTime.UnixMilli(),
			Location:     Geo{Lat: 35.0, Lon: -97.0},
			PrimaryValue: 5.0,
			Severity:     SeverityMedium,
			Source:       testSource,
			Color:        "#d62828",
			Metadata:     map[string]any{"place": "35 km W of Somewhere"},
		}
		if diff := cmp.Diff(expected, event); diff != "" {
			t.Fatalf("event mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestEventID(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		id1 := EventID(TypeEarthquake, "USGS", "us7000abcd")
		id2 := EventID(TypeEarthquake, "USGS", "us7000abcd")
		assert.Equal(t, id1, id2)
	})

	t.Run("type prefix", func(t *testing.T) {
		id := EventID(TypeWildfire, "FIRMS", "row-1")
		assert.True(t, strings.HasPrefix(id, "wildfire-"))
		assert.Len(t, id, len("wildfire-")+16)
	})

	t.Run("different keys produce different IDs", func(t *testing.T) {
		id1 := EventID(TypeEarthquake, "USGS", "us7000abcd")
		id2 := EventID(TypeEarthquake, "USGS", "us7000abce")
		assert.NotEqual(t, id1, id2)
	})

	t.Run("source participates in identity", func(t *testing.T) {
		id1 := EventID(TypeEarthquake, "USGS", "us7000abcd")
		id2 := EventID(TypeEarthquake, "EMSC", "us7000abcd")
		assert.NotEqual(t, id1, id2)
	})
}

func TestConfidenceClassLabel(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		expected Confidence
	}{
		{"high", "high", ConfidenceHigh},
		{"medium", "medium", ConfidenceMedium},
		{"low", "low", ConfidenceLow},
		{"unknown dropped", "certain", Confidence("")},
		{"missing", "", Confidence("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := makeRaw(nil, map[string]string{LabelConfidenceClass: tt.label})
			event, err := Normalize(TypeSevereWeather, testSource, raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.Confidence)
		})
	}
}

func TestMaxTimestamp(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		assert.True(t, MaxTimestamp(nil).IsZero())
	})

	t.Run("newest wins", func(t *testing.T) {
		events := []Event{
			{Timestamp: testTime.UnixMilli()},
			{Timestamp: testTime.Add(time.Hour).UnixMilli()},
			{Timestamp: testTime.Add(-time.Hour).UnixMilli()},
		}
		assert.Equal(t, testTime.Add(time.Hour), MaxTimestamp(events))
	})
}

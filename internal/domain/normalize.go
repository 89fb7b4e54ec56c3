package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidRecord marks a raw record missing mandatory identity, location,
// or timestamp fields. Such records are dropped and counted, never inserted.
var ErrInvalidRecord = errors.New("invalid raw record")

// Metric and label names adapters use to populate RawRecord for each feed.
const (
	MetricMagnitude    = "magnitude"
	MetricDepthKM      = "depth_km"
	MetricConfidence   = "confidence"
	MetricBrightness   = "brightness"
	MetricFRP          = "frp"
	MetricAQI          = "aqi"
	MetricPM25         = "pm25"
	MetricCustomersOut = "customers_out"
	MetricCustomers    = "customers_tracked"

	LabelSeverity        = "severity" // NWS alert severity: Extreme, Severe, Moderate, ...
	LabelScope           = "scope"    // internet outage scope: NATIONWIDE, REGIONAL, LOCAL
	LabelConfidenceClass = "confidence_class"
)

// typeColors are presentation hints carried through to the store; they are not
// semantically load-bearing.
var typeColors = map[DataType]string{
	TypeEarthquake:     "#d62828",
	TypeWildfire:       "#f77f00",
	TypeAirQuality:     "#8338ec",
	TypePowerOutage:    "#ffbe0b",
	TypeSevereWeather:  "#3a86ff",
	TypeInternetOutage: "#06d6a0",
}

type normalizeFunc func(e *Event, raw RawRecord)

// normalizers is the single dispatch table selecting the per-type rule; no
// other code branches on DataType during normalization.
var normalizers = map[DataType]normalizeFunc{
	TypeEarthquake:     normalizeEarthquake,
	TypeWildfire:       normalizeWildfire,
	TypeAirQuality:     normalizeAirQuality,
	TypePowerOutage:    normalizePowerOutage,
	TypeSevereWeather:  normalizeSevereWeather,
	TypeInternetOutage: normalizeInternetOutage,
}

// Normalize maps an adapter's raw record into the unified event shape, pure
// and total over valid records. Fields a rule needs but the provider omitted
// read as zero and land in the lowest severity bucket; only a missing natural
// key, zero timestamp, or an absent or out-of-range location invalidates the
// record.
func Normalize(dataType DataType, sourceName string, raw RawRecord) (Event, error) {
	fn, ok := normalizers[dataType]
	if !ok {
		return Event{}, fmt.Errorf("%w: unsupported data type %q", ErrInvalidRecord, dataType)
	}
	if raw.NaturalKey == "" {
		return Event{}, fmt.Errorf("%w: missing natural key", ErrInvalidRecord)
	}
	if raw.OccurredAt.IsZero() {
		return Event{}, fmt.Errorf("%w: missing timestamp (key %s)", ErrInvalidRecord, raw.NaturalKey)
	}
	if !raw.HasLocation {
		return Event{}, fmt.Errorf("%w: missing location (key %s)", ErrInvalidRecord, raw.NaturalKey)
	}
	geo := Geo{Lat: raw.Lat, Lon: raw.Lon}
	if !geo.InRange() {
		return Event{}, fmt.Errorf("%w: coordinates out of range (key %s)", ErrInvalidRecord, raw.NaturalKey)
	}

	e := Event{
		ID:         EventID(dataType, sourceName, raw.NaturalKey),
		DataType:   dataType,
		Timestamp:  raw.OccurredAt.UnixMilli(),
		Location:   geo,
		Source:     sourceName,
		Color:      typeColors[dataType],
		Confidence: parseConfidence(raw.Label(LabelConfidenceClass)),
		Metadata:   raw.Metadata,
	}
	fn(&e, raw)
	return e, nil
}

// EventID produces the deterministic identity for a fixed (source, upstream
// natural key). Re-ingesting the same upstream record always yields the same
// ID, which is what makes store upserts idempotent.
func EventID(dataType DataType, sourceName, naturalKey string) string {
	hash := sha256.Sum256([]byte(sourceName + "|" + naturalKey))
	return string(dataType) + "-" + hex.EncodeToString(hash[:8])
}

func normalizeEarthquake(e *Event, raw RawRecord) {
	mag := raw.Metric(MetricMagnitude)
	e.PrimaryValue = mag
	if _, ok := raw.Metrics[MetricDepthKM]; ok {
		e.SecondaryValue = ptr(raw.Metric(MetricDepthKM))
	}
	switch {
	case mag >= 7:
		e.Severity = SeverityCritical
	case mag >= 6:
		e.Severity = SeverityHigh
	case mag >= 4:
		e.Severity = SeverityMedium
	default:
		e.Severity = SeverityLow
	}
}

func normalizeWildfire(e *Event, raw RawRecord) {
	confidence := raw.Metric(MetricConfidence)
	brightness := raw.Metric(MetricBrightness)
	e.PrimaryValue = clamp(confidence, 0, 100)
	if _, ok := raw.Metrics[MetricFRP]; ok {
		e.SecondaryValue = ptr(raw.Metric(MetricFRP))
	}
	switch {
	case confidence >= 80 && brightness >= 350:
		e.Severity = SeverityCritical
	case confidence >= 70 || brightness >= 330:
		e.Severity = SeverityHigh
	case confidence >= 50:
		e.Severity = SeverityMedium
	default:
		e.Severity = SeverityLow
	}
}

func normalizeAirQuality(e *Event, raw RawRecord) {
	aqi := raw.Metric(MetricAQI)
	e.PrimaryValue = math.Min(aqi/500*100, 100)
	if _, ok := raw.Metrics[MetricPM25]; ok {
		e.SecondaryValue = ptr(raw.Metric(MetricPM25))
	}
	switch {
	case aqi >= 300:
		e.Severity = SeverityCritical
	case aqi >= 150:
		e.Severity = SeverityHigh
	case aqi >= 100:
		e.Severity = SeverityMedium
	default:
		e.Severity = SeverityLow
	}
}

func normalizePowerOutage(e *Event, raw RawRecord) {
	out := raw.Metric(MetricCustomersOut)
	e.PrimaryValue = math.Min(math.Log10(out+1)/7*100, 100)
	if tracked := raw.Metric(MetricCustomers); tracked > 0 {
		e.SecondaryValue = ptr(out / tracked * 100)
	}
	switch {
	case out >= 100_000:
		e.Severity = SeverityCritical
	case out >= 50_000:
		e.Severity = SeverityHigh
	case out >= 10_000:
		e.Severity = SeverityMedium
	default:
		e.Severity = SeverityLow
	}
}

func normalizeSevereWeather(e *Event, raw RawRecord) {
	e.PrimaryValue, e.Severity = bucketed(raw.Label(LabelSeverity), "Extreme", "Severe", "Moderate")
}

func normalizeInternetOutage(e *Event, raw RawRecord) {
	e.PrimaryValue, e.Severity = bucketed(raw.Label(LabelScope), "NATIONWIDE", "REGIONAL", "LOCAL")
}

// bucketed maps a three-tier categorical label onto the fixed 100/75/50/25
// value scale with the mirrored severity class. Unknown or missing labels fall
// through to the lowest bucket.
func bucketed(label, top, mid, low string) (float64, Severity) {
	switch label {
	case top:
		return 100, SeverityCritical
	case mid:
		return 75, SeverityHigh
	case low:
		return 50, SeverityMedium
	default:
		return 25, SeverityLow
	}
}

func parseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return Confidence(s)
	default:
		return ""
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func ptr(v float64) *float64 { return &v }

// MaxTimestamp returns the newest occurrence time in the batch, or the zero
// time for an empty batch. Freshness tracking is a pure reduction over the
// batch rather than state accumulated during a loop.
func MaxTimestamp(events []Event) time.Time {
	var maxMillis int64
	for _, e := range events {
		if e.Timestamp > maxMillis {
			maxMillis = e.Timestamp
		}
	}
	if maxMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(maxMillis).UTC()
}

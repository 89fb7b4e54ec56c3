package domain

import "time"

// DataType discriminates the feed a unified event came from. It is immutable
// once written and doubles as the health-grouping key.
type DataType string

const (
	TypeEarthquake     DataType = "earthquake"
	TypeWildfire       DataType = "wildfire"
	TypeAirQuality     DataType = "air_quality"
	TypePowerOutage    DataType = "power_outage"
	TypeSevereWeather  DataType = "severe_weather"
	TypeInternetOutage DataType = "internet_outage"
)

// AllDataTypes lists every supported feed type in a stable order.
func AllDataTypes() []DataType {
	return []DataType{
		TypeEarthquake,
		TypeWildfire,
		TypeAirQuality,
		TypePowerOutage,
		TypeSevereWeather,
		TypeInternetOutage,
	}
}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case TypeEarthquake, TypeWildfire, TypeAirQuality,
		TypePowerOutage, TypeSevereWeather, TypeInternetOutage:
		return true
	}
	return false
}

// Severity is the derived four-level hazard class. It is never taken verbatim
// from upstream; each data type has its own derivation rule (see normalize.go).
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Confidence grades how much weight an upstream observation carries.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Geo is a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InRange reports whether the coordinates are physically plausible.
func (g Geo) InRange() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// Event is the canonical record written to the store. ID is deterministic for
// a fixed (source, upstream natural key), so re-ingesting the same upstream
// record is an idempotent update rather than a duplicate insert.
type Event struct {
	ID             string         `json:"id"`
	DataType       DataType       `json:"dataType"`
	Timestamp      int64          `json:"timestamp"` // ms since epoch, upstream occurrence time
	Location       Geo            `json:"location"`
	PrimaryValue   float64        `json:"primaryValue"`
	SecondaryValue *float64       `json:"secondaryValue,omitempty"`
	Severity       Severity       `json:"severity,omitempty"`
	Confidence     Confidence     `json:"confidence,omitempty"`
	Source         string         `json:"source"`
	Color          string         `json:"color,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OccurredAt returns the event timestamp as a time.Time in UTC.
func (e Event) OccurredAt() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// RawRecord is the neutral shape every adapter produces before normalization.
// NaturalKey is the provider's stable identifier for the observation; it seeds
// the deterministic event ID, so re-fetching the same upstream record must
// yield the same key. HasLocation distinguishes a genuine coordinate from the
// float zero value: adapters set it only when the provider reported a
// position, and records without one fail validation. Numeric fields referenced
// by normalization rules live in Metrics and categorical ones in Labels; a
// missing entry reads as the zero value, which normalization maps to the
// lowest severity bucket rather than failing the record.
type RawRecord struct {
	NaturalKey  string
	OccurredAt  time.Time
	Lat         float64
	Lon         float64
	HasLocation bool
	Metrics     map[string]float64
	Labels      map[string]string
	Metadata    map[string]any
}

// Metric returns the named metric or 0 when absent.
func (r RawRecord) Metric(name string) float64 {
	return r.Metrics[name]
}

// Label returns the named label or "" when absent.
func (r RawRecord) Label(name string) string {
	return r.Labels[name]
}

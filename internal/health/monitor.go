// Package health derives per-source freshness from the event store. Health is
// computed on demand from latest event timestamps, never cached here, and is
// deliberately independent of ingestion run status: a crashed run shows up as
// stale events, not as a special case.
package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
)

// StoreReader is the read-only slice of the store the monitor needs.
type StoreReader interface {
	LatestTimestamp(ctx context.Context, dt domain.DataType) (time.Time, bool, error)
	CountEvents(ctx context.Context, dt domain.DataType) (int64, error)
}

// Status classifies a source's freshness.
type Status string

const (
	StatusOK      Status = "ok"
	StatusDelayed Status = "delayed"
	StatusDown    Status = "down"
)

// statusRank orders statuses worst-first so the most troubled sources surface
// first to any caller.
var statusRank = map[Status]int{
	StatusDown:    0,
	StatusDelayed: 1,
	StatusOK:      2,
}

// Cadence is the expected-update-frequency threshold pair for one source.
// Sources with naturally slower upstream cadence carry proportionally larger
// thresholds; that asymmetry is intentional.
type Cadence struct {
	Ok   time.Duration
	Warn time.Duration
}

// SourceSpec binds a configured source to its data type and cadence.
type SourceSpec struct {
	Source   string
	DataType domain.DataType
	Cadence  Cadence
}

// SourceHealth is one source's freshness snapshot.
type SourceHealth struct {
	Source     string          `json:"source"`
	DataType   domain.DataType `json:"dataType"`
	Status     Status          `json:"status"`
	LastUpdate time.Time       `json:"lastUpdate"` // RFC 3339 in JSON
	AgeMinutes float64         `json:"ageMinutes"`
	EventCount int64           `json:"eventCount"`
	Message    string          `json:"message,omitempty"`
}

// Monitor answers status queries against the store.
type Monitor struct {
	store StoreReader
	specs []SourceSpec
	clock clockwork.Clock
}

func NewMonitor(store StoreReader, specs []SourceSpec, clock clockwork.Clock) *Monitor {
	return &Monitor{store: store, specs: specs, clock: clock}
}

// Status returns one entry per configured source, computed fresh from the
// store and ordered worst-first (down, delayed, ok).
func (m *Monitor) Status(ctx context.Context) ([]SourceHealth, error) {
	now := m.clock.Now().UTC()
	out := make([]SourceHealth, 0, len(m.specs))

	for _, spec := range m.specs {
		h, err := m.sourceHealth(ctx, now, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := statusRank[out[i].Status], statusRank[out[j].Status]
		if ri != rj {
			return ri < rj
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func (m *Monitor) sourceHealth(ctx context.Context, now time.Time, spec SourceSpec) (SourceHealth, error) {
	latest, found, err := m.store.LatestTimestamp(ctx, spec.DataType)
	if err != nil {
		return SourceHealth{}, fmt.Errorf("latest timestamp for %s: %w", spec.Source, err)
	}
	count, err := m.store.CountEvents(ctx, spec.DataType)
	if err != nil {
		return SourceHealth{}, fmt.Errorf("event count for %s: %w", spec.Source, err)
	}

	h := SourceHealth{
		Source:     spec.Source,
		DataType:   spec.DataType,
		EventCount: count,
	}

	if !found {
		// Synthetic epoch-zero last-update: the age is effectively infinite
		// (kept finite so it survives JSON encoding) and always classifies
		// as down.
		h.Status = StatusDown
		h.LastUpdate = time.UnixMilli(0).UTC()
		h.AgeMinutes = now.Sub(h.LastUpdate).Minutes()
		h.Message = "no events ingested"
		return h, nil
	}

	h.LastUpdate = latest
	h.AgeMinutes = now.Sub(latest).Minutes()
	h.Status = classify(now.Sub(latest), spec.Cadence)
	if h.Status != StatusOK {
		h.Message = fmt.Sprintf("last update %.0f minutes ago", h.AgeMinutes)
	}
	return h, nil
}

func classify(age time.Duration, c Cadence) Status {
	switch {
	case age <= c.Ok:
		return StatusOK
	case age <= c.Warn:
		return StatusDelayed
	default:
		return StatusDown
	}
}

// Package source defines the contract between the ingestion orchestrator and
// the per-provider feed adapters. Adapters fetch and parse one provider's wire
// format into neutral RawRecords; everything downstream (normalization,
// storage) is provider-agnostic.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
)

// Adapter fetches raw records from one upstream provider. Implementations own
// provider-specific auth, pagination, and payload parsing. A fetch returning
// zero records is a success, not an error.
type Adapter interface {
	// Name is the human-readable provider name, used for health grouping and
	// error attribution (e.g. "USGS Earthquake Hazards Program").
	Name() string
	DataType() domain.DataType
	Fetch(ctx context.Context, win Window) ([]domain.RawRecord, error)
}

// Window bounds a fetch to a time range. Adapters translate it into whatever
// the provider's API expects (start/end params, day counts, etc.).
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFor computes the fetch window for a tick: the target date's full UTC
// day when backfilling, otherwise the trailing lookback period ending now.
func WindowFor(now time.Time, lookback time.Duration, targetDate *time.Time) Window {
	if targetDate != nil {
		day := targetDate.UTC().Truncate(24 * time.Hour)
		return Window{Start: day, End: day.Add(24 * time.Hour)}
	}
	return Window{Start: now.Add(-lookback), End: now}
}

// ErrorKind classifies adapter failures for run records and metrics.
type ErrorKind string

const (
	KindConfig   ErrorKind = "config"   // missing credential; no network I/O attempted
	KindHTTP     ErrorKind = "http"     // upstream non-2xx response
	KindDecode   ErrorKind = "decode"   // malformed payload
	KindTimeout  ErrorKind = "timeout"  // deadline exceeded
	KindInternal ErrorKind = "internal" // anything else, including recovered panics
)

// Error is a structured adapter failure carrying per-source attribution.
type Error struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a structured adapter error.
func Errorf(src string, kind ErrorKind, format string, args ...any) *Error {
	return &Error{Source: src, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify wraps err as an Error, deriving the kind from context errors when
// the adapter did not already classify it.
func Classify(src string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	kind := KindInternal
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &Error{Source: src, Kind: kind, Err: err}
}

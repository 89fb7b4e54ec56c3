// Package ingest orchestrates the per-tick fan-out across all source
// adapters, the normalization of their output, and the ingestion run
// lifecycle. The run record, not the log stream, is the system of record for
// what a tick achieved.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/observability"
	"github.com/couchcryptid/hazard-data-ingest/internal/source"
	"github.com/couchcryptid/hazard-data-ingest/internal/store"
)

// EventStore is the slice of the store gateway the orchestrator writes through.
type EventStore interface {
	UpsertEvents(ctx context.Context, events []domain.Event) (applied []domain.Event, failed int, err error)
	CreateRun(ctx context.Context, run store.IngestionRun) error
	FinalizeRun(ctx context.Context, run store.IngestionRun) error
}

// Publisher forwards upserted events to a downstream bus. Publishing is
// best-effort; a publish failure never fails the run.
type Publisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// SourceSpec pairs an adapter with its default lookback window.
type SourceSpec struct {
	Adapter  source.Adapter
	Lookback time.Duration
}

// TickOptions modify one invocation. A nil TargetDate means the default
// "most recent window" behavior; setting it backfills that UTC day.
type TickOptions struct {
	TargetDate *time.Time
}

// SourceFailure is one adapter's structured error, preserving per-source
// attribution for the run record and external alerting.
type SourceFailure struct {
	Source  string           `json:"source"`
	Kind    source.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// SourceResult is the settled outcome of one adapter within a tick.
type SourceResult struct {
	Source   string          `json:"source"`
	DataType domain.DataType `json:"dataType"`
	Fetched  int             `json:"fetched"`
	Inserted int             `json:"inserted"`
	Dropped  int             `json:"dropped"`
	Failure  *SourceFailure  `json:"failure,omitempty"`
}

// Summary is the caller-facing outcome of a tick. It always accounts for what
// did succeed, even when some or all adapters failed.
type Summary struct {
	RunID          string          `json:"runId"`
	Status         store.RunStatus `json:"status"`
	Success        bool            `json:"success"`
	EventsIngested int             `json:"eventsIngested"`
	EventsDropped  int             `json:"eventsDropped"`
	DurationMs     int64           `json:"durationMs"`
	Errors         []SourceFailure `json:"errors,omitempty"`
	Results        []SourceResult  `json:"results"`
}

// SourceSummary is the outcome of a single-source ingest invocation.
type SourceSummary struct {
	RunID         string         `json:"runId"`
	InsertedCount int            `json:"insertedCount"`
	Dropped       int            `json:"dropped"`
	Sample        []domain.Event `json:"sampleOfFirstThree,omitempty"`
	Failure       *SourceFailure `json:"failure,omitempty"`
}

// ErrUnknownSource is returned by RunSource for an unconfigured source name.
var ErrUnknownSource = errors.New("unknown source")

// Orchestrator fans out to all configured adapters per tick and owns the
// ingestion run lifecycle. It is safe to trigger concurrently: overlapping
// ticks each get their own run row, and upserts are idempotent.
type Orchestrator struct {
	specs          []SourceSpec
	store          EventStore
	publisher      Publisher // nil disables publishing
	logger         *slog.Logger
	metrics        *observability.Metrics
	clock          clockwork.Clock
	adapterTimeout time.Duration
	ready          atomic.Bool
}

// New creates an Orchestrator. publisher may be nil.
func New(specs []SourceSpec, st EventStore, publisher Publisher, logger *slog.Logger,
	metrics *observability.Metrics, clock clockwork.Clock, adapterTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		specs:          specs,
		store:          st,
		publisher:      publisher,
		logger:         logger,
		metrics:        metrics,
		clock:          clock,
		adapterTimeout: adapterTimeout,
	}
}

// CheckReadiness returns nil once at least one ingestion run has completed.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no ingestion run has completed yet")
	}
	return nil
}

// RunTick executes one full ingestion cycle: create the run row, fan out to
// every adapter concurrently, wait for all to settle, aggregate, finalize.
// One adapter's failure never cancels its siblings. The returned error is
// non-nil only when the run could not be recorded at all.
func (o *Orchestrator) RunTick(ctx context.Context, opts TickOptions) (Summary, error) {
	startedAt := o.clock.Now().UTC()
	run := store.IngestionRun{
		ID:         uuid.NewString(),
		SourceName: "all",
		StartedAt:  startedAt,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return Summary{}, fmt.Errorf("create ingestion run: %w", err)
	}

	o.metrics.IngestRunning.Inc()
	defer o.metrics.IngestRunning.Dec()

	var results []SourceResult
	if len(o.specs) == 0 {
		// Fatal precondition: still recorded, never silently swallowed.
		results = nil
	} else {
		results = o.fanOut(ctx, opts)
	}

	summary := o.aggregate(run, startedAt, results)
	if len(o.specs) == 0 {
		summary.Status = store.RunError
		summary.Success = false
		summary.Errors = []SourceFailure{{Source: "orchestrator", Kind: source.KindConfig, Message: "no adapters configured"}}
	}

	if err := o.finalize(ctx, run, &summary); err != nil {
		return summary, err
	}
	o.ready.Store(true)
	return summary, nil
}

// RunSource executes the narrow path: one adapter, normalize, upsert. Used
// for manual and backfill invocation per source. name matches either the
// adapter's display name or its data type.
func (o *Orchestrator) RunSource(ctx context.Context, name string, opts TickOptions) (SourceSummary, error) {
	spec, ok := o.findSpec(name)
	if !ok {
		return SourceSummary{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	startedAt := o.clock.Now().UTC()
	run := store.IngestionRun{
		ID:         uuid.NewString(),
		SourceName: spec.Adapter.Name(),
		StartedAt:  startedAt,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return SourceSummary{}, fmt.Errorf("create ingestion run: %w", err)
	}

	result, sample := o.runAdapter(ctx, spec, opts)

	summary := o.aggregate(run, startedAt, []SourceResult{result})
	if err := o.finalize(ctx, run, &summary); err != nil {
		return SourceSummary{}, err
	}
	o.ready.Store(true)

	return SourceSummary{
		RunID:         run.ID,
		InsertedCount: result.Inserted,
		Dropped:       result.Dropped,
		Sample:        sample,
		Failure:       result.Failure,
	}, nil
}

// Sources lists the configured source names in registration order.
func (o *Orchestrator) Sources() []string {
	names := make([]string, len(o.specs))
	for i, spec := range o.specs {
		names[i] = spec.Adapter.Name()
	}
	return names
}

func (o *Orchestrator) findSpec(name string) (SourceSpec, bool) {
	for _, spec := range o.specs {
		if strings.EqualFold(spec.Adapter.Name(), name) ||
			strings.EqualFold(string(spec.Adapter.DataType()), name) {
			return spec, true
		}
	}
	return SourceSpec{}, false
}

// fanOut runs every adapter concurrently and waits for all of them to settle.
// Each goroutine writes only its own slot, so no locking is needed.
func (o *Orchestrator) fanOut(ctx context.Context, opts TickOptions) []SourceResult {
	results := make([]SourceResult, len(o.specs))
	var wg sync.WaitGroup
	for i, spec := range o.specs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = o.runAdapter(ctx, spec, opts)
		}()
	}
	wg.Wait()
	return results
}

// runAdapter fetches, normalizes, upserts, and publishes for one source under
// a bounded timeout. A panic inside the adapter is recovered into that
// source's failure so it cannot take down the tick.
func (o *Orchestrator) runAdapter(ctx context.Context, spec SourceSpec, opts TickOptions) (result SourceResult, sample []domain.Event) {
	name := spec.Adapter.Name()
	result = SourceResult{Source: name, DataType: spec.Adapter.DataType()}

	defer func() {
		if r := recover(); r != nil {
			result.Failure = &SourceFailure{Source: name, Kind: source.KindInternal, Message: fmt.Sprintf("panic: %v", r)}
			o.metrics.AdapterErrors.WithLabelValues(name, string(source.KindInternal)).Inc()
			o.logger.Error("adapter panicked", "source", name, "panic", r)
		}
	}()

	actx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	win := source.WindowFor(o.clock.Now().UTC(), spec.Lookback, opts.TargetDate)

	fetchStart := time.Now()
	raws, err := spec.Adapter.Fetch(actx, win)
	o.metrics.AdapterDuration.WithLabelValues(name).Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		se := source.Classify(name, err)
		result.Failure = &SourceFailure{Source: se.Source, Kind: se.Kind, Message: se.Err.Error()}
		o.metrics.AdapterErrors.WithLabelValues(name, string(se.Kind)).Inc()
		o.logger.Warn("adapter fetch failed", "source", name, "kind", se.Kind, "error", se.Err)
		return result, nil
	}
	result.Fetched = len(raws)

	events := make([]domain.Event, 0, len(raws))
	for _, raw := range raws {
		event, err := domain.Normalize(spec.Adapter.DataType(), name, raw)
		if err != nil {
			result.Dropped++
			o.logger.Debug("dropping invalid record", "source", name, "error", err)
			continue
		}
		events = append(events, event)
	}

	applied, failed, err := o.store.UpsertEvents(actx, events)
	if err != nil {
		result.Failure = &SourceFailure{Source: name, Kind: source.KindInternal, Message: fmt.Sprintf("upsert: %v", err)}
		o.metrics.AdapterErrors.WithLabelValues(name, string(source.KindInternal)).Inc()
		return result, nil
	}
	result.Inserted = len(applied)
	result.Dropped += failed
	o.metrics.EventsIngested.WithLabelValues(name).Add(float64(result.Inserted))
	o.metrics.EventsDropped.WithLabelValues(name).Add(float64(result.Dropped))
	o.metrics.StoreUpserts.Add(float64(len(applied)))
	o.metrics.StoreRowErrors.Add(float64(failed))

	o.publish(ctx, name, applied)

	if len(applied) > 3 {
		sample = applied[:3]
	} else {
		sample = applied
	}

	o.logger.Info("source ingested",
		"source", name,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"dropped", result.Dropped,
		"latest", domain.MaxTimestamp(applied),
	)
	return result, sample
}

func (o *Orchestrator) publish(ctx context.Context, name string, events []domain.Event) {
	if o.publisher == nil || len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events); err != nil {
		o.logger.Warn("event publish failed", "source", name, "count", len(events), "error", err)
	}
}

// aggregate derives the run status from the settled results: error when every
// adapter failed, success when none failed and events landed, partial for
// everything in between (mixed failures, or all-zero yields).
func (o *Orchestrator) aggregate(run store.IngestionRun, startedAt time.Time, results []SourceResult) Summary {
	summary := Summary{RunID: run.ID, Results: results}
	for _, r := range results {
		summary.EventsIngested += r.Inserted
		summary.EventsDropped += r.Dropped
		if r.Failure != nil {
			summary.Errors = append(summary.Errors, *r.Failure)
		}
	}

	switch {
	case len(results) > 0 && len(summary.Errors) == len(results):
		summary.Status = store.RunError
	case len(summary.Errors) == 0 && summary.EventsIngested > 0:
		summary.Status = store.RunSuccess
	default:
		summary.Status = store.RunPartial
	}
	summary.Success = summary.Status != store.RunError
	summary.DurationMs = o.clock.Now().UTC().Sub(startedAt).Milliseconds()
	return summary
}

func (o *Orchestrator) finalize(ctx context.Context, run store.IngestionRun, summary *Summary) error {
	completedAt := o.clock.Now().UTC()
	run.CompletedAt = &completedAt
	run.Status = summary.Status
	run.EventsIngested = summary.EventsIngested
	run.EventsDropped = summary.EventsDropped
	run.DurationMs = summary.DurationMs
	run.ErrorMessage = joinFailures(summary.Errors)

	if err := o.store.FinalizeRun(ctx, run); err != nil {
		return fmt.Errorf("finalize ingestion run: %w", err)
	}

	o.metrics.RunsTotal.WithLabelValues(string(summary.Status)).Inc()
	o.metrics.RunDuration.Observe(float64(summary.DurationMs) / 1000)
	o.logger.Info("ingestion run completed",
		"run_id", run.ID,
		"status", summary.Status,
		"events_ingested", summary.EventsIngested,
		"events_dropped", summary.EventsDropped,
		"duration_ms", summary.DurationMs,
		"errors", len(summary.Errors),
	)
	return nil
}

func joinFailures(failures []SourceFailure) string {
	if len(failures) == 0 {
		return ""
	}
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = fmt.Sprintf("%s: %s: %s", f.Source, f.Kind, f.Message)
	}
	return strings.Join(parts, "; ")
}

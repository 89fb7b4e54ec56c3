// Command backfill runs a single source adapter for a target date and prints
// the resulting summary as JSON. It shares configuration with the service, so
// a backfill writes to the same store the scheduler does.
//
// Usage:
//
//	go run ./cmd/backfill -source earthquake -date 2026-08-15
//	go run ./cmd/backfill -source "NWS Alerts"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/airnow"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/firms"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/netblocks"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/nws"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/outagemap"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/usgs"
	"github.com/couchcryptid/hazard-data-ingest/internal/config"
	"github.com/couchcryptid/hazard-data-ingest/internal/ingest"
	"github.com/couchcryptid/hazard-data-ingest/internal/observability"
	"github.com/couchcryptid/hazard-data-ingest/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	sourceName := flag.String("source", "", "source name or data type to ingest")
	date := flag.String("date", "", "target UTC date as YYYY-MM-DD (default: most recent window)")
	flag.Parse()

	if *sourceName == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -source")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	opts := ingest.TickOptions{}
	if *date != "" {
		day, err := time.Parse("2006-01-02", *date)
		if err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
		opts.TargetDate = &day
	}

	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetrics()

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // read-mostly CLI exit

	specs := buildSources(cfg, logger)
	orchestrator := ingest.New(specs, st, nil, logger, metrics, clockwork.NewRealClock(), cfg.AdapterTimeout)

	summary, err := orchestrator.RunSource(context.Background(), *sourceName, opts)
	if err != nil {
		if errors.Is(err, ingest.ErrUnknownSource) {
			return fmt.Errorf("%w (configured: %s)", err, strings.Join(orchestrator.Sources(), ", "))
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func buildSources(cfg *config.Config, logger *slog.Logger) []ingest.SourceSpec {
	bbox := [4]float64{cfg.ScopeBBox[0], cfg.ScopeBBox[1], cfg.ScopeBBox[2], cfg.ScopeBBox[3]}
	timeout := cfg.AdapterTimeout

	return []ingest.SourceSpec{
		{Adapter: usgs.NewClient(bbox, cfg.USGS.MinMagnitude, timeout, logger), Lookback: cfg.USGS.Lookback},
		{Adapter: firms.NewClient(cfg.FIRMS.MapKey, cfg.FIRMS.Satellite, bbox, timeout, logger), Lookback: cfg.FIRMS.Lookback},
		{Adapter: airnow.NewClient(cfg.AirNow.APIKey, bbox, timeout, logger), Lookback: cfg.AirNow.Lookback},
		{Adapter: outagemap.NewClient(cfg.OutageMap.APIKey, timeout, logger), Lookback: cfg.OutageMap.Lookback},
		{Adapter: nws.NewClient(cfg.NWS.UserAgent, timeout, logger), Lookback: cfg.NWS.Lookback},
		{Adapter: netblocks.NewClient(cfg.NetBlocks.Token, timeout, logger), Lookback: cfg.NetBlocks.Lookback},
	}
}

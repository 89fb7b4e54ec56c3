package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/airnow"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/hazard-data-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hazard-data-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/netblocks"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/nws"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/outagemap"
	"github.com/couchcryptid/hazard-data-ingest/internal/adapter/usgs"
	"github.com/couchcryptid/hazard-data-ingest/internal/config"
	"github.com/couchcryptid/hazard-data-ingest/internal/domain"
	"github.com/couchcryptid/hazard-data-ingest/internal/health"
	"github.com/couchcryptid/hazard-data-ingest/internal/ingest"
	"github.com/couchcryptid/hazard-data-ingest/internal/observability"
	"github.com/couchcryptid/hazard-data-ingest/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open event store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	specs := buildSources(cfg, logger)

	var publisher ingest.Publisher
	var kafkaPub *kafkaadapter.Publisher
	if cfg.Kafka.Enabled {
		kafkaPub = kafkaadapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = kafkaPub
		logger.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	orchestrator := ingest.New(specs, st, publisher, logger, metrics, clock, cfg.AdapterTimeout)
	scheduler := ingest.NewScheduler(orchestrator, cfg.IngestInterval, clock, logger)
	monitor := health.NewMonitor(st, healthSpecs(cfg, specs), clock)

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, monitor, st, orchestrator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// buildSources constructs one adapter per configured feed. Adapters with
// missing credentials are still registered; they report a config error each
// tick, which keeps the gap visible in run records and health output.
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

func healthSpecs(cfg *config.Config, specs []ingest.SourceSpec) []health.SourceSpec {
	cadences := map[domain.DataType]config.Cadence{
		domain.TypeEarthquake:     cfg.Health.Seismic,
		domain.TypeWildfire:       cfg.Health.FireDetection,
		domain.TypeAirQuality:     cfg.Health.AirQuality,
		domain.TypePowerOutage:    cfg.Health.PowerOutage,
		domain.TypeSevereWeather:  cfg.Health.SevereWeather,
		domain.TypeInternetOutage: cfg.Health.NetworkOutage,
	}

	out := make([]health.SourceSpec, 0, len(specs))
	for _, spec := range specs {
		cad := cadences[spec.Adapter.DataType()]
		out = append(out, health.SourceSpec{
			Source:   spec.Adapter.Name(),
			DataType: spec.Adapter.DataType(),
			Cadence: health.Cadence{
				Ok:   time.Duration(cad.OkMinutes) * time.Minute,
				Warn: time.Duration(cad.WarnMinutes) * time.Minute,
			},
		})
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DBPath          string        `env:"DB_PATH" envDefault:"data/hazard-events.db"`

	// IngestInterval is the scheduler cadence; AdapterTimeout bounds each
	// provider fetch so one hanging feed cannot stall a whole tick.
	IngestInterval time.Duration `env:"INGEST_INTERVAL" envDefault:"5m"`
	AdapterTimeout time.Duration `env:"ADAPTER_TIMEOUT" envDefault:"30s"`

	// ScopeBBox is the geographic scope as minLon,minLat,maxLon,maxLat.
	// The default covers the continental United States.
	ScopeBBox []float64 `env:"SCOPE_BBOX" envSeparator:"," envDefault:"-125,24,-66,50"`

	USGS      USGSConfig      `envPrefix:"USGS_"`
	FIRMS     FIRMSConfig     `envPrefix:"FIRMS_"`
	AirNow    AirNowConfig    `envPrefix:"AIRNOW_"`
	OutageMap OutageMapConfig `envPrefix:"OUTAGEMAP_"`
	NWS       NWSConfig       `envPrefix:"NWS_"`
	NetBlocks NetBlocksConfig `envPrefix:"NETBLOCKS_"`

	Kafka  KafkaConfig  `envPrefix:"KAFKA_"`
	Health HealthConfig `envPrefix:"HEALTH_"`
}

type USGSConfig struct {
	MinMagnitude float64       `env:"MIN_MAGNITUDE" envDefault:"2.5"`
	Lookback     time.Duration `env:"LOOKBACK" envDefault:"1h"`
}

type FIRMSConfig struct {
	MapKey    string        `env:"MAP_KEY"`
	Satellite string        `env:"SATELLITE" envDefault:"VIIRS_SNPP_NRT"`
	Lookback  time.Duration `env:"LOOKBACK" envDefault:"24h"`
}

type AirNowConfig struct {
	APIKey   string        `env:"API_KEY"`
	Lookback time.Duration `env:"LOOKBACK" envDefault:"2h"`
}

type OutageMapConfig struct {
	APIKey   string        `env:"API_KEY"`
	Lookback time.Duration `env:"LOOKBACK" envDefault:"1h"`
}

type NWSConfig struct {
	// The NWS API rejects requests without an identifying User-Agent.
	UserAgent string        `env:"USER_AGENT" envDefault:"hazard-data-ingest (ops@couchcryptid.dev)"`
	Lookback  time.Duration `env:"LOOKBACK" envDefault:"1h"`
}

type NetBlocksConfig struct {
	Token    string        `env:"TOKEN"`
	Lookback time.Duration `env:"LOOKBACK" envDefault:"6h"`
}

// KafkaConfig feature-flags publication of upserted events to a downstream
// topic. Disabled unless brokers are configured and Enabled is set.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"hazard-events"`
}

// Cadence is a per-source freshness threshold pair in minutes. Sources with
// naturally slower update cadence get proportionally larger thresholds.
type Cadence struct {
	OkMinutes   int `env:"OK_MINUTES"`
	WarnMinutes int `env:"WARN_MINUTES"`
}

// HealthConfig carries the cadence table. Defaults follow each provider's
// natural publish frequency.
type HealthConfig struct {
	Seismic       Cadence `envPrefix:"SEISMIC_"`
	FireDetection Cadence `envPrefix:"FIRE_"`
	AirQuality    Cadence `envPrefix:"AIR_"`
	PowerOutage   Cadence `envPrefix:"POWER_"`
	SevereWeather Cadence `envPrefix:"WEATHER_"`
	NetworkOutage Cadence `envPrefix:"NETWORK_"`
}

func defaultCadences(h *HealthConfig) {
	apply := func(c *Cadence, ok, warn int) {
		if c.OkMinutes == 0 {
			c.OkMinutes = ok
		}
		if c.WarnMinutes == 0 {
			c.WarnMinutes = warn
		}
	}
	apply(&h.Seismic, 5, 15)
	apply(&h.FireDetection, 180, 360)
	apply(&h.AirQuality, 120, 240)
	apply(&h.PowerOutage, 60, 180)
	apply(&h.SevereWeather, 30, 90)
	apply(&h.NetworkOutage, 15, 45)
}

// Load parses environment variables into Config and validates them.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	defaultCadences(&cfg.Health)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.IngestInterval <= 0 {
		return errors.New("INGEST_INTERVAL must be positive")
	}
	if c.AdapterTimeout <= 0 {
		return errors.New("ADAPTER_TIMEOUT must be positive")
	}
	if len(c.ScopeBBox) != 4 {
		return errors.New("SCOPE_BBOX must be minLon,minLat,maxLon,maxLat")
	}
	minLon, minLat, maxLon, maxLat := c.ScopeBBox[0], c.ScopeBBox[1], c.ScopeBBox[2], c.ScopeBBox[3]
	if minLon >= maxLon || minLat >= maxLat ||
		minLat < -90 || maxLat > 90 || minLon < -180 || maxLon > 180 {
		return errors.New("SCOPE_BBOX coordinates out of range")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	for name, cad := range map[string]Cadence{
		"HEALTH_SEISMIC": c.Health.Seismic,
		"HEALTH_FIRE":    c.Health.FireDetection,
		"HEALTH_AIR":     c.Health.AirQuality,
		"HEALTH_POWER":   c.Health.PowerOutage,
		"HEALTH_WEATHER": c.Health.SevereWeather,
		"HEALTH_NETWORK": c.Health.NetworkOutage,
	} {
		if cad.OkMinutes <= 0 || cad.WarnMinutes < cad.OkMinutes {
			return fmt.Errorf("%s thresholds invalid: ok=%d warn=%d", name, cad.OkMinutes, cad.WarnMinutes)
		}
	}
	return nil
}

// BBoxString renders the scope as the comma-joined form most provider APIs
// accept directly.
func (c *Config) BBoxString() string {
	return fmt.Sprintf("%g,%g,%g,%g", c.ScopeBBox[0], c.ScopeBBox[1], c.ScopeBBox[2], c.ScopeBBox[3])
}

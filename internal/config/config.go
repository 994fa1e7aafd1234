// Package config loads and validates enricher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Places     PlacesConfig     `mapstructure:"places"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSec    int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PlacesConfig configures the text-search provider and pagination.
type PlacesConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Endpoint       string  `mapstructure:"endpoint"`
	LanguageCode   string  `mapstructure:"language_code"`
	Country        string  `mapstructure:"country"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PageDelayMs    int     `mapstructure:"page_delay_ms"`
	MaxPages       int     `mapstructure:"max_pages"`
	MaxResults     int     `mapstructure:"max_results"`
	RequestsPerSec float64 `mapstructure:"requests_per_second"`
}

// FetcherConfig configures website retrieval.
type FetcherConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRedirects   int     `mapstructure:"max_redirects"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	PerHostRPS     float64 `mapstructure:"per_host_rps"`
}

// EnrichmentConfig tunes the orchestrator.
type EnrichmentConfig struct {
	VisitDelayMs int `mapstructure:"visit_delay_ms"`
}

// WorkerConfig governs the job queue and worker pool.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
}

// StorageConfig selects where result documents are written.
// Backend is one of memory, local or gcs.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN disables it.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls tracing setup.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.endpoint", "https://places.googleapis.com/v1/places:searchText")
	v.SetDefault("places.language_code", "en")
	v.SetDefault("places.country", "USA")
	v.SetDefault("places.timeout_seconds", 10)
	v.SetDefault("places.page_delay_ms", 2000)
	v.SetDefault("places.max_pages", 3)
	v.SetDefault("places.max_results", 60)
	v.SetDefault("places.requests_per_second", 5)
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.timeout_seconds", 10)
	v.SetDefault("fetcher.max_redirects", 5)
	v.SetDefault("fetcher.max_body_bytes", 5<<20)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("fetcher.per_host_rps", 0)
	v.SetDefault("enrichment.visit_delay_ms", 500)
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "data/results")
	v.SetDefault("storage.prefix", "searches")
	v.SetDefault("db.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "lead-enricher")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if c.Places.TimeoutSeconds <= 0 {
		return errors.New("places.timeout_seconds must be > 0")
	}
	if c.Places.PageDelayMs < 0 {
		return errors.New("places.page_delay_ms must be >= 0")
	}
	if c.Places.MaxPages <= 0 || c.Places.MaxResults <= 0 {
		return errors.New("places.max_pages and places.max_results must be > 0")
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return errors.New("fetcher.timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxRedirects < 0 {
		return errors.New("fetcher.max_redirects must be >= 0")
	}
	if c.Enrichment.VisitDelayMs < 0 {
		return errors.New("enrichment.visit_delay_ms must be >= 0")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return errors.New("worker.queue_depth must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// PageDelay returns the pause between provider pages.
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.Places.PageDelayMs) * time.Millisecond
}

// VisitDelay returns the pause between website visits.
func (c Config) VisitDelay() time.Duration {
	return time.Duration(c.Enrichment.VisitDelayMs) * time.Millisecond
}

// FetchTimeout bounds a single website fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// PlacesTimeout bounds a single provider page request.
func (c Config) PlacesTimeout() time.Duration {
	return time.Duration(c.Places.TimeoutSeconds) * time.Second
}

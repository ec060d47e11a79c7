// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Headless     HeadlessConfig     `mapstructure:"headless"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Sources      []SourceConfig     `mapstructure:"sources"`
	DB           DBConfig           `mapstructure:"db"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Match        MatchConfig        `mapstructure:"match"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the politeness and retry behavior of the fetch client.
type FetchConfig struct {
	UserAgent        string   `mapstructure:"user_agent"`
	AllowedDomains   []string `mapstructure:"allowed_domains"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	DelayMs          int      `mapstructure:"delay_ms"`
	DelayJitterMs    int      `mapstructure:"delay_jitter_ms"`
	PerDomainRPS     float64  `mapstructure:"per_domain_rps"`
	PerDomainBurst   int      `mapstructure:"per_domain_burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// OrchestratorConfig bounds collection runs.
type OrchestratorConfig struct {
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds"`
	MaxItemsPerSource    int `mapstructure:"max_items_per_source"`
	// MinIntervalMinutes skips a source collected more recently than
	// this unless the run is forced.
	MinIntervalMinutes int `mapstructure:"min_interval_minutes"`
}

// SourceKind selects the adapter implementation for a source.
type SourceKind string

// Supported source kinds.
const (
	SourceKindHTML SourceKind = "html"
	SourceKindAPI  SourceKind = "api"
)

// SourceConfig declares one external source and its extraction mapping.
type SourceConfig struct {
	Name     string     `mapstructure:"name"`
	Kind     SourceKind `mapstructure:"kind"`
	URL      string     `mapstructure:"url"`
	MaxItems int        `mapstructure:"max_items"`
	MaxPages int        `mapstructure:"max_pages"`
	// Selectors maps candidate fields to CSS selectors for HTML sources.
	Selectors map[string]string `mapstructure:"selectors"`
	// Fields maps candidate fields to JSON keys for API sources.
	Fields map[string]string `mapstructure:"fields"`
	// ItemsPath is the JSON key holding the item array for API sources.
	ItemsPath string `mapstructure:"items_path"`
	// PageParam is the query parameter used to page API sources.
	PageParam string `mapstructure:"page_param"`
	// FollowDetail enables per-item detail page fetches for HTML sources.
	FollowDetail bool `mapstructure:"follow_detail"`
}

// DBConfig controls access to the relational database. An empty DSN
// selects the in-memory stores.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	GrantsTable     string `mapstructure:"grants_table"`
	RunsTable       string `mapstructure:"runs_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// SnapshotConfig selects where raw page snapshots are archived.
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"` // memory, local, gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MatchConfig holds the scoring rubric weights and priority thresholds.
type MatchConfig struct {
	WeightIndustry      float64 `mapstructure:"weight_industry"`
	WeightLocation      float64 `mapstructure:"weight_location"`
	WeightOrgType       float64 `mapstructure:"weight_org_type"`
	WeightPurpose       float64 `mapstructure:"weight_purpose"`
	WeightAudience      float64 `mapstructure:"weight_audience"`
	WeightTimeline      float64 `mapstructure:"weight_timeline"`
	HighThreshold       float64 `mapstructure:"high_threshold"`
	MediumThreshold     float64 `mapstructure:"medium_threshold"`
	DeadlineComfortDays int     `mapstructure:"deadline_comfort_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRANTS")
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
	v.SetDefault("fetch.user_agent", "grantscout-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.delay_ms", 1000)
	v.SetDefault("fetch.delay_jitter_ms", 500)
	v.SetDefault("fetch.per_domain_rps", 1.0)
	v.SetDefault("fetch.per_domain_burst", 1)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("orchestrator.source_timeout_seconds", 300)
	v.SetDefault("orchestrator.max_items_per_source", 100)
	v.SetDefault("orchestrator.min_interval_minutes", 60)
	v.SetDefault("db.grants_table", "grants")
	v.SetDefault("db.runs_table", "collection_runs")
	v.SetDefault("snapshot.backend", "memory")
	v.SetDefault("snapshot.prefix", "snapshots")
	v.SetDefault("match.weight_industry", 30)
	v.SetDefault("match.weight_location", 20)
	v.SetDefault("match.weight_org_type", 15)
	v.SetDefault("match.weight_purpose", 15)
	v.SetDefault("match.weight_audience", 10)
	v.SetDefault("match.weight_timeline", 10)
	v.SetDefault("match.high_threshold", 80)
	v.SetDefault("match.medium_threshold", 60)
	v.SetDefault("match.deadline_comfort_days", 28)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Orchestrator.SourceTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.source_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Match.HighThreshold <= c.Match.MediumThreshold {
		return fmt.Errorf("match.high_threshold must be > match.medium_threshold")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source name is required")
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
		if src.Kind != SourceKindHTML && src.Kind != SourceKindAPI {
			return fmt.Errorf("source %q: unknown kind %q", src.Name, src.Kind)
		}
		if src.URL == "" {
			return fmt.Errorf("source %q: url is required", src.Name)
		}
		if src.Kind == SourceKindAPI && src.MaxPages > 1 && src.PageParam == "" {
			return fmt.Errorf("source %q: page_param is required when max_pages > 1", src.Name)
		}
	}
	switch c.Snapshot.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("snapshot.backend must be memory, local or gcs")
	}
	if c.Snapshot.Backend == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
	}
	if c.Snapshot.Backend == "local" && c.Snapshot.LocalDir == "" {
		return fmt.Errorf("snapshot.local_dir must be set for the local backend")
	}
	return nil
}

// FetchTimeout converts the configured fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// SourceTimeout converts the per-source wall-clock budget into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Orchestrator.SourceTimeoutSeconds) * time.Second
}

// SourceMinInterval converts the freshness window into a duration.
func (c Config) SourceMinInterval() time.Duration {
	return time.Duration(c.Orchestrator.MinIntervalMinutes) * time.Minute
}

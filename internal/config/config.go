package config

import (
	"fmt"
	"time"

	"github.com/dpup/intel-overlay/server/internal/lib/offset"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"api" koanf:"api"`
	Planner PlannerConfig `yaml:"planner" koanf:"planner"`
	Offset  OffsetConfig  `yaml:"offset" koanf:"offset"`
	Feed    FeedConfig    `yaml:"feed" koanf:"feed"`
}

// ServerConfig holds HTTP surface settings
type ServerConfig struct {
	CorsOrigins    []string      `yaml:"cors_origins" koanf:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// PlannerConfig holds done-links session settings
type PlannerConfig struct {
	// How often every session receives a map-data refresh (stale-link pruning + recheck)
	RefreshInterval time.Duration `yaml:"refresh_interval" koanf:"refresh_interval"`
	// Idle time after which a session is dropped
	SessionTTL time.Duration `yaml:"session_ttl" koanf:"session_ttl"`
	// How often idle sessions are swept
	CleanupInterval time.Duration `yaml:"cleanup_interval" koanf:"cleanup_interval"`
	// Upper bound on concurrently open sessions; 0 means unlimited
	MaxSessions int `yaml:"max_sessions" koanf:"max_sessions"`
	// Activate new sessions immediately unless the request says otherwise
	ActivateByDefault bool `yaml:"activate_by_default" koanf:"activate_by_default"`
	// Hosts draw-tools plans may be imported from by URL; empty allows any public https host
	PlanURLHosts []string `yaml:"plan_url_hosts" koanf:"plan_url_hosts"`
}

// OffsetConfig holds coordinate transformer settings
type OffsetConfig struct {
	DefaultMapType string `yaml:"default_map_type" koanf:"default_map_type"`
	// Maximum number of points accepted by one transform request
	MaxBatch int `yaml:"max_batch" koanf:"max_batch"`
}

// FeedConfig holds the NATS live link feed settings. An empty URL disables the feed.
type FeedConfig struct {
	NatsURL       string        `yaml:"nats_url" koanf:"nats_url"`
	SubjectPrefix string        `yaml:"subject_prefix" koanf:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects" koanf:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" koanf:"reconnect_wait"`
	Timeout       time.Duration `yaml:"timeout" koanf:"timeout"`
}

// MapType parses the configured default imagery type
func (o OffsetConfig) MapType() offset.MapType {
	return offset.ParseMapType(o.DefaultMapType)
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Planner.RefreshInterval <= 0 {
		return fmt.Errorf("planner.refresh_interval must be positive, got %v", c.Planner.RefreshInterval)
	}
	if c.Planner.SessionTTL <= 0 {
		return fmt.Errorf("planner.session_ttl must be positive, got %v", c.Planner.SessionTTL)
	}
	if c.Planner.CleanupInterval <= 0 {
		return fmt.Errorf("planner.cleanup_interval must be positive, got %v", c.Planner.CleanupInterval)
	}
	if c.Planner.MaxSessions < 0 {
		return fmt.Errorf("planner.max_sessions must not be negative, got %d", c.Planner.MaxSessions)
	}
	if c.Offset.MaxBatch <= 0 {
		return fmt.Errorf("offset.max_batch must be positive, got %d", c.Offset.MaxBatch)
	}
	if c.Feed.NatsURL != "" && c.Feed.SubjectPrefix == "" {
		return fmt.Errorf("feed.subject_prefix is required when feed.nats_url is set")
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins:    []string{"https://intel.ingress.com"},
			RequestTimeout: 30 * time.Second,
		},
		Planner: PlannerConfig{
			RefreshInterval: 30 * time.Second, // roughly the intel map's own data refresh
			SessionTTL:      2 * time.Hour,
			CleanupInterval: 5 * time.Minute,
			MaxSessions:     1000,
		},
		Offset: OffsetConfig{
			DefaultMapType: string(offset.Roadmap),
			MaxBatch:       5000,
		},
		Feed: FeedConfig{
			SubjectPrefix: "intel",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
	}
}

package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the metrics relay server.
type Config struct {
	// HTTP listener
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Broadcast and sampling cadence
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	SystemInterval    time.Duration `yaml:"system_interval"`
	PingInterval      time.Duration `yaml:"ping_interval"`

	// Header-based identity for /metrics/* routes
	IdentityHeader    string   `yaml:"identity_header"`
	AllowedIdentities []string `yaml:"allowed_identities"`
	AccessTokenHash   string   `yaml:"access_token_hash"` // bcrypt hash, optional

	// Snapshot archive (disabled when DBPath is empty)
	DBPath    string        `yaml:"db_path"`
	Retention time.Duration `yaml:"retention"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
	DevMode  bool   `yaml:"dev_mode"`

	// System sampler
	DiskPath string `yaml:"disk_path"`

	// Version reported by /health
	Version string `yaml:"version"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8090,
		BroadcastInterval: 5 * time.Second,
		SystemInterval:    5 * time.Second,
		PingInterval:      30 * time.Second,
		IdentityHeader:    "X-User-Email",
		Retention:         24 * time.Hour,
		LogFile:           "metrics.log",
		LogLevel:          "info",
		DiskPath:          "/",
		Version:           Version,
	}
}

// LoadConfig builds the configuration in three layers: defaults, the optional
// YAML file named by METRICS_CONFIG_FILE, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("METRICS_CONFIG_FILE"); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadYAMLFile overlays the values present in a YAML file onto cfg.
// Durations are written as Go duration strings ("5s", "24h").
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfigFileUnreadable(path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return ErrConfigFileUnreadable(path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Host = GetEnvOrDefault("METRICS_HOST", cfg.Host)
	cfg.Port = ParseIntEnv("METRICS_PORT", cfg.Port)
	cfg.BroadcastInterval = ParseSecondsEnv("METRICS_INTERVAL_SECONDS", cfg.BroadcastInterval)
	cfg.SystemInterval = ParseSecondsEnv("METRICS_SYSTEM_INTERVAL_SECONDS", cfg.SystemInterval)
	cfg.PingInterval = ParseSecondsEnv("METRICS_PING_INTERVAL_SECONDS", cfg.PingInterval)
	cfg.IdentityHeader = GetEnvOrDefault("METRICS_IDENTITY_HEADER", cfg.IdentityHeader)
	if ids := ParseListEnv("METRICS_ALLOWED_IDENTITIES"); ids != nil {
		cfg.AllowedIdentities = ids
	}
	cfg.AccessTokenHash = GetEnvOrDefault("METRICS_TOKEN_HASH", cfg.AccessTokenHash)
	cfg.DBPath = GetEnvOrDefault("METRICS_DB_PATH", cfg.DBPath)
	cfg.Retention = time.Duration(ParseIntEnv("METRICS_RETENTION_HOURS", int(cfg.Retention/time.Hour))) * time.Hour
	cfg.LogFile = GetEnvOrDefault("METRICS_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = GetEnvOrDefault("METRICS_LOG_LEVEL", cfg.LogLevel)
	cfg.DevMode = ParseBoolEnv("DEV_MODE", cfg.DevMode)
	cfg.DiskPath = GetEnvOrDefault("METRICS_DISK_PATH", cfg.DiskPath)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("METRICS_PORT", fmt.Sprintf("%d", c.Port), "must be between 1 and 65535")
	}
	if c.BroadcastInterval < 100*time.Millisecond {
		return ErrInvalidValue("METRICS_INTERVAL_SECONDS", c.BroadcastInterval.String(), "must be at least 100ms")
	}
	if c.SystemInterval < time.Second {
		return ErrInvalidValue("METRICS_SYSTEM_INTERVAL_SECONDS", c.SystemInterval.String(), "must be at least 1s")
	}
	if strings.TrimSpace(c.IdentityHeader) == "" {
		return ErrMissingConfig("METRICS_IDENTITY_HEADER")
	}
	if c.DBPath != "" && c.Retention <= 0 {
		return ErrInvalidValue("METRICS_RETENTION_HOURS", c.Retention.String(), "must be positive when the archive is enabled")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ArchiveEnabled reports whether snapshots are persisted.
func (c *Config) ArchiveEnabled() bool {
	return c.DBPath != ""
}

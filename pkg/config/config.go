// Package config provides configuration structures and loading logic for the
// support pipeline service.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Safety    SafetyConfig    `yaml:"safety"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics_address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file; ":memory:" for ephemeral.
	Path string `yaml:"path"`
	// Seed loads the demo dataset on startup.
	Seed bool `yaml:"seed"`
}

// TierLimitConfig holds per-tier admission settings.
type TierLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
	BurstSize         int `yaml:"burst_size"`
}

// RateLimitConfig holds admission control settings.
type RateLimitConfig struct {
	GlobalPerMinute int                        `yaml:"global_per_minute"`
	GlobalPerHour   int                        `yaml:"global_per_hour"`
	DisableGlobal   bool                       `yaml:"disable_global"`
	Tiers           map[string]TierLimitConfig `yaml:"tiers"`
}

// SafetyConfig holds validator settings.
type SafetyConfig struct {
	MaxInputLength int     `yaml:"max_input_length"`
	MinInputLength int     `yaml:"min_input_length"`
	StripHTML      bool    `yaml:"strip_html"`
	StrictInput    bool    `yaml:"strict_input"`
	MinConfidence  float64 `yaml:"min_confidence"`
	StrictOutput   bool    `yaml:"strict_output"`
}

// WorkflowConfig holds escalation settings.
type WorkflowConfig struct {
	AutoResolveThreshold float64  `yaml:"auto_resolve_threshold"`
	VIPEmails            []string `yaml:"vip_emails"`
	SendTimeoutSeconds   int      `yaml:"send_timeout_seconds"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:        ":8080",
			MetricsAddress: ":9090",
		},
		Storage: StorageConfig{
			Driver: "memory",
			Seed:   true,
		},
		Safety: SafetyConfig{
			MaxInputLength: 5000,
			MinInputLength: 1,
			MinConfidence:  0.6,
		},
		Workflow: WorkflowConfig{
			AutoResolveThreshold: 0.8,
			SendTimeoutSeconds:   30,
		},
		RateLimit: RateLimitConfig{
			GlobalPerMinute: 1000,
			GlobalPerHour:   50000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("DESKMESH_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("DESKMESH_METRICS_ADDR"); val != "" {
		cfg.Server.MetricsAddress = val
	}

	if val := os.Getenv("DESKMESH_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("DESKMESH_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("DESKMESH_STORAGE_DRIVER"); val != "" {
		cfg.Storage.Driver = val
	}
	if val := os.Getenv("DESKMESH_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}

	if val := os.Getenv("DESKMESH_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate performs comprehensive validation of the entire configuration.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage configuration: %w", err)
	}
	if err := c.Safety.Validate(); err != nil {
		return fmt.Errorf("safety configuration: %w", err)
	}
	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow configuration: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	return nil
}

// Validate checks the storage backend selection.
func (c *StorageConfig) Validate() error {
	driver := strings.TrimSpace(strings.ToLower(c.Driver))
	switch driver {
	case "", "memory":
		c.Driver = "memory"
		return nil
	case "sqlite":
		c.Driver = "sqlite"
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("sqlite driver requires a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q, supported drivers: memory, sqlite", c.Driver)
	}
}

// Validate checks validator bounds.
func (c *SafetyConfig) Validate() error {
	if c.MaxInputLength <= 0 {
		c.MaxInputLength = 5000
	}
	if c.MinInputLength <= 0 {
		c.MinInputLength = 1
	}
	if c.MinInputLength > c.MaxInputLength {
		return fmt.Errorf("min_input_length %d exceeds max_input_length %d", c.MinInputLength, c.MaxInputLength)
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.6
	}
	if c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence %.2f must be in (0, 1]", c.MinConfidence)
	}
	return nil
}

// Validate checks escalation thresholds.
func (c *WorkflowConfig) Validate() error {
	if c.AutoResolveThreshold <= 0 {
		c.AutoResolveThreshold = 0.8
	}
	if c.AutoResolveThreshold > 1 {
		return fmt.Errorf("auto_resolve_threshold %.2f must be in (0, 1]", c.AutoResolveThreshold)
	}
	if c.SendTimeoutSeconds <= 0 {
		c.SendTimeoutSeconds = 30
	}
	return nil
}

// Validate checks tier names and ceilings.
func (c *RateLimitConfig) Validate() error {
	if c.GlobalPerMinute <= 0 {
		c.GlobalPerMinute = 1000
	}
	if c.GlobalPerHour <= 0 {
		c.GlobalPerHour = 50000
	}
	for name, limits := range c.Tiers {
		if limits.RequestsPerMinute <= 0 || limits.RequestsPerHour <= 0 || limits.BurstSize <= 0 {
			return fmt.Errorf("tier %q must have positive limits", name)
		}
	}
	return nil
}

// Validate normalises and checks the log level.
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}
}

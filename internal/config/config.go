// ABOUTME: Configuration loading and parsing for groupchat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete groupchat-gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Bus      BusConfig      `yaml:"bus"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds the HTTP server address serving the Channel Service and
// the SSE/WS subscription endpoints.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds Channel Store configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BusConfig holds the message bus connection used by the Dispatch Loop and
// the Channel Service's publish path.
type BusConfig struct {
	URL string `yaml:"url"`
}

// RegistryConfig holds Subscription Registry timing configuration.
type RegistryConfig struct {
	SessionCeiling time.Duration `yaml:"-"`

	// SessionCeilingRaw is the raw duration string for YAML unmarshaling.
	SessionCeilingRaw string `yaml:"session_ceiling"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// defaultSessionCeiling is used when registry.session_ceiling is unset,
// matching the spec's fixed 15-minute maximum session duration.
const defaultSessionCeiling = 15 * time.Minute

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. If the environment variable is not set, it
// is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Registry.SessionCeilingRaw == "" {
		return nil
	}

	ceiling, err := time.ParseDuration(cfg.Registry.SessionCeilingRaw)
	if err != nil {
		return fmt.Errorf("parsing session_ceiling %q: %w", cfg.Registry.SessionCeilingRaw, err)
	}
	cfg.Registry.SessionCeiling = ceiling
	return nil
}

// applyDefaults fills in zero-value fields with the defaults the teacher's
// config package otherwise leaves to the caller.
func applyDefaults(cfg *Config) {
	if cfg.Registry.SessionCeiling == 0 {
		cfg.Registry.SessionCeiling = defaultSessionCeiling
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Package config loads the flightdeck configuration from file, environment
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/openutm/flightdeck/internal/telemetry"
	"github.com/openutm/flightdeck/pkg/coordination/store"
	"github.com/openutm/flightdeck/pkg/dss"
	"github.com/openutm/flightdeck/pkg/kv"
)

// Config represents the flightdeck configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FLIGHTDECK_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// A handful of legacy environment variables without the prefix are honored
// for compatibility with existing deployments (DSS_BASE_URL,
// HEARTBEAT_RATE_SECS, ...).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// API contains the HTTP API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics contains the Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Database configures the relational store (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Redis configures the KV / stream store
	Redis kv.Config `mapstructure:"redis" yaml:"redis"`

	// DSS configures the DSS client and auth server
	DSS dss.Config `mapstructure:"dss" yaml:"dss"`

	// Coordination configures the flight coordination engine
	Coordination CoordinationConfig `mapstructure:"coordination" yaml:"coordination"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: "text" or "json"
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// APIConfig contains the HTTP API server configuration.
type APIConfig struct {
	// Host is the listen address
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535" yaml:"port"`

	// RequestTimeout bounds a single request
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// JWTSecret verifies inbound bearer tokens. Empty disables verification
	// (development only).
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// MetricsConfig contains the Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns on the /metrics endpoint and collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// CoordinationConfig configures the flight coordination engine.
type CoordinationConfig struct {
	// SelfBaseURL is the externally reachable base URL of this USS, used as
	// uss_base_url in DSS submissions and filtered from subscriber lists.
	SelfBaseURL string `mapstructure:"self_base_url" validate:"required,url" yaml:"self_base_url"`

	// HeartbeatRate is the period of the per-declaration conformance check.
	HeartbeatRate time.Duration `mapstructure:"heartbeat_rate" yaml:"heartbeat_rate"`

	// TelemetryTimeout is the maximum telemetry gap before C9a fails.
	TelemetryTimeout time.Duration `mapstructure:"telemetry_timeout" yaml:"telemetry_timeout"`

	// EnableConformanceMonitoring starts the periodic conformance job when
	// an operation is activated.
	EnableConformanceMonitoring bool `mapstructure:"enable_conformance_monitoring" yaml:"enable_conformance_monitoring"`

	// USSPNetworkEnabled enables DSS submission and peer notifications.
	// When disabled, declarations are coordinated locally only.
	USSPNetworkEnabled bool `mapstructure:"ussp_network_enabled" yaml:"ussp_network_enabled"`

	// MaxDeclarationWindow is how far in the future an operation may start
	// or end.
	MaxDeclarationWindow time.Duration `mapstructure:"max_declaration_window" yaml:"max_declaration_window"`

	// Workers is the size of the background worker pool.
	Workers int `mapstructure:"workers" validate:"gte=1" yaml:"workers"`

	// StreamMaxLen bounds the telemetry stream length (approximate trim).
	StreamMaxLen int64 `mapstructure:"stream_max_len" yaml:"stream_max_len"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Telemetry:       telemetry.DefaultConfig(),
		ShutdownTimeout: 30 * time.Second,
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 60 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
		Redis:   kv.DefaultConfig(),
		DSS:     dss.DefaultConfig(),
		Coordination: CoordinationConfig{
			SelfBaseURL:                 "http://localhost:8000",
			HeartbeatRate:               5 * time.Second,
			TelemetryTimeout:            15 * time.Second,
			EnableConformanceMonitoring: true,
			USSPNetworkEnabled:          false,
			MaxDeclarationWindow:        48 * time.Hour,
			Workers:                     4,
			StreamMaxLen:                1000,
		},
	}
	cfg.Database.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills missing values with defaults.
func ApplyDefaults(cfg *Config) {
	defaults := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.API.Host == "" {
		cfg.API.Host = defaults.API.Host
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = defaults.API.Port
	}
	if cfg.API.RequestTimeout == 0 {
		cfg.API.RequestTimeout = defaults.API.RequestTimeout
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.DSS.BaseURL == "" {
		cfg.DSS.BaseURL = defaults.DSS.BaseURL
	}
	if cfg.DSS.Timeout == 0 {
		cfg.DSS.Timeout = defaults.DSS.Timeout
	}
	if cfg.Coordination.SelfBaseURL == "" {
		cfg.Coordination.SelfBaseURL = defaults.Coordination.SelfBaseURL
	}
	if cfg.Coordination.HeartbeatRate == 0 {
		cfg.Coordination.HeartbeatRate = defaults.Coordination.HeartbeatRate
	}
	if cfg.Coordination.TelemetryTimeout == 0 {
		cfg.Coordination.TelemetryTimeout = defaults.Coordination.TelemetryTimeout
	}
	if cfg.Coordination.MaxDeclarationWindow == 0 {
		cfg.Coordination.MaxDeclarationWindow = defaults.Coordination.MaxDeclarationWindow
	}
	if cfg.Coordination.Workers == 0 {
		cfg.Coordination.Workers = defaults.Coordination.Workers
	}
	if cfg.Coordination.StreamMaxLen == 0 {
		cfg.Coordination.StreamMaxLen = defaults.Coordination.StreamMaxLen
	}
	cfg.Database.ApplyDefaults()
}

// Validate checks the configuration.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return cfg.Database.Validate()
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if configFileFound {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)
	applyLegacyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files carry secrets; owner read/write only.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the FLIGHTDECK_ prefix, e.g.
// FLIGHTDECK_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FLIGHTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyLegacyEnv honors the unprefixed environment variables used by
// existing deployments.
func applyLegacyEnv(cfg *Config) {
	if value := os.Getenv("DSS_BASE_URL"); value != "" {
		cfg.DSS.BaseURL = value
	}
	if value := os.Getenv("DSS_SELF_AUDIENCE"); value != "" {
		cfg.DSS.Audience = value
	}
	if value := os.Getenv("DSS_AUTH_TOKEN_ENDPOINT"); value != "" {
		cfg.DSS.Auth.TokenURL = value
	}
	if value := os.Getenv("AUTH_DSS_CLIENT_ID"); value != "" {
		cfg.DSS.Auth.ClientID = value
	}
	if value := os.Getenv("AUTH_DSS_CLIENT_SECRET"); value != "" {
		cfg.DSS.Auth.ClientSecret = value
	}
	if value := os.Getenv("BLENDER_FQDN"); value != "" {
		cfg.Coordination.SelfBaseURL = value
	}
	if value := os.Getenv("HEARTBEAT_RATE_SECS"); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			cfg.Coordination.HeartbeatRate = time.Duration(secs) * time.Second
		}
	}
	if value := os.Getenv("ENABLE_CONFORMANCE_MONITORING"); value != "" {
		cfg.Coordination.EnableConformanceMonitoring = value == "1" || strings.EqualFold(value, "true")
	}
	if value := os.Getenv("USSP_NETWORK_ENABLED"); value != "" {
		cfg.Coordination.USSPNetworkEnabled = value == "1" || strings.EqualFold(value, "true")
	}
	if value := os.Getenv("REDIS_URL"); value != "" {
		cfg.Redis.Addr = strings.TrimPrefix(value, "redis://")
	}
}

// configDecodeHooks returns the decode hooks for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

// durationDecodeHook parses duration strings like "5s" or "30m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return time.ParseDuration(value)
		case int:
			return time.Duration(value) * time.Second, nil
		case int64:
			return time.Duration(value) * time.Second, nil
		case float64:
			return time.Duration(value * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring
// XDG_CONFIG_HOME.
func getConfigDir() string {
	if configDir := os.Getenv("XDG_CONFIG_HOME"); configDir != "" {
		return filepath.Join(configDir, "flightdeck")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "flightdeck")
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// Package config handles configuration loading and management for veritas.
// It supports XDG config paths, project-level overrides, and environment
// variables, plus hot-reloadable feature flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the validation engine.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Diag      DiagConfig      `mapstructure:"diagnostics"`
	Flags     FlagsConfig     `mapstructure:"flags"`
	Templates TemplatesConfig `mapstructure:"templates"`
}

// EngineConfig holds rule execution limits.
type EngineConfig struct {
	// MaxConcurrentRules caps parallel rule executions within a wave.
	MaxConcurrentRules int `mapstructure:"max_concurrent_rules"`
	// DefaultRuleTimeout applies to rules that declare no timeout.
	DefaultRuleTimeout time.Duration `mapstructure:"default_rule_timeout"`
}

// RegistryConfig holds template cache settings.
type RegistryConfig struct {
	// CacheSize is the maximum number of cached templates.
	CacheSize int `mapstructure:"cache_size"`
	// CacheTTL is how long a cached template stays fresh.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MetricsConfig holds metrics storage settings.
type MetricsConfig struct {
	// DBPath is the sqlite database file; empty uses the XDG data dir.
	DBPath string `mapstructure:"db_path"`
	// RetentionDays bounds record age before cleanup removes them.
	RetentionDays int `mapstructure:"retention_days"`
	// MaxRecords caps stored records; oldest are evicted past the cap.
	MaxRecords int `mapstructure:"max_records"`
}

// AlertsConfig holds alert evaluation settings.
type AlertsConfig struct {
	// EvalInterval is how often the background evaluator runs.
	EvalInterval time.Duration `mapstructure:"eval_interval"`
	// MaxAlertsPerHour caps total firings per hour.
	MaxAlertsPerHour int `mapstructure:"max_alerts_per_hour"`
	// AutoResolveAfter force-resolves alerts older than this window.
	AutoResolveAfter time.Duration `mapstructure:"auto_resolve_after"`
}

// DiagConfig holds diagnostics bounds.
type DiagConfig struct {
	// MaxTraces caps retained call traces.
	MaxTraces int `mapstructure:"max_traces"`
	// MaxLogEntries caps retained diagnostic log entries.
	MaxLogEntries int `mapstructure:"max_log_entries"`
	// MaxAge bounds trace and log entry age.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// TemplatesConfig holds template directory settings.
type TemplatesConfig struct {
	// Dir is the directory of YAML template files to load at startup.
	Dir string `mapstructure:"dir"`
	// Watch enables hot-reloading template files on change.
	Watch bool `mapstructure:"watch"`
}

// FlagsConfig holds the feature-flag values loaded from config. The Flags
// store (flags.go) answers queries against the current snapshot.
type FlagsConfig struct {
	// ValidationEnabled gates validation globally.
	ValidationEnabled bool `mapstructure:"validation_enabled"`
	// DisabledPersonaTypes lists persona types validation skips.
	DisabledPersonaTypes []string `mapstructure:"disabled_persona_types"`
	// DisabledCategories lists rule categories that are filtered out.
	DisabledCategories []string `mapstructure:"disabled_categories"`
	// FallbackEnabled gates the recovery paths.
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
	// MetricsEnabled gates metrics collection.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	// DebugEnabled gates step tracing.
	DebugEnabled bool `mapstructure:"debug_enabled"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (VERITAS_*)
// 2. Project config (.veritas.yaml in current directory or parent)
// 3. User config (~/.config/veritas/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("VERITAS")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.max_concurrent_rules", 5)
	v.SetDefault("engine.default_rule_timeout", "2s")

	// Registry defaults
	v.SetDefault("registry.cache_size", 64)
	v.SetDefault("registry.cache_ttl", "5m")

	// Metrics defaults
	v.SetDefault("metrics.db_path", "")
	v.SetDefault("metrics.retention_days", 30)
	v.SetDefault("metrics.max_records", 100000)

	// Alerts defaults
	v.SetDefault("alerts.eval_interval", "1m")
	v.SetDefault("alerts.max_alerts_per_hour", 20)
	v.SetDefault("alerts.auto_resolve_after", "24h")

	// Diagnostics defaults
	v.SetDefault("diagnostics.max_traces", 1000)
	v.SetDefault("diagnostics.max_log_entries", 5000)
	v.SetDefault("diagnostics.max_age", "24h")

	// Feature flag defaults
	v.SetDefault("flags.validation_enabled", true)
	v.SetDefault("flags.disabled_persona_types", []string{})
	v.SetDefault("flags.disabled_categories", []string{})
	v.SetDefault("flags.fallback_enabled", true)
	v.SetDefault("flags.metrics_enabled", true)
	v.SetDefault("flags.debug_enabled", false)

	// Template defaults
	v.SetDefault("templates.dir", "")
	v.SetDefault("templates.watch", false)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrentRules: 5,
			DefaultRuleTimeout: 2 * time.Second,
		},
		Registry: RegistryConfig{
			CacheSize: 64,
			CacheTTL:  5 * time.Minute,
		},
		Metrics: MetricsConfig{
			RetentionDays: 30,
			MaxRecords:    100000,
		},
		Alerts: AlertsConfig{
			EvalInterval:     time.Minute,
			MaxAlertsPerHour: 20,
			AutoResolveAfter: 24 * time.Hour,
		},
		Diag: DiagConfig{
			MaxTraces:     1000,
			MaxLogEntries: 5000,
			MaxAge:        24 * time.Hour,
		},
		Flags: FlagsConfig{
			ValidationEnabled: true,
			FallbackEnabled:   true,
			MetricsEnabled:    true,
		},
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// DefaultDBPath returns the metrics database path in the XDG data directory.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "veritas", "metrics.db")
}

// getUserConfigDir returns the XDG config directory for veritas.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "veritas")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "veritas")
	}
	return filepath.Join(home, ".config", "veritas")
}

// findProjectConfig searches for .veritas.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".veritas.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the care plan engine
type Config struct {
	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Urgency classification configuration
	Urgency UrgencyConfig `mapstructure:"urgency"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// StorageConfig holds embedded store configuration
type StorageConfig struct {
	// Path is the sqlite database file; ":memory:" is accepted for tests.
	Path string `mapstructure:"path"`
	// RetentionDays bounds the date index retention window.
	RetentionDays int `mapstructure:"retention_days"`
	// BusyTimeoutMs is passed through to the sqlite busy handler.
	BusyTimeoutMs int `mapstructure:"busy_timeout_ms"`
}

// UrgencyConfig holds calm-urgency classifier thresholds
type UrgencyConfig struct {
	// GraceMinutes is the delay after a scheduled time before a clinical
	// item is considered critically late.
	GraceMinutes int `mapstructure:"grace_minutes"`
	// DueSoonMinutes is the lookahead window for "still to do" escalation.
	DueSoonMinutes int `mapstructure:"due_soon_minutes"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/embermate")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration populated with defaults only, for callers
// that embed the engine without a config file.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:          "embermate.db",
			RetentionDays: 90,
			BusyTimeoutMs: 5000,
		},
		Urgency: UrgencyConfig{
			GraceMinutes:   30,
			DueSoonMinutes: 60,
		},
		LogLevel: "info",
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	// Storage defaults
	viper.SetDefault("storage.path", "embermate.db")
	viper.SetDefault("storage.retention_days", 90)
	viper.SetDefault("storage.busy_timeout_ms", 5000)

	// Urgency defaults
	viper.SetDefault("urgency.grace_minutes", 30)
	viper.SetDefault("urgency.due_soon_minutes", 60)

	// Logging defaults
	viper.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if path := os.Getenv("EMBERMATE_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}

	if days := os.Getenv("EMBERMATE_RETENTION_DAYS"); days != "" {
		if d, err := strconv.Atoi(days); err == nil {
			config.Storage.RetentionDays = d
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if config.Storage.RetentionDays <= 0 {
		return fmt.Errorf("invalid retention window: %d days", config.Storage.RetentionDays)
	}

	if config.Urgency.GraceMinutes <= 0 {
		return fmt.Errorf("invalid grace period: %d minutes", config.Urgency.GraceMinutes)
	}

	if config.Urgency.DueSoonMinutes <= 0 {
		return fmt.Errorf("invalid due-soon window: %d minutes", config.Urgency.DueSoonMinutes)
	}

	return nil
}

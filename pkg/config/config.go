// Package config loads, defaults, validates and materializes the fluxfs
// configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FLUXFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete fluxfs configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Resolver configures URI resolution and the local search path
	Resolver ResolverConfig `mapstructure:"resolver"`

	// Localize configures collision-free download path assignment
	Localize LocalizeConfig `mapstructure:"localize"`

	// S3 configures the S3 backend
	S3 S3Config `mapstructure:"s3"`

	// Platform configures the dx platform backend
	Platform PlatformConfig `mapstructure:"platform"`

	// Metrics enables Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ResolverConfig controls how URIs and bare paths resolve.
type ResolverConfig struct {
	// SearchPath lists local directories consulted, in order, for
	// scheme-less inputs that do not exist as given
	SearchPath []string `mapstructure:"search_path"`
}

// LocalizeConfig controls localization path assignment.
type LocalizeConfig struct {
	// Root is the session root directory for localized files.
	// Empty means a fresh scratch directory per session.
	Root string `mapstructure:"root"`

	// CreateDirs makes path assignment create parent directories eagerly
	CreateDirs bool `mapstructure:"create_dirs"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	// Enabled registers the s3:// protocol
	Enabled bool `mapstructure:"enabled"`

	// Region is the AWS region
	Region string `mapstructure:"region"`

	// Endpoint is a custom endpoint URL for S3-compatible services
	// (MinIO, Localstack, etc.). Empty uses AWS
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey are static credentials.
	// Empty uses the default AWS credential chain
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	// MaxRetries is the maximum number of attempts per request
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
}

// PlatformConfig configures the dx platform backend.
type PlatformConfig struct {
	// BatchLimit caps object ids per describe call
	BatchLimit int `mapstructure:"batch_limit" validate:"gte=0"`

	// Cache selects the describe cache implementation
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig selects and configures the describe cache.
//
// The Type field determines which implementation is used. Only the
// corresponding type-specific section is read.
type CacheConfig struct {
	// Type specifies which cache implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MetricsConfig controls Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled initializes the global Prometheus registry
	Enabled bool `mapstructure:"enabled"`
}

// Load reads, defaults and validates the configuration.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FLUXFS_ prefix and underscores
	// Example: FLUXFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FLUXFS")
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

// readConfigFile reads the configuration file if it exists. A missing
// file is acceptable; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fluxfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fluxfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

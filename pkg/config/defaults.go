package config

import (
	"strings"

	"github.com/fluxfs/fluxfs/pkg/platform"
)

// ApplyDefaults fills in default values for any missing configuration.
//
// Called after unmarshaling and before validation, so a configuration
// file only needs to specify what differs from the defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyPlatformDefaults(&cfg.Platform)
	applyS3Defaults(&cfg.S3)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize to uppercase so validation and the logger agree.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyPlatformDefaults(cfg *PlatformConfig) {
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = platform.DefaultBatchLimit
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "memory"
	}
}

func applyS3Defaults(cfg *S3Config) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
}

// GetDefaultConfig returns a configuration with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/fluxfs/fluxfs/internal/logger"
	"github.com/fluxfs/fluxfs/pkg/localize"
	"github.com/fluxfs/fluxfs/pkg/metrics"
	"github.com/fluxfs/fluxfs/pkg/platform"
	badgerCache "github.com/fluxfs/fluxfs/pkg/platform/badger"
	"github.com/fluxfs/fluxfs/pkg/source"
	"github.com/fluxfs/fluxfs/pkg/source/dx"
	"github.com/fluxfs/fluxfs/pkg/source/local"
	s3Source "github.com/fluxfs/fluxfs/pkg/source/s3"
)

// ApplyLogging configures the global logger from the logging section.
func ApplyLogging(cfg *LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("failed to configure log output: %w", err)
	}
	return nil
}

// CreateResolver builds the URI resolver with every configured protocol
// registered: local disk always, S3 when enabled, and the dx platform
// when a client is provided.
//
// The caller owns the resolver and must Close it to release protocol
// resources (including the platform client's connections).
func CreateResolver(ctx context.Context, cfg *Config, client platform.Client) (*source.Resolver, error) {
	resolver := source.NewResolver(cfg.Resolver.SearchPath)

	if err := resolver.Register(local.NewProtocol()); err != nil {
		return nil, err
	}

	if cfg.S3.Enabled {
		s3Client, err := CreateS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		proto, err := s3Source.NewProtocol(s3Client)
		if err != nil {
			return nil, err
		}
		if err := resolver.Register(proto); err != nil {
			return nil, err
		}
		logger.Info("S3 protocol registered: region=%s, endpoint=%s", cfg.S3.Region, cfg.S3.Endpoint)
	}

	if client != nil {
		bulk, err := CreateBulkResolver(ctx, &cfg.Platform, client)
		if err != nil {
			return nil, err
		}
		proto, err := dx.NewProtocol(client, bulk)
		if err != nil {
			return nil, err
		}
		if err := resolver.Register(proto); err != nil {
			return nil, err
		}
		logger.Info("dx protocol registered: batch_limit=%d, cache=%s",
			cfg.Platform.BatchLimit, cfg.Platform.Cache.Type)
	}

	return resolver, nil
}

// CreateS3Client builds an AWS S3 client from the s3 section.
func CreateS3Client(ctx context.Context, cfg *S3Config) (*awsS3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(cfg.Region))

	// Static credentials if provided, otherwise the default chain.
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		if cfg.Endpoint != "" {
			// Path-style addressing for MinIO/Localstack compatibility.
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// CreateBulkResolver builds the bulk describe resolver from the platform
// section, wiring the configured describe cache and, when metrics are
// enabled, the Prometheus collectors.
func CreateBulkResolver(ctx context.Context, cfg *PlatformConfig, client platform.Client) (*platform.BulkResolver, error) {
	cache, err := CreateDescribeCache(ctx, &cfg.Cache)
	if err != nil {
		return nil, err
	}

	return platform.NewBulkResolver(client, platform.BulkResolverOptions{
		Cache:      cache,
		BatchLimit: cfg.BatchLimit,
		Metrics:    metrics.NewPlatformMetrics(),
	})
}

// CreateDescribeCache creates a describe cache based on configuration.
//
// Supported types:
//   - "memory": per-process cache, ephemeral
//   - "badger": BadgerDB-backed cache, persistent across sessions
func CreateDescribeCache(ctx context.Context, cfg *CacheConfig) (platform.DescribeCache, error) {
	switch cfg.Type {
	case "memory":
		return platform.NewMemoryCache(), nil
	case "badger":
		return createBadgerCache(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

func createBadgerCache(ctx context.Context, options map[string]any) (platform.DescribeCache, error) {
	type BadgerCacheConfig struct {
		DBPath           string        `mapstructure:"db_path"`
		TTL              time.Duration `mapstructure:"ttl"`
		BlockCacheSizeMB int64         `mapstructure:"block_cache_size_mb"`
	}

	var cacheCfg BadgerCacheConfig
	if err := mapstructure.Decode(options, &cacheCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger cache config: %w", err)
	}

	if cacheCfg.DBPath == "" {
		return nil, fmt.Errorf("badger cache: db_path is required")
	}

	cache, err := badgerCache.New(ctx, badgerCache.Config{
		DBPath:           cacheCfg.DBPath,
		TTL:              cacheCfg.TTL,
		BlockCacheSizeMB: cacheCfg.BlockCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger cache: %w", err)
	}

	logger.Info("badger describe cache initialized: path=%s, ttl=%s", cacheCfg.DBPath, cacheCfg.TTL)
	return cache, nil
}

// CreateLocalizer builds the localization disambiguator from the
// localize section.
func CreateLocalizer(cfg *LocalizeConfig) *localize.Localizer {
	return localize.New(localize.Options{
		Root:       cfg.Root,
		CreateDirs: cfg.CreateDirs,
	})
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxfs/pkg/platform"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err) // explicit path must exist

	cfg := GetDefaultConfig()
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, platform.DefaultBatchLimit, cfg.Platform.BatchLimit)
	assert.Equal(t, "memory", cfg.Platform.Cache.Type)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, 10, cfg.S3.MaxRetries)
	require.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
resolver:
  search_path:
    - /data/inputs
    - /data/shared
localize:
  root: /tmp/fluxfs-downloads
  create_dirs: true
platform:
  batch_limit: 50
  cache:
    type: badger
    badger:
      db_path: /var/cache/fluxfs
      ttl: 1h
s3:
  enabled: true
  region: eu-west-1
  endpoint: http://localhost:4566
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized to uppercase")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"/data/inputs", "/data/shared"}, cfg.Resolver.SearchPath)
	assert.Equal(t, "/tmp/fluxfs-downloads", cfg.Localize.Root)
	assert.True(t, cfg.Localize.CreateDirs)
	assert.Equal(t, 50, cfg.Platform.BatchLimit)
	assert.Equal(t, "badger", cfg.Platform.Cache.Type)
	assert.True(t, cfg.S3.Enabled)
	assert.Equal(t, "eu-west-1", cfg.S3.Region)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLUXFS_LOGGING_LEVEL", "WARN")

	path := writeConfig(t, `
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"
	assert.Error(t, Validate(cfg))

	cfg = GetDefaultConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, Validate(cfg))

	cfg = GetDefaultConfig()
	cfg.Platform.Cache.Type = "redis"
	assert.Error(t, Validate(cfg))

	cfg = GetDefaultConfig()
	cfg.S3.Enabled = true
	cfg.S3.AccessKeyID = "key-without-secret"
	assert.Error(t, Validate(cfg))
}

func TestCreateDescribeCacheMemory(t *testing.T) {
	cache, err := CreateDescribeCache(context.Background(), &CacheConfig{Type: "memory"})
	require.NoError(t, err)
	require.NotNil(t, cache)
	defer cache.Close()

	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Name: "x"})
	md, ok := cache.Get("file-1", "project-a")
	require.True(t, ok)
	assert.Equal(t, "x", md.Name)
}

func TestCreateDescribeCacheBadger(t *testing.T) {
	cache, err := CreateDescribeCache(context.Background(), &CacheConfig{
		Type: "badger",
		Badger: map[string]any{
			"db_path": t.TempDir(),
			"ttl":     time.Hour,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, cache)
	defer cache.Close()

	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Name: "x"})
	_, ok := cache.Get("file-1", "project-a")
	assert.True(t, ok)
}

func TestCreateDescribeCacheBadgerRequiresPath(t *testing.T) {
	_, err := CreateDescribeCache(context.Background(), &CacheConfig{Type: "badger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}

func TestCreateLocalizer(t *testing.T) {
	loc := CreateLocalizer(&LocalizeConfig{Root: "/tmp/fluxfs-test"})
	assert.Equal(t, "/tmp/fluxfs-test", loc.Root())

	scratch := CreateLocalizer(&LocalizeConfig{})
	assert.NotEmpty(t, scratch.Root())
	assert.NotEqual(t, loc.Root(), scratch.Root())
}

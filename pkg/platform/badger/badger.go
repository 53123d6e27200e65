// Package badger provides a persistent DescribeCache backed by BadgerDB.
//
// The in-memory cache in pkg/platform lives for one resolver; this backend
// lets repeated sessions against the same projects skip re-describing
// unchanged objects. Entries are JSON-encoded metadata records keyed by
// (container, id), optionally expiring after a configured TTL.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/fluxfs/fluxfs/internal/logger"
	"github.com/fluxfs/fluxfs/pkg/platform"
)

// Config configures a persistent describe cache.
type Config struct {
	// DBPath is the directory where BadgerDB stores its files.
	DBPath string

	// TTL is the entry lifetime; 0 means entries never expire.
	TTL time.Duration

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64).
	BlockCacheSizeMB int64
}

// Cache is a BadgerDB-backed platform.DescribeCache.
//
// Safe for concurrent use; BadgerDB provides the necessary transaction
// isolation.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// New opens (creating if needed) a describe cache at cfg.DBPath.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("badger describe cache: db path is required")
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None) // entries are small JSON records
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

func cacheKey(id platform.ObjectID, container string) []byte {
	return []byte("describe/" + container + "/" + string(id))
}

// Get implements platform.DescribeCache.
func (c *Cache) Get(id platform.ObjectID, container string) (platform.Metadata, bool) {
	var md platform.Metadata
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(id, container))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &md); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	if err != nil {
		logger.Warn("describe cache read failed for %s in %s: %v", id, container, err)
		return platform.Metadata{}, false
	}
	return md, found
}

// Put implements platform.DescribeCache.
func (c *Cache) Put(id platform.ObjectID, container string, md platform.Metadata) {
	val, err := json.Marshal(md)
	if err != nil {
		logger.Warn("describe cache encode failed for %s in %s: %v", id, container, err)
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(id, container), val)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		logger.Warn("describe cache write failed for %s in %s: %v", id, container, err)
	}
}

// Described implements platform.DescribeCache.
func (c *Cache) Described(id platform.ObjectID, container string) bool {
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(cacheKey(id, container))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		logger.Warn("describe cache lookup failed for %s in %s: %v", id, container, err)
		return false
	}
	return found
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

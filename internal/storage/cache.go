package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultCacheTTL matches Scryfall's own update cadence for gameplay
// data and prices.
const DefaultCacheTTL = 24 * time.Hour

// CacheStore is the card payload cache. Values are opaque serialized
// provider responses; only the normalized cache key and the fetch time
// are interpreted here.
type CacheStore struct {
	db  *DB
	ttl time.Duration
}

// CacheStats summarizes the cache contents for the admin dashboard.
type CacheStats struct {
	Total   int64 `json:"total"`
	Expired int64 `json:"expired"`
}

// NewCacheStore creates a cache store with the given TTL. A zero or
// negative TTL falls back to DefaultCacheTTL.
func NewCacheStore(db *DB, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheStore{db: db, ttl: ttl}
}

// TTL returns the configured entry lifetime.
func (c *CacheStore) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached payload for key, or ok=false when the key is
// absent or expired. Expired rows are evicted lazily so a delayed sweep
// can never cause a stale entry to be served.
func (c *CacheStore) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var data []byte
	var cachedAt int64
	err := c.db.Conn().QueryRowContext(ctx,
		"SELECT data, cached_at FROM card_cache WHERE cache_key = ?", key,
	).Scan(&data, &cachedAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if now.Unix()-cachedAt > int64(c.ttl.Seconds()) {
		// Lazy eviction; the hourly sweep handles the rest.
		_, _ = c.db.Conn().ExecContext(ctx,
			"DELETE FROM card_cache WHERE cache_key = ? AND cached_at = ?", key, cachedAt)
		return nil, false, nil
	}

	return data, true, nil
}

// Put inserts or replaces the entry for key, resetting its expiry.
func (c *CacheStore) Put(ctx context.Context, key string, payload []byte, now time.Time) error {
	_, err := c.db.Conn().ExecContext(ctx,
		`INSERT OR REPLACE INTO card_cache (cache_key, data, cached_at) VALUES (?, ?, ?)`,
		key, payload, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// PurgeExpired deletes all expired entries and returns the number of
// rows removed. Safe to run concurrently with Get/Put; idempotent.
func (c *CacheStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Unix() - int64(c.ttl.Seconds())
	res, err := c.db.Conn().ExecContext(ctx,
		"DELETE FROM card_cache WHERE cached_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// PurgeAll empties the cache and returns the number of rows removed.
func (c *CacheStore) PurgeAll(ctx context.Context) (int64, error) {
	res, err := c.db.Conn().ExecContext(ctx, "DELETE FROM card_cache")
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

// PurgeOne removes a single entry, reporting whether it existed.
func (c *CacheStore) PurgeOne(ctx context.Context, key string) (bool, error) {
	res, err := c.db.Conn().ExecContext(ctx,
		"DELETE FROM card_cache WHERE cache_key = ?", key)
	if err != nil {
		return false, fmt.Errorf("failed to purge cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Size returns the number of entries currently stored, expired or not.
func (c *CacheStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM card_cache").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Stats returns total and expired entry counts.
func (c *CacheStore) Stats(ctx context.Context, now time.Time) (*CacheStats, error) {
	cutoff := now.Unix() - int64(c.ttl.Seconds())

	var stats CacheStats
	err := c.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN cached_at < ? THEN 1 ELSE 0 END), 0)
		 FROM card_cache`, cutoff,
	).Scan(&stats.Total, &stats.Expired)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return &stats, nil
}

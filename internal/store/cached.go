package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"climatewatch/internal/types"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the key/value surface CachedStore needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// CachedStore fronts Latest with a cache. Upsert overwrites the cached
// Latest with the backing store's post-write Latest; read misses fill the
// key only if it is still absent, so a reader holding a pre-write value can
// never replace what a writer put there. Cache failures are logged and fall
// through to the backing store; they never fail a call.
//
// Writers for one location are serialized by the scheduler.
type CachedStore struct {
	Store
	cache  Cache
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ Store = (*CachedStore)(nil)

var _ Cache = (*ValkeyCache)(nil)

// CachedStoreConfig configures a CachedStore.
type CachedStoreConfig struct {
	Prefix string
	TTL    time.Duration
	Logger *slog.Logger
}

// NewCachedStore wraps backing.
func NewCachedStore(backing Store, cache Cache, cfg CachedStoreConfig) *CachedStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "climatewatch"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CachedStore{Store: backing, cache: cache, prefix: cfg.Prefix, ttl: cfg.TTL, logger: cfg.Logger}
}

func (c *CachedStore) latestKey(loc types.Location) string {
	return c.prefix + ":latest:" + loc.Key()
}

// Upsert writes through and refreshes the cached Latest. When the refresh
// fails the key is deleted instead.
func (c *CachedStore) Upsert(ctx context.Context, s types.WeatherSample) error {
	if err := c.Store.Upsert(ctx, s); err != nil {
		return err
	}
	key := c.latestKey(s.Location)
	if err := c.refresh(ctx, key, s.Location); err != nil {
		c.logger.WarnContext(ctx, "failed to refresh latest cache", "key", key, "error", err)
		if err := c.cache.Del(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "failed to invalidate latest cache", "key", key, "error", err)
		}
	}
	return nil
}

func (c *CachedStore) refresh(ctx context.Context, key string, loc types.Location) error {
	latest, err := c.Store.Latest(ctx, loc)
	if err != nil {
		return err
	}
	raw, err := msgpack.Marshal(latest)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, key, raw, c.ttl)
}

// Latest serves from cache when possible.
func (c *CachedStore) Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error) {
	key := c.latestKey(loc)
	corrupt := false
	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var s types.WeatherSample
		decodeErr := msgpack.Unmarshal(raw, &s)
		if decodeErr == nil {
			s.ObservedAt, s.IngestedAt = s.ObservedAt.UTC(), s.IngestedAt.UTC()
			return s, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key, "error", decodeErr)
		corrupt = true
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WarnContext(ctx, "latest cache read failed", "key", key, "error", err)
	}

	s, err := c.Store.Latest(ctx, loc)
	if err != nil {
		return s, err
	}
	if raw, encErr := msgpack.Marshal(s); encErr == nil {
		var setErr error
		if corrupt {
			setErr = c.cache.Set(ctx, key, raw, c.ttl)
		} else {
			_, setErr = c.cache.SetNX(ctx, key, raw, c.ttl)
		}
		if setErr != nil {
			c.logger.WarnContext(ctx, "latest cache fill failed", "key", key, "error", setErr)
		}
	}
	return s, nil
}

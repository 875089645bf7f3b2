package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// SettingsCache is a read-through cache over the settings store with a
// short TTL. It implements domain.SettingsProvider for the evaluator's
// threshold reads and domain.SettingsStore for writes, invalidating the
// cached key on every Set.
//
// It is strictly a read optimization: values may be a few seconds stale, so
// state-machine writes must never depend on it.
type SettingsCache struct {
	rdb    *redis.Client
	store  domain.SettingsStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewSettingsCache creates a SettingsCache over the given backing store.
// A non-positive ttl falls back to 10 seconds.
func NewSettingsCache(c *Client, store domain.SettingsStore, ttl time.Duration, logger *slog.Logger) *SettingsCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SettingsCache{
		rdb:    c.Underlying(),
		store:  store,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "settings_cache")),
	}
}

func settingKey(key string) string {
	return "setting:" + key
}

// Float returns the setting value for key, or def when unset or when both
// the cache and the backing store are unreachable.
func (sc *SettingsCache) Float(ctx context.Context, key string, def float64) float64 {
	if v, err := sc.rdb.Get(ctx, settingKey(key)).Result(); err == nil {
		if f, perr := strconv.ParseFloat(v, 64); perr == nil {
			return f
		}
	}

	f, err := sc.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			sc.logger.WarnContext(ctx, "settings read failed, using default",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return def
	}

	if err := sc.rdb.Set(ctx, settingKey(key),
		strconv.FormatFloat(f, 'f', -1, 64), sc.ttl).Err(); err != nil {
		sc.logger.DebugContext(ctx, "settings cache fill failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return f
}

// Get reads through to the backing store.
func (sc *SettingsCache) Get(ctx context.Context, key string) (float64, error) {
	return sc.store.Get(ctx, key)
}

// Set writes to the backing store and invalidates the cached key. The
// invalidation failure is logged but does not fail the write: the TTL
// bounds the staleness window.
func (sc *SettingsCache) Set(ctx context.Context, key string, value float64) error {
	if err := sc.store.Set(ctx, key, value); err != nil {
		return err
	}
	if err := sc.rdb.Del(ctx, settingKey(key)).Err(); err != nil {
		sc.logger.WarnContext(ctx, "settings cache invalidation failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// All reads through to the backing store.
func (sc *SettingsCache) All(ctx context.Context) (map[string]float64, error) {
	return sc.store.All(ctx)
}

// Compile-time interface checks.
var (
	_ domain.SettingsProvider = (*SettingsCache)(nil)
	_ domain.SettingsStore    = (*SettingsCache)(nil)
)

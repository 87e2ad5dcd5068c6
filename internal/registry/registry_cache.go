package registry

import (
	"context"
	"encoding/json"
	"time"

	"rollcall/internal/ingest"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "rollcall:registry:"

// Snapshot bundles a built registry with the roster file reports and row
// errors observed while building it, so a cache hit reproduces the same
// manifest inputs as a fresh build.
type Snapshot struct {
	Registry  *Registry           `json:"registry"`
	Sources   []ingest.FileReport `json:"sources"`
	RowErrors []ingest.RowError   `json:"row_errors,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

type cacheEnvelope struct {
	BuiltAt  time.Time `json:"built_at"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Cache is a read-through registry cache with a freshness window. The clock
// is injected so freshness is testable; redis expiry is a backstop, the
// BuiltAt check is authoritative.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	now    func() time.Time
	sf     singleflight.Group
	logger *zap.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration, now func() time.Time, logger ...*zap.Logger) *Cache {
	l := zap.L().Named("registry.cache")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("registry.cache")
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{rdb: rdb, ttl: ttl, now: now, logger: l}
}

// GetOrBuild returns a fresh cached snapshot for key, or builds and caches
// one. Concurrent callers for the same key share a single build.
func (c *Cache) GetOrBuild(
	ctx context.Context,
	key string,
	build func(ctx context.Context) (*Snapshot, error),
) (*Snapshot, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return build(ctx)
	}

	redisKey := cacheKeyPrefix + key

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if snap := c.fetch(ctx, redisKey); snap != nil {
			return snap, nil
		}

		snap, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, redisKey, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) fetch(ctx context.Context, redisKey string) *Snapshot {
	raw, err := c.rdb.Get(ctx, redisKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("registry cache read failed", zap.Error(err))
		}
		return nil
	}

	var env cacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("registry cache decode failed", zap.Error(err))
		return nil
	}

	if env.Snapshot == nil || env.Snapshot.Registry == nil {
		return nil
	}

	if c.now().Sub(env.BuiltAt) > c.ttl {
		c.logger.Debug("registry cache stale", zap.Time("built_at", env.BuiltAt))
		return nil
	}

	return env.Snapshot
}

func (c *Cache) store(ctx context.Context, redisKey string, snap *Snapshot) {
	raw, err := json.Marshal(cacheEnvelope{BuiltAt: c.now(), Snapshot: snap})
	if err != nil {
		c.logger.Warn("registry cache encode failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, redisKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("registry cache write failed", zap.Error(err))
	}
}

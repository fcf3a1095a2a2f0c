package clinicconfig

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const redisKeyPrefix = "clinicops:scheduling:clinic-config:"

// CachedProvider fronts another Provider with a short-lived in-process cache and,
// when a Redis client is given, a shared Redis cache. Concurrent misses for one
// tenant collapse into a single load. Redis failures degrade to the next provider.
type CachedProvider struct {
	next   Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	local map[string]cacheEntry
}

type cacheEntry struct {
	cfg     model.ClinicScheduleConfig
	expires time.Time
}

func NewCachedProvider(next Provider, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		local:  map[string]cacheEntry{},
	}
}

func (c *CachedProvider) Get(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, error) {
	if cfg, ok := c.fromLocal(tenantID); ok {
		return cfg, nil
	}

	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		if cfg, ok := c.fromLocal(tenantID); ok {
			return cfg, nil
		}
		if cfg, ok := c.fromRedis(ctx, tenantID); ok {
			c.storeLocal(cfg)
			return cfg, nil
		}
		cfg, err := c.next.Get(ctx, tenantID)
		if err != nil {
			return model.ClinicScheduleConfig{}, err
		}
		c.storeLocal(cfg)
		c.storeRedis(ctx, cfg)
		return cfg, nil
	})
	if err != nil {
		return model.ClinicScheduleConfig{}, err
	}
	return v.(model.ClinicScheduleConfig), nil
}

// Invalidate drops the tenant from both cache layers.
func (c *CachedProvider) Invalidate(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	delete(c.local, tenantID)
	c.mu.Unlock()
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, redisKeyPrefix+tenantID).Err()
}

func (c *CachedProvider) fromLocal(tenantID string) (model.ClinicScheduleConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local[tenantID]
	if !ok || !c.now().Before(e.expires) {
		return model.ClinicScheduleConfig{}, false
	}
	return e.cfg, true
}

func (c *CachedProvider) storeLocal(cfg model.ClinicScheduleConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[cfg.TenantID] = cacheEntry{cfg: cfg, expires: c.now().Add(c.ttl)}
}

func (c *CachedProvider) fromRedis(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, bool) {
	if c.rdb == nil {
		return model.ClinicScheduleConfig{}, false
	}
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+tenantID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("clinic config cache read failed", "err", err, "tenant_id", tenantID)
		}
		return model.ClinicScheduleConfig{}, false
	}
	var cfg model.ClinicScheduleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.logger.Warn("clinic config cache entry corrupt", "err", err, "tenant_id", tenantID)
		return model.ClinicScheduleConfig{}, false
	}
	return cfg, true
}

func (c *CachedProvider) storeRedis(ctx context.Context, cfg model.ClinicScheduleConfig) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+cfg.TenantID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("clinic config cache write failed", "err", err, "tenant_id", cfg.TenantID)
	}
}

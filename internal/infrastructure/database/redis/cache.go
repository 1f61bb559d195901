package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// Cache is a JSON value cache keyed by string.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// GetOrSet fills dest from the cache or, on a miss, from loader.  Loads
	// for the same key are collapsed into one call that is detached from the
	// cancellation of any single caller.  hit reports whether dest came from
	// the cache.  A non-miss read error is returned without calling loader.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (hit bool, err error)

	Ping(ctx context.Context) error
}

type redisCache struct {
	client       *Client
	logger       logging.Logger
	prefix       string
	defaultTTL   time.Duration
	loadTimeout  time.Duration
	jitter       bool
	singleflight singleflight.Group
}

type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// WithLoadTimeout bounds a detached GetOrSet load.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *redisCache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithoutJitter writes entries with the exact TTL given.
func WithoutJitter() CacheOption {
	return func(c *redisCache) { c.jitter = false }
}

func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:      client,
		logger:      log,
		prefix:      "mapsync:",
		defaultTTL:  30 * time.Second,
		loadTimeout: 10 * time.Second,
		jitter:      true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) ttlFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if !c.jitter {
		return ttl
	}
	// +/- 10%
	return ttl + time.Duration(float64(ttl)*0.1*(rand.Float64()*2-1))
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, c.ttlFor(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to delete from cache")
	}
	return nil
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (bool, error) {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return true, nil
	}
	if err != ErrCacheMiss {
		return false, err
	}

	ch := c.singleflight.DoChan(key, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, loadErr := loader(lctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if v == nil {
			return nil, nil
		}
		if setErr := c.Set(lctx, key, v, ttl); setErr != nil {
			c.logger.Warn("Failed to set cache in GetOrSet", logging.String("key", key), logging.Err(setErr))
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		if res.Val == nil {
			return false, ErrCacheMiss
		}
		data, err := json.Marshal(res.Val)
		if err != nil {
			return false, ErrSerializationFailed.WithCause(err)
		}
		if err := json.Unmarshal(data, dest); err != nil {
			return false, ErrSerializationFailed.WithCause(err)
		}
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

//Personal.AI order the ending

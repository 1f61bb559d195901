// Package spatial holds spatial service decorators.  CachedService keeps
// recent cluster and entity pages in Redis so that panning back and forth
// over the same area, or several sessions looking at it, does not hit the
// spatial service every time.
package spatial

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/turtacn/mapsync/internal/infrastructure/database/redis"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

const (
	opClusters = "clusters"
	opEntities = "entities"

	DefaultTTL = 30 * time.Second
)

// Service is the spatial query contract.
type Service interface {
	GetClusters(ctx context.Context, q geo.ClusterQuery) (*geo.ClusterPage, error)
	GetEntities(ctx context.Context, q geo.EntityQuery) (*geo.EntityPage, error)
}

// CacheMetrics receives hit and miss notifications per operation.
type CacheMetrics interface {
	CacheHit(operation string)
	CacheMiss(operation string)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(string)  {}
func (noopMetrics) CacheMiss(string) {}

// Option configures a CachedService.
type Option func(*CachedService)

func WithTTL(ttl time.Duration) Option {
	return func(s *CachedService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMetrics(m CacheMetrics) Option {
	return func(s *CachedService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(s *CachedService) {
		if l != nil {
			s.logger = l
		}
	}
}

// CachedService decorates a Service with a read-through cache.  Cache
// failures never fail a query; the underlying service is called instead.
type CachedService struct {
	next    Service
	cache   redis.Cache
	ttl     time.Duration
	metrics CacheMetrics
	logger  logging.Logger
}

// NewCachedService wraps next.
func NewCachedService(next Service, cache redis.Cache, opts ...Option) (*CachedService, error) {
	if next == nil || cache == nil {
		return nil, errors.ErrInvalidConfig.WithDetail("cached spatial service requires a service and a cache")
	}
	s := &CachedService{
		next:    next,
		cache:   cache,
		ttl:     DefaultTTL,
		metrics: noopMetrics{},
		logger:  logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetClusters implements Service.
func (s *CachedService) GetClusters(ctx context.Context, q geo.ClusterQuery) (*geo.ClusterPage, error) {
	key, err := cacheKey(opClusters, q)
	if err != nil {
		return s.next.GetClusters(ctx, q)
	}

	var page geo.ClusterPage
	hit, err := s.cache.GetOrSet(ctx, key, &page, s.ttl, func(lctx context.Context) (interface{}, error) {
		p, err := s.next.GetClusters(lctx, q)
		if err != nil || p == nil {
			return nil, err
		}
		return p, nil
	})
	if err == nil {
		s.observe(opClusters, hit)
		return &page, nil
	}
	if degraded(err) {
		s.degrade(ctx, opClusters, key, err)
		return s.next.GetClusters(ctx, q)
	}
	return nil, err
}

// GetEntities implements Service.
func (s *CachedService) GetEntities(ctx context.Context, q geo.EntityQuery) (*geo.EntityPage, error) {
	key, err := cacheKey(opEntities, q)
	if err != nil {
		return s.next.GetEntities(ctx, q)
	}

	var page geo.EntityPage
	hit, err := s.cache.GetOrSet(ctx, key, &page, s.ttl, func(lctx context.Context) (interface{}, error) {
		p, err := s.next.GetEntities(lctx, q)
		if err != nil || p == nil {
			return nil, err
		}
		return p, nil
	})
	if err == nil {
		s.observe(opEntities, hit)
		return &page, nil
	}
	if degraded(err) {
		s.degrade(ctx, opEntities, key, err)
		return s.next.GetEntities(ctx, q)
	}
	return nil, err
}

// degrade logs a cache failure.  An entry that no longer decodes is evicted
// so the next read repopulates it.
func (s *CachedService) degrade(ctx context.Context, op, key string, err error) {
	s.logger.Warn("spatial cache unavailable, querying service directly",
		logging.String("operation", op), logging.Err(err))
	if !errors.IsCode(err, errors.ErrCodeSerialization) {
		return
	}
	if delErr := s.cache.Delete(ctx, key); delErr != nil {
		s.logger.Warn("failed to evict unreadable cache entry",
			logging.String("operation", op), logging.Err(delErr))
	}
}

func (s *CachedService) observe(op string, hit bool) {
	if hit {
		s.metrics.CacheHit(op)
		return
	}
	s.metrics.CacheMiss(op)
}

// degraded reports whether err came from the cache rather than the service.
func degraded(err error) bool {
	return err == redis.ErrCacheMiss ||
		errors.IsCode(err, errors.ErrCodeCacheError) ||
		errors.IsCode(err, errors.ErrCodeSerialization) ||
		errors.IsCode(err, errors.ErrCodeClosed)
}

// cacheKey hashes the JSON form of q.  Equal zoom yields equal precision, so
// two queries for the same polygon and filters share a key.  Map keys are
// sorted by encoding/json.
func cacheKey(op string, q interface{}) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "spatial:" + op + ":" + hex.EncodeToString(sum[:]), nil
}

//Personal.AI order the ending

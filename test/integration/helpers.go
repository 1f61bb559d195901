// Package integration drives the HTTP host end to end: a stub spatial
// service behind the real SDK client, the Redis response cache and the
// engine with an in-memory event sink.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/application/mapview"
	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/database/redis"
	"github.com/turtacn/mapsync/internal/infrastructure/spatial"
	httpserver "github.com/turtacn/mapsync/internal/interfaces/http"
	"github.com/turtacn/mapsync/internal/interfaces/http/handlers"
	"github.com/turtacn/mapsync/internal/testutil"
	"github.com/turtacn/mapsync/pkg/client"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// EnvRedisAddr points the cache at a real Redis instead of miniredis.
const EnvRedisAddr = "MAPSYNC_TEST_REDIS_ADDR"

// SpatialStub is an in-process spatial service.
type SpatialStub struct {
	Server       *httptest.Server
	ClusterCalls atomic.Int64
	EntityCalls  atomic.Int64
	Fail         atomic.Bool
}

func newSpatialStub(t *testing.T) *SpatialStub {
	t.Helper()
	s := &SpatialStub{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":"UNAVAILABLE","message":"maintenance"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/clusters":
			s.ClusterCalls.Add(1)
			_ = json.NewEncoder(w).Encode(geo.ClusterPage{Clusters: []geo.Cluster{
				{Centroid: geo.Point{Lat: 40.75, Lng: -73.95}, Count: 120},
				{Centroid: geo.Point{Lat: 40.72, Lng: -73.98}, Count: 50},
				{Centroid: geo.Point{Lat: 40.71, Lng: -73.99}, Count: 1,
					Representative: &geo.GeoEntity{ID: "X1", Lat: 40.71, Lng: -73.99, Price: 850000}},
			}, TotalCount: 171})
		case "/v1/entities":
			s.EntityCalls.Add(1)
			_ = json.NewEncoder(w).Encode(geo.EntityPage{Entities: []geo.GeoEntity{
				{ID: "X1", Lat: 40.75, Lng: -73.95, Price: 850000},
				{ID: "A", Lat: 40.72, Lng: -73.98, Price: 420000},
			}, TotalCount: 2})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

// RecordingSink collects published summaries.
type RecordingSink struct {
	mu        sync.Mutex
	summaries []visibleset.Summary
}

func (s *RecordingSink) PublishVisibleSet(_ context.Context, sum visibleset.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, sum)
	return nil
}

// Summaries returns a copy of what was published so far.
func (s *RecordingSink) Summaries() []visibleset.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]visibleset.Summary(nil), s.summaries...)
}

// TestEnvironment is one wired host.
type TestEnvironment struct {
	Spatial *SpatialStub
	Sink    *RecordingSink
	Engine  *mapview.Engine
	Router  http.Handler
	Logger  *testutil.MockLogger
}

// SetupTestEnvironment wires the host and registers cleanup on t.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &TestEnvironment{
		Spatial: newSpatialStub(t),
		Sink:    &RecordingSink{},
		Logger:  testutil.NewMockLogger(),
	}

	addr := os.Getenv(EnvRedisAddr)
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rc, err := redis.NewClient(&redis.RedisConfig{Addr: addr}, env.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	cache := redis.NewRedisCache(rc, env.Logger, redis.WithPrefix("mapsync-it:"+t.Name()+":"))

	c, err := client.NewClient(env.Spatial.Server.URL, "", client.WithRetryMax(0))
	require.NoError(t, err)
	svc, err := spatial.NewCachedService(c.Spatial(), cache, spatial.WithTTL(time.Minute))
	require.NoError(t, err)

	engine, err := mapview.New(mapview.Config{}, svc,
		mapview.WithLogger(env.Logger),
		mapview.WithEventSink(env.Sink),
	)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	env.Engine = engine

	env.Router = httpserver.NewRouter(httpserver.RouterConfig{
		MapHandler:    handlers.NewMapHandler(engine, env.Logger),
		HealthHandler: handlers.NewHealthHandler("it", handlers.CheckerFunc{ComponentName: "redis", Fn: rc.Ping}),
		Logger:        env.Logger,
	})
	return env
}

// Do sends a JSON request to the router.
func (env *TestEnvironment) Do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

// WaitForSequence blocks until the result for seq has been applied and
// published, and returns its summary.
func (env *TestEnvironment) WaitForSequence(t *testing.T, seq uint64) visibleset.Summary {
	t.Helper()
	var found visibleset.Summary
	require.Eventually(t, func() bool {
		for _, s := range env.Sink.Summaries() {
			if s.Sequence == seq {
				found = s
				return true
			}
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
	return found
}

//Personal.AI order the ending

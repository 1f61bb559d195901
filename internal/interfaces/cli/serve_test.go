package cli

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/config"
	"github.com/turtacn/mapsync/internal/interfaces/http/handlers"
	"github.com/turtacn/mapsync/internal/testutil"
)

func serveConfig() *config.Config {
	cfg := defaultConfig()
	cfg.Server.Mode = "test"
	return cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewApp_MinimalWiring(t *testing.T) {
	a, err := newApp(serveConfig(), testutil.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	assert.Equal(t, http.StatusOK, get(t, a.router, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, a.router, "/api/v1/visible-set").Code)
	assert.Equal(t, http.StatusNotFound, get(t, a.router, "/metrics").Code, "metrics disabled")
	assert.Nil(t, a.producer)
}

func TestNewApp_MetricsEnabled(t *testing.T) {
	cfg := serveConfig()
	cfg.Metrics.Enabled = true
	a, err := newApp(cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	get(t, a.router, "/api/v1/markers")
	w := get(t, a.router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mapsync_")
}

func TestNewApp_RedisReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := serveConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	a, err := newApp(cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)

	w := get(t, a.router, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := serveConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 200 * time.Millisecond

	_, err := newApp(cfg, testutil.NewMockLogger())
	assert.Error(t, err)
}

func TestNewApp_KafkaSinkWired(t *testing.T) {
	cfg := serveConfig()
	cfg.Kafka.Enabled = true

	a, err := newApp(cfg, testutil.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	assert.NotNil(t, a.producer)
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	log := testutil.NewMockLogger()
	a, err := newApp(serveConfig(), log)
	require.NoError(t, err)
	t.Cleanup(a.close)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.True(t, log.HasMessage("info", "shutdown signal received"))
}

func TestEngineConfig_MapsSections(t *testing.T) {
	cfg := serveConfig()
	cfg.Fetch.Status = "sold"
	cfg.Render.Locale = "fr-FR"

	ec := engineConfig(cfg)
	assert.Equal(t, cfg.Fetch.Debounce, ec.Fetch.Debounce)
	assert.Equal(t, "sold", ec.Fetch.Status)
	assert.Equal(t, cfg.Fetch.Threshold, ec.Fetch.Threshold)
	assert.Equal(t, cfg.Viewport.EchoWindow, ec.EchoWindow)
	assert.Equal(t, cfg.Sync.RetryDelay, ec.RetryDelay)
	assert.Equal(t, "fr-FR", ec.Locale)
}

func TestClientLogger_Forwards(t *testing.T) {
	log := testutil.NewMockLogger()
	cl := clientLogger{log}
	cl.Debugf("POST %s %d", "/v1/clusters", 200)
	cl.Infof("retrying")
	cl.Errorf("request failed: %v", "eof")

	assert.True(t, log.HasMessage("debug", "POST /v1/clusters 200"))
	assert.True(t, log.HasMessage("info", "retrying"))
	assert.True(t, log.HasMessage("error", "request failed: eof"))
}

//Personal.AI order the ending

package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

func TestEngineMetrics_Fetch(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	m.RequestIssued(geo.ModeClustered)
	m.RequestIssued(geo.ModeClustered)
	m.ResponseObserved(geo.ModeClustered, "accepted", 120*time.Millisecond)
	m.ResponseObserved(geo.ModeClustered, "stale", 3*time.Second)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_fetch_requests_total{mode="clustered"} 2`)
	assert.Contains(t, out, `test_unit_fetch_responses_total{mode="clustered",outcome="accepted"} 1`)
	assert.Contains(t, out, `test_unit_fetch_responses_total{mode="clustered",outcome="stale"} 1`)
	assert.Contains(t, out, `test_unit_fetch_duration_seconds_count{mode="clustered"} 1`)
}

func TestEngineMetrics_EngineSeries(t *testing.T) {
	c := newTestCollector(t)
	m := NewEngineMetrics(c)

	m.RecordVisibleSet(7)
	m.RecordVisibleSet(35)
	m.RecordViewportEvent(geo.OriginUser, "invalid")
	m.RecordDelivery("keepalive", true)
	m.RecordDelivery("publish", false)
	m.CacheHit("clusters")
	m.CacheMiss("entities")
	m.RecordPublish(nil)
	m.RecordPublish(errors.New("broker down"))
	m.RecordHTTPRequest("GET", "/api/v1/markers", 200, 3*time.Millisecond)

	out := scrapeMetrics(t, c)
	for _, want := range []string{
		`test_unit_visible_set_size_sum 42`,
		`test_unit_visible_set_size_count 2`,
		`test_unit_visible_set_entities 35`,
		`test_unit_viewport_events_total{origin="user",outcome="invalid"} 1`,
		`test_unit_channel_deliveries_total{result="ok",trigger="keepalive"} 1`,
		`test_unit_channel_deliveries_total{result="panic",trigger="publish"} 1`,
		`test_unit_cache_hits_total{operation="clusters"} 1`,
		`test_unit_cache_misses_total{operation="entities"} 1`,
		`test_unit_events_published_total{outcome="error"} 1`,
		`test_unit_http_requests_total{method="GET",path="/api/v1/markers",status_code="200"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

//Personal.AI order the ending

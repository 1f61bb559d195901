package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

// Histogram buckets.
var (
	FetchDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	HTTPDurationBuckets  = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}
	SetSizeBuckets       = []float64{0, 10, 50, 100, 250, 500, 1000, 2500}
)

// EngineMetrics holds every series the engine and its adapters record.  It
// satisfies fetcher.Metrics and is the DeliveryObserver of the sync channel.
type EngineMetrics struct {
	FetchRequestsTotal     CounterVec
	FetchResponsesTotal    CounterVec
	FetchDuration          HistogramVec
	VisibleSetSize         HistogramVec
	VisibleSetEntities     GaugeVec
	ViewportEventsTotal    CounterVec
	ChannelDeliveriesTotal CounterVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	EventsPublishedTotal   CounterVec
	HTTPRequestsTotal      CounterVec
	HTTPRequestDuration    HistogramVec
}

// NewEngineMetrics registers all series on collector.
func NewEngineMetrics(c MetricsCollector) *EngineMetrics {
	return &EngineMetrics{
		FetchRequestsTotal:     c.RegisterCounter("fetch_requests_total", "Spatial fetches issued.", "mode"),
		FetchResponsesTotal:    c.RegisterCounter("fetch_responses_total", "Spatial fetch responses by outcome.", "mode", "outcome"),
		FetchDuration:          c.RegisterHistogram("fetch_duration_seconds", "Spatial fetch latency.", FetchDurationBuckets, "mode"),
		VisibleSetSize:         c.RegisterHistogram("visible_set_size", "Entities in each accepted visible set.", SetSizeBuckets),
		VisibleSetEntities:     c.RegisterGauge("visible_set_entities", "Entities in the current visible set."),
		ViewportEventsTotal:    c.RegisterCounter("viewport_events_total", "Camera changes by origin and outcome.", "origin", "outcome"),
		ChannelDeliveriesTotal: c.RegisterCounter("channel_deliveries_total", "Sync channel listener invocations.", "trigger", "result"),
		CacheHitsTotal:         c.RegisterCounter("cache_hits_total", "Spatial response cache hits.", "operation"),
		CacheMissesTotal:       c.RegisterCounter("cache_misses_total", "Spatial response cache misses.", "operation"),
		EventsPublishedTotal:   c.RegisterCounter("events_published_total", "Visible-set events published.", "outcome"),
		HTTPRequestsTotal:      c.RegisterCounter("http_requests_total", "HTTP requests served.", "method", "path", "status_code"),
		HTTPRequestDuration:    c.RegisterHistogram("http_request_duration_seconds", "HTTP request latency.", HTTPDurationBuckets, "method", "path"),
	}
}

// RequestIssued records an issued fetch.
func (m *EngineMetrics) RequestIssued(mode geo.FetchMode) {
	m.FetchRequestsTotal.WithLabelValues(string(mode)).Inc()
}

// ResponseObserved records a completed fetch.  Stale responses do not feed
// the latency histogram.
func (m *EngineMetrics) ResponseObserved(mode geo.FetchMode, outcome string, elapsed time.Duration) {
	m.FetchResponsesTotal.WithLabelValues(string(mode), outcome).Inc()
	if outcome != "stale" {
		m.FetchDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	}
}

// RecordVisibleSet records the size of an accepted visible set.
func (m *EngineMetrics) RecordVisibleSet(size int) {
	m.VisibleSetSize.WithLabelValues().Observe(float64(size))
	m.VisibleSetEntities.WithLabelValues().Set(float64(size))
}

// RecordViewportEvent records a camera change.
func (m *EngineMetrics) RecordViewportEvent(origin geo.Origin, outcome string) {
	m.ViewportEventsTotal.WithLabelValues(string(origin), outcome).Inc()
}

// RecordDelivery records a sync channel delivery attempt.
func (m *EngineMetrics) RecordDelivery(trigger string, ok bool) {
	result := "ok"
	if !ok {
		result = "panic"
	}
	m.ChannelDeliveriesTotal.WithLabelValues(trigger, result).Inc()
}

// CacheHit records a spatial cache hit for operation.
func (m *EngineMetrics) CacheHit(operation string) {
	m.CacheHitsTotal.WithLabelValues(operation).Inc()
}

// CacheMiss records a spatial cache miss for operation.
func (m *EngineMetrics) CacheMiss(operation string) {
	m.CacheMissesTotal.WithLabelValues(operation).Inc()
}

// RecordPublish records the outcome of a visible-set event publish.
func (m *EngineMetrics) RecordPublish(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *EngineMetrics) RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

//Personal.AI order the ending

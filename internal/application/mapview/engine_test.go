package mapview

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/domain/render"
	"github.com/turtacn/mapsync/internal/domain/viewport"
	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/testutil"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

var manhattan = geo.Bounds{North: 40.80, South: 40.70, East: -73.90, West: -74.00}

type stubService struct {
	mu         sync.Mutex
	clusterErr error
	clusters   []geo.Cluster
	entities   []geo.GeoEntity
	clusterQ   []geo.ClusterQuery
	entityQ    []geo.EntityQuery
}

func (s *stubService) GetClusters(_ context.Context, q geo.ClusterQuery) (*geo.ClusterPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusterQ = append(s.clusterQ, q)
	if s.clusterErr != nil {
		return nil, s.clusterErr
	}
	total := 0
	for _, c := range s.clusters {
		total += c.Count
	}
	return &geo.ClusterPage{Clusters: s.clusters, TotalCount: total}, nil
}

func (s *stubService) GetEntities(_ context.Context, q geo.EntityQuery) (*geo.EntityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityQ = append(s.entityQ, q)
	return &geo.EntityPage{Entities: s.entities, TotalCount: len(s.entities)}, nil
}

func (s *stubService) calls() (clusters, entities int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusterQ), len(s.entityQ)
}

type recordingSink struct {
	mu        sync.Mutex
	summaries []visibleset.Summary
	err       error
}

func (r *recordingSink) PublishVisibleSet(_ context.Context, s visibleset.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

func (r *recordingSink) all() []visibleset.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]visibleset.Summary(nil), r.summaries...)
}

type recordingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	viewport map[string]int
	publish  []error
}

func (m *recordingMetrics) RecordViewportEvent(origin geo.Origin, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewport == nil {
		m.viewport = map[string]int{}
	}
	m.viewport[string(origin)+"/"+outcome]++
}

func (m *recordingMetrics) RecordPublish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = append(m.publish, err)
}

func (m *recordingMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewport[key]
}

func scenarioAService() *stubService {
	x1 := geo.GeoEntity{ID: "X1", Lat: 40.75, Lng: -73.95, Price: 850000}
	return &stubService{
		clusters: []geo.Cluster{
			{Centroid: geo.Point{Lat: 40.71, Lng: -73.99}, Count: 50},
			{Centroid: x1.Location(), Count: 1, Representative: &x1},
			{Centroid: geo.Point{Lat: 40.78, Lng: -73.91}, Count: 120},
		},
		entities: []geo.GeoEntity{
			x1,
			{ID: "A", Lat: 40.72, Lng: -73.98, Price: 420000},
			{ID: "B", Lat: 40.76, Lng: -73.93, Price: 1250000},
		},
	}
}

type harness struct {
	engine *Engine
	clock  *testutil.FakeClock
	svc    *stubService
	sets   chan *visibleset.VisibleSet
}

func newHarness(t *testing.T, svc *stubService, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock: testutil.NewFakeClock(),
		svc:   svc,
		sets:  make(chan *visibleset.VisibleSet, 32),
	}
	all := append([]Option{WithClock(h.clock), WithLogger(testutil.NewMockLogger())}, opts...)
	e, err := New(Config{KeepAliveInterval: time.Hour}, svc, all...)
	require.NoError(t, err)
	h.engine = e
	e.RegisterListPanel(func(v *visibleset.VisibleSet) { h.sets <- v })
	t.Cleanup(e.Close)
	return h
}

func (h *harness) await(t *testing.T) *visibleset.VisibleSet {
	t.Helper()
	select {
	case v := <-h.sets:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no visible set delivered")
		return nil
	}
}

func (h *harness) move(t *testing.T, zoom float64) {
	t.Helper()
	require.NoError(t, h.engine.HandleCameraChange(viewport.CameraChange{Bounds: manhattan, Zoom: zoom}))
	h.clock.Advance(time.Second)
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidConfig))
}

func TestEngine_ClusteredViewportMergesRepresentativeWithoutDuplicates(t *testing.T) {
	h := newHarness(t, scenarioAService())
	h.move(t, 10)

	vs := h.await(t)
	assert.Equal(t, []string{"X1", "A", "B"}, vs.IDs())

	snap := h.engine.Snapshot()
	assert.Equal(t, geo.ModeClustered, snap.Mode)
	assert.Equal(t, 22, snap.Precision)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Equal(t, 171, snap.TotalCount)
	require.NotNil(t, snap.Viewport)
	assert.Equal(t, 10.0, snap.Viewport.Zoom)

	var bubbles, tags int
	for _, m := range snap.Markers {
		switch m.Kind {
		case render.KindCluster:
			bubbles++
		case render.KindPrice:
			tags++
			assert.Equal(t, "X1", m.EntityID)
		}
	}
	assert.Equal(t, 2, bubbles)
	assert.Equal(t, 1, tags)
}

func TestEngine_IndividualModeAboveThreshold(t *testing.T) {
	svc := scenarioAService()
	h := newHarness(t, svc)
	h.move(t, 16)
	h.await(t)

	clusters, entities := svc.calls()
	assert.Zero(t, clusters)
	assert.Equal(t, 1, entities)

	snap := h.engine.Snapshot()
	assert.Equal(t, geo.ModeIndividual, snap.Mode)
	assert.Len(t, snap.Markers, 3)
}

func TestEngine_InvalidViewportRejected(t *testing.T) {
	m := &recordingMetrics{}
	h := newHarness(t, scenarioAService(), WithMetrics(m))

	err := h.engine.HandleCameraChange(viewport.CameraChange{
		Bounds: geo.Bounds{North: 40.7, South: 40.8, East: -73.9, West: -74.0},
		Zoom:   10,
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidViewport))
	assert.Equal(t, 1, m.count("user/invalid"))

	h.clock.Advance(time.Second)
	h.engine.Close()
	clusters, entities := h.svc.calls()
	assert.Zero(t, clusters+entities)
}

func TestEngine_ServiceErrorYieldsEmptySetAndNotice(t *testing.T) {
	svc := scenarioAService()
	svc.clusterErr = stderrors.New("connection refused")
	h := newHarness(t, svc)
	h.move(t, 10)

	vs := h.await(t)
	assert.Zero(t, vs.Len())

	select {
	case n := <-h.engine.Notices():
		assert.Equal(t, errors.ErrCodeServiceError, n.Code)
		assert.Equal(t, "could not load properties for this area", n.Message)
		assert.Equal(t, uint64(1), n.Sequence)
	case <-time.After(2 * time.Second):
		t.Fatal("no notice")
	}

	snap := h.engine.Snapshot()
	assert.Empty(t, snap.Markers)
	assert.Zero(t, snap.TotalCount)
}

func TestEngine_ProgrammaticEchoIsSwallowed(t *testing.T) {
	m := &recordingMetrics{}
	svc := scenarioAService()
	h := newHarness(t, svc, WithMetrics(m))

	require.NoError(t, h.engine.FlyTo(manhattan, 12))
	h.await(t)

	require.NoError(t, h.engine.HandleCameraChange(viewport.CameraChange{Bounds: manhattan, Zoom: 12}))
	h.clock.Advance(time.Second)
	h.engine.Close()

	clusters, _ := svc.calls()
	assert.Equal(t, 1, clusters)
	assert.Equal(t, 1, m.count("programmatic/accepted"))
	assert.Equal(t, 1, m.count("user/echo"))
}

func TestEngine_EchoBecomesViewportForLaterFetches(t *testing.T) {
	svc := scenarioAService()
	h := newHarness(t, svc)

	require.NoError(t, h.engine.FlyTo(manhattan, 16))
	h.await(t)

	settled := manhattan
	settled.North += 0.003
	settled.South += 0.003
	require.NoError(t, h.engine.HandleCameraChange(viewport.CameraChange{Bounds: settled, Zoom: 16}))
	h.clock.Advance(time.Second)
	_, entities := svc.calls()
	assert.Equal(t, 1, entities, "the echo issues no fetch")

	h.engine.SetFilters(geo.Filters{Category: "condo"})
	h.await(t)

	snap := h.engine.Snapshot()
	require.NotNil(t, snap.Viewport)
	assert.Equal(t, settled, snap.Viewport.Bounds)
	svc.mu.Lock()
	last := svc.entityQ[len(svc.entityQ)-1]
	svc.mu.Unlock()
	assert.Equal(t, settled.Polygon(), last.Polygon)
}

func TestEngine_UnknownOriginRejected(t *testing.T) {
	m := &recordingMetrics{}
	svc := scenarioAService()
	h := newHarness(t, svc, WithMetrics(m))

	for _, origin := range []geo.Origin{"bogus-123", "Programmatic"} {
		err := h.engine.HandleCameraChange(viewport.CameraChange{Bounds: manhattan, Zoom: 12, Origin: origin})
		assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest), string(origin))
	}
	h.clock.Advance(time.Second)

	clusters, entities := svc.calls()
	assert.Zero(t, clusters+entities)
	assert.Equal(t, uint64(0), h.engine.Snapshot().Sequence)
	assert.Equal(t, 2, m.count("unknown/invalid"))
	assert.Zero(t, m.count("bogus-123/invalid"))
}

func TestEngine_GestureHoldsFetchUntilEnd(t *testing.T) {
	svc := scenarioAService()
	h := newHarness(t, svc)

	assert.True(t, errors.IsCode(h.engine.GestureStarted("spin"), errors.ErrCodeBadRequest))
	require.NoError(t, h.engine.GestureStarted(GestureZoom))
	assert.Equal(t, GestureZoom, h.engine.Snapshot().Gesture)

	h.move(t, 11)
	h.move(t, 12)
	clusters, entities := svc.calls()
	assert.Zero(t, clusters+entities)

	h.engine.GestureEnded()
	h.await(t)
	snap := h.engine.Snapshot()
	assert.Equal(t, 12.0, snap.Viewport.Zoom)
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Empty(t, snap.Gesture)
}

func TestEngine_SetFiltersRefetches(t *testing.T) {
	svc := scenarioAService()
	h := newHarness(t, svc)
	h.move(t, 16)
	h.await(t)

	h.engine.SetFilters(geo.Filters{Category: "condo"})
	h.await(t)

	assert.Equal(t, "condo", h.engine.Filters().Category)
	svc.mu.Lock()
	last := svc.entityQ[len(svc.entityQ)-1]
	svc.mu.Unlock()
	assert.Equal(t, "condo", last.Filters.Category)
	assert.Equal(t, uint64(2), h.engine.Snapshot().Sequence)
}

func TestEngine_SelectionChangesMarkerOnly(t *testing.T) {
	h := newHarness(t, scenarioAService())
	h.move(t, 16)
	h.await(t)

	assert.True(t, errors.IsCode(h.engine.Select(""), errors.ErrCodeBadRequest))
	require.NoError(t, h.engine.Select("A"))

	snap := h.engine.Snapshot()
	assert.Equal(t, "A", snap.SelectedID)
	assert.Equal(t, 3, snap.VisibleSet.Len())
	for _, m := range snap.Markers {
		assert.Equal(t, m.EntityID == "A", m.Selected, m.Key)
	}

	h.engine.ClearSelection()
	for _, m := range h.engine.Snapshot().Markers {
		assert.False(t, m.Selected)
	}
}

func TestEngine_CenterOnSelected(t *testing.T) {
	h := newHarness(t, scenarioAService())

	err := h.engine.CenterOnSelected(17)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	h.move(t, 16)
	h.await(t)

	require.NoError(t, h.engine.Select("ghost"))
	assert.True(t, errors.IsCode(h.engine.CenterOnSelected(17), errors.ErrCodeNotFound))

	require.NoError(t, h.engine.Select("B"))
	require.NoError(t, h.engine.CenterOnSelected(17))
	h.await(t)

	snap := h.engine.Snapshot()
	require.NotNil(t, snap.Viewport)
	assert.Equal(t, 17.0, snap.Viewport.Zoom)
	assert.InDelta(t, 40.76, snap.Viewport.Center().Lat, 1e-9)
	assert.InDelta(t, -73.93, snap.Viewport.Center().Lng, 1e-9)
}

func TestEngine_CenterOnRejectsOutOfRange(t *testing.T) {
	h := newHarness(t, scenarioAService())
	err := h.engine.CenterOn(95, 0, 10)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidViewport))
}

func TestEngine_LateListPanelReceivesCurrentSet(t *testing.T) {
	clk := testutil.NewFakeClock()
	e, err := New(Config{}, scenarioAService(), WithClock(clk))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.FlyTo(manhattan, 16))
	require.Eventually(t, func() bool { return e.VisibleSet().Len() == 3 }, 2*time.Second, 5*time.Millisecond)

	got := make(chan []string, 1)
	e.RegisterListPanel(func(v *visibleset.VisibleSet) { got <- v.IDs() })
	select {
	case ids := <-got:
		assert.Equal(t, []string{"X1", "A", "B"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("late listener never received the current set")
	}
}

func TestEngine_PublishesSummaries(t *testing.T) {
	sink := &recordingSink{}
	m := &recordingMetrics{}
	h := newHarness(t, scenarioAService(), WithEventSink(sink), WithSessionID("session-1"), WithMetrics(m))
	assert.Equal(t, "session-1", h.engine.SessionID())

	h.move(t, 10)
	h.await(t)
	h.engine.Close()

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "session-1", got[0].SessionID)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, geo.ModeClustered, got[0].Mode)
	assert.Equal(t, 22, got[0].Precision)
	assert.Equal(t, []string{"X1", "A", "B"}, got[0].IDs)
	assert.Equal(t, 3, got[0].Count)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.publish, 1)
	assert.NoError(t, m.publish[0])
}

func TestEngine_SinkFailureIsNotPropagated(t *testing.T) {
	sink := &recordingSink{err: errors.New(errors.ErrCodePublishFailed, "broker down")}
	log := testutil.NewMockLogger()
	h := newHarness(t, scenarioAService(), WithEventSink(sink), WithLogger(log))

	h.move(t, 16)
	assert.Equal(t, 3, h.await(t).Len())
	h.engine.Close()

	assert.Len(t, sink.all(), 1)
	assert.True(t, log.HasMessage("warn", "visible set summary not delivered"))
}

func TestEngine_CloseIsIdempotentAndClosesNotices(t *testing.T) {
	h := newHarness(t, scenarioAService())
	h.engine.Close()
	h.engine.Close()

	_, open := <-h.engine.Notices()
	assert.False(t, open)
	assert.True(t, errors.IsCode(h.engine.FlyTo(manhattan, 10), errors.ErrCodeFetcherClosed))
}

//Personal.AI order the ending

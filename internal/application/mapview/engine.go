// Package mapview is the map engine facade.  It wires the viewport tracker,
// the spatial fetcher, the visible-set builder, the render projection and
// the sync channel into one object that a host (HTTP server, CLI) drives
// with camera changes and reads back as snapshots.
package mapview

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/mapsync/internal/application/fetcher"
	"github.com/turtacn/mapsync/internal/application/syncchannel"
	"github.com/turtacn/mapsync/internal/domain/render"
	"github.com/turtacn/mapsync/internal/domain/viewport"
	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/clock"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// Defaults for the engine-level settings.
const (
	DefaultNoticeBuffer   = 16
	DefaultEventQueue     = 64
	DefaultPublishTimeout = 5 * time.Second
)

// GestureKind names the continuous user interaction in progress.
type GestureKind string

const (
	GestureDrag GestureKind = "drag"
	GestureZoom GestureKind = "zoom"
)

// Valid reports whether k is a known gesture.
func (k GestureKind) Valid() bool { return k == GestureDrag || k == GestureZoom }

// Notice is a non-fatal, user-visible message.
type Notice struct {
	Code     errors.ErrorCode `json:"code"`
	Message  string           `json:"message"`
	Sequence uint64           `json:"sequence"`
	At       time.Time        `json:"at"`
}

// EventSink receives a summary of every accepted visible set.
type EventSink interface {
	PublishVisibleSet(ctx context.Context, s visibleset.Summary) error
}

// Metrics is the instrumentation the engine records on top of the fetcher's.
type Metrics interface {
	fetcher.Metrics
	RecordVisibleSet(size int)
	RecordViewportEvent(origin geo.Origin, outcome string)
	RecordDelivery(trigger string, ok bool)
	RecordPublish(err error)
}

type nopMetrics struct{}

func (nopMetrics) RequestIssued(geo.FetchMode)                           {}
func (nopMetrics) ResponseObserved(geo.FetchMode, string, time.Duration) {}
func (nopMetrics) RecordVisibleSet(int)                                  {}
func (nopMetrics) RecordViewportEvent(geo.Origin, string)                {}
func (nopMetrics) RecordDelivery(string, bool)                           {}
func (nopMetrics) RecordPublish(error)                                   {}

// Config groups the tunables of every wired component.
type Config struct {
	Fetch             fetcher.Config
	EchoWindow        time.Duration
	RetryDelay        time.Duration
	KeepAliveInterval time.Duration
	Locale            string
	NoticeBuffer      int
	PublishTimeout    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source shared by all timers.
func WithClock(c clock.Clock) Option { return func(e *Engine) { e.clock = clock.OrReal(c) } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEventSink publishes a summary of each accepted visible set to s.
func WithEventSink(s EventSink) Option { return func(e *Engine) { e.sink = s } }

// WithTracer passes t to the fetcher.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithSessionID overrides the generated session id carried by events.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// Snapshot is the engine state as seen by a host.
type Snapshot struct {
	SessionID  string                 `json:"session_id"`
	Viewport   *geo.Viewport          `json:"viewport,omitempty"`
	Mode       geo.FetchMode          `json:"mode,omitempty"`
	Precision  int                    `json:"precision"`
	Sequence   uint64                 `json:"sequence"`
	VisibleSet *visibleset.VisibleSet `json:"visible_set"`
	Markers    []render.Marker        `json:"markers"`
	TotalCount int                    `json:"total_count"`
	SelectedID string                 `json:"selected_id,omitempty"`
	Filters    geo.Filters            `json:"filters"`
	Gesture    GestureKind            `json:"gesture,omitempty"`
}

// accepted is the most recently applied fetch result.
type accepted struct {
	req      fetcher.Request
	clusters []geo.Cluster
	total    int
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg       Config
	sessionID string
	clock     clock.Clock
	logger    logging.Logger
	metrics   Metrics
	tracer    trace.Tracer
	sink      EventSink

	tracker    *viewport.Tracker
	fetcher    *fetcher.Fetcher
	builder    *visibleset.Builder
	projection *render.Projection
	channel    *syncchannel.Channel[*visibleset.VisibleSet]

	mu       sync.RWMutex
	last     *accepted
	selected string
	gesture  GestureKind

	notices chan Notice
	events  chan visibleset.Summary
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// New wires an Engine around svc.
func New(cfg Config, svc fetcher.Service, opts ...Option) (*Engine, error) {
	if svc == nil {
		return nil, errors.ErrInvalidConfig.WithDetail("engine requires a spatial service")
	}
	if cfg.NoticeBuffer <= 0 {
		cfg.NoticeBuffer = DefaultNoticeBuffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	e := &Engine{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		clock:     clock.Real(),
		logger:    logging.NewNopLogger(),
		metrics:   nopMetrics{},
		builder:   visibleset.NewBuilder(),
		notices:   make(chan Notice, cfg.NoticeBuffer),
	}
	for _, o := range opts {
		o(e)
	}
	e.logger = e.logger.With(logging.String("session_id", e.sessionID))

	trackerOpts := []viewport.Option{
		viewport.WithClock(e.clock),
		viewport.WithLogger(e.logger.Named("tracker")),
	}
	if cfg.EchoWindow > 0 {
		trackerOpts = append(trackerOpts, viewport.WithEchoWindow(cfg.EchoWindow))
	}
	e.tracker = viewport.NewTracker(trackerOpts...)

	chOpts := []syncchannel.Option{
		syncchannel.WithClock(e.clock),
		syncchannel.WithLogger(e.logger.Named("channel")),
		syncchannel.WithRetryDelay(cfg.RetryDelay),
		syncchannel.WithDeliveryObserver(func(t syncchannel.Trigger, ok bool) {
			e.metrics.RecordDelivery(string(t), ok)
		}),
	}
	if cfg.KeepAliveInterval > 0 {
		chOpts = append(chOpts, syncchannel.WithKeepAliveInterval(cfg.KeepAliveInterval))
	}
	e.channel = syncchannel.New[*visibleset.VisibleSet](chOpts...)
	e.projection = render.NewProjection(cfg.Locale)

	fopts := []fetcher.Option{
		fetcher.WithClock(e.clock),
		fetcher.WithLogger(e.logger.Named("fetcher")),
		fetcher.WithMetrics(e.metrics),
	}
	if e.tracer != nil {
		fopts = append(fopts, fetcher.WithTracer(e.tracer))
	}
	f, err := fetcher.New(cfg.Fetch, svc, e.onResult, fopts...)
	if err != nil {
		return nil, err
	}
	e.fetcher = f

	if e.sink != nil {
		e.events = make(chan visibleset.Summary, DefaultEventQueue)
		e.wg.Add(1)
		go e.publishLoop()
	}
	return e, nil
}

// SessionID identifies this engine in published events.
func (e *Engine) SessionID() string { return e.sessionID }

// originUnknown labels rejected changes whose origin is not recognised.
const originUnknown geo.Origin = "unknown"

// HandleCameraChange feeds a widget notification into the pipeline.  A
// degenerate viewport is rejected with an InvalidViewport error and nothing
// is fetched.  An echo of a recent programmatic move is swallowed.
func (e *Engine) HandleCameraChange(change viewport.CameraChange) error {
	ev, outcome, err := e.tracker.Observe(change)
	origin := change.Origin
	switch {
	case origin == "":
		origin = geo.OriginUser
	case !origin.Valid():
		origin = originUnknown
	}
	e.metrics.RecordViewportEvent(origin, string(outcome))
	if err != nil {
		return err
	}
	if outcome == viewport.OutcomeEcho {
		e.fetcher.Observe(ev.Viewport)
		return nil
	}
	return e.fetcher.Submit(ev)
}

// CenterOn moves the camera to (lat, lng) at zoom, keeping the current
// viewport's aspect.
func (e *Engine) CenterOn(lat, lng, zoom float64) error {
	p := geo.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return errors.InvalidViewport("center out of range")
	}
	vp := e.tracker.CenteredOn(p, zoom)
	return e.FlyTo(vp.Bounds, vp.Zoom)
}

// FlyTo moves the camera to bounds at zoom as a programmatic change.
func (e *Engine) FlyTo(bounds geo.Bounds, zoom float64) error {
	return e.HandleCameraChange(viewport.CameraChange{
		Bounds: bounds,
		Zoom:   zoom,
		Origin: geo.OriginProgrammatic,
	})
}

// CenterOnSelected centres the camera on the selected entity.  The entity
// must be part of the current visible set.
func (e *Engine) CenterOnSelected(zoom float64) error {
	e.mu.RLock()
	id := e.selected
	e.mu.RUnlock()
	if id == "" {
		return errors.New(errors.ErrCodeNotFound, "no entity selected")
	}
	ent, ok := e.builder.Current().Get(id)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "selected entity is not visible").WithDetail(id)
	}
	return e.CenterOn(ent.Lat, ent.Lng, zoom)
}

// GestureStarted suppresses fetches until GestureEnded.
func (e *Engine) GestureStarted(kind GestureKind) error {
	if !kind.Valid() {
		return errors.InvalidParam("unknown gesture kind").WithDetail(string(kind))
	}
	e.mu.Lock()
	e.gesture = kind
	e.mu.Unlock()
	e.fetcher.GestureStarted()
	return nil
}

// GestureEnded issues one fetch for the final viewport.
func (e *Engine) GestureEnded() {
	e.mu.Lock()
	e.gesture = ""
	e.mu.Unlock()
	e.fetcher.GestureEnded()
}

// SetFilters replaces the search filters and refetches the current viewport.
func (e *Engine) SetFilters(f geo.Filters) { e.fetcher.SetFilters(f) }

// Filters returns the current search filters.
func (e *Engine) Filters() geo.Filters { return e.fetcher.Filters() }

// Select marks id as the selected entity.  Selection only changes marker
// appearance, so id need not be visible.
func (e *Engine) Select(id string) error {
	if id == "" {
		return errors.InvalidParam("entity id is required")
	}
	e.mu.Lock()
	e.selected = id
	e.mu.Unlock()
	return nil
}

// ClearSelection removes the selection.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	e.selected = ""
	e.mu.Unlock()
}

// VisibleSet returns the current visible set.
func (e *Engine) VisibleSet() *visibleset.VisibleSet { return e.builder.Current() }

// Snapshot returns the current state with freshly projected markers.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	last := e.last
	selected := e.selected
	gesture := e.gesture
	e.mu.RUnlock()

	vs := e.builder.Current()
	s := Snapshot{
		SessionID:  e.sessionID,
		Sequence:   e.fetcher.LatestSequence(),
		VisibleSet: vs,
		Markers:    []render.Marker{},
		SelectedID: selected,
		Filters:    e.fetcher.Filters(),
		Gesture:    gesture,
	}
	if vp, ok := e.tracker.Current(); ok {
		s.Viewport = &vp
	}
	if last == nil {
		return s
	}
	s.Mode = last.req.Mode
	s.Precision = last.req.Precision
	s.TotalCount = last.total
	s.Markers = e.projection.Project(render.Input{
		Mode:       last.req.Mode,
		Precision:  last.req.Precision,
		Clusters:   last.clusters,
		VisibleSet: vs,
		SelectedID: selected,
	})
	return s
}

// RegisterListPanel installs l as the list-panel listener.  It is called
// with the current visible set immediately if one exists.
func (e *Engine) RegisterListPanel(l syncchannel.Listener[*visibleset.VisibleSet]) (unregister func()) {
	return e.channel.Register(l)
}

// Notices delivers service failures for display.  It is closed by Close.
func (e *Engine) Notices() <-chan Notice { return e.notices }

// Close stops all timers and in-flight fetches.  Events already queued for
// the sink are flushed before Close returns.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.fetcher.Close()
		e.channel.Close()
		if e.events != nil {
			close(e.events)
		}
		e.wg.Wait()
		close(e.notices)
	})
}

// onResult runs on the fetch goroutine, serialized by the fetcher and only
// for the latest request.
func (e *Engine) onResult(r fetcher.Result) {
	vs := e.builder.Rebuild(r.Entities, r.Clusters)

	e.mu.Lock()
	e.last = &accepted{req: r.Request, clusters: r.Clusters, total: r.TotalCount}
	e.mu.Unlock()

	e.metrics.RecordVisibleSet(vs.Len())
	e.channel.Publish(vs)

	if r.Err != nil {
		e.notify(Notice{
			Code:     errors.ErrCodeServiceError,
			Message:  errors.DefaultMessageForCode(errors.ErrCodeServiceError),
			Sequence: r.Request.Sequence,
			At:       e.clock.Now(),
		})
	}

	if e.events != nil {
		s := visibleset.Summarize(e.sessionID, r.Request.Sequence, r.Request.Mode,
			r.Request.Precision, r.Request.Viewport, vs, e.clock.Now())
		select {
		case e.events <- s:
		default:
			e.logger.Warn("event queue full, visible set summary dropped",
				logging.Uint64("sequence", r.Request.Sequence))
			e.metrics.RecordPublish(errors.New(errors.ErrCodePublishFailed, "event queue full"))
		}
	}
}

func (e *Engine) notify(n Notice) {
	select {
	case e.notices <- n:
	default:
		e.logger.Warn("notice dropped, no reader", logging.Uint64("sequence", n.Sequence))
	}
}

func (e *Engine) publishLoop() {
	defer e.wg.Done()
	for s := range e.events {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PublishTimeout)
		err := e.sink.PublishVisibleSet(ctx, s)
		cancel()
		e.metrics.RecordPublish(err)
		if err != nil {
			e.logger.Warn("visible set summary not delivered",
				logging.Uint64("sequence", s.Sequence), logging.Err(err))
		}
	}
}

//Personal.AI order the ending

// Package fetcher turns viewport events into spatial-service requests.  It
// debounces bursts of camera changes, holds requests while a gesture is in
// progress, and applies only the response of the most recently issued
// request.
package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/mapsync/internal/domain/fetchmode"
	"github.com/turtacn/mapsync/internal/domain/viewport"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/clock"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// Response outcomes reported to Metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeStale    = "stale"
	OutcomeError    = "error"
)

// Service is the remote spatial service.
type Service interface {
	GetClusters(ctx context.Context, q geo.ClusterQuery) (*geo.ClusterPage, error)
	GetEntities(ctx context.Context, q geo.EntityQuery) (*geo.EntityPage, error)
}

// Metrics receives fetch instrumentation.
type Metrics interface {
	RequestIssued(mode geo.FetchMode)
	ResponseObserved(mode geo.FetchMode, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RequestIssued(geo.FetchMode)                           {}
func (nopMetrics) ResponseObserved(geo.FetchMode, string, time.Duration) {}

// Request is one issued fetch.
type Request struct {
	Viewport  geo.Viewport  `json:"viewport"`
	Mode      geo.FetchMode `json:"mode"`
	Precision int           `json:"precision"`
	Sequence  uint64        `json:"sequence"`
	Origin    geo.Origin    `json:"origin"`
	Filters   geo.Filters   `json:"filters"`
}

// Result is an accepted response.  On a service error Clusters and Entities
// are empty and Err is set.
type Result struct {
	Request    Request
	Clusters   []geo.Cluster
	Entities   []geo.GeoEntity
	TotalCount int
	Err        error
	Elapsed    time.Duration
}

// Handler receives accepted results in issue order.  It must not block for
// long; it runs on the fetch goroutine.
type Handler func(Result)

// Config tunes request timing and shapes.
type Config struct {
	Debounce     time.Duration
	Timeout      time.Duration
	Status       string
	ClusterLimit int
	ResultLimit  int
	Threshold    float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:     200 * time.Millisecond,
		Timeout:      10 * time.Second,
		Status:       "active",
		ClusterLimit: 500,
		ResultLimit:  500,
		Threshold:    fetchmode.DefaultThreshold,
	}
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock sets the time source for the debounce timer.
func WithClock(c clock.Clock) Option { return func(f *Fetcher) { f.clock = clock.OrReal(c) } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(f *Fetcher) {
		if t != nil {
			f.tracer = t
		}
	}
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	cfg      Config
	svc      Service
	handler  Handler
	selector *fetchmode.Selector
	clock    clock.Clock
	logger   logging.Logger
	metrics  Metrics
	tracer   trace.Tracer

	seq atomic.Uint64

	// applyMu serializes the staleness check with the handler call so a
	// superseded result can never be applied after a newer one.
	applyMu sync.Mutex

	mu            sync.Mutex
	pending       *viewport.Event
	last          *geo.Viewport
	lastIssued    *Request
	filters       geo.Filters
	gestureActive bool
	timer         clock.Timer
	timerGen      uint64
	cancelPrev    context.CancelFunc
	closed        bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New constructs a Fetcher.  Zero fields in cfg take DefaultConfig values.
func New(cfg Config, svc Service, handler Handler, opts ...Option) (*Fetcher, error) {
	if svc == nil || handler == nil {
		return nil, errors.ErrInvalidConfig.WithDetail("fetcher requires a service and a handler")
	}
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ClusterLimit <= 0 {
		cfg.ClusterLimit = def.ClusterLimit
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = def.ResultLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Fetcher{
		cfg:        cfg,
		svc:        svc,
		handler:    handler,
		selector:   fetchmode.NewSelector(cfg.Threshold),
		clock:      clock.Real(),
		logger:     logging.NewNopLogger(),
		metrics:    nopMetrics{},
		tracer:     otel.Tracer("github.com/turtacn/mapsync/fetcher"),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Selector exposes the mode selector fixed at construction.
func (f *Fetcher) Selector() *fetchmode.Selector { return f.selector }

// Submit schedules a fetch for ev.  Programmatic events are issued at once;
// user events are debounced, and held while a gesture is in progress.
func (f *Fetcher) Submit(ev viewport.Event) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New(errors.ErrCodeFetcherClosed, "fetcher closed")
	}
	vp := ev.Viewport
	f.last = &vp

	if ev.Programmatic() {
		f.stopTimerLocked()
		f.pending = nil
		req := f.prepareLocked(vp, ev.Origin)
		f.mu.Unlock()
		f.dispatch(req)
		return nil
	}

	f.pending = &ev
	if f.gestureActive {
		f.mu.Unlock()
		return nil
	}
	f.resetTimerLocked()
	f.mu.Unlock()
	return nil
}

// Observe records vp as the current viewport without issuing a request.
// Later filter changes and gesture ends fetch for it.
func (f *Fetcher) Observe(vp geo.Viewport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = &vp
}

// GestureStarted suppresses requests until GestureEnded.
func (f *Fetcher) GestureStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gestureActive = true
	f.stopTimerLocked()
}

// GestureEnded issues exactly one request, immediately, for the final
// viewport seen during or before the gesture.
func (f *Fetcher) GestureEnded() {
	f.mu.Lock()
	if !f.gestureActive || f.closed {
		f.mu.Unlock()
		return
	}
	f.gestureActive = false
	f.stopTimerLocked()
	f.pending = nil
	if f.last == nil {
		f.mu.Unlock()
		return
	}
	req := f.prepareLocked(*f.last, geo.OriginUser)
	f.mu.Unlock()
	f.dispatch(req)
}

// SetFilters replaces the pass-through filters and re-issues a request for
// the current viewport.
func (f *Fetcher) SetFilters(filters geo.Filters) {
	f.mu.Lock()
	f.filters = filters
	if f.closed || f.last == nil || f.gestureActive {
		f.mu.Unlock()
		return
	}
	f.stopTimerLocked()
	f.pending = nil
	req := f.prepareLocked(*f.last, geo.OriginProgrammatic)
	f.mu.Unlock()
	f.dispatch(req)
}

// Filters returns the current pass-through filters.
func (f *Fetcher) Filters() geo.Filters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters
}

// LatestSequence returns the sequence number of the most recently issued
// request, or 0.
func (f *Fetcher) LatestSequence() uint64 { return f.seq.Load() }

// LastRequest returns the most recently issued request.
func (f *Fetcher) LastRequest() (Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastIssued == nil {
		return Request{}, false
	}
	return *f.lastIssued, true
}

// Close cancels in-flight requests and waits for their goroutines.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.stopTimerLocked()
	f.mu.Unlock()

	f.baseCancel()
	f.wg.Wait()
}

func (f *Fetcher) resetTimerLocked() {
	f.stopTimerLocked()
	gen := f.timerGen
	f.timer = f.clock.AfterFunc(f.cfg.Debounce, func() { f.flush(gen) })
}

func (f *Fetcher) stopTimerLocked() {
	f.timerGen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Fetcher) flush(gen uint64) {
	f.mu.Lock()
	if gen != f.timerGen || f.closed || f.gestureActive || f.pending == nil {
		f.mu.Unlock()
		return
	}
	ev := *f.pending
	f.pending = nil
	f.timer = nil
	req := f.prepareLocked(ev.Viewport, ev.Origin)
	f.mu.Unlock()
	f.dispatch(req)
}

type prepared struct {
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
}

// prepareLocked assigns the next sequence number and cancels the previous
// request's context.  Mode and precision are computed from the viewport
// being issued.
func (f *Fetcher) prepareLocked(vp geo.Viewport, origin geo.Origin) prepared {
	req := Request{
		Viewport:  vp,
		Mode:      f.selector.SelectMode(vp.Zoom),
		Precision: fetchmode.ComputePrecision(vp.Zoom),
		Sequence:  f.seq.Add(1),
		Origin:    origin,
		Filters:   f.filters,
	}
	if f.cancelPrev != nil {
		f.cancelPrev()
	}
	ctx, cancel := context.WithTimeout(f.baseCtx, f.cfg.Timeout)
	f.cancelPrev = cancel
	f.lastIssued = &req
	f.wg.Add(1)
	return prepared{req: req, ctx: ctx, cancel: cancel}
}

func (f *Fetcher) dispatch(p prepared) {
	f.metrics.RequestIssued(p.req.Mode)
	f.logger.Debug("fetch issued",
		logging.Uint64("sequence", p.req.Sequence),
		logging.String("mode", string(p.req.Mode)),
		logging.Int("precision", p.req.Precision),
		logging.String("origin", string(p.req.Origin)))
	go f.run(p)
}

func (f *Fetcher) run(p prepared) {
	defer f.wg.Done()
	defer p.cancel()

	start := f.clock.Now()
	res, err := f.execute(p.ctx, p.req)
	res.Request = p.req
	res.Elapsed = f.clock.Now().Sub(start)

	f.applyMu.Lock()
	defer f.applyMu.Unlock()

	if p.req.Sequence != f.seq.Load() {
		f.metrics.ResponseObserved(p.req.Mode, OutcomeStale, res.Elapsed)
		f.logger.Debug("stale response discarded",
			logging.Uint64("sequence", p.req.Sequence),
			logging.Uint64("latest", f.seq.Load()))
		return
	}
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}

	if err != nil {
		f.metrics.ResponseObserved(p.req.Mode, OutcomeError, res.Elapsed)
		f.logger.Warn("spatial fetch failed",
			logging.Uint64("sequence", p.req.Sequence),
			logging.String("mode", string(p.req.Mode)),
			logging.Err(err))
		res = Result{
			Request:  p.req,
			Clusters: []geo.Cluster{},
			Entities: []geo.GeoEntity{},
			Err:      err,
			Elapsed:  res.Elapsed,
		}
	} else {
		f.metrics.ResponseObserved(p.req.Mode, OutcomeAccepted, res.Elapsed)
	}
	f.handler(res)
}

func (f *Fetcher) execute(ctx context.Context, req Request) (Result, error) {
	ctx, span := f.tracer.Start(ctx, "fetcher.fetch", trace.WithAttributes(
		attribute.String("mapsync.mode", string(req.Mode)),
		attribute.Int("mapsync.precision", req.Precision),
		attribute.Int64("mapsync.sequence", int64(req.Sequence)),
	))
	defer span.End()

	var (
		res Result
		err error
	)
	if req.Mode == geo.ModeClustered {
		res, err = f.fetchClustered(ctx, req)
	} else {
		res, err = f.fetchIndividual(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "spatial fetch failed")
	}
	return res, err
}

func (f *Fetcher) fetchIndividual(ctx context.Context, req Request) (Result, error) {
	page, err := f.svc.GetEntities(ctx, f.entityQuery(req))
	if err != nil {
		return Result{}, errors.ServiceError(err, "getEntities failed")
	}
	if page == nil {
		return Result{}, errors.New(errors.ErrCodeServiceError, "getEntities returned no page")
	}
	return Result{
		Clusters:   []geo.Cluster{},
		Entities:   nonNilEntities(page.Entities),
		TotalCount: page.TotalCount,
	}, nil
}

// fetchClustered issues getClusters and a best-effort getEntities
// concurrently.  Only a cluster failure fails the request.
func (f *Fetcher) fetchClustered(ctx context.Context, req Request) (Result, error) {
	var (
		clusters *geo.ClusterPage
		entities *geo.EntityPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := f.svc.GetClusters(gctx, geo.ClusterQuery{
			Polygon:   req.Viewport.Polygon(),
			Precision: req.Precision,
			Status:    f.cfg.Status,
			Limit:     f.cfg.ClusterLimit,
			Filters:   req.Filters,
		})
		if err != nil {
			return errors.ServiceError(err, "getClusters failed")
		}
		if page == nil {
			return errors.New(errors.ErrCodeServiceError, "getClusters returned no page")
		}
		clusters = page
		return nil
	})
	g.Go(func() error {
		page, err := f.svc.GetEntities(gctx, f.entityQuery(req))
		if err != nil {
			f.logger.Info("best-effort entity fetch failed",
				logging.Uint64("sequence", req.Sequence), logging.Err(err))
			return nil
		}
		entities = page
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Clusters:   clusters.Clusters,
		Entities:   []geo.GeoEntity{},
		TotalCount: clusters.TotalCount,
	}
	if res.Clusters == nil {
		res.Clusters = []geo.Cluster{}
	}
	if entities != nil {
		res.Entities = nonNilEntities(entities.Entities)
	}
	return res, nil
}

func (f *Fetcher) entityQuery(req Request) geo.EntityQuery {
	return geo.EntityQuery{
		Polygon: req.Viewport.Polygon(),
		Status:  f.cfg.Status,
		Limit:   f.cfg.ResultLimit,
		Filters: req.Filters,
	}
}

func nonNilEntities(in []geo.GeoEntity) []geo.GeoEntity {
	if in == nil {
		return []geo.GeoEntity{}
	}
	return in
}

//Personal.AI order the ending

// Package viewport normalizes camera-change notifications from the map widget
// into validated Viewport events and keeps the authoritative current
// viewport.
package viewport

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/clock"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// DefaultEchoWindow bounds how long after a programmatic move the widget's
// settle notification for that move is recognised as its echo.
const DefaultEchoWindow = 1500 * time.Millisecond

// Echo matching tolerances.
const (
	echoZoomTolerance   = 0.05
	echoCenterTolerance = 0.05 // fraction of the viewport span
)

// CameraChange is a raw notification from the map widget or from a
// programmatic camera request.
type CameraChange struct {
	Bounds geo.Bounds `json:"bounds"`
	Zoom   float64    `json:"zoom"`
	Origin geo.Origin `json:"origin"`
}

// Event is an accepted, canonical viewport change.
type Event struct {
	Viewport geo.Viewport `json:"viewport"`
	Origin   geo.Origin   `json:"origin"`
	At       time.Time    `json:"at"`
}

// Programmatic reports whether the event came from a programmatic request.
func (e Event) Programmatic() bool { return e.Origin == geo.OriginProgrammatic }

// Outcome classifies what Observe did with a change.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeEcho     Outcome = "echo"
	OutcomeInvalid  Outcome = "invalid"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(t *Tracker) { t.clock = clock.OrReal(c) } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithEchoWindow overrides DefaultEchoWindow.  Zero disables echo suppression.
func WithEchoWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.echoWindow = d
		}
	}
}

type pendingEcho struct {
	viewport geo.Viewport
	deadline time.Time
}

// Tracker is safe for concurrent use.  It performs no I/O.
type Tracker struct {
	mu         sync.RWMutex
	current    *geo.Viewport
	echo       *pendingEcho
	clock      clock.Clock
	logger     logging.Logger
	echoWindow time.Duration
}

// NewTracker constructs a Tracker with no current viewport.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:      clock.Real(),
		logger:     logging.NewNopLogger(),
		echoWindow: DefaultEchoWindow,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Observe validates change and, when accepted, makes it the current
// viewport.  A degenerate viewport returns an InvalidViewport error and
// leaves the previous viewport in place; an origin other than user or
// programmatic is rejected the same way with a BadRequest error.  The
// widget's echo of a recent programmatic move becomes the current viewport
// and is returned with OutcomeEcho.
func (t *Tracker) Observe(change CameraChange) (Event, Outcome, error) {
	origin := change.Origin
	if origin == "" {
		origin = geo.OriginUser
	}
	if !origin.Valid() {
		t.logger.Debug("camera change with unknown origin dropped", logging.String("origin", string(change.Origin)))
		return Event{}, OutcomeInvalid, errors.InvalidParam(fmt.Sprintf("unknown origin %q", change.Origin))
	}

	vp := geo.Viewport{Bounds: change.Bounds, Zoom: change.Zoom}
	if err := vp.Validate(); err != nil {
		t.logger.Debug("viewport dropped", logging.Err(err), logging.String("origin", string(origin)))
		return Event{}, OutcomeInvalid, err
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if origin == geo.OriginProgrammatic {
		if t.echoWindow > 0 {
			t.echo = &pendingEcho{viewport: vp, deadline: now.Add(t.echoWindow)}
		}
	} else if t.echo != nil {
		pending := t.echo
		t.echo = nil
		if !now.After(pending.deadline) && isEcho(pending.viewport, vp) {
			t.current = &vp
			t.logger.Debug("programmatic move echo swallowed", logging.Float64("zoom", vp.Zoom))
			return Event{Viewport: vp, Origin: origin, At: now}, OutcomeEcho, nil
		}
	}

	t.current = &vp
	return Event{Viewport: vp, Origin: origin, At: now}, OutcomeAccepted, nil
}

// Current returns the authoritative current viewport.
func (t *Tracker) Current() (geo.Viewport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return geo.Viewport{}, false
	}
	return *t.current, true
}

// CurrentZoom returns the zoom of the current viewport, or 0 when none.
func (t *Tracker) CurrentZoom() float64 {
	vp, _ := t.Current()
	return vp.Zoom
}

// CenteredOn derives a viewport centred on p at zoom, keeping the current
// viewport's aspect and scaling its span by 2^(currentZoom-zoom).  Without a
// current viewport it falls back to a one-degree span at zoom 10.
func (t *Tracker) CenteredOn(p geo.Point, zoom float64) geo.Viewport {
	height, width, fromZoom := 1.0, 1.0, 10.0
	if cur, ok := t.Current(); ok {
		height, width, fromZoom = cur.Height(), cur.Width(), cur.Zoom
	}
	scale := math.Pow(2, fromZoom-zoom)
	halfH := math.Min(height*scale/2, 90)
	halfW := math.Min(width*scale/2, 179)

	north := math.Min(p.Lat+halfH, 90)
	south := math.Max(p.Lat-halfH, -90)
	return geo.Viewport{
		Bounds: geo.Bounds{
			North: north,
			South: south,
			East:  wrapLng(p.Lng + halfW),
			West:  wrapLng(p.Lng - halfW),
		},
		Zoom: zoom,
	}
}

func isEcho(expected, got geo.Viewport) bool {
	if math.Abs(expected.Zoom-got.Zoom) > echoZoomTolerance {
		return false
	}
	ec, gc := expected.Center(), got.Center()
	latTol := math.Max(expected.Height(), got.Height()) * echoCenterTolerance
	lngTol := math.Max(expected.Width(), got.Width()) * echoCenterTolerance
	dLng := math.Abs(ec.Lng - gc.Lng)
	if dLng > 180 {
		dLng = 360 - dLng
	}
	return math.Abs(ec.Lat-gc.Lat) <= latTol && dLng <= lngTol
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

//Personal.AI order the ending

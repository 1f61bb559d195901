package handlers

import (
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/mapsync/internal/application/mapview"
	"github.com/turtacn/mapsync/internal/application/syncchannel"
	"github.com/turtacn/mapsync/internal/domain/render"
	"github.com/turtacn/mapsync/internal/domain/viewport"
	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// SSE event names.
const (
	EventVisibleSet = "visible-set"
	EventNotice     = "notice"
)

// MapEngine is the engine surface the HTTP host drives.
type MapEngine interface {
	HandleCameraChange(change viewport.CameraChange) error
	CenterOn(lat, lng, zoom float64) error
	CenterOnSelected(zoom float64) error
	GestureStarted(kind mapview.GestureKind) error
	GestureEnded()
	SetFilters(f geo.Filters)
	Select(id string) error
	ClearSelection()
	Snapshot() mapview.Snapshot
	RegisterListPanel(l syncchannel.Listener[*visibleset.VisibleSet]) (unregister func())
	Notices() <-chan mapview.Notice
}

// CenterRequest asks for a programmatic move.  With Selected set the camera
// centres on the selected entity and Lat and Lng are ignored.
type CenterRequest struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Zoom     float64  `json:"zoom"`
	Selected bool     `json:"selected"`
}

// GestureRequest names the gesture that started.
type GestureRequest struct {
	Kind mapview.GestureKind `json:"kind"`
}

// SelectionRequest selects one entity.
type SelectionRequest struct {
	ID string `json:"id"`
}

// AcceptedResponse acknowledges a change whose effect arrives asynchronously.
type AcceptedResponse struct {
	Status   string `json:"status"`
	Sequence uint64 `json:"sequence"`
}

// VisibleSetResponse is the list-panel view of the engine state.
type VisibleSetResponse struct {
	Sequence   uint64                 `json:"sequence"`
	Mode       geo.FetchMode          `json:"mode,omitempty"`
	Viewport   *geo.Viewport          `json:"viewport,omitempty"`
	Count      int                    `json:"count"`
	TotalCount int                    `json:"total_count"`
	Entities   *visibleset.VisibleSet `json:"entities"`
	SelectedID string                 `json:"selected_id,omitempty"`
}

// MarkersResponse is the map-widget view of the engine state.
type MarkersResponse struct {
	Sequence   uint64          `json:"sequence"`
	Mode       geo.FetchMode   `json:"mode,omitempty"`
	Precision  int             `json:"precision"`
	Markers    []render.Marker `json:"markers"`
	SelectedID string          `json:"selected_id,omitempty"`
}

// StreamPayload is the data of a visible-set SSE event.
type StreamPayload struct {
	Count    int                    `json:"count"`
	Entities *visibleset.VisibleSet `json:"entities"`
}

// MapHandler exposes a MapEngine over HTTP.
type MapHandler struct {
	engine MapEngine
	logger logging.Logger

	streamMu sync.Mutex
	// closed when a newer stream takes over the notice queue
	streamOwner chan struct{}
}

// NewMapHandler creates a MapHandler.
func NewMapHandler(engine MapEngine, logger logging.Logger) *MapHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MapHandler{engine: engine, logger: logger}
}

// Camera handles POST /api/v1/camera.
func (h *MapHandler) Camera(c *gin.Context) {
	var req viewport.CameraChange
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.HandleCameraChange(req); err != nil {
		writeAppError(c, err)
		return
	}
	h.accepted(c)
}

// Center handles POST /api/v1/camera/center.
func (h *MapHandler) Center(c *gin.Context) {
	var req CenterRequest
	if !bindJSON(c, &req) {
		return
	}
	var err error
	switch {
	case req.Selected:
		err = h.engine.CenterOnSelected(req.Zoom)
	case req.Lat == nil || req.Lng == nil:
		err = errors.InvalidParam("lat and lng are required")
	default:
		err = h.engine.CenterOn(*req.Lat, *req.Lng, req.Zoom)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	h.accepted(c)
}

// GestureStart handles POST /api/v1/gestures/start.
func (h *MapHandler) GestureStart(c *gin.Context) {
	var req GestureRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.GestureStarted(req.Kind); err != nil {
		writeAppError(c, err)
		return
	}
	noContent(c)
}

// GestureEnd handles POST /api/v1/gestures/end.
func (h *MapHandler) GestureEnd(c *gin.Context) {
	h.engine.GestureEnded()
	h.accepted(c)
}

// SetFilters handles PUT /api/v1/filters.
func (h *MapHandler) SetFilters(c *gin.Context) {
	var f geo.Filters
	if !bindJSON(c, &f) {
		return
	}
	h.engine.SetFilters(f)
	h.accepted(c)
}

// Select handles PUT /api/v1/selection.
func (h *MapHandler) Select(c *gin.Context) {
	var req SelectionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.Select(req.ID); err != nil {
		writeAppError(c, err)
		return
	}
	noContent(c)
}

// ClearSelection handles DELETE /api/v1/selection.
func (h *MapHandler) ClearSelection(c *gin.Context) {
	h.engine.ClearSelection()
	noContent(c)
}

// VisibleSet handles GET /api/v1/visible-set.
func (h *MapHandler) VisibleSet(c *gin.Context) {
	s := h.engine.Snapshot()
	c.JSON(http.StatusOK, VisibleSetResponse{
		Sequence:   s.Sequence,
		Mode:       s.Mode,
		Viewport:   s.Viewport,
		Count:      s.VisibleSet.Len(),
		TotalCount: s.TotalCount,
		Entities:   s.VisibleSet,
		SelectedID: s.SelectedID,
	})
}

// Markers handles GET /api/v1/markers.
func (h *MapHandler) Markers(c *gin.Context) {
	s := h.engine.Snapshot()
	c.JSON(http.StatusOK, MarkersResponse{
		Sequence:   s.Sequence,
		Mode:       s.Mode,
		Precision:  s.Precision,
		Markers:    s.Markers,
		SelectedID: s.SelectedID,
	})
}

// takeNotices makes the caller the only stream reading engine notices.  The
// returned channel is closed when a newer stream takes over.
func (h *MapHandler) takeNotices() (superseded <-chan struct{}, release func()) {
	h.streamMu.Lock()
	defer h.streamMu.Unlock()
	if h.streamOwner != nil {
		close(h.streamOwner)
	}
	owner := make(chan struct{})
	h.streamOwner = owner
	return owner, func() {
		h.streamMu.Lock()
		defer h.streamMu.Unlock()
		if h.streamOwner == owner {
			h.streamOwner = nil
		}
	}
}

// Stream handles GET /api/v1/visible-set/stream.  The connected client
// becomes the list-panel listener until it disconnects or another client
// connects.  Notices are forwarded on the same stream while it is the
// listener; the engine queue has one reader, so a superseded stream stops
// reading it.
func (h *MapHandler) Stream(c *gin.Context) {
	superseded, release := h.takeNotices()
	defer release()

	updates := make(chan *visibleset.VisibleSet, 1)
	unregister := h.engine.RegisterListPanel(func(v *visibleset.VisibleSet) {
		// Latest wins; a slow client never blocks delivery.
		for {
			select {
			case updates <- v:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})
	defer unregister()

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	log := h.logger.WithContext(c.Request.Context())
	log.Info("list panel stream connected")
	notices := h.engine.Notices()
	ctx := c.Request.Context()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case v := <-updates:
			c.SSEvent(EventVisibleSet, StreamPayload{Count: v.Len(), Entities: v})
			return true
		case <-superseded:
			notices, superseded = nil, nil
			log.Info("list panel stream superseded")
			return true
		case n, ok := <-notices:
			if !ok {
				return false
			}
			c.SSEvent(EventNotice, n)
			return true
		}
	})
	log.Info("list panel stream closed")
}

func (h *MapHandler) accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, AcceptedResponse{
		Status:   "accepted",
		Sequence: h.engine.Snapshot().Sequence,
	})
}

//Personal.AI order the ending

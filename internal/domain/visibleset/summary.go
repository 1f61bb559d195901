package visibleset

import (
	"time"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

// Summary is the compact description of one accepted visible set that is
// published to downstream consumers.
type Summary struct {
	SessionID string        `json:"session_id"`
	Sequence  uint64        `json:"sequence"`
	Mode      geo.FetchMode `json:"mode"`
	Precision int           `json:"precision"`
	Viewport  geo.Viewport  `json:"viewport"`
	IDs       []string      `json:"ids"`
	Count     int           `json:"count"`
	At        time.Time     `json:"at"`
}

// Summarize describes v as produced by the request identified by seq.
func Summarize(sessionID string, seq uint64, mode geo.FetchMode, precision int, vp geo.Viewport, v *VisibleSet, at time.Time) Summary {
	return Summary{
		SessionID: sessionID,
		Sequence:  seq,
		Mode:      mode,
		Precision: precision,
		Viewport:  vp,
		IDs:       v.IDs(),
		Count:     v.Len(),
		At:        at.UTC(),
	}
}

//Personal.AI order the ending

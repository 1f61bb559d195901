// Package fetchmode decides, from the zoom level alone, whether the map shows
// server-side clusters or individual listings, and how fine the server's
// clustering grid should be.
package fetchmode

import (
	"math"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

const (
	// DefaultThreshold is the zoom at and above which listings are fetched
	// individually.
	DefaultThreshold = 15.0

	// MinPrecision and MaxPrecision bound ComputePrecision.
	MinPrecision = 15
	MaxPrecision = 29
)

// Selector maps zoom to a FetchMode against a threshold fixed at
// construction.  There is no hysteresis.
type Selector struct {
	threshold float64
}

// NewSelector returns a Selector using threshold.  Non-positive or
// non-finite values fall back to DefaultThreshold.
func NewSelector(threshold float64) *Selector {
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		threshold = DefaultThreshold
	}
	return &Selector{threshold: threshold}
}

// Threshold returns the configured cut-over zoom.
func (s *Selector) Threshold() float64 { return s.threshold }

// SelectMode returns ModeClustered below the threshold and ModeIndividual at
// or above it.
func (s *Selector) SelectMode(zoom float64) geo.FetchMode {
	if zoom < s.threshold {
		return geo.ModeClustered
	}
	return geo.ModeIndividual
}

// ComputePrecision returns clamp(round(zoom)*2+2, 15, 29).  Non-finite input
// yields MinPrecision.
func ComputePrecision(zoom float64) int {
	if math.IsNaN(zoom) || math.IsInf(zoom, -1) {
		return MinPrecision
	}
	if math.IsInf(zoom, 1) {
		return MaxPrecision
	}
	p := math.Round(zoom)*2 + 2
	if p < MinPrecision {
		return MinPrecision
	}
	if p > MaxPrecision {
		return MaxPrecision
	}
	return int(p)
}

//Personal.AI order the ending

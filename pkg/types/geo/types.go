// Package geo defines the value types shared by every mapsync layer:
// geographic points and bounds, viewports, listing entities, server-side
// clusters and pass-through search filters.
package geo

import (
	"fmt"
	"math"

	geojson "github.com/paulmach/go.geojson"

	"github.com/turtacn/mapsync/pkg/errors"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite, in-range coordinate.
func (p Point) Valid() bool {
	return isFinite(p.Lat) && isFinite(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds is a geographic rectangle.  East < West denotes a rectangle that
// crosses the antimeridian.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CrossesAntimeridian reports whether the rectangle wraps across ±180°.
func (b Bounds) CrossesAntimeridian() bool { return b.East < b.West }

// Width returns the longitudinal span in degrees.
func (b Bounds) Width() float64 {
	if b.CrossesAntimeridian() {
		return 360 - b.West + b.East
	}
	return b.East - b.West
}

// Height returns the latitudinal span in degrees.
func (b Bounds) Height() float64 { return b.North - b.South }

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Point {
	lng := b.West + b.Width()/2
	if lng > 180 {
		lng -= 360
	}
	return Point{Lat: (b.North + b.South) / 2, Lng: lng}
}

// Contains reports whether p falls inside the rectangle (edges inclusive).
func (b Bounds) Contains(p Point) bool {
	if p.Lat < b.South || p.Lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Lng >= b.West || p.Lng <= b.East
	}
	return p.Lng >= b.West && p.Lng <= b.East
}

// Validate rejects degenerate rectangles: non-finite or out-of-range
// coordinates, north below south and zero area.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.North, b.South, b.East, b.West} {
		if !isFinite(v) {
			return errors.InvalidViewport("non-finite coordinate")
		}
	}
	if b.North > 90 || b.South < -90 || b.North < -90 || b.South > 90 {
		return errors.InvalidViewport("latitude out of range").
			WithDetail(fmt.Sprintf("north=%g south=%g", b.North, b.South))
	}
	if b.East > 180 || b.East < -180 || b.West > 180 || b.West < -180 {
		return errors.InvalidViewport("longitude out of range").
			WithDetail(fmt.Sprintf("east=%g west=%g", b.East, b.West))
	}
	if b.North < b.South {
		return errors.InvalidViewport("north is below south").
			WithDetail(fmt.Sprintf("north=%g south=%g", b.North, b.South))
	}
	if b.Height() == 0 || b.Width() == 0 {
		return errors.InvalidViewport("zero-area bounds")
	}
	return nil
}

// Ring returns the closed exterior ring of the rectangle in GeoJSON
// [lng, lat] order, first vertex repeated last.
func (b Bounds) Ring() [][]float64 {
	return [][]float64{
		{b.West, b.South},
		{b.East, b.South},
		{b.East, b.North},
		{b.West, b.North},
		{b.West, b.South},
	}
}

// Polygon returns the rectangle as a GeoJSON Polygon geometry.
func (b Bounds) Polygon() *geojson.Geometry {
	return geojson.NewPolygonGeometry([][][]float64{b.Ring()})
}

// Viewport is the map's visible rectangle plus its zoom level.  The JSON form
// is flat: {north, south, east, west, zoom}.
type Viewport struct {
	Bounds
	Zoom float64 `json:"zoom"`
}

// Validate checks the bounds and rejects negative or non-finite zoom.
func (v Viewport) Validate() error {
	if !isFinite(v.Zoom) || v.Zoom < 0 {
		return errors.New(errors.ErrCodeInvalidViewport, "invalid zoom level").
			WithDetail(fmt.Sprintf("zoom=%g", v.Zoom))
	}
	return v.Bounds.Validate()
}

// Origin says who moved the camera.
type Origin string

const (
	OriginUser         Origin = "user"
	OriginProgrammatic Origin = "programmatic"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool { return o == OriginUser || o == OriginProgrammatic }

// FetchMode selects the shape of the spatial query.
type FetchMode string

const (
	ModeClustered  FetchMode = "clustered"
	ModeIndividual FetchMode = "individual"
)

// GeoEntity is a single listing.  Values are treated as immutable once
// fetched; a later fetch supersedes rather than mutates them.
type GeoEntity struct {
	ID         string                 `json:"id"`
	Lat        float64                `json:"lat"`
	Lng        float64                `json:"lng"`
	Price      float64                `json:"price"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Location returns the entity position.
func (e GeoEntity) Location() Point { return Point{Lat: e.Lat, Lng: e.Lng} }

// Cluster is a server-computed aggregate of nearby entities.
type Cluster struct {
	Centroid       Point       `json:"centroid"`
	Count          int         `json:"count"`
	BoundingBox    *Bounds     `json:"bounding_box,omitempty"`
	Representative *GeoEntity  `json:"representative,omitempty"`
	Members        []GeoEntity `json:"members,omitempty"`
}

// IsSingle reports whether the cluster stands for exactly one entity and so
// renders like one.
func (c Cluster) IsSingle() bool { return c.Count == 1 && c.Representative != nil }

// Filters are search constraints supplied by the filter collaborator.  They
// are forwarded to the spatial service unmodified.
type Filters struct {
	MinPrice        *float64          `json:"min_price,omitempty"`
	MaxPrice        *float64          `json:"max_price,omitempty"`
	MinBedrooms     *int              `json:"min_bedrooms,omitempty"`
	Category        string            `json:"category,omitempty"`
	TransactionType string            `json:"transaction_type,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no constraint is set.
func (f Filters) IsZero() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.MinBedrooms == nil &&
		f.Category == "" && f.TransactionType == "" && len(f.Extra) == 0
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

//Personal.AI order the ending

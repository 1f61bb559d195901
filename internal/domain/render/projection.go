// Package render turns the current clusters and VisibleSet into marker
// descriptors for the map widget.  Marker keys are stable across rebuilds:
// entity markers are keyed by identity and cluster bubbles by precision plus
// centroid geohash.
package render

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

// centroidGeohashChars is roughly a 5m cell.
const centroidGeohashChars = 9

// MarkerKind distinguishes aggregate bubbles from single-listing price tags.
type MarkerKind string

const (
	KindCluster MarkerKind = "cluster"
	KindPrice   MarkerKind = "price"
)

// Marker is one renderable map marker.
type Marker struct {
	Key             string      `json:"key"`
	Kind            MarkerKind  `json:"kind"`
	Position        geo.Point   `json:"position"`
	Label           string      `json:"label"`
	AccessibleLabel string      `json:"accessible_label"`
	Count           int         `json:"count"`
	EntityID        string      `json:"entity_id,omitempty"`
	BoundingBox     *geo.Bounds `json:"bounding_box,omitempty"`
	Selected        bool        `json:"selected"`
}

// Input is everything a projection depends on.
type Input struct {
	Mode       geo.FetchMode
	Precision  int
	Clusters   []geo.Cluster
	VisibleSet *visibleset.VisibleSet
	SelectedID string
}

// Projection renders markers.  It holds no state besides the locale used for
// accessible labels and is safe for concurrent use.
type Projection struct {
	tag language.Tag
}

// NewProjection returns a Projection for locale tag.  An empty or
// unparseable tag means English.
func NewProjection(tag string) *Projection {
	t, err := language.Parse(tag)
	if tag == "" || err != nil {
		t = language.English
	}
	return &Projection{tag: t}
}

// EntityKey is the marker key of a single listing.
func EntityKey(id string) string { return "entity:" + id }

// ClusterKey is the marker key of an aggregate bubble.
func ClusterKey(precision int, centroid geo.Point) string {
	return fmt.Sprintf("cluster:%d:%s", precision,
		geohash.EncodeWithPrecision(centroid.Lat, centroid.Lng, centroidGeohashChars))
}

// Project applies the hard mode cut: Individual mode renders only price
// tags for the VisibleSet and ignores any clusters; Clustered mode renders
// bubbles for count>1 clusters and price tags for count==1 clusters only.
// Selection changes Selected and nothing else.
func (p *Projection) Project(in Input) []Marker {
	printer := message.NewPrinter(p.tag)
	seen := make(map[string]struct{})
	var markers []Marker

	add := func(m Marker) {
		if _, dup := seen[m.Key]; dup {
			return
		}
		seen[m.Key] = struct{}{}
		markers = append(markers, m)
	}

	switch in.Mode {
	case geo.ModeIndividual:
		if in.VisibleSet != nil {
			for _, e := range in.VisibleSet.Entities() {
				add(p.priceMarker(printer, e, in.SelectedID))
			}
		}
	case geo.ModeClustered:
		for _, c := range in.Clusters {
			if c.IsSingle() {
				add(p.priceMarker(printer, *c.Representative, in.SelectedID))
				continue
			}
			add(p.clusterMarker(printer, c, in.Precision, in.SelectedID))
		}
	}

	if markers == nil {
		return []Marker{}
	}
	return markers
}

func (p *Projection) priceMarker(printer *message.Printer, e geo.GeoEntity, selected string) Marker {
	return Marker{
		Key:             EntityKey(e.ID),
		Kind:            KindPrice,
		Position:        e.Location(),
		Label:           FormatPrice(e.Price),
		AccessibleLabel: printer.Sprintf("Listing at $%d", int64(math.Round(e.Price))),
		Count:           1,
		EntityID:        e.ID,
		Selected:        selected != "" && e.ID == selected,
	}
}

func (p *Projection) clusterMarker(printer *message.Printer, c geo.Cluster, precision int, selected string) Marker {
	m := Marker{
		Key:             ClusterKey(precision, c.Centroid),
		Kind:            KindCluster,
		Position:        c.Centroid,
		Label:           FormatCount(c.Count),
		AccessibleLabel: printer.Sprintf("%d listings", c.Count),
		Count:           c.Count,
		BoundingBox:     c.BoundingBox,
	}
	if selected != "" {
		for _, member := range c.Members {
			if member.ID == selected {
				m.Selected = true
				break
			}
		}
	}
	return m
}

//Personal.AI order the ending

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/pkg/types/geo"
)

func entity(id string, price float64) geo.GeoEntity {
	return geo.GeoEntity{ID: id, Lat: 37.75, Lng: -122.42, Price: price}
}

func clusteredInput() Input {
	x1 := entity("X1", 650_000)
	return Input{
		Mode:      geo.ModeClustered,
		Precision: 22,
		Clusters: []geo.Cluster{
			{Centroid: geo.Point{Lat: 37.71, Lng: -122.45}, Count: 50},
			{Centroid: x1.Location(), Count: 1, Representative: &x1},
			{Centroid: geo.Point{Lat: 37.78, Lng: -122.41}, Count: 1200,
				Members: []geo.GeoEntity{entity("M1", 1)}},
		},
		VisibleSet: visibleset.Build([]geo.GeoEntity{entity("A", 1), entity("B", 2), x1}, nil),
	}
}

func byKind(markers []Marker, kind MarkerKind) []Marker {
	var out []Marker
	for _, m := range markers {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestProject_ClusteredMode(t *testing.T) {
	p := NewProjection("en")
	markers := p.Project(clusteredInput())

	require.Len(t, markers, 3)
	bubbles := byKind(markers, KindCluster)
	prices := byKind(markers, KindPrice)
	require.Len(t, bubbles, 2)
	require.Len(t, prices, 1, "individual entities are not rendered in clustered mode")

	assert.Equal(t, "50", bubbles[0].Label)
	assert.Equal(t, "1.2K", bubbles[1].Label)
	assert.Equal(t, "1,200 listings", bubbles[1].AccessibleLabel)
	assert.True(t, strings.HasPrefix(bubbles[0].Key, "cluster:22:"))

	assert.Equal(t, EntityKey("X1"), prices[0].Key)
	assert.Equal(t, "$650K", prices[0].Label)
	assert.Equal(t, "Listing at $650,000", prices[0].AccessibleLabel)
}

func TestProject_IndividualModeIgnoresClusters(t *testing.T) {
	in := clusteredInput()
	in.Mode = geo.ModeIndividual

	markers := NewProjection("").Project(in)

	assert.Empty(t, byKind(markers, KindCluster))
	require.Len(t, markers, 3)
	assert.Equal(t, []string{"entity:A", "entity:B", "entity:X1"},
		[]string{markers[0].Key, markers[1].Key, markers[2].Key})
}

func TestProject_KeysStableAcrossRebuilds(t *testing.T) {
	p := NewProjection("en")
	first := p.Project(clusteredInput())
	second := p.Project(clusteredInput())

	for i := range first {
		assert.Equal(t, first[i].Key, second[i].Key)
	}

	moved := clusteredInput()
	moved.Precision = 24
	third := p.Project(moved)
	assert.NotEqual(t, first[0].Key, third[0].Key, "precision is part of a bubble key")
	assert.Equal(t, first[1].Key, third[1].Key, "entity keys ignore precision")
}

func TestProject_SelectionOnlyChangesVisuals(t *testing.T) {
	p := NewProjection("en")
	plain := p.Project(clusteredInput())

	in := clusteredInput()
	in.SelectedID = "X1"
	selected := p.Project(in)

	require.Len(t, selected, len(plain))
	for i := range plain {
		assert.Equal(t, plain[i].Key, selected[i].Key)
		assert.Equal(t, plain[i].Label, selected[i].Label)
	}
	assert.True(t, selected[1].Selected)
	assert.False(t, selected[0].Selected)

	in.SelectedID = "M1"
	assert.True(t, p.Project(in)[2].Selected, "bubble containing the selection is highlighted")
}

func TestProject_DuplicateSingleClustersCollapse(t *testing.T) {
	x := entity("X", 10)
	in := Input{
		Mode:      geo.ModeClustered,
		Precision: 20,
		Clusters: []geo.Cluster{
			{Centroid: x.Location(), Count: 1, Representative: &x},
			{Centroid: x.Location(), Count: 1, Representative: &x},
		},
	}
	assert.Len(t, NewProjection("en").Project(in), 1)
}

func TestProject_Empty(t *testing.T) {
	markers := NewProjection("en").Project(Input{Mode: geo.ModeIndividual})
	assert.NotNil(t, markers)
	assert.Empty(t, markers)
}

func TestClusterKey_GeohashCell(t *testing.T) {
	a := ClusterKey(22, geo.Point{Lat: 37.7749, Lng: -122.4194})
	b := ClusterKey(22, geo.Point{Lat: 37.7749, Lng: -122.4194})
	assert.Equal(t, a, b)
	assert.Equal(t, len("cluster:22:")+centroidGeohashChars, len(a))
}

//Personal.AI order the ending

package visibleset

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

func ent(id string, price float64) geo.GeoEntity {
	return geo.GeoEntity{ID: id, Lat: 37.7, Lng: -122.4, Price: price}
}

func single(e geo.GeoEntity) geo.Cluster {
	return geo.Cluster{Centroid: e.Location(), Count: 1, Representative: &e}
}

func assertNoDuplicates(t *testing.T, vs *VisibleSet) {
	t.Helper()
	seen := map[string]bool{}
	for _, id := range vs.IDs() {
		assert.False(t, seen[id], "duplicate identity %s", id)
		seen[id] = true
	}
}

func TestBuild_SingleClusterRepresentative(t *testing.T) {
	clusters := []geo.Cluster{
		{Centroid: geo.Point{Lat: 37.71, Lng: -122.45}, Count: 50},
		single(ent("X1", 650000)),
		{Centroid: geo.Point{Lat: 37.78, Lng: -122.41}, Count: 120},
	}
	individual := []geo.GeoEntity{ent("A", 1), ent("X1", 650000), ent("B", 2)}

	vs := Build(individual, clusters)

	assert.Equal(t, []string{"A", "X1", "B"}, vs.IDs())
	assertNoDuplicates(t, vs)
}

func TestBuild_RepresentativeAddedWhenAbsent(t *testing.T) {
	vs := Build([]geo.GeoEntity{ent("A", 1)}, []geo.Cluster{single(ent("X1", 5))})
	assert.Equal(t, []string{"A", "X1"}, vs.IDs())
}

func TestBuild_MemberAlsoFetchedIndividually(t *testing.T) {
	clusters := []geo.Cluster{{
		Count:   3,
		Members: []geo.GeoEntity{ent("M1", 1), ent("X2", 2), ent("M3", 3)},
	}}
	vs := Build([]geo.GeoEntity{ent("X2", 2)}, clusters)

	assert.Equal(t, []string{"X2", "M1", "M3"}, vs.IDs())
	assertNoDuplicates(t, vs)
}

func TestBuild_FirstSeenWinsNeverMerged(t *testing.T) {
	first := ent("D", 100)
	later := ent("D", 999)
	later.Attributes = map[string]interface{}{"beds": 3}

	vs := Build([]geo.GeoEntity{first}, []geo.Cluster{single(later)})

	got, ok := vs.Get("D")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Price)
	assert.Nil(t, got.Attributes)
}

func TestBuild_RepresentativesBeforeMembers(t *testing.T) {
	clusters := []geo.Cluster{
		{Count: 2, Members: []geo.GeoEntity{ent("M1", 1), ent("R2", 2)}},
		single(ent("R2", 2)),
	}
	vs := Build(nil, clusters)
	assert.Equal(t, []string{"R2", "M1"}, vs.IDs())
}

func TestBuild_SkipsEmptyIdentity(t *testing.T) {
	vs := Build([]geo.GeoEntity{{ID: ""}, ent("A", 1)}, nil)
	assert.Equal(t, []string{"A"}, vs.IDs())
}

func TestBuild_Empty(t *testing.T) {
	vs := Build(nil, nil)
	assert.Equal(t, 0, vs.Len())
	assert.Empty(t, vs.Entities())

	var nilSet *VisibleSet
	assert.Equal(t, 0, nilSet.Len())
	assert.False(t, nilSet.Contains("x"))
}

func TestBuild_Idempotent(t *testing.T) {
	individual := []geo.GeoEntity{ent("A", 1), ent("B", 2), ent("A", 3)}
	clusters := []geo.Cluster{single(ent("C", 4)), {Count: 2, Members: []geo.GeoEntity{ent("B", 2), ent("E", 5)}}}

	once := Build(individual, clusters)
	twice := FromEntities(once.Entities())
	again := Build(individual, clusters)

	assert.Equal(t, once.Entities(), twice.Entities())
	assert.Equal(t, once.Entities(), again.Entities())
}

func TestBuild_ManyOverlapsStayUnique(t *testing.T) {
	var individual []geo.GeoEntity
	var members []geo.GeoEntity
	for i := 0; i < 200; i++ {
		individual = append(individual, ent(fmt.Sprintf("E%d", i%50), float64(i)))
		members = append(members, ent(fmt.Sprintf("E%d", i%80), float64(i)))
	}
	vs := Build(individual, []geo.Cluster{{Count: len(members), Members: members}})

	assert.Equal(t, 80, vs.Len())
	assertNoDuplicates(t, vs)
}

func TestVisibleSet_EntitiesIsACopy(t *testing.T) {
	vs := Build([]geo.GeoEntity{ent("A", 1)}, nil)
	out := vs.Entities()
	out[0].ID = "mutated"
	assert.Equal(t, []string{"A"}, vs.IDs())
}

func TestVisibleSet_MarshalJSON(t *testing.T) {
	vs := Build([]geo.GeoEntity{ent("A", 1)}, nil)
	raw, err := json.Marshal(vs)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"A","lat":37.7,"lng":-122.4,"price":1}]`, string(raw))
}

func TestBuilder_ReplacesWholesale(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, 0, b.Current().Len())

	first := b.Rebuild([]geo.GeoEntity{ent("A", 1), ent("B", 2)}, nil)
	assert.Same(t, first, b.Current())

	second := b.Rebuild([]geo.GeoEntity{ent("C", 3)}, nil)
	assert.Equal(t, []string{"C"}, b.Current().IDs())
	assert.Equal(t, []string{"A", "B"}, first.IDs())
	assert.Same(t, second, b.Current())
}

//Personal.AI order the ending

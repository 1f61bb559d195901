// Package visibleset merges the listings returned by one accepted fetch into
// a single ordered collection with no repeated identity.
package visibleset

import (
	"encoding/json"
	"sync/atomic"

	"github.com/turtacn/mapsync/pkg/types/geo"
)

// VisibleSet is an immutable, identity-deduplicated, ordered list of
// entities.  The zero value is an empty set.
type VisibleSet struct {
	entities []geo.GeoEntity
	index    map[string]int
}

// Len returns the number of entities.
func (v *VisibleSet) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entities)
}

// Entities returns a copy of the entities in first-seen order.
func (v *VisibleSet) Entities() []geo.GeoEntity {
	if v == nil {
		return []geo.GeoEntity{}
	}
	out := make([]geo.GeoEntity, len(v.entities))
	copy(out, v.entities)
	return out
}

// IDs returns the identity keys in order.
func (v *VisibleSet) IDs() []string {
	if v == nil {
		return []string{}
	}
	ids := make([]string, len(v.entities))
	for i, e := range v.entities {
		ids[i] = e.ID
	}
	return ids
}

// Get looks up an entity by identity key.
func (v *VisibleSet) Get(id string) (geo.GeoEntity, bool) {
	if v == nil {
		return geo.GeoEntity{}, false
	}
	i, ok := v.index[id]
	if !ok {
		return geo.GeoEntity{}, false
	}
	return v.entities[i], true
}

// Contains reports whether id is present.
func (v *VisibleSet) Contains(id string) bool {
	_, ok := v.Get(id)
	return ok
}

// MarshalJSON encodes the set as a JSON array of entities.
func (v *VisibleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Entities())
}

// Build merges one fetch result.  Order of precedence:
//  1. every individually fetched entity,
//  2. the representative of each count==1 cluster,
//  3. the members of each cluster that exposes them.
//
// The first occurrence of an identity wins; later ones are dropped, never
// merged.  Entities without an identity key are skipped.
func Build(individual []geo.GeoEntity, clusters []geo.Cluster) *VisibleSet {
	vs := &VisibleSet{
		entities: make([]geo.GeoEntity, 0, len(individual)+len(clusters)),
		index:    make(map[string]int, len(individual)+len(clusters)),
	}
	for _, e := range individual {
		vs.add(e)
	}
	for _, c := range clusters {
		if c.IsSingle() {
			vs.add(*c.Representative)
		}
	}
	for _, c := range clusters {
		for _, m := range c.Members {
			vs.add(m)
		}
	}
	return vs
}

// FromEntities builds a set from an already ordered entity slice.
func FromEntities(entities []geo.GeoEntity) *VisibleSet {
	return Build(entities, nil)
}

func (v *VisibleSet) add(e geo.GeoEntity) {
	if e.ID == "" {
		return
	}
	if _, seen := v.index[e.ID]; seen {
		return
	}
	v.index[e.ID] = len(v.entities)
	v.entities = append(v.entities, e)
}

// Builder owns the current VisibleSet and swaps it wholesale on every
// rebuild.  Readers never observe a partially built set.
type Builder struct {
	current atomic.Pointer[VisibleSet]
}

// NewBuilder returns a Builder whose current set is empty.
func NewBuilder() *Builder {
	b := &Builder{}
	b.current.Store(Build(nil, nil))
	return b
}

// Rebuild replaces the current set with one built from the given result
// and returns it.
func (b *Builder) Rebuild(individual []geo.GeoEntity, clusters []geo.Cluster) *VisibleSet {
	vs := Build(individual, clusters)
	b.current.Store(vs)
	return vs
}

// Current returns the most recently built set.
func (b *Builder) Current() *VisibleSet { return b.current.Load() }

//Personal.AI order the ending

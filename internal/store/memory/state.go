package memory

import (
	"maps"
	"slices"

	"github.com/google/uuid"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	mappingmodels "termrepo/internal/mapping/models"
	sourcemodels "termrepo/internal/source/models"
	"termrepo/internal/store"
)

type memberKey struct {
	container store.ContainerRef
	kind      store.MemberKind
	id        int64
}

type refRow struct {
	seq int64
	ref *collectionmodels.Reference
}

// state holds immutable row values: writers always store a fresh copy, so
// clone only needs to copy the maps.
type state struct {
	seq         map[string]int64
	sources     map[int64]*sourcemodels.Source
	collections map[int64]*collectionmodels.Collection
	concepts    map[int64]*conceptmodels.Concept
	mappings    map[int64]*mappingmodels.Mapping
	members     map[memberKey]struct{}
	refs        map[uuid.UUID]refRow
}

func newState() *state {
	return &state{
		seq:         map[string]int64{},
		sources:     map[int64]*sourcemodels.Source{},
		collections: map[int64]*collectionmodels.Collection{},
		concepts:    map[int64]*conceptmodels.Concept{},
		mappings:    map[int64]*mappingmodels.Mapping{},
		members:     map[memberKey]struct{}{},
		refs:        map[uuid.UUID]refRow{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:         maps.Clone(s.seq),
		sources:     maps.Clone(s.sources),
		collections: maps.Clone(s.collections),
		concepts:    maps.Clone(s.concepts),
		mappings:    maps.Clone(s.mappings),
		members:     maps.Clone(s.members),
		refs:        maps.Clone(s.refs),
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func copySource(s *sourcemodels.Source) *sourcemodels.Source { return s.Clone() }

func copyCollection(c *collectionmodels.Collection) *collectionmodels.Collection { return c.Clone() }

func copyMapping(m *mappingmodels.Mapping) *mappingmodels.Mapping { return m.Clone() }

// copyConcept keeps locale ids, unlike Concept.Clone.
func copyConcept(c *conceptmodels.Concept) *conceptmodels.Concept {
	out := *c
	out.Entity = c.Entity.Copy()
	out.Names = slices.Clone(c.Names)
	out.Descriptions = slices.Clone(c.Descriptions)
	return &out
}

func copyReference(r *collectionmodels.Reference) *collectionmodels.Reference {
	out := *r
	out.ConceptIDs = slices.Clone(r.ConceptIDs)
	out.MappingIDs = slices.Clone(r.MappingIDs)
	return &out
}

func sortedIDs[T any](rows map[int64]T, keep func(T) bool) []int64 {
	var ids []int64
	for id, row := range rows {
		if keep(row) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/locale"
	mappingmodels "termrepo/internal/mapping/models"
	sourcemodels "termrepo/internal/source/models"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	"termrepo/pkg/platform/sentinel"
)

// tables is the store.Store view over one state.
type tables struct {
	st       *state
	now      func() time.Time
	readOnly bool
}

func (t *tables) Sources() store.Sources         { return sourceTable{t} }
func (t *tables) Collections() store.Collections { return collectionTable{t} }
func (t *tables) Concepts() store.Concepts       { return conceptTable{t} }
func (t *tables) Mappings() store.Mappings       { return mappingTable{t} }
func (t *tables) Memberships() store.Memberships { return membershipTable{t} }
func (t *tables) References() store.References   { return referenceTable{t} }

func (t *tables) writable() error {
	if t.readOnly {
		return fmt.Errorf("write outside transaction: %w", sentinel.ErrInvalidState)
	}
	return nil
}

// deleteContainer removes c and everything that cascades from it.
func (t *tables) deleteContainer(c store.ContainerRef) {
	for k := range t.st.members {
		if k.container == c {
			delete(t.st.members, k)
		}
	}
	if c.Kind == store.ContainerCollection {
		for id, row := range t.st.refs {
			if row.ref.CollectionID == c.ID {
				delete(t.st.refs, id)
			}
		}
		return
	}
	for id, m := range t.st.mappings {
		if m.ParentID == c.ID {
			t.deleteMapping(id)
		}
	}
	for id, cn := range t.st.concepts {
		if cn.ParentID == c.ID {
			t.deleteConcept(id)
		}
	}
}

func (t *tables) deleteConcept(id int64) {
	delete(t.st.concepts, id)
	t.forget(store.MemberConcept, id)
	for mid, m := range t.st.mappings {
		if m.FromConceptID == id {
			t.deleteMapping(mid)
			continue
		}
		if m.ToConceptID != nil && *m.ToConceptID == id {
			cp := copyMapping(m)
			cp.ToConceptID = nil
			t.st.mappings[mid] = cp
		}
	}
}

func (t *tables) deleteMapping(id int64) {
	delete(t.st.mappings, id)
	t.forget(store.MemberMapping, id)
}

func (t *tables) forget(kind store.MemberKind, id int64) {
	for k := range t.st.members {
		if k.kind == kind && k.id == id {
			delete(t.st.members, k)
		}
	}
}

type sourceTable struct{ *tables }

func (t sourceTable) conflicts(s *sourcemodels.Source) bool {
	for id, row := range t.st.sources {
		if id != s.ID && row.OwnerType == s.OwnerType && row.Owner == s.Owner &&
			row.Mnemonic == s.Mnemonic && row.Version == s.Version {
			return true
		}
	}
	return false
}

func (t sourceTable) Insert(_ context.Context, s *sourcemodels.Source) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.conflicts(s) {
		return fmt.Errorf("source %s/%s: %w", s.Mnemonic, s.Version, sentinel.ErrConflict)
	}
	s.ID = t.st.next("sources")
	t.st.sources[s.ID] = copySource(s)
	return nil
}

func (t sourceTable) Update(_ context.Context, s *sourcemodels.Source) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sources[s.ID]; !ok {
		return fmt.Errorf("source %d: %w", s.ID, sentinel.ErrNotFound)
	}
	if t.conflicts(s) {
		return fmt.Errorf("source %s/%s: %w", s.Mnemonic, s.Version, sentinel.ErrConflict)
	}
	t.st.sources[s.ID] = copySource(s)
	return nil
}

func (t sourceTable) Delete(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.sources[id]; !ok {
		return fmt.Errorf("source %d: %w", id, sentinel.ErrNotFound)
	}
	delete(t.st.sources, id)
	t.deleteContainer(store.SourceRef(id))
	return nil
}

func (t sourceTable) Get(_ context.Context, id int64) (*sourcemodels.Source, error) {
	s, ok := t.st.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %d: %w", id, sentinel.ErrNotFound)
	}
	return copySource(s), nil
}

func (t sourceTable) Family(_ context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*sourcemodels.Source, error) {
	ids := sortedIDs(t.st.sources, func(s *sourcemodels.Source) bool {
		return s.OwnerType == ownerType && s.Owner == owner && s.Mnemonic == mnemonic
	})
	out := make([]*sourcemodels.Source, 0, len(ids))
	for _, id := range ids {
		out = append(out, copySource(t.st.sources[id]))
	}
	return out, nil
}

func (t sourceTable) FindByURI(_ context.Context, uri string) (*sourcemodels.Source, error) {
	ids := sortedIDs(t.st.sources, func(s *sourcemodels.Source) bool { return s.URI == uri })
	if len(ids) == 0 {
		return nil, fmt.Errorf("source %s: %w", uri, sentinel.ErrNotFound)
	}
	return copySource(t.st.sources[ids[0]]), nil
}

type collectionTable struct{ *tables }

func (t collectionTable) conflicts(c *collectionmodels.Collection) bool {
	for id, row := range t.st.collections {
		if id != c.ID && row.OwnerType == c.OwnerType && row.Owner == c.Owner &&
			row.Mnemonic == c.Mnemonic && row.Version == c.Version {
			return true
		}
	}
	return false
}

func (t collectionTable) Insert(_ context.Context, c *collectionmodels.Collection) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.conflicts(c) {
		return fmt.Errorf("collection %s/%s: %w", c.Mnemonic, c.Version, sentinel.ErrConflict)
	}
	c.ID = t.st.next("collections")
	t.st.collections[c.ID] = copyCollection(c)
	return nil
}

func (t collectionTable) Update(_ context.Context, c *collectionmodels.Collection) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.collections[c.ID]; !ok {
		return fmt.Errorf("collection %d: %w", c.ID, sentinel.ErrNotFound)
	}
	if t.conflicts(c) {
		return fmt.Errorf("collection %s/%s: %w", c.Mnemonic, c.Version, sentinel.ErrConflict)
	}
	t.st.collections[c.ID] = copyCollection(c)
	return nil
}

func (t collectionTable) Delete(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.collections[id]; !ok {
		return fmt.Errorf("collection %d: %w", id, sentinel.ErrNotFound)
	}
	delete(t.st.collections, id)
	t.deleteContainer(store.CollectionRef(id))
	return nil
}

func (t collectionTable) Get(_ context.Context, id int64) (*collectionmodels.Collection, error) {
	c, ok := t.st.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %d: %w", id, sentinel.ErrNotFound)
	}
	return copyCollection(c), nil
}

func (t collectionTable) Family(_ context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*collectionmodels.Collection, error) {
	ids := sortedIDs(t.st.collections, func(c *collectionmodels.Collection) bool {
		return c.OwnerType == ownerType && c.Owner == owner && c.Mnemonic == mnemonic
	})
	out := make([]*collectionmodels.Collection, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyCollection(t.st.collections[id]))
	}
	return out, nil
}

func (t collectionTable) FindByURI(_ context.Context, uri string) (*collectionmodels.Collection, error) {
	ids := sortedIDs(t.st.collections, func(c *collectionmodels.Collection) bool { return c.URI == uri })
	if len(ids) == 0 {
		return nil, fmt.Errorf("collection %s: %w", uri, sentinel.ErrNotFound)
	}
	return copyCollection(t.st.collections[ids[0]]), nil
}

type conceptTable struct{ *tables }

func (t conceptTable) conflicts(c *conceptmodels.Concept) bool {
	for id, row := range t.st.concepts {
		if id != c.ID && row.ParentID == c.ParentID && row.Mnemonic == c.Mnemonic && row.Version == c.Version {
			return true
		}
	}
	return false
}

// stampLocales gives new locale rows an id and creation time.
func (t conceptTable) stampLocales(c *conceptmodels.Concept) {
	now := t.now()
	for _, texts := range [][]locale.LocalizedText{c.Names, c.Descriptions} {
		for i := range texts {
			if texts[i].ID == 0 {
				texts[i].ID = t.st.next("localized_texts")
			}
			if texts[i].CreatedAt.IsZero() {
				texts[i].CreatedAt = now
			}
		}
	}
}

func (t conceptTable) Insert(_ context.Context, c *conceptmodels.Concept) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.conflicts(c) {
		return fmt.Errorf("concept %s/%s: %w", c.Mnemonic, c.Version, sentinel.ErrConflict)
	}
	if _, ok := t.st.sources[c.ParentID]; !ok {
		return fmt.Errorf("concept parent %d: %w", c.ParentID, sentinel.ErrNotFound)
	}
	c.ID = t.st.next("concepts")
	t.stampLocales(c)
	t.st.concepts[c.ID] = copyConcept(c)
	return nil
}

func (t conceptTable) Update(_ context.Context, c *conceptmodels.Concept) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.concepts[c.ID]; !ok {
		return fmt.Errorf("concept %d: %w", c.ID, sentinel.ErrNotFound)
	}
	if t.conflicts(c) {
		return fmt.Errorf("concept %s/%s: %w", c.Mnemonic, c.Version, sentinel.ErrConflict)
	}
	t.stampLocales(c)
	t.st.concepts[c.ID] = copyConcept(c)
	return nil
}

func (t conceptTable) Delete(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.concepts[id]; !ok {
		return fmt.Errorf("concept %d: %w", id, sentinel.ErrNotFound)
	}
	t.deleteConcept(id)
	return nil
}

func (t conceptTable) Get(_ context.Context, id int64) (*conceptmodels.Concept, error) {
	c, ok := t.st.concepts[id]
	if !ok {
		return nil, fmt.Errorf("concept %d: %w", id, sentinel.ErrNotFound)
	}
	return copyConcept(c), nil
}

func (t conceptTable) GetMany(_ context.Context, ids []int64) ([]*conceptmodels.Concept, error) {
	out := make([]*conceptmodels.Concept, 0, len(ids))
	for _, id := range ids {
		if c, ok := t.st.concepts[id]; ok {
			out = append(out, copyConcept(c))
		}
	}
	return out, nil
}

func (t conceptTable) list(keep func(*conceptmodels.Concept) bool) []*conceptmodels.Concept {
	ids := sortedIDs(t.st.concepts, keep)
	out := make([]*conceptmodels.Concept, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyConcept(t.st.concepts[id]))
	}
	return out
}

func (t conceptTable) Family(_ context.Context, parentID int64, mnemonic string) ([]*conceptmodels.Concept, error) {
	return t.list(func(c *conceptmodels.Concept) bool { return c.ParentID == parentID && c.Mnemonic == mnemonic }), nil
}

func (t conceptTable) FindByURI(_ context.Context, uri string) ([]*conceptmodels.Concept, error) {
	return t.list(func(c *conceptmodels.Concept) bool { return c.URI == uri }), nil
}

func (t conceptTable) Heads(_ context.Context, parentID int64) ([]*conceptmodels.Concept, error) {
	return t.list(func(c *conceptmodels.Concept) bool { return c.ParentID == parentID && c.IsHead() }), nil
}

type mappingTable struct{ *tables }

func (t mappingTable) conflicts(m *mappingmodels.Mapping) bool {
	for id, row := range t.st.mappings {
		if id != m.ID && row.ParentID == m.ParentID && row.Mnemonic == m.Mnemonic && row.Version == m.Version {
			return true
		}
	}
	return false
}

func (t mappingTable) Insert(_ context.Context, m *mappingmodels.Mapping) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.conflicts(m) {
		return fmt.Errorf("mapping %s/%s: %w", m.Mnemonic, m.Version, sentinel.ErrConflict)
	}
	if _, ok := t.st.concepts[m.FromConceptID]; !ok {
		return fmt.Errorf("mapping from concept %d: %w", m.FromConceptID, sentinel.ErrNotFound)
	}
	m.ID = t.st.next("mappings")
	t.st.mappings[m.ID] = copyMapping(m)
	return nil
}

func (t mappingTable) Update(_ context.Context, m *mappingmodels.Mapping) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.mappings[m.ID]; !ok {
		return fmt.Errorf("mapping %d: %w", m.ID, sentinel.ErrNotFound)
	}
	if t.conflicts(m) {
		return fmt.Errorf("mapping %s/%s: %w", m.Mnemonic, m.Version, sentinel.ErrConflict)
	}
	t.st.mappings[m.ID] = copyMapping(m)
	return nil
}

func (t mappingTable) Delete(_ context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.mappings[id]; !ok {
		return fmt.Errorf("mapping %d: %w", id, sentinel.ErrNotFound)
	}
	t.deleteMapping(id)
	return nil
}

func (t mappingTable) Get(_ context.Context, id int64) (*mappingmodels.Mapping, error) {
	m, ok := t.st.mappings[id]
	if !ok {
		return nil, fmt.Errorf("mapping %d: %w", id, sentinel.ErrNotFound)
	}
	return copyMapping(m), nil
}

func (t mappingTable) GetMany(_ context.Context, ids []int64) ([]*mappingmodels.Mapping, error) {
	out := make([]*mappingmodels.Mapping, 0, len(ids))
	for _, id := range ids {
		if m, ok := t.st.mappings[id]; ok {
			out = append(out, copyMapping(m))
		}
	}
	return out, nil
}

func (t mappingTable) list(keep func(*mappingmodels.Mapping) bool) []*mappingmodels.Mapping {
	ids := sortedIDs(t.st.mappings, keep)
	out := make([]*mappingmodels.Mapping, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyMapping(t.st.mappings[id]))
	}
	return out
}

func (t mappingTable) Family(_ context.Context, parentID int64, mnemonic string) ([]*mappingmodels.Mapping, error) {
	return t.list(func(m *mappingmodels.Mapping) bool { return m.ParentID == parentID && m.Mnemonic == mnemonic }), nil
}

func (t mappingTable) FindByURI(_ context.Context, uri string) ([]*mappingmodels.Mapping, error) {
	return t.list(func(m *mappingmodels.Mapping) bool { return m.URI == uri }), nil
}

func (t mappingTable) Heads(_ context.Context, parentID int64) ([]*mappingmodels.Mapping, error) {
	return t.list(func(m *mappingmodels.Mapping) bool { return m.ParentID == parentID && m.IsHead() }), nil
}

func (t mappingTable) HeadsFrom(_ context.Context, parentID int64, conceptIDs []int64) ([]*mappingmodels.Mapping, error) {
	return t.list(func(m *mappingmodels.Mapping) bool {
		return m.ParentID == parentID && m.IsHead() && slices.Contains(conceptIDs, m.FromConceptID)
	}), nil
}

type membershipTable struct{ *tables }

func (t membershipTable) Add(_ context.Context, c store.ContainerRef, kind store.MemberKind, ids ...int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, id := range ids {
		t.st.members[memberKey{container: c, kind: kind, id: id}] = struct{}{}
	}
	return nil
}

func (t membershipTable) Remove(_ context.Context, c store.ContainerRef, kind store.MemberKind, ids ...int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, id := range ids {
		delete(t.st.members, memberKey{container: c, kind: kind, id: id})
	}
	return nil
}

func (t membershipTable) Members(_ context.Context, c store.ContainerRef, kind store.MemberKind) ([]int64, error) {
	var ids []int64
	for k := range t.st.members {
		if k.container == c && k.kind == kind {
			ids = append(ids, k.id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t membershipTable) ContainersOf(_ context.Context, kind store.MemberKind, memberID int64) ([]store.ContainerRef, error) {
	var out []store.ContainerRef
	for k := range t.st.members {
		if k.kind == kind && k.id == memberID {
			out = append(out, k.container)
		}
	}
	slices.SortFunc(out, func(a, b store.ContainerRef) int {
		if a.Kind != b.Kind {
			if a.Kind < b.Kind {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (t membershipTable) Copy(_ context.Context, from, to store.ContainerRef) error {
	if err := t.writable(); err != nil {
		return err
	}
	for k := range t.st.members {
		if k.container == from {
			t.st.members[memberKey{container: to, kind: k.kind, id: k.id}] = struct{}{}
		}
	}
	return nil
}

func (t membershipTable) Clear(_ context.Context, c store.ContainerRef) error {
	if err := t.writable(); err != nil {
		return err
	}
	for k := range t.st.members {
		if k.container == c {
			delete(t.st.members, k)
		}
	}
	return nil
}

func (t membershipTable) Forget(_ context.Context, kind store.MemberKind, memberID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.forget(kind, memberID)
	return nil
}

type referenceTable struct{ *tables }

func (t referenceTable) Insert(_ context.Context, r *collectionmodels.Reference) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.collections[r.CollectionID]; !ok {
		return fmt.Errorf("reference collection %d: %w", r.CollectionID, sentinel.ErrNotFound)
	}
	for _, row := range t.st.refs {
		if row.ref.CollectionID == r.CollectionID && row.ref.Expression == r.Expression {
			return fmt.Errorf("reference %s: %w", r.Expression, sentinel.ErrConflict)
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, exists := t.st.refs[r.ID]; exists {
		return fmt.Errorf("reference %s: %w", r.ID, sentinel.ErrConflict)
	}
	t.st.refs[r.ID] = refRow{seq: t.st.next("collection_references"), ref: copyReference(r)}
	return nil
}

func (t referenceTable) Get(_ context.Context, id uuid.UUID) (*collectionmodels.Reference, error) {
	row, ok := t.st.refs[id]
	if !ok {
		return nil, fmt.Errorf("reference %s: %w", id, sentinel.ErrNotFound)
	}
	return copyReference(row.ref), nil
}

func (t referenceTable) ListByCollection(_ context.Context, collectionID int64) ([]*collectionmodels.Reference, error) {
	var rows []refRow
	for _, row := range t.st.refs {
		if row.ref.CollectionID == collectionID {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b refRow) int { return int(a.seq - b.seq) })
	out := make([]*collectionmodels.Reference, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyReference(row.ref))
	}
	return out, nil
}

func (t referenceTable) DeleteByExpressions(_ context.Context, collectionID int64, exprs []string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, row := range t.st.refs {
		if row.ref.CollectionID == collectionID && slices.Contains(exprs, row.ref.Expression) {
			delete(t.st.refs, id)
			n++
		}
	}
	return n, nil
}

func (t referenceTable) DeleteByCollection(_ context.Context, collectionID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, row := range t.st.refs {
		if row.ref.CollectionID == collectionID {
			delete(t.st.refs, id)
		}
	}
	return nil
}

// Package store declares the persistence contract shared by the services.
// Implementations live in store/memory and store/postgres.
//
// All methods return sentinel.ErrNotFound for missing rows and
// sentinel.ErrConflict when a unique constraint rejects a write.
package store

import (
	"context"

	"github.com/google/uuid"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	mappingmodels "termrepo/internal/mapping/models"
	sourcemodels "termrepo/internal/source/models"
	"termrepo/internal/versioning"
)

// ContainerKind distinguishes sources from collections in membership sets.
type ContainerKind string

const (
	ContainerSource     ContainerKind = "source"
	ContainerCollection ContainerKind = "collection"
)

// MemberKind distinguishes concept rows from mapping rows in membership sets.
type MemberKind string

const (
	MemberConcept MemberKind = "concept"
	MemberMapping MemberKind = "mapping"
)

// ContainerRef identifies one source or collection row.
type ContainerRef struct {
	Kind ContainerKind
	ID   int64
}

func SourceRef(id int64) ContainerRef     { return ContainerRef{Kind: ContainerSource, ID: id} }
func CollectionRef(id int64) ContainerRef { return ContainerRef{Kind: ContainerCollection, ID: id} }

// Sources persists source rows.
type Sources interface {
	Insert(ctx context.Context, s *sourcemodels.Source) error
	Update(ctx context.Context, s *sourcemodels.Source) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*sourcemodels.Source, error)
	// Family returns every row of a source family ordered by id.
	Family(ctx context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*sourcemodels.Source, error)
	FindByURI(ctx context.Context, uri string) (*sourcemodels.Source, error)
}

// Collections persists collection rows.
type Collections interface {
	Insert(ctx context.Context, c *collectionmodels.Collection) error
	Update(ctx context.Context, c *collectionmodels.Collection) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*collectionmodels.Collection, error)
	Family(ctx context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*collectionmodels.Collection, error)
	FindByURI(ctx context.Context, uri string) (*collectionmodels.Collection, error)
}

// Concepts persists concept rows together with their owned names and descriptions.
type Concepts interface {
	// Insert assigns the row id and fresh ids to every owned locale.
	Insert(ctx context.Context, c *conceptmodels.Concept) error
	// Update replaces the row and its owned locales.
	Update(ctx context.Context, c *conceptmodels.Concept) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*conceptmodels.Concept, error)
	GetMany(ctx context.Context, ids []int64) ([]*conceptmodels.Concept, error)
	Family(ctx context.Context, parentID int64, mnemonic string) ([]*conceptmodels.Concept, error)
	// FindByURI returns rows whose stored URI equals uri exactly.
	FindByURI(ctx context.Context, uri string) ([]*conceptmodels.Concept, error)
	// Heads returns the HEAD rows of parentID ordered by id.
	Heads(ctx context.Context, parentID int64) ([]*conceptmodels.Concept, error)
}

// Mappings persists mapping rows.
type Mappings interface {
	Insert(ctx context.Context, m *mappingmodels.Mapping) error
	Update(ctx context.Context, m *mappingmodels.Mapping) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*mappingmodels.Mapping, error)
	GetMany(ctx context.Context, ids []int64) ([]*mappingmodels.Mapping, error)
	Family(ctx context.Context, parentID int64, mnemonic string) ([]*mappingmodels.Mapping, error)
	FindByURI(ctx context.Context, uri string) ([]*mappingmodels.Mapping, error)
	Heads(ctx context.Context, parentID int64) ([]*mappingmodels.Mapping, error)
	// HeadsFrom returns HEAD mappings of parentID whose from concept is one of conceptIDs.
	HeadsFrom(ctx context.Context, parentID int64, conceptIDs []int64) ([]*mappingmodels.Mapping, error)
}

// Memberships persists the concept/mapping membership sets of containers.
type Memberships interface {
	Add(ctx context.Context, c ContainerRef, kind MemberKind, ids ...int64) error
	Remove(ctx context.Context, c ContainerRef, kind MemberKind, ids ...int64) error
	Members(ctx context.Context, c ContainerRef, kind MemberKind) ([]int64, error)
	ContainersOf(ctx context.Context, kind MemberKind, memberID int64) ([]ContainerRef, error)
	// Copy adds every member of from to to.
	Copy(ctx context.Context, from, to ContainerRef) error
	// Clear empties both membership sets of c.
	Clear(ctx context.Context, c ContainerRef) error
	// Forget removes memberID from every container.
	Forget(ctx context.Context, kind MemberKind, memberID int64) error
}

// References persists collection references.
type References interface {
	Insert(ctx context.Context, r *collectionmodels.Reference) error
	Get(ctx context.Context, id uuid.UUID) (*collectionmodels.Reference, error)
	// ListByCollection returns references ordered by creation.
	ListByCollection(ctx context.Context, collectionID int64) ([]*collectionmodels.Reference, error)
	// DeleteByExpressions removes references whose expression is literally one of exprs.
	DeleteByExpressions(ctx context.Context, collectionID int64, exprs []string) (int, error)
	DeleteByCollection(ctx context.Context, collectionID int64) error
}

// Store groups the tables visible inside one unit of work.
type Store interface {
	Sources() Sources
	Collections() Collections
	Concepts() Concepts
	Mappings() Mappings
	Memberships() Memberships
	References() References
}

// Repository runs units of work against a Store.
type Repository interface {
	// RunInTx runs fn in a transaction. Any error from fn aborts every write fn made.
	RunInTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error
	// Read runs fn against committed state without a write transaction.
	Read(ctx context.Context, fn func(ctx context.Context, st Store) error) error
	Close() error
}

package models

import (
	"time"

	"github.com/google/uuid"

	"termrepo/internal/expression"
)

// ReferenceExistsMessage is reported when a reference's versionless form is already present.
const ReferenceExistsMessage = "Concept or Mapping reference name must be unique in a collection."

// Reference is an expression held by one collection row.
//
// Invariants:
//   - (Expression, CollectionID) is unique
//   - no two references of a collection share a versionless form
type Reference struct {
	ID             uuid.UUID `json:"id"`
	Expression     string    `json:"expression"`
	CollectionID   int64     `json:"collection_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastResolvedAt time.Time `json:"last_resolved_at"`

	// Resolved rows; populated by resolution, never persisted.
	ConceptIDs []int64 `json:"-"`
	MappingIDs []int64 `json:"-"`
}

// NewReference builds an unsaved reference for collectionID.
func NewReference(expr string, collectionID int64, now time.Time) *Reference {
	return &Reference{
		ID:             uuid.New(),
		Expression:     expr,
		CollectionID:   collectionID,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastResolvedAt: now,
	}
}

// WithoutVersion is the uniqueness key of the reference inside its collection.
func (r *Reference) WithoutVersion() string {
	return expression.WithoutVersion(r.Expression)
}

// Type reports whether the reference addresses concepts or mappings.
func (r *Reference) Type() (expression.Kind, bool) {
	return expression.KindOf(r.Expression)
}

// CopyTo returns a new reference with the same expression owned by collectionID.
func (r *Reference) CopyTo(collectionID int64, now time.Time) *Reference {
	return NewReference(r.Expression, collectionID, now)
}

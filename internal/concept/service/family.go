package service

import (
	"context"
	"errors"

	"termrepo/internal/concept/models"
	"termrepo/internal/locale"
	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

// family binds concept rows to the version lifecycle inside one transaction.
type family struct {
	st store.Store
}

func (f family) Insert(ctx context.Context, c *models.Concept) error {
	return f.st.Concepts().Insert(ctx, c)
}

func (f family) Update(ctx context.Context, c *models.Concept) error {
	return f.st.Concepts().Update(ctx, c)
}

func (f family) Versions(ctx context.Context, c *models.Concept) ([]*models.Concept, error) {
	return f.st.Concepts().Family(ctx, c.ParentID, c.Mnemonic)
}

// Validate loads the parent's validation schema before running the model rules.
func (f family) Validate(ctx context.Context, c *models.Concept) error {
	if c.ParentID != 0 {
		parent, err := f.st.Sources().Get(ctx, c.ParentID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.WithField(dErrors.CodeValidation, "parent", "Parent resource cannot be None.")
		case err != nil:
			return err
		}
		c.ParentSchema = parent.CustomValidationSchema
	}
	return c.Validate()
}

func (f family) Attach(ctx context.Context, c *models.Concept) error {
	return f.st.Memberships().Add(ctx, store.SourceRef(c.ParentID), store.MemberConcept, c.ID)
}

func (f family) Clone(c *models.Concept) *models.Concept { return c.Clone() }

func (f family) Mirror(head, c *models.Concept) {
	head.ConceptClass = c.ConceptClass
	head.Datatype = c.Datatype
	head.ExternalID = c.ExternalID
	head.PublicAccess = c.PublicAccess
	head.Names = locale.CloneAll(c.Names)
	head.Descriptions = locale.CloneAll(c.Descriptions)
	if c.Released != nil {
		r := *c.Released
		head.Released = &r
	}
}

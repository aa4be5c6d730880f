package service

import (
	"context"

	"termrepo/internal/collection/models"
	"termrepo/internal/store"
)

// family binds collection rows to the version lifecycle inside one transaction.
type family struct {
	st store.Store
}

func (f family) Insert(ctx context.Context, c *models.Collection) error {
	return f.st.Collections().Insert(ctx, c)
}

func (f family) Update(ctx context.Context, c *models.Collection) error {
	return f.st.Collections().Update(ctx, c)
}

func (f family) Versions(ctx context.Context, c *models.Collection) ([]*models.Collection, error) {
	return f.st.Collections().Family(ctx, c.OwnerType, c.Owner, c.Mnemonic)
}

func (f family) Validate(_ context.Context, c *models.Collection) error {
	return c.Validate()
}

// Attach is a no-op: collections have no parent container.
func (f family) Attach(context.Context, *models.Collection) error { return nil }

func (f family) Clone(c *models.Collection) *models.Collection { return c.Clone() }

// Mirror is a no-op: HEAD is the editable row and versions are snapshots of it.
func (f family) Mirror(_, _ *models.Collection) {}

package service

import (
	"context"

	"termrepo/internal/source/models"
	"termrepo/internal/store"
)

// family binds source rows to the version lifecycle inside one transaction.
type family struct {
	st store.Store
}

func (f family) Insert(ctx context.Context, s *models.Source) error {
	return f.st.Sources().Insert(ctx, s)
}

func (f family) Update(ctx context.Context, s *models.Source) error {
	return f.st.Sources().Update(ctx, s)
}

func (f family) Versions(ctx context.Context, s *models.Source) ([]*models.Source, error) {
	return f.st.Sources().Family(ctx, s.OwnerType, s.Owner, s.Mnemonic)
}

func (f family) Validate(_ context.Context, s *models.Source) error {
	return s.Validate()
}

// Attach is a no-op: sources have no parent container.
func (f family) Attach(context.Context, *models.Source) error { return nil }

func (f family) Clone(s *models.Source) *models.Source { return s.Clone() }

// Mirror is a no-op: HEAD is the editable row and versions are snapshots of it.
func (f family) Mirror(_, _ *models.Source) {}

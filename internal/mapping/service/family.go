package service

import (
	"context"
	"errors"

	"termrepo/internal/mapping/models"
	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

const (
	duplicateInternalMessage = "Parent, map_type, from_concept, to_concept must be unique."
	duplicateExternalMessage = "Parent, map_type, from_concept, to_source, to_concept_code must be unique."
	fromParentMessage        = "Mapping's from concept must belong to the mapping's parent source."
)

// family binds mapping rows to the version lifecycle inside one transaction.
type family struct {
	st store.Store
}

func (f family) Insert(ctx context.Context, m *models.Mapping) error {
	return f.st.Mappings().Insert(ctx, m)
}

func (f family) Update(ctx context.Context, m *models.Mapping) error {
	return f.st.Mappings().Update(ctx, m)
}

func (f family) Versions(ctx context.Context, m *models.Mapping) ([]*models.Mapping, error) {
	return f.st.Mappings().Family(ctx, m.ParentID, m.Mnemonic)
}

// Validate runs the model rules and then the rules that need the store:
// endpoints exist, the from concept shares the mapping's source, and no
// other mapping family of the source carries the same triple.
func (f family) Validate(ctx context.Context, m *models.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var errs dErrors.Collector
	from, err := f.st.Concepts().Get(ctx, m.FromConceptID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		errs.Add("from_concept", "Concept does not exist.")
	case err != nil:
		return err
	case from.ParentID != m.ParentID:
		errs.Add("from_concept", fromParentMessage)
	}
	if m.ToConceptID != nil {
		if _, err := f.st.Concepts().Get(ctx, *m.ToConceptID); errors.Is(err, sentinel.ErrNotFound) {
			errs.Add("to_concept", "Concept does not exist.")
		} else if err != nil {
			return err
		}
	}
	if m.ToSourceID != nil {
		if _, err := f.st.Sources().Get(ctx, *m.ToSourceID); errors.Is(err, sentinel.ErrNotFound) {
			errs.Add("to_source", "Source does not exist.")
		} else if err != nil {
			return err
		}
	}
	if err := errs.Err(); err != nil {
		return err
	}

	heads, err := f.st.Mappings().HeadsFrom(ctx, m.ParentID, []int64{m.FromConceptID})
	if err != nil {
		return err
	}
	for _, h := range heads {
		if m.Mnemonic != "" && h.Mnemonic == m.Mnemonic {
			continue
		}
		if h.MapType != m.MapType {
			continue
		}
		switch {
		case m.IsInternal() && h.IsInternal() && *h.ToConceptID == *m.ToConceptID:
			return dErrors.WithField(dErrors.CodeValidation, dErrors.NonFieldKey, duplicateInternalMessage)
		case !m.IsInternal() && !h.IsInternal() && h.ToSourceID != nil &&
			*h.ToSourceID == *m.ToSourceID && h.ToConceptCode == m.ToConceptCode:
			return dErrors.WithField(dErrors.CodeValidation, dErrors.NonFieldKey, duplicateExternalMessage)
		}
	}
	return nil
}

func (f family) Attach(ctx context.Context, m *models.Mapping) error {
	return f.st.Memberships().Add(ctx, store.SourceRef(m.ParentID), store.MemberMapping, m.ID)
}

func (f family) Clone(m *models.Mapping) *models.Mapping { return m.Clone() }

func (f family) Mirror(head, m *models.Mapping) {
	c := m.Clone()
	head.MapType = c.MapType
	head.FromConceptID = c.FromConceptID
	head.ToConceptID = c.ToConceptID
	head.ToSourceID = c.ToSourceID
	head.ToConceptCode = c.ToConceptCode
	head.ToConceptName = c.ToConceptName
	head.ExternalID = c.ExternalID
	head.PublicAccess = c.PublicAccess
	if c.Released != nil {
		head.Released = c.Released
	}
}

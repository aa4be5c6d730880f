package reference

import (
	"context"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
)

type nameKey struct {
	locale string
	name   string
}

// CheckNameUniqueness reports whether concept c may join the collection id
// without two selected names sharing a locale. Names are compared against the
// concepts of the collection family's HEAD, c's own family excluded.
func (e *Engine) CheckNameUniqueness(ctx context.Context, collectionID int64, c *conceptmodels.Concept, sel conceptmodels.NameSelector) error {
	return e.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		_, head, err := collectionHead(ctx, st, collectionID)
		if err != nil {
			return err
		}
		return checkNameUniqueness(ctx, st, head, c, sel)
	})
}

func checkNameUniqueness(ctx context.Context, st store.Store, head *collectionmodels.Collection, c *conceptmodels.Concept, sel conceptmodels.NameSelector) error {
	names := c.NamesMatching(sel)
	if len(names) == 0 {
		return nil
	}
	fail := dErrors.WithField(dErrors.CodeValidation, "names", sel.CollectionMessage())

	taken := make(map[nameKey]struct{}, len(names))
	for _, n := range names {
		k := nameKey{locale: n.Locale, name: n.Name}
		if _, dup := taken[k]; dup {
			return fail
		}
		taken[k] = struct{}{}
	}

	ids, err := st.Memberships().Members(ctx, store.CollectionRef(head.ID), store.MemberConcept)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	members, err := st.Concepts().GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, other := range members {
		if other.ParentID == c.ParentID && other.Mnemonic == c.Mnemonic {
			continue
		}
		for _, n := range other.NamesMatching(sel) {
			if _, clash := taken[nameKey{locale: n.Locale, name: n.Name}]; clash {
				return fail
			}
		}
	}
	return nil
}

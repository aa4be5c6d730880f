package reference

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	pstrings "termrepo/pkg/platform/strings"
)

// DeleteResult lists the rows removed from the collection HEAD's membership.
type DeleteResult struct {
	ConceptIDs []int64
	MappingIDs []int64
	// References is the number of reference rows removed.
	References int
}

// DeleteReferences removes exprs from the HEAD of the family of collection
// collectionID. Reference rows are matched by literal expression; the rows
// each expression resolves to leave the HEAD's membership. Versions keep
// their references.
func (e *Engine) DeleteReferences(ctx context.Context, collectionID int64, exprs []string, user string) (result *DeleteResult, err error) {
	ctx, span := e.tracer.Start(ctx, "reference.DeleteReferences", trace.WithAttributes(
		attribute.Int64("collection_id", collectionID),
		attribute.Int("expressions", len(exprs)),
	))
	defer func() { endSpan(span, err) }()

	if user == "" {
		return nil, dErrors.WithField(dErrors.CodeMissingActor, "updated_by", "Must specify which user is attempting to delete references.")
	}
	exprs = pstrings.DedupeAndTrim(exprs)
	if len(exprs) == 0 {
		return &DeleteResult{}, nil
	}

	err = e.lockedWrite(ctx, collectionID, func(ctx context.Context, st store.Store) error {
		_, head, err := collectionHead(ctx, st, collectionID)
		if err != nil {
			return err
		}
		result = &DeleteResult{}
		for _, expr := range exprs {
			res, err := resolve(ctx, st, expr)
			if err != nil {
				if dErrors.CodeOf(err) == dErrors.CodeInternal {
					return err
				}
				continue
			}
			result.ConceptIDs = append(result.ConceptIDs, res.conceptIDs()...)
			result.MappingIDs = append(result.MappingIDs, res.mappingIDs()...)
		}

		ref := store.CollectionRef(head.ID)
		if len(result.ConceptIDs) > 0 {
			if err := st.Memberships().Remove(ctx, ref, store.MemberConcept, result.ConceptIDs...); err != nil {
				return err
			}
		}
		if len(result.MappingIDs) > 0 {
			if err := st.Memberships().Remove(ctx, ref, store.MemberMapping, result.MappingIDs...); err != nil {
				return err
			}
		}
		n, err := st.References().DeleteByExpressions(ctx, head.ID, exprs)
		if err != nil {
			return err
		}
		result.References = n
		return touch(ctx, st, head, user, e.now())
	})
	if err != nil {
		return nil, err
	}

	e.metrics.AddReferencesDeleted(result.References)
	e.logger.Info("references deleted",
		zap.Int64("collection_id", collectionID),
		zap.Int("references", result.References),
		zap.Int("concepts", len(result.ConceptIDs)),
		zap.Int("mappings", len(result.MappingIDs)),
		zap.String("user", user),
	)
	return result, nil
}

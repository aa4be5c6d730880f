package reference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	pstrings "termrepo/pkg/platform/strings"
)

// BulkResult reports the outcome of a bulk add. An expression appears either
// in Added or as a key of Errors.
type BulkResult struct {
	Added  []*collectionmodels.Reference
	Errors map[string]error
}

// Expressions returns the accepted expressions in input order.
func (r *BulkResult) Expressions() []string {
	out := make([]string, 0, len(r.Added))
	for _, ref := range r.Added {
		out = append(out, ref.Expression)
	}
	return out
}

// FieldErrors renders Errors as expression → messages.
func (r *BulkResult) FieldErrors() map[string][]string {
	out := make(map[string][]string, len(r.Errors))
	for expr, err := range r.Errors {
		for _, msgs := range dErrors.FieldErrors(err) {
			out[expr] = append(out[expr], msgs...)
		}
	}
	return out
}

var uniqueNameSelectors = []conceptmodels.NameSelector{conceptmodels.FullySpecified, conceptmodels.Preferred}

// AddReferencesInBulk adds exprs to the collection row collectionID and to
// the HEAD of its family. Expressions that fail are reported per expression
// and never abort the others; only store failures fail the call.
func (e *Engine) AddReferencesInBulk(ctx context.Context, collectionID int64, exprs []string, user string) (result *BulkResult, err error) {
	ctx, span := e.tracer.Start(ctx, "reference.AddReferencesInBulk", trace.WithAttributes(
		attribute.Int64("collection_id", collectionID),
		attribute.Int("expressions", len(exprs)),
	))
	defer func() { endSpan(span, err) }()

	if user == "" {
		return nil, dErrors.WithField(dErrors.CodeMissingActor, "updated_by", "Must specify which user is attempting to add references.")
	}
	start := time.Now()
	defer e.metrics.ObserveBulkAdd(start)

	input := pstrings.DedupeAndTrim(exprs)
	err = e.lockedWrite(ctx, collectionID, func(ctx context.Context, st store.Store) error {
		result = &BulkResult{Errors: make(map[string]error)}
		return e.addInBulk(ctx, st, collectionID, input, user, result)
	})
	if err != nil {
		e.logger.Warn("bulk add failed", zap.Int64("collection_id", collectionID), zap.Error(err))
		return nil, err
	}

	e.metrics.AddReferencesAdded(len(result.Added))
	for _, rerr := range result.Errors {
		e.metrics.IncReferenceError(string(dErrors.CodeOf(rerr)))
	}
	span.SetAttributes(attribute.Int("added", len(result.Added)), attribute.Int("rejected", len(result.Errors)))
	e.logger.Info("references added",
		zap.Int64("collection_id", collectionID),
		zap.Int("added", len(result.Added)),
		zap.Int("rejected", len(result.Errors)),
		zap.String("user", user),
	)
	return result, nil
}

func (e *Engine) addInBulk(ctx context.Context, st store.Store, collectionID int64, input []string, user string, result *BulkResult) error {
	self, head, err := collectionHead(ctx, st, collectionID)
	if err != nil {
		return err
	}

	present, err := versionlessSet(ctx, st, head.ID)
	if err != nil {
		return err
	}
	selfLiteral, err := literalSet(ctx, st, self.ID)
	if err != nil {
		return err
	}
	headLiteral := selfLiteral
	if self.ID != head.ID {
		if headLiteral, err = literalSet(ctx, st, head.ID); err != nil {
			return err
		}
	}

	now := e.now()
	for _, expr := range input {
		ref := collectionmodels.NewReference(expr, self.ID, now)
		key := ref.WithoutVersion()
		if _, dup := present[key]; dup {
			result.Errors[expr] = dErrors.WithField(dErrors.CodeReferenceExists, expr, collectionmodels.ReferenceExistsMessage)
			continue
		}

		res, err := resolve(ctx, st, expr)
		if err != nil {
			if dErrors.CodeOf(err) == dErrors.CodeInternal {
				return err
			}
			result.Errors[expr] = err
			continue
		}
		if head.IsOpenMRS() {
			if err := checkConcepts(ctx, st, head, res); err != nil {
				if dErrors.CodeOf(err) == dErrors.CodeInternal {
					return err
				}
				result.Errors[expr] = err
				continue
			}
		}

		if err := addMembers(ctx, st, self.ID, res); err != nil {
			return err
		}
		if self.ID != head.ID {
			if err := addMembers(ctx, st, head.ID, res); err != nil {
				return err
			}
		}
		if _, held := selfLiteral[expr]; !held {
			if err := st.References().Insert(ctx, ref); err != nil {
				return store.Translate(err, "reference "+expr)
			}
			selfLiteral[expr] = struct{}{}
		}
		if self.ID != head.ID {
			if _, held := headLiteral[expr]; !held {
				if err := st.References().Insert(ctx, ref.CopyTo(head.ID, now)); err != nil {
					return store.Translate(err, "reference "+expr)
				}
				headLiteral[expr] = struct{}{}
			}
		}

		ref.ConceptIDs, ref.MappingIDs = res.conceptIDs(), res.mappingIDs()
		present[key] = struct{}{}
		result.Added = append(result.Added, ref)
	}

	if len(result.Added) == 0 {
		return nil
	}
	if err := touch(ctx, st, self, user, now); err != nil {
		return err
	}
	if self.ID != head.ID {
		return touch(ctx, st, head, user, now)
	}
	return nil
}

func checkConcepts(ctx context.Context, st store.Store, head *collectionmodels.Collection, res *Resolution) error {
	for _, c := range res.Concepts {
		for _, sel := range uniqueNameSelectors {
			if err := checkNameUniqueness(ctx, st, head, c, sel); err != nil {
				return err
			}
		}
	}
	return nil
}

func addMembers(ctx context.Context, st store.Store, collectionID int64, res *Resolution) error {
	ref := store.CollectionRef(collectionID)
	if len(res.Concepts) > 0 {
		if err := st.Memberships().Add(ctx, ref, store.MemberConcept, res.conceptIDs()...); err != nil {
			return err
		}
	}
	if len(res.Mappings) > 0 {
		if err := st.Memberships().Add(ctx, ref, store.MemberMapping, res.mappingIDs()...); err != nil {
			return err
		}
	}
	return nil
}

// versionlessSet returns the versionless forms of the references of collectionID.
func versionlessSet(ctx context.Context, st store.Store, collectionID int64) (map[string]struct{}, error) {
	refs, err := st.References().ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		out[r.WithoutVersion()] = struct{}{}
	}
	return out, nil
}

func literalSet(ctx context.Context, st store.Store, collectionID int64) (map[string]struct{}, error) {
	refs, err := st.References().ListByCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		out[r.Expression] = struct{}{}
	}
	return out, nil
}

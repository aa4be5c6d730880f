package reference

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	conceptservice "termrepo/internal/concept/service"
	"termrepo/internal/expression"
	"termrepo/internal/store"
)

// ExpressionInput is a reference addition request. Concepts and Mappings
// hold explicit expressions, or ["*"] to take every child of URI matching
// SearchTerm.
type ExpressionInput struct {
	Expressions []string
	Concepts    []string
	Mappings    []string
	URI         string
	SearchTerm  string
}

// AddExpressions expands in into expressions and adds them in bulk. With
// cascade, the HEAD mappings from every concept expression are added as well,
// unless the input already names the same mapping family.
func (e *Engine) AddExpressions(ctx context.Context, collectionID int64, in ExpressionInput, hostURL, user string, cascade bool) (result *BulkResult, err error) {
	ctx, span := e.tracer.Start(ctx, "reference.AddExpressions", trace.WithAttributes(
		attribute.Int64("collection_id", collectionID),
		attribute.Bool("cascade", cascade),
	))
	defer func() { endSpan(span, err) }()

	exprs, err := e.expand(ctx, in, hostURL)
	if err != nil {
		return nil, err
	}
	if cascade {
		related, err := e.cascadeMappings(ctx, exprs)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, related...)
	}
	return e.AddReferencesInBulk(ctx, collectionID, exprs, user)
}

func (e *Engine) expand(ctx context.Context, in ExpressionInput, hostURL string) ([]string, error) {
	concepts, mappings := in.Concepts, in.Mappings

	g, ctx := errgroup.WithContext(ctx)
	if expression.IsAll(in.Concepts) {
		g.Go(func() error {
			var err error
			concepts, err = e.lister.ListChildren(ctx, ChildQuery{
				HostURL: hostURL, URI: in.URI, Kind: expression.KindConcept, SearchTerm: in.SearchTerm,
			})
			return err
		})
	}
	if expression.IsAll(in.Mappings) {
		g.Go(func() error {
			var err error
			mappings, err = e.lister.ListChildren(ctx, ChildQuery{
				HostURL: hostURL, URI: in.URI, Kind: expression.KindMapping, SearchTerm: in.SearchTerm,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(in.Expressions)+len(concepts)+len(mappings))
	out = append(out, in.Expressions...)
	out = append(out, concepts...)
	out = append(out, mappings...)
	return out, nil
}

// cascadeMappings returns the HEAD URIs of the mappings leaving the concepts
// named in exprs. Unresolvable concept expressions contribute nothing.
func (e *Engine) cascadeMappings(ctx context.Context, exprs []string) ([]string, error) {
	conceptExprs, mappingExprs := expression.Split(exprs)
	if len(conceptExprs) == 0 {
		return nil, nil
	}
	skip := make(map[string]struct{}, len(mappingExprs))
	for _, m := range expression.Versionless(mappingExprs) {
		skip[m] = struct{}{}
	}

	var out []string
	err := e.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		for _, expr := range conceptExprs {
			res, err := resolve(ctx, st, expr)
			if err != nil {
				continue
			}
			for _, c := range res.Concepts {
				related, err := conceptservice.UnidirectionalMappings(ctx, st, c)
				if err != nil {
					return err
				}
				for _, m := range related {
					key := expression.WithoutVersion(m.URI)
					if _, seen := skip[key]; seen {
						continue
					}
					skip[key] = struct{}{}
					out = append(out, m.URI)
				}
			}
		}
		return nil
	})
	return out, err
}

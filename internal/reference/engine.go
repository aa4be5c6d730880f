// Package reference resolves collection reference expressions and applies
// bulk reference changes to collections.
//
// Every change to a collection's references is made against the HEAD row of
// the collection family under the family lock, so concurrent bulk adds on one
// collection are serialised.
package reference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	collectionmodels "termrepo/internal/collection/models"
	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/expression"
	mappingmodels "termrepo/internal/mapping/models"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

const tracerName = "termrepo/internal/reference"

// Engine applies reference changes to collections.
type Engine struct {
	repo    store.Repository
	locker  lock.Locker
	lister  ChildLister
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLocker sets the locker. It must be the same locker the collection
// service uses, or version snapshots may interleave with bulk adds.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLister sets the source of children for "*" selections.
func WithLister(l ChildLister) Option {
	return func(e *Engine) {
		e.lister = l
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New constructs an Engine. Without WithLister, children are listed from repo.
func New(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = lock.NewSharded()
	}
	if e.lister == nil {
		e.lister = NewStoreLister(repo)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Resolution is the set of rows an expression points at.
type Resolution struct {
	Expression string
	Kind       expression.Kind
	Concepts   []*conceptmodels.Concept
	Mappings   []*mappingmodels.Mapping
}

// Empty reports whether nothing was resolved.
func (r *Resolution) Empty() bool {
	return len(r.Concepts) == 0 && len(r.Mappings) == 0
}

func (r *Resolution) conceptIDs() []int64 {
	ids := make([]int64, 0, len(r.Concepts))
	for _, c := range r.Concepts {
		ids = append(ids, c.ID)
	}
	return ids
}

func (r *Resolution) mappingIDs() []int64 {
	ids := make([]int64, 0, len(r.Mappings))
	for _, m := range r.Mappings {
		ids = append(ids, m.ID)
	}
	return ids
}

// Resolve validates expr and returns the rows whose URI equals it. Concept
// rows take precedence over mapping rows.
func (e *Engine) Resolve(ctx context.Context, expr string) (*Resolution, error) {
	ctx, span := e.tracer.Start(ctx, "reference.Resolve", trace.WithAttributes(attribute.String("expression", expr)))
	defer span.End()

	var res *Resolution
	err := e.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		res, err = resolve(ctx, st, expr)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func resolve(ctx context.Context, st store.Store, expr string) (*Resolution, error) {
	if err := expression.Validate(expr); err != nil {
		return nil, err
	}
	concepts, err := st.Concepts().FindByURI(ctx, expr)
	if err != nil {
		return nil, err
	}
	if len(concepts) > 0 {
		return &Resolution{Expression: expr, Kind: expression.KindConcept, Concepts: concepts}, nil
	}
	mappings, err := st.Mappings().FindByURI(ctx, expr)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		return &Resolution{Expression: expr, Kind: expression.KindMapping, Mappings: mappings}, nil
	}
	return nil, dErrors.WithField(dErrors.CodeUnresolvableExpression, "detail", expression.InvalidMessage)
}

// collectionHead loads the row id and the HEAD row of its family.
func collectionHead(ctx context.Context, st store.Store, id int64) (self, head *collectionmodels.Collection, err error) {
	self, err = st.Collections().Get(ctx, id)
	if err != nil {
		return nil, nil, store.Translate(err, "collection")
	}
	if self.IsHead() {
		return self, self, nil
	}
	rows, err := st.Collections().Family(ctx, self.OwnerType, self.Owner, self.Mnemonic)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range rows {
		if r.Version == versioning.HEAD {
			return self, r, nil
		}
	}
	return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "collection family "+self.HeadURI()+" has no HEAD")
}

// lockedWrite takes the family lock of collection id and runs fn in a transaction.
func (e *Engine) lockedWrite(ctx context.Context, id int64, fn func(ctx context.Context, st store.Store) error) error {
	var key string
	err := e.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		c, err := st.Collections().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "collection")
		}
		key = c.LockKey()
		return nil
	})
	if err != nil {
		return err
	}
	release, err := e.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return e.repo.RunInTx(ctx, fn)
}

func touch(ctx context.Context, st store.Store, c *collectionmodels.Collection, user string, now time.Time) error {
	c.UpdatedBy = user
	c.UpdatedAt = now
	return store.Translate(st.Collections().Update(ctx, c), "collection")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Package service manages mapping families and renders their endpoints.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"termrepo/internal/mapping/models"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

// Service orchestrates mapping lifecycle operations.
type Service struct {
	repo    store.Repository
	locker  lock.Locker
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) lifecycle(st store.Store) *versioning.Lifecycle[*models.Mapping] {
	return versioning.New[*models.Mapping](family{st: st}, s.now)
}

func (s *Service) write(ctx context.Context, key string, fn func(ctx context.Context, st store.Store) error) error {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.RunInTx(ctx, fn)
}

// resolveParent points m at the HEAD row of its parent source.
func (s *Service) resolveParent(ctx context.Context, m *models.Mapping) error {
	if m.ParentID == 0 {
		return nil
	}
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		parent, err := st.Sources().Get(ctx, m.ParentID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.WithField(dErrors.CodeValidation, "parent", "Parent resource cannot be None.")
		}
		if err != nil {
			return err
		}
		if !parent.IsHead() {
			rows, err := st.Sources().Family(ctx, parent.OwnerType, parent.Owner, parent.Mnemonic)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if r.IsHead() {
					parent = r
				}
			}
		}
		m.ParentID = parent.ID
		m.ParentURI = parent.URI
		return nil
	})
}

// Create persists a new mapping family. The mapping's mnemonic becomes the
// id of its first version.
func (s *Service) Create(ctx context.Context, m *models.Mapping, user string) (*models.Mapping, error) {
	if err := s.resolveParent(ctx, m); err != nil {
		return nil, err
	}
	m.Mnemonic = ""
	err := s.write(ctx, m.LockKey(), func(ctx context.Context, st store.Store) error {
		return s.lifecycle(st).PersistNew(ctx, m, user)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionsCreated(m.Kind())
	s.logger.Info("mapping created", zap.String("uri", m.URI), zap.String("user", user))
	return m, nil
}

// NewVersion commits edited as the next version of its family.
func (s *Service) NewVersion(ctx context.Context, edited *models.Mapping, user string) (*models.Mapping, error) {
	if edited.Mnemonic == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "mapping has no family; create it first")
	}
	next := edited.Clone()
	next.Detach()
	next.Comment = edited.Comment
	if err := s.resolveParent(ctx, next); err != nil {
		return nil, err
	}
	err := s.write(ctx, next.LockKey(), func(ctx context.Context, st store.Store) error {
		return s.lifecycle(st).PersistClone(ctx, next, user, "")
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionsCreated(next.Kind())
	s.logger.Info("mapping version created",
		zap.String("uri", next.URI), zap.String("version", next.Version), zap.String("user", user))
	return next, nil
}

// Retire creates a retired version of the family containing id.
func (s *Service) Retire(ctx context.Context, id int64, user, comment string) (*models.Mapping, error) {
	return s.transition(ctx, id, user, comment, true)
}

// Unretire creates an active version of the family containing id.
func (s *Service) Unretire(ctx context.Context, id int64, user, comment string) (*models.Mapping, error) {
	return s.transition(ctx, id, user, comment, false)
}

func (s *Service) transition(ctx context.Context, id int64, user, comment string, retire bool) (*models.Mapping, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var next *models.Mapping
	err = s.write(ctx, m.LockKey(), func(ctx context.Context, st store.Store) error {
		lc := s.lifecycle(st)
		var err error
		if retire {
			next, err = lc.Retire(ctx, m, user, comment)
		} else {
			next, err = lc.Unretire(ctx, m, user, comment)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRetirement(m.Kind(), retire)
	s.metrics.IncVersionsCreated(m.Kind())
	return next, nil
}

// DeleteVersion removes a non-HEAD version from every container and deletes it.
func (s *Service) DeleteVersion(ctx context.Context, id int64) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.IsHead() {
		return dErrors.WithField(dErrors.CodeValidation, "version", "Cannot delete the HEAD version.")
	}
	return s.write(ctx, m.LockKey(), func(ctx context.Context, st store.Store) error {
		if err := st.Memberships().Forget(ctx, store.MemberMapping, id); err != nil {
			return err
		}
		return store.Translate(st.Mappings().Delete(ctx, id), "mapping")
	})
}

// Get returns a mapping row by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Mapping, error) {
	var m *models.Mapping
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		m, err = st.Mappings().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "mapping")
	}
	return m, nil
}

func (s *Service) query(ctx context.Context, id int64, fn func(ctx context.Context, lc *versioning.Lifecycle[*models.Mapping], m *models.Mapping) error) error {
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		m, err := st.Mappings().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "mapping")
		}
		return fn(ctx, s.lifecycle(st), m)
	})
}

// Head returns the HEAD row of the family containing id.
func (s *Service) Head(ctx context.Context, id int64) (*models.Mapping, error) {
	var head *models.Mapping
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Mapping], m *models.Mapping) error {
		var err error
		head, err = lc.Head(ctx, m)
		return err
	})
	return head, err
}

// LatestVersion returns the latest version of the family containing id.
func (s *Service) LatestVersion(ctx context.Context, id int64) (*models.Mapping, error) {
	var latest *models.Mapping
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Mapping], m *models.Mapping) error {
		var err error
		latest, err = lc.LatestVersion(ctx, m)
		return err
	})
	return latest, err
}

// NumVersions counts the versions of the family, HEAD excluded.
func (s *Service) NumVersions(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Mapping], m *models.Mapping) error {
		var err error
		n, err = lc.NumVersions(ctx, m)
		return err
	})
	return n, err
}

// Versions lists every row of the family, HEAD included, oldest first.
func (s *Service) Versions(ctx context.Context, id int64) ([]*models.Mapping, error) {
	var out []*models.Mapping
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Mapping], m *models.Mapping) error {
		var err error
		out, err = lc.Versions(ctx, m)
		return err
	})
	return out, err
}

// Describe resolves both endpoints of the mapping with id. Parts that
// cannot be resolved are left nil.
func (s *Service) Describe(ctx context.Context, id int64) (*models.Description, error) {
	var d *models.Description
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		m, err := st.Mappings().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "mapping")
		}
		d, err = describe(ctx, st, m)
		return err
	})
	return d, err
}

func describe(ctx context.Context, st store.Store, m *models.Mapping) (*models.Description, error) {
	d := &models.Description{MapType: m.MapType}

	from, err := conceptEndpoint(ctx, st, m.FromConceptID)
	if err != nil {
		return nil, err
	}
	d.From = from

	switch {
	case m.ToConceptID != nil:
		to, err := conceptEndpoint(ctx, st, *m.ToConceptID)
		if err != nil {
			return nil, err
		}
		if m.ToConceptName != "" {
			to.ConceptName = ptr(m.ToConceptName)
		}
		d.To = to
	case m.ToSourceID != nil:
		src, err := st.Sources().Get(ctx, *m.ToSourceID)
		switch {
		case err == nil:
			d.To.SourceURI = ptr(src.URI)
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, err
		}
		d.To.ConceptCode = nonEmpty(m.ToConceptCode)
		d.To.ConceptName = nonEmpty(m.ToConceptName)
	}
	return d, nil
}

func conceptEndpoint(ctx context.Context, st store.Store, id int64) (models.Endpoint, error) {
	c, err := st.Concepts().Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Endpoint{}, nil
	}
	if err != nil {
		return models.Endpoint{}, err
	}
	return models.Endpoint{
		ConceptID:   ptr(c.ID),
		ConceptCode: ptr(c.Mnemonic),
		ConceptName: nonEmpty(c.DisplayName()),
		SourceURI:   nonEmpty(c.ParentURI),
	}, nil
}

func ptr[T any](v T) *T { return &v }

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

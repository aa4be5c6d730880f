// Package service manages concept families: creation, content versions,
// retirement and the mappings that originate from a concept.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"termrepo/internal/concept/models"
	mappingmodels "termrepo/internal/mapping/models"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

// Service orchestrates concept lifecycle operations.
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

func (s *Service) lifecycle(st store.Store) *versioning.Lifecycle[*models.Concept] {
	return versioning.New[*models.Concept](family{st: st}, s.now)
}

func (s *Service) write(ctx context.Context, key string, fn func(ctx context.Context, st store.Store) error) error {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.RunInTx(ctx, fn)
}

// resolveParent points c at the HEAD row of its parent source.
func (s *Service) resolveParent(ctx context.Context, c *models.Concept) error {
	if c.ParentID == 0 {
		return nil
	}
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		parent, err := st.Sources().Get(ctx, c.ParentID)
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
		c.ParentID = parent.ID
		c.ParentURI = parent.URI
		return nil
	})
}

// Create persists a new concept family: its first version and its HEAD.
// The returned concept is the first version.
func (s *Service) Create(ctx context.Context, c *models.Concept, user string) (*models.Concept, error) {
	if err := s.resolveParent(ctx, c); err != nil {
		return nil, err
	}
	err := s.write(ctx, c.LockKey(), func(ctx context.Context, st store.Store) error {
		return s.lifecycle(st).PersistNew(ctx, c, user)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionsCreated(c.Kind())
	s.logger.Info("concept created", zap.String("uri", c.URI), zap.String("user", user))
	return c, nil
}

// NewVersion commits edited as the next version of its family. edited is
// usually a Clone of an existing row with content changes applied; its
// identity and locale ids are discarded.
func (s *Service) NewVersion(ctx context.Context, edited *models.Concept, user string) (*models.Concept, error) {
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
	s.logger.Info("concept version created",
		zap.String("uri", next.URI), zap.String("version", next.Version), zap.String("user", user))
	return next, nil
}

// Retire creates a retired version of the family containing id.
func (s *Service) Retire(ctx context.Context, id int64, user, comment string) (*models.Concept, error) {
	return s.transition(ctx, id, user, comment, true)
}

// Unretire creates an active version of the family containing id.
func (s *Service) Unretire(ctx context.Context, id int64, user, comment string) (*models.Concept, error) {
	return s.transition(ctx, id, user, comment, false)
}

func (s *Service) transition(ctx context.Context, id int64, user, comment string, retire bool) (*models.Concept, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var next *models.Concept
	err = s.write(ctx, c.LockKey(), func(ctx context.Context, st store.Store) error {
		lc := s.lifecycle(st)
		var err error
		if retire {
			next, err = lc.Retire(ctx, c, user, comment)
		} else {
			next, err = lc.Unretire(ctx, c, user, comment)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRetirement(c.Kind(), retire)
	s.metrics.IncVersionsCreated(c.Kind())
	s.logger.Info("concept retirement changed",
		zap.String("uri", next.URI), zap.Bool("retired", retire), zap.String("user", user))
	return next, nil
}

// DeleteVersion removes a non-HEAD version from every source and collection
// it belongs to and deletes the row. Other versions are untouched.
func (s *Service) DeleteVersion(ctx context.Context, id int64) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsHead() {
		return dErrors.WithField(dErrors.CodeValidation, "version", "Cannot delete the HEAD version.")
	}
	err = s.write(ctx, c.LockKey(), func(ctx context.Context, st store.Store) error {
		if err := st.Memberships().Forget(ctx, store.MemberConcept, id); err != nil {
			return err
		}
		return store.Translate(st.Concepts().Delete(ctx, id), "concept")
	})
	if err != nil {
		return err
	}
	s.logger.Info("concept version deleted", zap.String("uri", c.URI))
	return nil
}

// Get returns a concept row by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Concept, error) {
	var c *models.Concept
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		c, err = st.Concepts().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "concept")
	}
	return c, nil
}

func (s *Service) query(ctx context.Context, id int64, fn func(ctx context.Context, st store.Store, lc *versioning.Lifecycle[*models.Concept], c *models.Concept) error) error {
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		c, err := st.Concepts().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "concept")
		}
		return fn(ctx, st, s.lifecycle(st), c)
	})
}

// Head returns the HEAD row of the family containing id.
func (s *Service) Head(ctx context.Context, id int64) (*models.Concept, error) {
	var head *models.Concept
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Concept], c *models.Concept) error {
		var err error
		head, err = lc.Head(ctx, c)
		return err
	})
	return head, err
}

// LatestVersion returns the latest version of the family containing id.
func (s *Service) LatestVersion(ctx context.Context, id int64) (*models.Concept, error) {
	var latest *models.Concept
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Concept], c *models.Concept) error {
		var err error
		latest, err = lc.LatestVersion(ctx, c)
		return err
	})
	return latest, err
}

// NumVersions counts the versions of the family, HEAD excluded.
func (s *Service) NumVersions(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Concept], c *models.Concept) error {
		var err error
		n, err = lc.NumVersions(ctx, c)
		return err
	})
	return n, err
}

// Versions lists every row of the family, HEAD included, oldest first.
func (s *Service) Versions(ctx context.Context, id int64) ([]*models.Concept, error) {
	var out []*models.Concept
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Concept], c *models.Concept) error {
		var err error
		out, err = lc.Versions(ctx, c)
		return err
	})
	return out, err
}

// UnidirectionalMappings returns the HEAD mappings of the concept's own
// source whose from concept is any version of this concept's family.
// Mappings owned by other sources are excluded.
func (s *Service) UnidirectionalMappings(ctx context.Context, id int64) ([]*mappingmodels.Mapping, error) {
	var out []*mappingmodels.Mapping
	err := s.query(ctx, id, func(ctx context.Context, st store.Store, _ *versioning.Lifecycle[*models.Concept], c *models.Concept) error {
		var err error
		out, err = UnidirectionalMappings(ctx, st, c)
		return err
	})
	return out, err
}

// UnidirectionalMappings is the transaction-scoped form used by reference resolution.
func UnidirectionalMappings(ctx context.Context, st store.Store, c *models.Concept) ([]*mappingmodels.Mapping, error) {
	rows, err := st.Concepts().Family(ctx, c.ParentID, c.Mnemonic)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return st.Mappings().HeadsFrom(ctx, c.ParentID, ids)
}

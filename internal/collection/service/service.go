// Package service manages collection families. Reference changes go through
// the reference engine; this package owns creation, editing, snapshots and
// the read side of membership.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"termrepo/internal/collection/models"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Service orchestrates collection lifecycle operations.
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

// VersionRequest describes a new collection snapshot.
type VersionRequest struct {
	// Label is the version name; empty labels use the row id.
	Label    string
	Comment  string
	Released *bool
}

func (s *Service) lifecycle(st store.Store) *versioning.Lifecycle[*models.Collection] {
	return versioning.New[*models.Collection](family{st: st}, s.now)
}

func (s *Service) write(ctx context.Context, keys []string, fn func(ctx context.Context, st store.Store) error) error {
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.RunInTx(ctx, fn)
}

// Create registers a new collection family consisting of its HEAD row.
func (s *Service) Create(ctx context.Context, c *models.Collection, user string) (*models.Collection, error) {
	err := s.write(ctx, []string{c.LockKey()}, func(ctx context.Context, st store.Store) error {
		return s.lifecycle(st).CreateHead(ctx, c, user)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("collection created", zap.String("uri", c.URI), zap.String("user", user))
	return c, nil
}

// Update saves edits to a collection HEAD in place.
func (s *Service) Update(ctx context.Context, c *models.Collection, user string) (*models.Collection, error) {
	current, err := s.Get(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !current.IsHead() || !c.IsHead() {
		return nil, dErrors.WithField(dErrors.CodeValidation, "version", "Only the HEAD version of a collection can be edited.")
	}
	c.CreatedBy, c.CreatedAt = current.CreatedBy, current.CreatedAt
	c.VersionedObjectID = current.VersionedObjectID

	err = s.write(ctx, []string{current.LockKey(), c.LockKey()}, func(ctx context.Context, st store.Store) error {
		if current.Mnemonic != c.Mnemonic || current.Owner != c.Owner || current.OwnerType != c.OwnerType {
			rows, err := st.Collections().Family(ctx, current.OwnerType, current.Owner, current.Mnemonic)
			if err != nil {
				return err
			}
			if len(rows) > 1 {
				return dErrors.WithField(dErrors.CodeValidation, "mnemonic", "A collection with versions cannot be renamed.")
			}
		}
		return s.lifecycle(st).PersistChanges(ctx, c, user)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateVersion snapshots the HEAD of the family containing id. The new
// version starts with HEAD's concepts, mappings and references.
func (s *Service) CreateVersion(ctx context.Context, id int64, req VersionRequest, user string) (*models.Collection, error) {
	if err := versioning.CheckLabel(req.Label); err != nil {
		return nil, err
	}
	head, err := s.Head(ctx, id)
	if err != nil {
		return nil, err
	}

	var version *models.Collection
	err = s.write(ctx, []string{head.LockKey()}, func(ctx context.Context, st store.Store) error {
		// HEAD may have changed between the read above and the lock.
		fresh, err := st.Collections().Get(ctx, head.ID)
		if err != nil {
			return store.Translate(err, "collection")
		}
		version = fresh.Clone()
		version.Detach()
		version.Comment = req.Comment
		if req.Released != nil {
			r := *req.Released
			version.Released = &r
		}
		if err := s.lifecycle(st).PersistClone(ctx, version, user, req.Label); err != nil {
			return err
		}
		if err := SeedMembers(ctx, st, fresh, version); err != nil {
			return err
		}
		return SeedReferences(ctx, st, fresh, version, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionsCreated(version.Kind())
	s.logger.Info("collection version created",
		zap.String("uri", version.URI), zap.String("version", version.Version), zap.String("user", user))
	return version, nil
}

// SeedMembers copies the concepts and mappings of head into version.
func SeedMembers(ctx context.Context, st store.Store, head, version *models.Collection) error {
	return st.Memberships().Copy(ctx, store.CollectionRef(head.ID), store.CollectionRef(version.ID))
}

// SeedReferences copies every reference of head into version with the same
// expression. Expressions are not re-resolved.
func SeedReferences(ctx context.Context, st store.Store, head, version *models.Collection, now time.Time) error {
	refs, err := st.References().ListByCollection(ctx, head.ID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := st.References().Insert(ctx, ref.CopyTo(version.ID, now)); err != nil {
			return store.Translate(err, "reference "+ref.Expression)
		}
	}
	return nil
}

// DeleteVersion removes a non-HEAD version with its memberships and references.
func (s *Service) DeleteVersion(ctx context.Context, id int64) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.IsHead() {
		return dErrors.WithField(dErrors.CodeValidation, "version", "Cannot delete the HEAD version.")
	}
	err = s.write(ctx, []string{c.LockKey()}, func(ctx context.Context, st store.Store) error {
		if err := st.Memberships().Clear(ctx, store.CollectionRef(id)); err != nil {
			return err
		}
		if err := st.References().DeleteByCollection(ctx, id); err != nil {
			return err
		}
		return store.Translate(st.Collections().Delete(ctx, id), "collection")
	})
	if err != nil {
		return err
	}
	s.logger.Info("collection version deleted", zap.String("uri", c.URI))
	return nil
}

// Get returns a collection row by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Collection, error) {
	var c *models.Collection
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		c, err = st.Collections().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "collection")
	}
	return c, nil
}

func (s *Service) query(ctx context.Context, id int64, fn func(ctx context.Context, st store.Store, lc *versioning.Lifecycle[*models.Collection], c *models.Collection) error) error {
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		c, err := st.Collections().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "collection")
		}
		return fn(ctx, st, s.lifecycle(st), c)
	})
}

// Head returns the HEAD row of the family containing id.
func (s *Service) Head(ctx context.Context, id int64) (*models.Collection, error) {
	var head *models.Collection
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		var err error
		head, err = lc.Head(ctx, c)
		return err
	})
	return head, err
}

// LatestVersion returns the latest snapshot, or HEAD when there is none.
func (s *Service) LatestVersion(ctx context.Context, id int64) (*models.Collection, error) {
	var latest *models.Collection
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		var err error
		latest, err = lc.LatestVersion(ctx, c)
		return err
	})
	return latest, err
}

// NumVersions counts the snapshots of the family, HEAD excluded.
func (s *Service) NumVersions(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		var err error
		n, err = lc.NumVersions(ctx, c)
		return err
	})
	return n, err
}

// Versions lists every row of the family, HEAD included, oldest first.
func (s *Service) Versions(ctx context.Context, id int64) ([]*models.Collection, error) {
	var out []*models.Collection
	err := s.query(ctx, id, func(ctx context.Context, _ store.Store, lc *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		var err error
		out, err = lc.Versions(ctx, c)
		return err
	})
	return out, err
}

// CurrentReferences returns the literal expressions held by the row id,
// in the order they were added.
func (s *Service) CurrentReferences(ctx context.Context, id int64) ([]string, error) {
	var out []string
	err := s.query(ctx, id, func(ctx context.Context, st store.Store, _ *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		refs, err := st.References().ListByCollection(ctx, c.ID)
		if err != nil {
			return err
		}
		out = make([]string, 0, len(refs))
		for _, r := range refs {
			out = append(out, r.Expression)
		}
		return nil
	})
	return out, err
}

// ConceptsCount is the size of the row's concept membership.
func (s *Service) ConceptsCount(ctx context.Context, id int64) (int, error) {
	return s.count(ctx, id, store.MemberConcept)
}

// MappingsCount is the size of the row's mapping membership.
func (s *Service) MappingsCount(ctx context.Context, id int64) (int, error) {
	return s.count(ctx, id, store.MemberMapping)
}

func (s *Service) count(ctx context.Context, id int64, kind store.MemberKind) (int, error) {
	var n int
	err := s.query(ctx, id, func(ctx context.Context, st store.Store, _ *versioning.Lifecycle[*models.Collection], c *models.Collection) error {
		ids, err := st.Memberships().Members(ctx, store.CollectionRef(c.ID), kind)
		n = len(ids)
		return err
	})
	return n, err
}

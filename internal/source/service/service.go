// Package service manages source families: the editable HEAD row, its
// released snapshots and the concept/mapping membership each snapshot seeds.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/source/models"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
	dErrors "termrepo/pkg/domain-errors"
)

// Service orchestrates source lifecycle operations.
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

// VersionRequest describes a new source or collection snapshot.
type VersionRequest struct {
	// Label is the version name; empty labels use the row id.
	Label    string
	Comment  string
	Released *bool
}

func (s *Service) lifecycle(st store.Store) *versioning.Lifecycle[*models.Source] {
	return versioning.New[*models.Source](family{st: st}, s.now)
}

func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Create registers a new source family consisting of its HEAD row.
func (s *Service) Create(ctx context.Context, src *models.Source, user string) (*models.Source, error) {
	err := s.withLock(ctx, src.LockKey(), func() error {
		return s.repo.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
			return s.lifecycle(st).CreateHead(ctx, src, user)
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("source created", zap.String("uri", src.URI), zap.String("user", user))
	return src, nil
}

// Update saves edits to a source HEAD in place.
func (s *Service) Update(ctx context.Context, src *models.Source, user string) (*models.Source, error) {
	if !src.IsHead() {
		return nil, dErrors.WithField(dErrors.CodeValidation, "version", "Only the HEAD version of a source can be edited.")
	}
	var current *models.Source
	if err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		current, err = st.Sources().Get(ctx, src.ID)
		return err
	}); err != nil {
		return nil, store.Translate(err, "source")
	}
	if !current.IsHead() {
		return nil, dErrors.WithField(dErrors.CodeValidation, "version", "Only the HEAD version of a source can be edited.")
	}

	release, err := s.locker.Acquire(ctx, current.LockKey(), src.LockKey())
	if err != nil {
		return nil, err
	}
	defer release()

	src.CreatedBy, src.CreatedAt = current.CreatedBy, current.CreatedAt
	src.VersionedObjectID = current.VersionedObjectID

	err = s.repo.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if current.Mnemonic != src.Mnemonic || current.Owner != src.Owner || current.OwnerType != src.OwnerType {
			rows, err := st.Sources().Family(ctx, current.OwnerType, current.Owner, current.Mnemonic)
			if err != nil {
				return err
			}
			if len(rows) > 1 {
				return dErrors.WithField(dErrors.CodeValidation, "mnemonic", "A source with versions cannot be renamed.")
			}
		}
		return s.lifecycle(st).PersistChanges(ctx, src, user)
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// CreateVersion snapshots the HEAD of the family containing id. The new
// version becomes latest and starts with HEAD's concepts and mappings.
func (s *Service) CreateVersion(ctx context.Context, id int64, req VersionRequest, user string) (*models.Source, error) {
	if err := versioning.CheckLabel(req.Label); err != nil {
		return nil, err
	}
	head, err := s.Head(ctx, id)
	if err != nil {
		return nil, err
	}

	var version *models.Source
	err = s.withLock(ctx, head.LockKey(), func() error {
		return s.repo.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
			// HEAD may have changed between the read above and the lock.
			fresh, err := st.Sources().Get(ctx, head.ID)
			if err != nil {
				return store.Translate(err, "source")
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
			return st.Memberships().Copy(ctx, store.SourceRef(head.ID), store.SourceRef(version.ID))
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncVersionsCreated(version.Kind())
	s.logger.Info("source version created",
		zap.String("uri", version.URI), zap.String("version", version.Version), zap.String("user", user))
	return version, nil
}

// DeleteVersion removes a non-HEAD version and its memberships. Other
// versions keep their flags.
func (s *Service) DeleteVersion(ctx context.Context, id int64) error {
	src, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if src.IsHead() {
		return dErrors.WithField(dErrors.CodeValidation, "version", "Cannot delete the HEAD version.")
	}
	err = s.withLock(ctx, src.LockKey(), func() error {
		return s.repo.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
			if err := st.Memberships().Clear(ctx, store.SourceRef(id)); err != nil {
				return err
			}
			return store.Translate(st.Sources().Delete(ctx, id), "source")
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("source version deleted", zap.String("uri", src.URI))
	return nil
}

// Get returns a source row by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Source, error) {
	var src *models.Source
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		src, err = st.Sources().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "source")
	}
	return src, nil
}

// GetByURI returns the source row stored under uri.
func (s *Service) GetByURI(ctx context.Context, uri string) (*models.Source, error) {
	var src *models.Source
	err := s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		src, err = st.Sources().FindByURI(ctx, uri)
		return err
	})
	if err != nil {
		return nil, store.Translate(err, "source")
	}
	return src, nil
}

func (s *Service) query(ctx context.Context, id int64, fn func(ctx context.Context, lc *versioning.Lifecycle[*models.Source], src *models.Source) error) error {
	return s.repo.Read(ctx, func(ctx context.Context, st store.Store) error {
		src, err := st.Sources().Get(ctx, id)
		if err != nil {
			return store.Translate(err, "source")
		}
		return fn(ctx, s.lifecycle(st), src)
	})
}

// Head returns the HEAD row of the family containing id.
func (s *Service) Head(ctx context.Context, id int64) (*models.Source, error) {
	var head *models.Source
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Source], src *models.Source) error {
		var err error
		head, err = lc.Head(ctx, src)
		return err
	})
	return head, err
}

// LatestVersion returns the latest released snapshot, or HEAD when there is none.
func (s *Service) LatestVersion(ctx context.Context, id int64) (*models.Source, error) {
	var latest *models.Source
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Source], src *models.Source) error {
		var err error
		latest, err = lc.LatestVersion(ctx, src)
		return err
	})
	return latest, err
}

// NumVersions counts the snapshots of the family, HEAD excluded.
func (s *Service) NumVersions(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Source], src *models.Source) error {
		var err error
		n, err = lc.NumVersions(ctx, src)
		return err
	})
	return n, err
}

// Versions lists every row of the family, HEAD included, oldest first.
func (s *Service) Versions(ctx context.Context, id int64) ([]*models.Source, error) {
	var out []*models.Source
	err := s.query(ctx, id, func(ctx context.Context, lc *versioning.Lifecycle[*models.Source], src *models.Source) error {
		var err error
		out, err = lc.Versions(ctx, src)
		return err
	})
	return out, err
}

// Extras returns the extras of the family HEAD.
func (s *Service) Extras(ctx context.Context, id int64) (map[string]any, error) {
	head, err := s.Head(ctx, id)
	if err != nil {
		return nil, err
	}
	return head.Copy().Extras, nil
}

// SetExtra sets one extras key on the family HEAD.
func (s *Service) SetExtra(ctx context.Context, id int64, key string, value any, user string) (map[string]any, error) {
	if key == "" {
		return nil, dErrors.WithField(dErrors.CodeValidation, "extra", "Extra key cannot be blank.")
	}
	return s.editExtras(ctx, id, user, func(head *models.Source) error {
		head.SetExtra(key, value)
		return nil
	})
}

// DeleteExtra removes one extras key from the family HEAD.
func (s *Service) DeleteExtra(ctx context.Context, id int64, key string, user string) (map[string]any, error) {
	return s.editExtras(ctx, id, user, func(head *models.Source) error {
		if _, ok := head.Extras[key]; !ok {
			return dErrors.New(dErrors.CodeNotFound, "extra "+key+" not found")
		}
		delete(head.Extras, key)
		return nil
	})
}

func (s *Service) editExtras(ctx context.Context, id int64, user string, edit func(*models.Source) error) (map[string]any, error) {
	head, err := s.Head(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.withLock(ctx, head.LockKey(), func() error {
		return s.repo.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
			fresh, err := st.Sources().Get(ctx, head.ID)
			if err != nil {
				return store.Translate(err, "source")
			}
			if err := edit(fresh); err != nil {
				return err
			}
			head = fresh
			return s.lifecycle(st).PersistChanges(ctx, fresh, user)
		})
	})
	if err != nil {
		return nil, err
	}
	return head.Copy().Extras, nil
}

// Package versioning implements the version lifecycle shared by sources,
// collections, concepts and mappings: creating a family, cloning new
// immutable versions, tracking HEAD and the latest version, and the
// retire/unretire state machine.
//
// A Lifecycle is bound to a Family whose hooks run against one store
// transaction. Failures abort that transaction, so no step here undoes
// earlier steps by hand.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	dErrors "termrepo/pkg/domain-errors"
	"termrepo/pkg/platform/sentinel"
)

// Versioned is implemented by every versioned model.
type Versioned interface {
	Base() *Entity
	// Kind names the resource in messages, e.g. "Concept".
	Kind() string
	// ResourceURI derives the URI of this row from its current fields.
	ResourceURI() string
}

// Family supplies the storage and domain hooks for one kind of resource.
// Implementations are bound to a transaction.
type Family[T Versioned] interface {
	Insert(ctx context.Context, obj T) error
	Update(ctx context.Context, obj T) error
	// Versions returns every row of obj's family, HEAD included.
	Versions(ctx context.Context, obj T) ([]T, error)
	Validate(ctx context.Context, obj T) error
	// Attach adds obj to its parent's membership sets.
	Attach(ctx context.Context, obj T) error
	Clone(obj T) T
	// Mirror copies the content fields of obj onto head.
	Mirror(head, obj T)
}

// Lifecycle runs version transitions through a Family.
type Lifecycle[T Versioned] struct {
	family Family[T]
	now    func() time.Time
}

// New binds a Lifecycle to family. A nil clock defaults to time.Now.
func New[T Versioned](family Family[T], now func() time.Time) *Lifecycle[T] {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle[T]{family: family, now: now}
}

func missingActor(kind string) error {
	return dErrors.WithField(dErrors.CodeMissingActor, "version_created_by",
		fmt.Sprintf("Must specify which user is attempting to create a new %s version.", kind))
}

// PersistNew creates a new family: the first version, stamped with its own
// row id, and the HEAD row mirroring it. Both are attached to the parent.
func (l *Lifecycle[T]) PersistNew(ctx context.Context, obj T, user string) error {
	if user == "" {
		return dErrors.WithField(dErrors.CodeMissingActor, "created_by", "Creator cannot be None.")
	}
	b := obj.Base()
	now := l.now()
	b.CreatedBy, b.UpdatedBy = user, user
	b.CreatedAt, b.UpdatedAt = now, now
	b.Version = TEMP
	b.IsLatestVersion = false
	if b.PublicAccess == "" {
		b.PublicAccess = AccessView
	}

	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}
	if err := l.insert(ctx, obj); err != nil {
		return err
	}

	b.stamp("")
	b.VersionedObjectID = b.ID
	if b.Mnemonic == "" {
		b.Mnemonic = b.Version
	}
	b.IsLatestVersion = true
	if err := l.update(ctx, obj); err != nil {
		return err
	}
	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}
	if err := l.family.Attach(ctx, obj); err != nil {
		return err
	}

	head := l.family.Clone(obj)
	hb := head.Base()
	hb.ID = 0
	hb.Version = HEAD
	hb.IsLatestVersion = false
	hb.VersionedObjectID = b.ID
	if err := l.insert(ctx, head); err != nil {
		return err
	}
	return l.family.Attach(ctx, head)
}

// CreateHead creates a family that consists of a single HEAD row.
// Containers start this way; their versions are explicit snapshots.
func (l *Lifecycle[T]) CreateHead(ctx context.Context, obj T, user string) error {
	if user == "" {
		return dErrors.WithField(dErrors.CodeMissingActor, "created_by", "Creator cannot be None.")
	}
	b := obj.Base()
	now := l.now()
	b.CreatedBy, b.UpdatedBy = user, user
	b.CreatedAt, b.UpdatedAt = now, now
	b.Version = HEAD
	b.IsLatestVersion = false
	if b.PublicAccess == "" {
		b.PublicAccess = AccessView
	}
	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}
	if err := l.insert(ctx, obj); err != nil {
		return err
	}
	b.VersionedObjectID = b.ID
	return l.update(ctx, obj)
}

// PersistChanges saves edits to an existing row in place. Used for HEAD
// containers, which are mutable.
func (l *Lifecycle[T]) PersistChanges(ctx context.Context, obj T, user string) error {
	if user == "" {
		return missingActor(obj.Kind())
	}
	b := obj.Base()
	b.UpdatedBy = user
	b.UpdatedAt = l.now()
	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}
	return l.update(ctx, obj)
}

// PersistClone commits obj as a new immutable version of its family. The
// version label is label, or the new row id when label is empty. Every other
// version is demoted from latest and HEAD is updated to mirror obj.
func (l *Lifecycle[T]) PersistClone(ctx context.Context, obj T, user, label string) error {
	if user == "" {
		return missingActor(obj.Kind())
	}
	b := obj.Base()
	now := l.now()
	b.ID = 0
	b.Version = TEMP
	b.IsLatestVersion = true
	b.CreatedBy, b.UpdatedBy = user, user
	b.CreatedAt, b.UpdatedAt = now, now

	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}
	if err := l.insert(ctx, obj); err != nil {
		return err
	}
	b.stamp(label)
	if err := l.update(ctx, obj); err != nil {
		return err
	}
	if err := l.family.Validate(ctx, obj); err != nil {
		return err
	}

	versions, err := l.family.Versions(ctx, obj)
	if err != nil {
		return err
	}
	var head T
	found := false
	for _, v := range versions {
		vb := v.Base()
		if vb.ID == b.ID {
			continue
		}
		if vb.IsHead() {
			head, found = v, true
			continue
		}
		if vb.IsLatestVersion {
			vb.IsLatestVersion = false
			if err := l.update(ctx, v); err != nil {
				return err
			}
		}
	}
	if err := l.family.Attach(ctx, obj); err != nil {
		return err
	}
	if !found {
		return dErrors.New(dErrors.CodeInvariantViolation, obj.Kind()+" family has no HEAD version")
	}

	hb := head.Base()
	l.family.Mirror(head, obj)
	hb.Retired = obj.Base().Retired
	hb.Extras = b.Copy().Extras
	hb.UpdatedBy = user
	hb.UpdatedAt = now
	return l.update(ctx, head)
}

// Retire creates a version of obj's family with the retired flag set.
// The current state is read from HEAD.
func (l *Lifecycle[T]) Retire(ctx context.Context, obj T, user, comment string) (T, error) {
	return l.transition(ctx, obj, user, comment, true)
}

// Unretire creates a version of obj's family with the retired flag cleared.
func (l *Lifecycle[T]) Unretire(ctx context.Context, obj T, user, comment string) (T, error) {
	return l.transition(ctx, obj, user, comment, false)
}

func (l *Lifecycle[T]) transition(ctx context.Context, obj T, user, comment string, retire bool) (T, error) {
	var zero T
	head, err := l.Head(ctx, obj)
	if err != nil {
		return zero, err
	}
	hb := head.Base()
	if retire {
		err = hb.CanRetire(obj.Kind())
	} else {
		err = hb.CanUnretire(obj.Kind())
	}
	if err != nil {
		return zero, err
	}
	if comment == "" {
		if retire {
			comment = obj.Kind() + " was retired"
		} else {
			comment = obj.Kind() + " was un-retired"
		}
	}

	next := l.family.Clone(head)
	next.Base().ApplyRetirement(retire, comment)
	if err := l.PersistClone(ctx, next, user, ""); err != nil {
		return zero, err
	}
	return next, nil
}

// Head returns the HEAD row of obj's family.
func (l *Lifecycle[T]) Head(ctx context.Context, obj T) (T, error) {
	var zero T
	versions, err := l.family.Versions(ctx, obj)
	if err != nil {
		return zero, err
	}
	for _, v := range versions {
		if v.Base().IsHead() {
			return v, nil
		}
	}
	return zero, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, obj.Kind()+" HEAD not found")
}

// LatestVersion returns the non-HEAD row flagged latest, falling back to HEAD.
func (l *Lifecycle[T]) LatestVersion(ctx context.Context, obj T) (T, error) {
	versions, err := l.family.Versions(ctx, obj)
	if err != nil {
		var zero T
		return zero, err
	}
	for _, v := range versions {
		if vb := v.Base(); !vb.IsHead() && vb.IsLatestVersion {
			return v, nil
		}
	}
	return l.Head(ctx, obj)
}

// Versions returns every row of obj's family, HEAD included, ordered by id.
func (l *Lifecycle[T]) Versions(ctx context.Context, obj T) ([]T, error) {
	return l.family.Versions(ctx, obj)
}

// NumVersions counts the immutable versions of obj's family, HEAD excluded.
func (l *Lifecycle[T]) NumVersions(ctx context.Context, obj T) (int, error) {
	versions, err := l.family.Versions(ctx, obj)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range versions {
		if !v.Base().IsHead() {
			n++
		}
	}
	return n, nil
}

func (l *Lifecycle[T]) insert(ctx context.Context, obj T) error {
	obj.Base().URI = obj.ResourceURI()
	return storeErr(l.family.Insert(ctx, obj), obj)
}

func (l *Lifecycle[T]) update(ctx context.Context, obj T) error {
	obj.Base().URI = obj.ResourceURI()
	return storeErr(l.family.Update(ctx, obj), obj)
}

func storeErr(err error, obj Versioned) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrConflict):
		b := obj.Base()
		return dErrors.Wrap(err, dErrors.CodeConflict,
			fmt.Sprintf("%s %q version %q already exists", obj.Kind(), b.Mnemonic, b.Version))
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, obj.Kind()+" not found")
	}
	return err
}

// Package memory is an in-process store.Repository. A write transaction runs
// against a copy of the state and replaces it only when fn succeeds, so a
// failed unit of work leaves no trace.
package memory

import (
	"context"
	"sync"
	"time"

	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Repository is a store.Repository backed by maps.
type Repository struct {
	mu      sync.RWMutex
	state   *state
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the clock used for locale and reference timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTxTimeout bounds RunInTx when the caller's context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRepository returns an empty repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{state: newState(), now: time.Now, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTx runs fn against a private copy of the state and commits it when fn returns nil.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	working := r.state.clone()
	if err := fn(ctx, &tables{st: working, now: r.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before commit")
	}
	r.state = working
	return nil
}

// Read runs fn against the committed state under a read lock. fn must not write.
func (r *Repository) Read(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(ctx, &tables{st: r.state, now: r.now, readOnly: true})
}

func (r *Repository) Close() error { return nil }

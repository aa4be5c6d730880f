// Package postgres is the PostgreSQL store.Repository. Every table method
// runs on the transaction carried by ctx (see pkg/platform/tx) or on the
// pool when there is none.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"termrepo/internal/store"
	dErrors "termrepo/pkg/domain-errors"
	txctx "termrepo/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const defaultTxTimeout = 5 * time.Second

// Repository is a store.Repository backed by PostgreSQL.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithTxTimeout bounds RunInTx when the caller's context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New wraps an open database handle.
func New(db *sql.DB, opts ...Option) *Repository {
	r := &Repository{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a database transaction and commits when fn returns nil.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txctx.WithTx(ctx, tx), &pgStore{db: r.db}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Read runs fn on the pool.
func (r *Repository) Read(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	return fn(ctx, &pgStore{db: r.db})
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type pgStore struct {
	db *sql.DB
}

func (s *pgStore) conn(ctx context.Context) txctx.Execer { return txctx.Conn(ctx, s.db) }

func (s *pgStore) Sources() store.Sources         { return &sourceTable{s} }
func (s *pgStore) Collections() store.Collections { return &collectionTable{s} }
func (s *pgStore) Concepts() store.Concepts       { return &conceptTable{s} }
func (s *pgStore) Mappings() store.Mappings       { return &mappingTable{s} }
func (s *pgStore) Memberships() store.Memberships { return &membershipTable{s} }
func (s *pgStore) References() store.References   { return &referenceTable{s} }

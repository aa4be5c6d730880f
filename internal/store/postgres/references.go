package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	collectionmodels "termrepo/internal/collection/models"
	"termrepo/internal/store"
)

const referenceSelect = `SELECT id, expression, collection_id, created_at, updated_at, last_resolved_at
FROM collection_references`

type referenceTable struct{ s *pgStore }

func scanReference(row scanner) (*collectionmodels.Reference, error) {
	var r collectionmodels.Reference
	if err := row.Scan(&r.ID, &r.Expression, &r.CollectionID, &r.CreatedAt, &r.UpdatedAt, &r.LastResolvedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *referenceTable) Insert(ctx context.Context, r *collectionmodels.Reference) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := t.s.conn(ctx).ExecContext(ctx, `
		INSERT INTO collection_references (id, expression, collection_id, created_at, updated_at, last_resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Expression, r.CollectionID, r.CreatedAt, r.UpdatedAt, r.LastResolvedAt)
	return mapErr(err, "insert reference "+r.Expression)
}

func (t *referenceTable) Get(ctx context.Context, id uuid.UUID) (*collectionmodels.Reference, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, referenceSelect+` WHERE id = $1`, id)
	r, err := scanReference(row)
	if err != nil {
		return nil, mapErr(err, "reference "+id.String())
	}
	return r, nil
}

func (t *referenceTable) ListByCollection(ctx context.Context, collectionID int64) ([]*collectionmodels.Reference, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, referenceSelect+` WHERE collection_id = $1 ORDER BY seq`, collectionID)
	if err != nil {
		return nil, mapErr(err, "list references")
	}
	defer rows.Close()
	var out []*collectionmodels.Reference
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *referenceTable) DeleteByExpressions(ctx context.Context, collectionID int64, exprs []string) (int, error) {
	if len(exprs) == 0 {
		return 0, nil
	}
	res, err := t.s.conn(ctx).ExecContext(ctx,
		`DELETE FROM collection_references WHERE collection_id = $1 AND expression = ANY($2)`,
		collectionID, pq.Array(exprs))
	if err != nil {
		return 0, mapErr(err, "delete references")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete references: %w", err)
	}
	return int(n), nil
}

func (t *referenceTable) DeleteByCollection(ctx context.Context, collectionID int64) error {
	_, err := t.s.conn(ctx).ExecContext(ctx, `DELETE FROM collection_references WHERE collection_id = $1`, collectionID)
	return mapErr(err, "delete collection references")
}

var _ store.References = (*referenceTable)(nil)

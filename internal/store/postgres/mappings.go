package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	mappingmodels "termrepo/internal/mapping/models"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
)

var mappingColumns = concat(entityColumns, []string{
	"map_type", "from_concept_id", "to_concept_id", "to_source_id", "to_concept_code", "to_concept_name",
	"external_id", "parent_id", "parent_uri",
})

type mappingTable struct{ s *pgStore }

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func mappingArgs(m *mappingmodels.Mapping) ([]any, error) {
	args, err := entityArgs(&m.Entity)
	if err != nil {
		return nil, err
	}
	return append(args, m.MapType, m.FromConceptID, nullID(m.ToConceptID), nullID(m.ToSourceID),
		m.ToConceptCode, m.ToConceptName, m.ExternalID, m.ParentID, m.ParentURI), nil
}

func scanMapping(row scanner) (*mappingmodels.Mapping, error) {
	var (
		m         mappingmodels.Mapping
		es        entityScan
		toConcept sql.NullInt64
		toSource  sql.NullInt64
	)
	dest := append(es.dest(&m.Entity), &m.MapType, &m.FromConceptID, &toConcept, &toSource,
		&m.ToConceptCode, &m.ToConceptName, &m.ExternalID, &m.ParentID, &m.ParentURI)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.ToConceptID = idPtr(toConcept)
	m.ToSourceID = idPtr(toSource)
	return &m, es.finish(&m.Entity)
}

func (t *mappingTable) Insert(ctx context.Context, m *mappingmodels.Mapping) error {
	args, err := mappingArgs(m)
	if err != nil {
		return err
	}
	err = t.s.conn(ctx).QueryRowContext(ctx, insertSQL("mappings", mappingColumns), args...).Scan(&m.ID)
	return mapErr(err, "insert mapping")
}

func (t *mappingTable) Update(ctx context.Context, m *mappingmodels.Mapping) error {
	args, err := mappingArgs(m)
	if err != nil {
		return err
	}
	res, err := t.s.conn(ctx).ExecContext(ctx, updateSQL("mappings", mappingColumns), append(args, m.ID)...)
	if err != nil {
		return mapErr(err, "update mapping")
	}
	return expectRow(res, "update mapping")
}

func (t *mappingTable) Delete(ctx context.Context, id int64) error {
	res, err := t.s.conn(ctx).ExecContext(ctx, `DELETE FROM mappings WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete mapping")
	}
	return expectRow(res, "delete mapping")
}

func (t *mappingTable) query(ctx context.Context, where string, args ...any) ([]*mappingmodels.Mapping, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, selectSQL("mappings", mappingColumns, where), args...)
	if err != nil {
		return nil, mapErr(err, "query mappings")
	}
	defer rows.Close()
	var out []*mappingmodels.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *mappingTable) Get(ctx context.Context, id int64) (*mappingmodels.Mapping, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, selectSQL("mappings", mappingColumns, "id = $1"), id)
	m, err := scanMapping(row)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("mapping %d", id))
	}
	return m, nil
}

func (t *mappingTable) GetMany(ctx context.Context, ids []int64) ([]*mappingmodels.Mapping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.query(ctx, "id = ANY($1)", pq.Array(ids))
}

func (t *mappingTable) Family(ctx context.Context, parentID int64, mnemonic string) ([]*mappingmodels.Mapping, error) {
	return t.query(ctx, "parent_id = $1 AND mnemonic = $2", parentID, mnemonic)
}

func (t *mappingTable) FindByURI(ctx context.Context, uri string) ([]*mappingmodels.Mapping, error) {
	return t.query(ctx, "uri = $1", uri)
}

func (t *mappingTable) Heads(ctx context.Context, parentID int64) ([]*mappingmodels.Mapping, error) {
	return t.query(ctx, "parent_id = $1 AND version = $2", parentID, versioning.HEAD)
}

func (t *mappingTable) HeadsFrom(ctx context.Context, parentID int64, conceptIDs []int64) ([]*mappingmodels.Mapping, error) {
	if len(conceptIDs) == 0 {
		return nil, nil
	}
	return t.query(ctx, "parent_id = $1 AND version = $2 AND from_concept_id = ANY($3)",
		parentID, versioning.HEAD, pq.Array(conceptIDs))
}

var _ store.Mappings = (*mappingTable)(nil)

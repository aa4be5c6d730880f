package postgres

import (
	"context"
	"fmt"

	collectionmodels "termrepo/internal/collection/models"
	sourcemodels "termrepo/internal/source/models"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
)

var sourceColumns = concat(entityColumns, containerColumns, []string{"source_type"})

type sourceTable struct{ s *pgStore }

func sourceArgs(src *sourcemodels.Source) ([]any, error) {
	args, err := entityArgs(&src.Entity)
	if err != nil {
		return nil, err
	}
	args = append(args, containerArgs(&src.Container)...)
	return append(args, src.SourceType), nil
}

func scanSource(row scanner) (*sourcemodels.Source, error) {
	var (
		src sourcemodels.Source
		es  entityScan
		cs  containerScan
	)
	dest := append(es.dest(&src.Entity), cs.dest(&src.Container)...)
	dest = append(dest, &src.SourceType)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	cs.finish(&src.Container)
	return &src, es.finish(&src.Entity)
}

func (t *sourceTable) Insert(ctx context.Context, src *sourcemodels.Source) error {
	args, err := sourceArgs(src)
	if err != nil {
		return err
	}
	err = t.s.conn(ctx).QueryRowContext(ctx, insertSQL("sources", sourceColumns), args...).Scan(&src.ID)
	return mapErr(err, "insert source")
}

func (t *sourceTable) Update(ctx context.Context, src *sourcemodels.Source) error {
	args, err := sourceArgs(src)
	if err != nil {
		return err
	}
	res, err := t.s.conn(ctx).ExecContext(ctx, updateSQL("sources", sourceColumns), append(args, src.ID)...)
	if err != nil {
		return mapErr(err, "update source")
	}
	return expectRow(res, "update source")
}

func (t *sourceTable) Delete(ctx context.Context, id int64) error {
	res, err := t.s.conn(ctx).ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete source")
	}
	return expectRow(res, "delete source")
}

func (t *sourceTable) query(ctx context.Context, where string, args ...any) ([]*sourcemodels.Source, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, selectSQL("sources", sourceColumns, where), args...)
	if err != nil {
		return nil, mapErr(err, "query sources")
	}
	defer rows.Close()
	var out []*sourcemodels.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (t *sourceTable) Get(ctx context.Context, id int64) (*sourcemodels.Source, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, selectSQL("sources", sourceColumns, "id = $1"), id)
	src, err := scanSource(row)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("source %d", id))
	}
	return src, nil
}

func (t *sourceTable) Family(ctx context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*sourcemodels.Source, error) {
	return t.query(ctx, "owner_type = $1 AND owner = $2 AND mnemonic = $3", string(ownerType), owner, mnemonic)
}

func (t *sourceTable) FindByURI(ctx context.Context, uri string) (*sourcemodels.Source, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, selectSQL("sources", sourceColumns, "uri = $1")+" LIMIT 1", uri)
	src, err := scanSource(row)
	if err != nil {
		return nil, mapErr(err, "source "+uri)
	}
	return src, nil
}

var collectionColumns = concat(entityColumns, containerColumns, []string{"collection_type", "preferred_source"})

type collectionTable struct{ s *pgStore }

func collectionArgs(c *collectionmodels.Collection) ([]any, error) {
	args, err := entityArgs(&c.Entity)
	if err != nil {
		return nil, err
	}
	args = append(args, containerArgs(&c.Container)...)
	return append(args, c.CollectionType, c.PreferredSource), nil
}

func scanCollection(row scanner) (*collectionmodels.Collection, error) {
	var (
		c  collectionmodels.Collection
		es entityScan
		cs containerScan
	)
	dest := append(es.dest(&c.Entity), cs.dest(&c.Container)...)
	dest = append(dest, &c.CollectionType, &c.PreferredSource)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	cs.finish(&c.Container)
	return &c, es.finish(&c.Entity)
}

func (t *collectionTable) Insert(ctx context.Context, c *collectionmodels.Collection) error {
	args, err := collectionArgs(c)
	if err != nil {
		return err
	}
	err = t.s.conn(ctx).QueryRowContext(ctx, insertSQL("collections", collectionColumns), args...).Scan(&c.ID)
	return mapErr(err, "insert collection")
}

func (t *collectionTable) Update(ctx context.Context, c *collectionmodels.Collection) error {
	args, err := collectionArgs(c)
	if err != nil {
		return err
	}
	res, err := t.s.conn(ctx).ExecContext(ctx, updateSQL("collections", collectionColumns), append(args, c.ID)...)
	if err != nil {
		return mapErr(err, "update collection")
	}
	return expectRow(res, "update collection")
}

func (t *collectionTable) Delete(ctx context.Context, id int64) error {
	res, err := t.s.conn(ctx).ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete collection")
	}
	return expectRow(res, "delete collection")
}

func (t *collectionTable) query(ctx context.Context, where string, args ...any) ([]*collectionmodels.Collection, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, selectSQL("collections", collectionColumns, where), args...)
	if err != nil {
		return nil, mapErr(err, "query collections")
	}
	defer rows.Close()
	var out []*collectionmodels.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *collectionTable) Get(ctx context.Context, id int64) (*collectionmodels.Collection, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, selectSQL("collections", collectionColumns, "id = $1"), id)
	c, err := scanCollection(row)
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("collection %d", id))
	}
	return c, nil
}

func (t *collectionTable) Family(ctx context.Context, ownerType versioning.OwnerType, owner, mnemonic string) ([]*collectionmodels.Collection, error) {
	return t.query(ctx, "owner_type = $1 AND owner = $2 AND mnemonic = $3", string(ownerType), owner, mnemonic)
}

func (t *collectionTable) FindByURI(ctx context.Context, uri string) (*collectionmodels.Collection, error) {
	row := t.s.conn(ctx).QueryRowContext(ctx, selectSQL("collections", collectionColumns, "uri = $1")+" LIMIT 1", uri)
	c, err := scanCollection(row)
	if err != nil {
		return nil, mapErr(err, "collection "+uri)
	}
	return c, nil
}

var _ store.Sources = (*sourceTable)(nil)
var _ store.Collections = (*collectionTable)(nil)

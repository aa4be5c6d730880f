package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	conceptmodels "termrepo/internal/concept/models"
	"termrepo/internal/locale"
	"termrepo/internal/store"
	"termrepo/internal/versioning"
)

var conceptColumns = concat(entityColumns, []string{"concept_class", "datatype", "external_id", "parent_id", "parent_uri"})

type conceptTable struct{ s *pgStore }

func conceptArgs(c *conceptmodels.Concept) ([]any, error) {
	args, err := entityArgs(&c.Entity)
	if err != nil {
		return nil, err
	}
	return append(args, c.ConceptClass, c.Datatype, c.ExternalID, c.ParentID, c.ParentURI), nil
}

func scanConcept(row scanner) (*conceptmodels.Concept, error) {
	var (
		c  conceptmodels.Concept
		es entityScan
	)
	dest := append(es.dest(&c.Entity), &c.ConceptClass, &c.Datatype, &c.ExternalID, &c.ParentID, &c.ParentURI)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, es.finish(&c.Entity)
}

func (t *conceptTable) Insert(ctx context.Context, c *conceptmodels.Concept) error {
	args, err := conceptArgs(c)
	if err != nil {
		return err
	}
	if err := t.s.conn(ctx).QueryRowContext(ctx, insertSQL("concepts", conceptColumns), args...).Scan(&c.ID); err != nil {
		return mapErr(err, "insert concept")
	}
	return t.saveLocales(ctx, c)
}

func (t *conceptTable) Update(ctx context.Context, c *conceptmodels.Concept) error {
	args, err := conceptArgs(c)
	if err != nil {
		return err
	}
	res, err := t.s.conn(ctx).ExecContext(ctx, updateSQL("concepts", conceptColumns), append(args, c.ID)...)
	if err != nil {
		return mapErr(err, "update concept")
	}
	if err := expectRow(res, "update concept"); err != nil {
		return err
	}
	return t.saveLocales(ctx, c)
}

// saveLocales replaces the owned locale rows of c. Rows that already have an
// id keep it; new rows get one from the sequence.
func (t *conceptTable) saveLocales(ctx context.Context, c *conceptmodels.Concept) error {
	conn := t.s.conn(ctx)
	if _, err := conn.ExecContext(ctx, `DELETE FROM localized_texts WHERE concept_id = $1`, c.ID); err != nil {
		return mapErr(err, "clear locales")
	}
	const q = `
		INSERT INTO localized_texts
			(id, concept_id, used_as, position, name, type, locale, locale_preferred, external_id, created_at)
		VALUES (COALESCE(NULLIF($1::bigint, 0), nextval('localized_texts_id_seq')), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	now := time.Now()
	save := func(texts []locale.LocalizedText, usedAs locale.UsedAs) error {
		for i := range texts {
			lt := &texts[i]
			if lt.CreatedAt.IsZero() {
				lt.CreatedAt = now
			}
			err := conn.QueryRowContext(ctx, q, lt.ID, c.ID, string(usedAs), i, lt.Name, lt.Type, lt.Locale,
				lt.LocalePreferred, lt.ExternalID, lt.CreatedAt).Scan(&lt.ID, &lt.CreatedAt)
			if err != nil {
				return mapErr(err, "insert locale")
			}
		}
		return nil
	}
	if err := save(c.Names, locale.UsedAsName); err != nil {
		return err
	}
	return save(c.Descriptions, locale.UsedAsDescription)
}

// loadLocales fills names and descriptions for concepts.
func (t *conceptTable) loadLocales(ctx context.Context, concepts []*conceptmodels.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	byID := make(map[int64]*conceptmodels.Concept, len(concepts))
	ids := make([]int64, 0, len(concepts))
	for _, c := range concepts {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	rows, err := t.s.conn(ctx).QueryContext(ctx, `
		SELECT id, concept_id, used_as, name, type, locale, locale_preferred, external_id, created_at
		FROM localized_texts
		WHERE concept_id = ANY($1)
		ORDER BY concept_id, used_as, position
	`, pq.Array(ids))
	if err != nil {
		return mapErr(err, "load locales")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			lt        locale.LocalizedText
			conceptID int64
			usedAs    string
		)
		if err := rows.Scan(&lt.ID, &conceptID, &usedAs, &lt.Name, &lt.Type, &lt.Locale,
			&lt.LocalePreferred, &lt.ExternalID, &lt.CreatedAt); err != nil {
			return fmt.Errorf("scan locale: %w", err)
		}
		c := byID[conceptID]
		if locale.UsedAs(usedAs) == locale.UsedAsDescription {
			c.Descriptions = append(c.Descriptions, lt)
		} else {
			c.Names = append(c.Names, lt)
		}
	}
	return rows.Err()
}

func (t *conceptTable) Delete(ctx context.Context, id int64) error {
	res, err := t.s.conn(ctx).ExecContext(ctx, `DELETE FROM concepts WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete concept")
	}
	return expectRow(res, "delete concept")
}

func (t *conceptTable) query(ctx context.Context, where string, args ...any) ([]*conceptmodels.Concept, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, selectSQL("concepts", conceptColumns, where), args...)
	if err != nil {
		return nil, mapErr(err, "query concepts")
	}
	var out []*conceptmodels.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := t.loadLocales(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *conceptTable) Get(ctx context.Context, id int64) (*conceptmodels.Concept, error) {
	out, err := t.query(ctx, "id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, mapErr(errNoRows, fmt.Sprintf("concept %d", id))
	}
	return out[0], nil
}

func (t *conceptTable) GetMany(ctx context.Context, ids []int64) ([]*conceptmodels.Concept, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return t.query(ctx, "id = ANY($1)", pq.Array(ids))
}

func (t *conceptTable) Family(ctx context.Context, parentID int64, mnemonic string) ([]*conceptmodels.Concept, error) {
	return t.query(ctx, "parent_id = $1 AND mnemonic = $2", parentID, mnemonic)
}

func (t *conceptTable) FindByURI(ctx context.Context, uri string) ([]*conceptmodels.Concept, error) {
	return t.query(ctx, "uri = $1", uri)
}

func (t *conceptTable) Heads(ctx context.Context, parentID int64) ([]*conceptmodels.Concept, error) {
	return t.query(ctx, "parent_id = $1 AND version = $2", parentID, versioning.HEAD)
}

var _ store.Concepts = (*conceptTable)(nil)

package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"termrepo/internal/store"
)

type membershipTable struct{ s *pgStore }

// joinTable names the link table and its two columns for a container/member pair.
type joinTable struct {
	name      string
	container string
	member    string
}

func joinFor(c store.ContainerKind, kind store.MemberKind) (joinTable, error) {
	switch {
	case c == store.ContainerSource && kind == store.MemberConcept:
		return joinTable{"source_concepts", "source_id", "concept_id"}, nil
	case c == store.ContainerSource && kind == store.MemberMapping:
		return joinTable{"source_mappings", "source_id", "mapping_id"}, nil
	case c == store.ContainerCollection && kind == store.MemberConcept:
		return joinTable{"collection_concepts", "collection_id", "concept_id"}, nil
	case c == store.ContainerCollection && kind == store.MemberMapping:
		return joinTable{"collection_mappings", "collection_id", "mapping_id"}, nil
	}
	return joinTable{}, fmt.Errorf("no membership table for %s/%s", c, kind)
}

var memberKinds = []store.MemberKind{store.MemberConcept, store.MemberMapping}

func (t *membershipTable) Add(ctx context.Context, c store.ContainerRef, kind store.MemberKind, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	j, err := joinFor(c.Kind, kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		j.name, j.container, j.member)
	_, err = t.s.conn(ctx).ExecContext(ctx, q, c.ID, pq.Array(ids))
	return mapErr(err, "add members to "+j.name)
}

func (t *membershipTable) Remove(ctx context.Context, c store.ContainerRef, kind store.MemberKind, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	j, err := joinFor(c.Kind, kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = ANY($2)`, j.name, j.container, j.member)
	_, err = t.s.conn(ctx).ExecContext(ctx, q, c.ID, pq.Array(ids))
	return mapErr(err, "remove members from "+j.name)
}

func (t *membershipTable) Members(ctx context.Context, c store.ContainerRef, kind store.MemberKind) ([]int64, error) {
	j, err := joinFor(c.Kind, kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s`, j.member, j.name, j.container, j.member)
	return t.ids(ctx, q, c.ID)
}

func (t *membershipTable) ids(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := t.s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err, "query members")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t *membershipTable) ContainersOf(ctx context.Context, kind store.MemberKind, memberID int64) ([]store.ContainerRef, error) {
	var out []store.ContainerRef
	for _, ck := range []store.ContainerKind{store.ContainerCollection, store.ContainerSource} {
		j, err := joinFor(ck, kind)
		if err != nil {
			return nil, err
		}
		q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY %s`, j.container, j.name, j.member, j.container)
		ids, err := t.ids(ctx, q, memberID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out = append(out, store.ContainerRef{Kind: ck, ID: id})
		}
	}
	return out, nil
}

func (t *membershipTable) Copy(ctx context.Context, from, to store.ContainerRef) error {
	for _, kind := range memberKinds {
		src, err := joinFor(from.Kind, kind)
		if err != nil {
			return err
		}
		dst, err := joinFor(to.Kind, kind)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $2, %s FROM %s WHERE %s = $1 ON CONFLICT DO NOTHING`,
			dst.name, dst.container, dst.member, src.member, src.name, src.container)
		if _, err := t.s.conn(ctx).ExecContext(ctx, q, from.ID, to.ID); err != nil {
			return mapErr(err, "copy members into "+dst.name)
		}
	}
	return nil
}

func (t *membershipTable) Clear(ctx context.Context, c store.ContainerRef) error {
	for _, kind := range memberKinds {
		j, err := joinFor(c.Kind, kind)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, j.name, j.container)
		if _, err := t.s.conn(ctx).ExecContext(ctx, q, c.ID); err != nil {
			return mapErr(err, "clear "+j.name)
		}
	}
	return nil
}

func (t *membershipTable) Forget(ctx context.Context, kind store.MemberKind, memberID int64) error {
	for _, ck := range []store.ContainerKind{store.ContainerSource, store.ContainerCollection} {
		j, err := joinFor(ck, kind)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, j.name, j.member)
		if _, err := t.s.conn(ctx).ExecContext(ctx, q, memberID); err != nil {
			return mapErr(err, "forget member in "+j.name)
		}
	}
	return nil
}

var _ store.Memberships = (*membershipTable)(nil)

package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"termrepo/internal/versioning"
	"termrepo/pkg/platform/sentinel"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapErr translates driver errors into sentinel errors.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", what, sentinel.ErrConflict)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", what, pqErr.Constraint, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

var entityColumns = []string{
	"mnemonic", "version", "versioned_object_id", "uri", "is_latest_version", "retired", "released",
	"public_access", "extras", "comment", "created_by", "updated_by", "created_at", "updated_at",
}

var containerColumns = []string{
	"name", "full_name", "owner_type", "owner", "default_locale", "custom_validation_schema",
}

func entityArgs(e *versioning.Entity) ([]any, error) {
	extras := e.Extras
	if extras == nil {
		extras = map[string]any{}
	}
	raw, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("marshal extras: %w", err)
	}
	var released sql.NullBool
	if e.Released != nil {
		released = sql.NullBool{Bool: *e.Released, Valid: true}
	}
	return []any{
		e.Mnemonic, e.Version, e.VersionedObjectID, e.URI, e.IsLatestVersion, e.Retired, released,
		string(e.PublicAccess), raw, e.Comment, e.CreatedBy, e.UpdatedBy, e.CreatedAt, e.UpdatedAt,
	}, nil
}

func containerArgs(c *versioning.Container) []any {
	return []any{c.Name, c.FullName, string(c.OwnerType), c.Owner, c.DefaultLocale, c.CustomValidationSchema}
}

// entityScan holds the columns that need conversion after Scan.
type entityScan struct {
	released sql.NullBool
	extras   []byte
	access   string
}

func (s *entityScan) dest(e *versioning.Entity) []any {
	return []any{
		&e.ID, &e.Mnemonic, &e.Version, &e.VersionedObjectID, &e.URI, &e.IsLatestVersion, &e.Retired,
		&s.released, &s.access, &s.extras, &e.Comment, &e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt,
	}
}

func (s *entityScan) finish(e *versioning.Entity) error {
	e.PublicAccess = versioning.AccessType(s.access)
	if s.released.Valid {
		r := s.released.Bool
		e.Released = &r
	}
	if len(s.extras) > 0 {
		if err := json.Unmarshal(s.extras, &e.Extras); err != nil {
			return fmt.Errorf("unmarshal extras: %w", err)
		}
	}
	if len(e.Extras) == 0 {
		e.Extras = nil
	}
	return nil
}

type containerScan struct {
	ownerType string
}

func (s *containerScan) dest(c *versioning.Container) []any {
	return []any{&c.Name, &c.FullName, &s.ownerType, &c.Owner, &c.DefaultLocale, &c.CustomValidationSchema}
}

func (s *containerScan) finish(c *versioning.Container) {
	c.OwnerType = versioning.OwnerType(s.ownerType)
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func insertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(columns, ", "), placeholders(1, len(columns)))
}

func updateSQL(table string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(columns)+1)
}

func selectSQL(table string, columns []string, where string) string {
	return fmt.Sprintf("SELECT id, %s FROM %s WHERE %s ORDER BY id", strings.Join(columns, ", "), table, where)
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return nil
}

// errNoRows is reported when a single-row lookup over a list query finds nothing.
var errNoRows = sql.ErrNoRows

//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/lib/pq"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	postgresImage = "postgres:16-alpine"
	postgresName  = "termrepo"
)

// PostgresContainer is a throwaway PostgreSQL database with an open pool.
type PostgresContainer struct {
	DSN string
	DB  *sql.DB
}

// NewPostgresContainer starts PostgreSQL and pings a pool on it.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase(postgresName),
		tcpostgres.WithUsername(postgresName),
		tcpostgres.WithPassword(postgresName),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		own(t, "postgres", nil, nil, err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		own(t, "postgres", container, nil, err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		own(t, "postgres", container, nil, err)
	}
	own(t, "postgres", container, db, db.PingContext(ctx))
	return &PostgresContainer{DSN: dsn, DB: db}
}

// Truncate empties tables and resets their identities so suites can share
// one container.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

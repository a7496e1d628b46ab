// Package migrations embeds the PostgreSQL schema and applies it with
// sql-migrate.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

// TableName records applied migrations.
const TableName = "schema_migrations"

//go:embed *.sql
var files embed.FS

func init() {
	migrate.SetTable(TableName)
}

// Source exposes the embedded migration files.
func Source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: files, Root: "."}
}

// Apply runs every pending up migration and returns how many were applied.
func Apply(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	n, err := migrate.ExecContext(ctx, db, "postgres", Source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("migrations: apply: %w", err)
	}
	return n, nil
}

// Rollback reverts up to steps migrations, newest first.
func Rollback(ctx context.Context, pool *pgxpool.Pool, steps int) (int, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	n, err := migrate.ExecMaxContext(ctx, db, "postgres", Source(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("migrations: rollback: %w", err)
	}
	return n, nil
}

// Pending lists migrations not yet applied.
func Pending(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	planned, _, err := migrate.PlanMigration(db, "postgres", Source(), migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("migrations: plan: %w", err)
	}
	ids := make([]string, 0, len(planned))
	for _, m := range planned {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

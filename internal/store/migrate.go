package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations using a database/sql handle
// borrowed from the pgx pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return withSQLDB(pool, func(db *sql.DB) error {
		goose.SetBaseFS(migrationsFS)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("configure goose: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := goose.UpContext(runCtx, db, "migrations"); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion returns the currently applied schema version.
func MigrationVersion(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var version int64
	err := withSQLDB(pool, func(db *sql.DB) error {
		goose.SetBaseFS(migrationsFS)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("configure goose: %w", err)
		}
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func withSQLDB(pool *pgxpool.Pool, fn func(*sql.DB) error) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return fn(db)
}

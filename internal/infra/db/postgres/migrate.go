package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrateUp applies every pending migration. ErrNoChange is not an error.
func MigrateUp(pool *pgxpool.Pool) error {
	return withMigrator(pool, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the given number of steps.
func MigrateDown(pool *pgxpool.Pool, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return withMigrator(pool, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func withMigrator(pool *pgxpool.Pool, fn func(*migrate.Migrate) error) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := mpg.WithInstance(db, &mpg.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Both dialects carry the same schema: users and models.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// RunMigrations brings the Postgres schema at url up to date. It uses its
// own database/sql handle since golang-migrate does not speak pgxpool.
func RunMigrations(url string, logger *zap.Logger) error {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("open postgres for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "autotab_migrations"})
	if err != nil {
		return fmt.Errorf("postgres migration driver: %w", err)
	}
	return apply("postgres", driver, logger)
}

// RunSQLiteMigrations brings the schema of an open SQLite handle up to date.
// The handle stays open.
func RunSQLiteMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: "autotab_migrations"})
	if err != nil {
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	return apply("sqlite3", driver, logger)
}

func apply(dialect string, driver database.Driver, logger *zap.Logger) error {
	dir := "migrations/postgres"
	if dialect == "sqlite3" {
		dir = "migrations/sqlite"
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("load %s migrations: %w", dialect, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return fmt.Errorf("init %s migrations: %w", dialect, err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("schema up to date", zap.String("dialect", dialect))
		return nil
	case err != nil:
		return fmt.Errorf("apply %s migrations: %w", dialect, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read %s schema version: %w", dialect, err)
	}
	if dirty {
		return fmt.Errorf("%s schema left dirty at version %d", dialect, version)
	}
	logger.Info("schema migrated", zap.String("dialect", dialect), zap.Uint("version", version))
	return nil
}

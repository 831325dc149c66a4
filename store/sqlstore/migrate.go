package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrate instance over the embedded migrations for
// driver, connected through its own database handle. Callers must Close it.
func NewMigrator(driver, dsn string) (*migrate.Migrate, error) {
	src, err := migrationSource(driver)
	if err != nil {
		return nil, err
	}
	url := dsn
	if driver == DriverSQLite && !strings.HasPrefix(dsn, "sqlite3://") {
		url = "sqlite3://" + dsn
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("migration init failed: %w", err)
	}
	return m, nil
}

func migrationSource(driver string) (source.Driver, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driver)
	}
	d, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return d, nil
}

// Migrate applies all pending migrations. SQLite runs on the store's own
// handle so that :memory: databases see the schema; the migrate instance
// is not closed because that would close the shared handle.
func (s *Store) Migrate() error {
	if s.driver != DriverSQLite {
		m, err := NewMigrator(s.driver, s.dsn)
		if err != nil {
			return err
		}
		defer m.Close()
		return up(m)
	}

	src, err := migrationSource(s.driver)
	if err != nil {
		return err
	}
	drv, err := sqlite3.WithInstance(s.db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, DriverSQLite, drv)
	if err != nil {
		return fmt.Errorf("migration init failed: %w", err)
	}
	return up(m)
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

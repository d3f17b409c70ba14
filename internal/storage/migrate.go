package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator pairs a migrate instance with the connection it owns.
type migrator struct {
	*migrate.Migrate
	db *sql.DB
}

func (m *migrator) close() {
	m.Migrate.Close()
	m.db.Close()
}

func openMigrator(dbPath string) (*migrator, error) {
	// The sqlite driver closes the handle it wraps, so it must not share the
	// repository's pool.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &migrator{Migrate: m, db: db}, nil
}

// RunMigrations brings the sheet_rows schema at dbPath up to date.
func RunMigrations(dbPath string) error {
	m, err := openMigrator(dbPath)
	if err != nil {
		return err
	}
	defer m.close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version. A database that was
// never migrated reports 0.
func SchemaVersion(dbPath string) (uint, bool, error) {
	m, err := openMigrator(dbPath)
	if err != nil {
		return 0, false, err
	}
	defer m.close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

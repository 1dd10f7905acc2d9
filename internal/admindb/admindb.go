// Package admindb reads the store topology from the admin catalog, a SQLite
// database kept in the admin database directory.
package admindb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// sqlite3 driver for database/sql
	_ "github.com/mattn/go-sqlite3"

	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
)

// FileName is the name of the catalog within the admin database directory.
const FileName = "admin.db"

//go:embed migrations/*.sql
var migrations embed.FS

// DB is an open admin catalog.
type DB struct {
	db *sql.DB
}

func connString(filename string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=true", filename)
}

// Open opens the catalog in dir and migrates it to the current schema.
func Open(ctx context.Context, dir string) (*DB, error) {
	filename := filepath.Join(dir, FileName)
	if _, err := os.Stat(filename); err != nil {
		return nil, errors.Configuration("admin database: %v", err)
	}
	return open(ctx, filename)
}

// Create creates a new, empty catalog in dir.
func Create(ctx context.Context, dir string) (*DB, error) {
	filename := filepath.Join(dir, FileName)
	if _, err := os.Stat(filename); err == nil {
		return nil, errors.Errorf("admin database %v already exists", filename)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.WithStack(err)
	}
	return open(ctx, filename)
}

func open(ctx context.Context, filename string) (*DB, error) {
	db, err := sql.Open("sqlite3", connString(filename))
	if err != nil {
		return nil, errors.Wrap(err, "open admin database")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Configuration("admin database %v: %v", filename, err)
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "load migrations")
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "migrate")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return errors.Wrap(err, "migrate")
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "migrate admin database")
	}

	version, _, _ := m.Version()
	debug.Log("migrated admin database to schema version %d", version)
	return nil
}

// Version returns the schema version of the catalog.
func (db *DB) Version(ctx context.Context) (uint, error) {
	var version uint
	err := db.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return version, nil
}

// Close closes the catalog.
func (db *DB) Close() error {
	return db.db.Close()
}

package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations to one database
type Migrator struct {
	m      *migrate.Migrate
	source source.Driver
	// db is closed with the migrator when it was opened by OpenMigrator
	db *sql.DB
}

// MigratorOption configures a Migrator
type MigratorOption func(*migrate.Migrate)

// WithMigrationLogger routes golang-migrate progress messages to logger.
// Per-file messages only show at debug level.
func WithMigrationLogger(logger *slog.Logger) MigratorOption {
	return func(m *migrate.Migrate) {
		m.Log = migrateLogger{logger: logger}
	}
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	return src, nil
}

// NewMigrator creates a migrator over an open handle
func NewMigrator(db *sql.DB, dbName string, opts ...MigratorOption) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		DatabaseName: dbName,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	src, err := newSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	for _, opt := range opts {
		opt(m)
	}

	return &Migrator{m: m, source: src}, nil
}

// OpenMigrator connects to dsn and returns a migrator owning the connection
func OpenMigrator(ctx context.Context, dsn string, opts ...MigratorOption) (*Migrator, error) {
	name, err := DatabaseName(dsn)
	if err != nil {
		return nil, err
	}

	db, err := OpenSQL(ctx, dsn)
	if err != nil {
		return nil, err
	}

	m, err := NewMigrator(db, name, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.db = db
	return m, nil
}

// MigrateUp applies every pending migration to dsn
func MigrateUp(ctx context.Context, dsn string, opts ...MigratorOption) error {
	m, err := OpenMigrator(ctx, dsn, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return m.Up()
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Steps applies n migrations, rolling back when n is negative
func (m *Migrator) Steps(n int) error {
	if n == 0 {
		return nil
	}
	err := m.m.Steps(n)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %+d steps: %w", n, err)
	}
	return nil
}

// Down rolls back the last migration
func (m *Migrator) Down() error {
	return m.Steps(-1)
}

// Version returns the applied version, zero when nothing ran yet
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

// Pending lists the embedded versions newer than the applied one
func (m *Migrator) Pending() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := versions(m.source)
	if err != nil {
		return nil, err
	}

	var pending []uint
	for _, v := range all {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// Force sets the migration version without running migrations, used to clear a dirty state
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version: %w", err)
	}
	return nil
}

// Close releases the migrator and the connection it opened
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if m.db != nil {
		dbErr = errors.Join(dbErr, m.db.Close())
	}
	if srcErr != nil {
		return fmt.Errorf("close source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close database: %w", dbErr)
	}
	return nil
}

// Versions lists the embedded migration versions in order
func Versions() ([]uint, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	return versions(src)
}

func versions(src source.Driver) ([]uint, error) {
	v, err := src.First()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	out := []uint{v}
	for {
		v, err = src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read migrations: %w", err)
		}
		out = append(out, v)
	}
}

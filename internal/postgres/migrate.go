package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/flexprice/pullpay/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// migrationSource serves the embedded SQL files
func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, dbError(err, "failed to open embedded migrations")
	}
	return src, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := migrationSource()
	if err != nil {
		return nil, err
	}
	driver, err := migratepg.WithInstance(db.DB.DB, &migratepg.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, dbError(err, "failed to prepare migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, dbError(err, "failed to create migrator")
	}
	m.Log = migrateLogger{l: db.logger}
	return m, nil
}

// PendingMigrations returns the embedded migration versions above the
// applied schema version, in apply order
func (db *DB) PendingMigrations(ctx context.Context) ([]uint, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		current = 0
	case err != nil:
		return nil, dbError(err, "failed to read schema version")
	case dirty:
		return nil, dbError(fmt.Errorf("schema version %d is dirty", current), "a previous migration failed halfway")
	}

	src, err := migrationSource()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return pendingVersions(ctx, src, current)
}

func pendingVersions(ctx context.Context, src source.Driver, current uint) ([]uint, error) {
	var pending []uint
	v, err := src.First()
	for err == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if v > current {
			pending = append(pending, v)
		}
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, dbError(err, "failed to list migrations")
	}
	return pending, nil
}

// Migrate applies every pending migration. Canceling ctx stops after the
// migration in progress.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return dbError(err, "failed to apply migrations")
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return dbError(err, "failed to read schema version")
	}
	db.logger.Infow("database schema is up to date", "version", version)
	return nil
}

// migrateLogger routes golang-migrate output through zap
type migrateLogger struct {
	l *logger.Logger
}

func (m migrateLogger) Printf(format string, v ...interface{}) {
	m.l.Infof(format, v...)
}

func (m migrateLogger) Verbose() bool {
	return false
}

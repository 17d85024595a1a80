package fsmdb

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationRunner drives versioned SQL migrations against Postgres for the
// two durable log tables, adapted from the teacher's
// internal/database/migrate.go MigrationRunner. Go/Postgres deployments
// that don't need reversible versioned migrations can instead call
// fsmdb.Migrate, which AutoMigrates the same two tables from the GORM
// models directly — MigrationRunner exists for operators who manage schema
// changes through reviewed SQL files instead.
type MigrationRunner struct {
	m *migrate.Migrate
}

// NewMigrationRunner opens a migrate.Migrate instance pointed at a
// directory of "NNNN_name.up.sql"/"NNNN_name.down.sql" files.
func NewMigrationRunner(migrationsPath, postgresDSN string) (*MigrationRunner, error) {
	db, err := Open(Config{Driver: "postgres", DSN: postgresDSN})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("fsmdb: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("fsmdb: migrate instance: %w", err)
	}
	return &MigrationRunner{m: m}, nil
}

func (r *MigrationRunner) MigrateUp() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *MigrationRunner) RollbackMigration() error {
	if err := r.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *MigrationRunner) RollbackAll() error {
	if err := r.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *MigrationRunner) MigrateToVersion(version uint) error {
	if err := r.m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *MigrationRunner) GetVersion() (uint, bool, error) {
	return r.m.Version()
}

func (r *MigrationRunner) Force(version int) error {
	return r.m.Force(version)
}

func (r *MigrationRunner) Close() error {
	sourceErr, dbErr := r.m.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}

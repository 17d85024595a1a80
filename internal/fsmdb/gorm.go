// Package fsmdb sets up the GORM connection backing both the host entity
// store and the two FSM log tables, adapted from the teacher's
// internal/db/database.go connection-pool conventions. Production targets
// Postgres; sqlite (via glebarez, a cgo-free driver) is used for local
// development and tests, mirroring how the teacher's own test suite avoids
// a live Postgres dependency.
package fsmdb

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"apexfsm/internal/fsmeventlog"
	"apexfsm/internal/fsmlog"
)

// Config holds connection settings for either backend.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	DSN      string // full DSN/URL; for sqlite, a file path or ":memory:"
	LogLevel gormlogger.LogLevel
}

// Open establishes the GORM connection per cfg.Driver.
func Open(cfg Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("fsmdb: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("fsmdb: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("fsmdb: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate auto-migrates the two durable log tables (§6.3). Host entity
// tables (e.g. Order) are migrated separately by the application, since the
// engine is agnostic to host schema beyond the state column it manages.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&fsmlog.FsmLog{}, &fsmeventlog.FsmEventLog{})
}

// BuildPostgresDSN assembles a libpq-style DSN, grounded on the teacher's
// database.Config field layout.
func BuildPostgresDSN(host string, port int, user, password, dbname, sslmode, timezone string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, dbname, sslmode, timezone,
	)
}

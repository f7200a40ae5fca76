// Package db is the SQLite backed time series of sensor readings and the
// alarm history, with embedded schema migrations and admin debug routes.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

// DefaultRetention is how long a stored reading is kept before pruning.
const DefaultRetention = 168 * time.Hour

type DB struct {
	*sql.DB

	path      string
	clock     timeutil.Clock
	retention time.Duration

	// single writer, many readers
	mu sync.RWMutex
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces the clock used for timestamps and pruning.
func WithClock(c timeutil.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithRetention sets the retention horizon. Values <= 0 keep the default.
func WithRetention(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.retention = d
		}
	}
}

// OpenDB opens the database at path and applies connection pragmas without
// touching the schema. The migrate subcommand uses it directly.
func OpenDB(path string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	db := &DB{
		DB:        sqlDB,
		path:      path,
		clock:     timeutil.RealClock{},
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// NewDB opens the database at path and brings the schema up to date.
func NewDB(path string, opts ...Option) (*DB, error) {
	db, err := OpenDB(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	if version, _, err := db.MigrateVersion(MigrationsFS()); err == nil {
		monitoring.Logf("database %s ready at schema version %d", path, version)
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	// busy_timeout is per connection, so keep exactly one
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// Retention returns the configured retention horizon.
func (db *DB) Retention() time.Duration { return db.retention }

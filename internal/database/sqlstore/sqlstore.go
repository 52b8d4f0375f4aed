// Package sqlstore persists enrollments and attendance events in SQLite or MySQL.
// Both dialects share the same queries; embeddings are stored as JSON arrays.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	_ "modernc.org/sqlite" // SQLite driver
)

// mysqlDuplicateEntry is the MySQL error number for unique key violations.
const mysqlDuplicateEntry = 1062

// Dialect captures the per-engine differences.
type Dialect struct {
	Name        string
	Driver      string
	Schema      []string
	isDuplicate func(error) bool
}

var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_id  TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			group_name   TEXT NOT NULL,
			image_ref    TEXT NOT NULL DEFAULT '',
			embedding    TEXT NOT NULL,
			dim          INTEGER NOT NULL,
			created_at   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_events (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT NOT NULL UNIQUE,
			identity_id  TEXT NOT NULL,
			display_name TEXT NOT NULL,
			event_date   TEXT NOT NULL,
			event_time   TEXT NOT NULL,
			status       TEXT NOT NULL,
			recorded_at  TEXT NOT NULL,
			UNIQUE (identity_id, event_date, status)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_events_date_idx ON attendance_events(event_date)`,
	},
	isDuplicate: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// MySQL compares identities and statuses byte for byte, like the in-memory
// store, instead of using the case-insensitive default collation.
var MySQL = Dialect{
	Name:   "mysql",
	Driver: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
			identity_id  VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL UNIQUE,
			display_name VARCHAR(255) NOT NULL,
			group_name   VARCHAR(255) NOT NULL,
			image_ref    VARCHAR(512) NOT NULL DEFAULT '',
			embedding    LONGTEXT NOT NULL,
			dim          INT NOT NULL,
			created_at   VARCHAR(40) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_events (
			seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
			id           VARCHAR(36) NOT NULL UNIQUE,
			identity_id  VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			event_date   VARCHAR(10) NOT NULL,
			event_time   VARCHAR(8) NOT NULL,
			status       VARCHAR(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
			recorded_at  VARCHAR(40) NOT NULL,
			UNIQUE KEY attendance_once (identity_id, event_date, status),
			KEY attendance_events_date_idx (event_date)
		)`,
	},
	isDuplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	},
}

// Store is a database/sql backed implementation of database.Repository.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) a SQLite database file and ensures the schema exists.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("SQLite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(SQLite.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return newStore(ctx, db, SQLite)
}

// OpenMySQL connects to MySQL/MariaDB using cfg.MySQLDSN and ensures the schema exists.
func OpenMySQL(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	if cfg == nil || cfg.MySQLDSN == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	db, err := sql.Open(MySQL.Driver, cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return newStore(ctx, db, MySQL)
}

func newStore(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	for _, stmt := range dialect.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", dialect.Name, err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

// Dialect returns the engine name ("sqlite" or "mysql").
func (s *Store) Dialect() string {
	return s.dialect.Name
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var _ database.Repository = (*Store)(nil)

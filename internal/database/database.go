// Package database persists bookings and the resident directory in SQLite
// (default) or Postgres. Column names follow the legacy schema
// (startdate, enddate, parkering, createdat) and rows are normalized into
// models at this boundary.
package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gastbokning/internal/daterange"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a booking id does not exist.
var ErrNotFound = errors.New("booking not found")

// Drivers supported by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store is the booking and resident repository.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	policy  daterange.Policy
	logger  *zerolog.Logger
}

type dialect struct {
	name          string
	bookingSelect string
	returningID   bool
	forUpdate     string
	// startDay and endDay compare stored dates on their YYYY-MM-DD part.
	startDay      string
	endDay        string
}

var (
	sqliteDialect = dialect{
		name: DriverSQLite,
		bookingSelect: `SELECT id, name, email, phone, startdate, enddate, notes, status,
			CAST(parkering AS TEXT) AS parkering, CAST(createdat AS TEXT) AS createdat FROM bookings`,
		startDay: "substr(startdate, 1, 10)",
		endDay:   "substr(enddate, 1, 10)",
	}
	postgresDialect = dialect{
		name: DriverPostgres,
		bookingSelect: `SELECT id, name, email, phone, startdate::text AS startdate, enddate::text AS enddate,
			notes, status, parkering::text AS parkering,
			to_char(createdat AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"') AS createdat FROM bookings`,
		returningID: true,
		forUpdate:   " FOR UPDATE",
		startDay:    "startdate",
		endDay:      "enddate",
	}
)

// Open connects to the configured driver and migrates the schema.
func Open(ctx context.Context, driver, dsn string, policy daterange.Policy, logger *zerolog.Logger) (*Store, error) {
	switch driver {
	case DriverSQLite, "sqlite", "":
		return OpenSQLite(ctx, dsn, policy, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn, policy, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a database file. Transactions begin IMMEDIATE so a
// check-then-insert pair holds the write lock for its whole duration.
func OpenSQLite(ctx context.Context, path string, policy daterange.Policy, logger *zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := New(db, DriverSQLite, policy, logger)
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info().Str("path", path).Str("policy", policy.String()).Msg("Database initialized")
	return s, nil
}

// OpenPostgres connects with lib/pq. Overlap safety is enforced by an
// exclusion constraint matching the policy.
func OpenPostgres(ctx context.Context, dsn string, policy daterange.Policy, logger *zerolog.Logger) (*Store, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := New(db, DriverPostgres, policy, logger)
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info().Str("driver", DriverPostgres).Str("policy", policy.String()).Msg("Database initialized")
	return s, nil
}

// New wraps an existing connection without migrating it.
func New(db *sqlx.DB, driver string, policy daterange.Policy, logger *zerolog.Logger) *Store {
	d := sqliteDialect
	if driver == DriverPostgres {
		d = postgresDialect
	}
	return &Store{db: db, dialect: d, policy: policy, logger: logger}
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Migrate creates missing tables, columns and constraints.
func (s *Store) Migrate(ctx context.Context) error {
	if s.dialect.name == DriverPostgres {
		return s.migratePostgres(ctx)
	}
	return s.migrateSQLite(ctx)
}

func (s *Store) migrateSQLite(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			startdate TEXT NOT NULL,
			enddate TEXT NOT NULL,
			notes TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			parkering BOOLEAN NOT NULL DEFAULT 0,
			createdat TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_startdate ON bookings(startdate)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE TABLE IF NOT EXISTS residents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			apartment_number TEXT NOT NULL,
			apartment_code TEXT,
			resident_names TEXT NOT NULL,
			phone TEXT,
			primary_email TEXT,
			parking_space TEXT,
			storage_space TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	// Older databases predate these columns.
	for _, col := range []string{
		`ALTER TABLE bookings ADD COLUMN notes TEXT`,
		`ALTER TABLE bookings ADD COLUMN parkering BOOLEAN NOT NULL DEFAULT 0`,
	} {
		if _, err := s.db.ExecContext(ctx, col); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			return err
		}
	}
	return nil
}

const (
	constraintInclusive = "bookings_no_overlap_inclusive"
	constraintTurnover  = "bookings_no_overlap_turnover"
)

func (s *Store) migratePostgres(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			startdate DATE NOT NULL,
			enddate DATE NOT NULL,
			notes TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			parkering BOOLEAN NOT NULL DEFAULT FALSE,
			createdat TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_startdate ON bookings(startdate)`,
		`CREATE TABLE IF NOT EXISTS residents (
			id BIGSERIAL PRIMARY KEY,
			apartment_number TEXT NOT NULL,
			apartment_code TEXT,
			resident_names TEXT NOT NULL,
			phone TEXT,
			primary_email TEXT,
			parking_space TEXT,
			storage_space TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}

	want, stale, bounds := constraintInclusive, constraintTurnover, "[]"
	if s.policy == daterange.PolicySameDayTurnover {
		want, stale, bounds = constraintTurnover, constraintInclusive, "[)"
	}

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE bookings DROP CONSTRAINT IF EXISTS `+stale); err != nil {
		return err
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = $1)`, want); err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE bookings ADD CONSTRAINT %s EXCLUDE USING gist (daterange(startdate, enddate, '%s') WITH &&) WHERE (%s)`,
		want, bounds, activeFilter))
	return err
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name in use.
func (s *Store) Driver() string {
	return s.dialect.name
}

// isExclusionViolation reports a Postgres exclusion constraint failure.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23P01"
}

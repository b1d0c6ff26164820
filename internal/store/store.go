package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides CRUD operations for users, artists, invites, tips and the
// webhook event ledger, backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database in dir and ensures the schema exists.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "grooveguide.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		email              TEXT NOT NULL UNIQUE COLLATE NOCASE,
		display_name       TEXT NOT NULL DEFAULT '',
		password_hash      TEXT NOT NULL DEFAULT '',
		is_admin           INTEGER NOT NULL DEFAULT 0,
		is_pro             INTEGER NOT NULL DEFAULT 0,
		trial_ends_at      INTEGER,
		pro_cancelled_at   INTEGER,
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		created_at         INTEGER NOT NULL,
		updated_at         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_stripe_customer_id ON users(stripe_customer_id);

	CREATE TABLE IF NOT EXISTS artists (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER REFERENCES users(id) ON DELETE SET NULL,
		display_name TEXT NOT NULL DEFAULT '',
		slug         TEXT NOT NULL UNIQUE,
		is_pro       INTEGER NOT NULL DEFAULT 0,
		trial_active INTEGER NOT NULL DEFAULT 0,
		is_approved  INTEGER NOT NULL DEFAULT 0,
		is_listed    INTEGER NOT NULL DEFAULT 0,
		deleted_at   INTEGER,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artists_user_id ON artists(user_id);

	CREATE TABLE IF NOT EXISTS invites (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		code       TEXT NOT NULL UNIQUE COLLATE NOCASE,
		trial_days INTEGER NOT NULL,
		max_uses   INTEGER,
		used_count INTEGER NOT NULL DEFAULT 0,
		is_active  INTEGER NOT NULL DEFAULT 1,
		used_at    INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tips (
		id                       TEXT PRIMARY KEY,
		tipper_email             TEXT NOT NULL DEFAULT '',
		amount_cents             INTEGER NOT NULL,
		stripe_session_id        TEXT NOT NULL UNIQUE,
		stripe_payment_intent_id TEXT NOT NULL DEFAULT '',
		source                   TEXT NOT NULL DEFAULT 'platform',
		created_at               INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhook_events (
		provider_event_id TEXT PRIMARY KEY,
		event_type        TEXT NOT NULL,
		received_at       INTEGER NOT NULL,
		processed_at      INTEGER,
		last_error        TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tx is a transaction handle exposing the same table operations as Store.
type Tx struct {
	tx *sql.Tx
}

// Transact runs fn inside a single transaction, committing on nil return and
// rolling back otherwise.
func (s *Store) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func scanNullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

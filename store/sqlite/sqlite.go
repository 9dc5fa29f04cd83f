/*
Package sqlite provides the SQLite-backed market.Store implementation.

PURPOSE:
  Durable storage for all marketplace records. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

CONCURRENCY:
  Mutable records (teachers, students, payments, channels) carry a version
  column. Update* methods are optimistic read-modify-write: the UPDATE is
  guarded by "AND version = ?", and zero affected rows surfaces as
  market.ErrConflict for the caller's bounded retry loop. WithTx wraps a
  database transaction; a mutex additionally serializes writers, which
  suits SQLite's single-writer model.

INVARIANT BACKSTOPS:
  - CHECK(slots_purchased = slots_used + slots_available) and non-negative
    CHECKs on the counters: a buggy writer cannot corrupt slot accounting.
  - UNIQUE index on matches(student_id): one match per student even if an
    engine bug slipped past the precondition.

WAL MODE:
  Opened with WAL for better read concurrency and crash recovery.

CHANGE NOTIFICATION:
  Not implemented here; this store deliberately does not satisfy
  market.Watcher. Dashboards poll, or run against the memory store in dev.

USAGE:
  store, err := sqlite.New("./data/marketplace.db")
  if err != nil { ... }
  defer store.Close()

SEE ALSO:
  - market/store.go: Interface contracts
  - market/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/englishhop/marketplace/market"
)

// Store implements market.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	txView
}

var _ market.TxStore = (*Store)(nil)

// querier abstracts *sql.DB and *sql.Tx so the record methods work both
// inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txView implements every market.Store method against a querier, which is
// either the raw *sql.DB or an open *sql.Tx. The Store embeds a db-bound
// view; WithTx hands callers a tx-bound one.
type txView struct {
	q querier
}

var _ market.Store = (*txView)(nil)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, txView: txView{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		experience TEXT NOT NULL DEFAULT '',
		qualifications TEXT NOT NULL DEFAULT '',
		specializations TEXT NOT NULL DEFAULT '',
		rate_per_hour TEXT NOT NULL DEFAULT '0',
		payment_method TEXT NOT NULL DEFAULT 'platform',
		bank_name TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		slots_purchased INTEGER NOT NULL DEFAULT 0 CHECK (slots_purchased >= 0),
		slots_used INTEGER NOT NULL DEFAULT 0 CHECK (slots_used >= 0),
		slots_available INTEGER NOT NULL DEFAULT 0 CHECK (slots_available >= 0),
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		CHECK (slots_purchased = slots_used + slots_available)
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		goals TEXT NOT NULL DEFAULT '',
		budget TEXT NOT NULL DEFAULT '',
		preferred_times TEXT NOT NULL DEFAULT '',
		matched_teacher_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		teacher_name TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	-- Storage backstop for the one-match-per-student invariant.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_student
		ON matches(student_id);
	CREATE INDEX IF NOT EXISTS idx_matches_teacher
		ON matches(teacher_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL DEFAULT '',
		student_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		platform_fee TEXT NOT NULL,
		teacher_receives TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		confirmed INTEGER NOT NULL DEFAULT 0,
		confirmed_at TEXT,
		submitted_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_payments_teacher
		ON payments(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_payments_pair
		ON payments(student_id, teacher_id);

	CREATE TABLE IF NOT EXISTS slot_purchases (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		slots INTEGER NOT NULL,
		amount TEXT NOT NULL,
		purchased_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_slot_purchases_teacher
		ON slot_purchases(teacher_id);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		last_msg_id TEXT NOT NULL DEFAULT '',
		last_sender TEXT NOT NULL DEFAULT '',
		last_text TEXT NOT NULL DEFAULT '',
		last_sent_at TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS channel_reads (
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_at TEXT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		text TEXT NOT NULL,
		sent_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel
		ON messages(channel_id, sent_at);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside a database transaction. All writes commit together
// or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(market.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	view := &txView{q: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func encTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

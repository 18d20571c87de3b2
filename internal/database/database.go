package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// Querier is satisfied by both *sql.DB and *sql.Tx so every data-access
// method can run standalone or inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewDB creates a new database connection and initializes the schema.
// Transactions start in immediate mode so concurrent writers serialize at
// begin time instead of failing at commit.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Q returns the non-transactional querier.
func (db *DB) Q() Querier {
	return db.conn
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IsConstraintViolation reports whether err is a SQLite uniqueness or check
// constraint failure. The service layer translates these into duplicate or
// conflict errors on the paths where a race can slip past its own checks.
func IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			active INTEGER NOT NULL DEFAULT 1,
			referral_code TEXT NOT NULL UNIQUE,
			referred_by TEXT NOT NULL DEFAULT '',
			balance_cents INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
			total_earnings_cents INTEGER NOT NULL DEFAULT 0,
			total_deposits_cents INTEGER NOT NULL DEFAULT 0,
			total_withdrawn_cents INTEGER NOT NULL DEFAULT 0,
			earnings_ads_cents INTEGER NOT NULL DEFAULT 0,
			earnings_referrals_cents INTEGER NOT NULL DEFAULT 0,
			earnings_investments_cents INTEGER NOT NULL DEFAULT 0,
			ads_completed_today INTEGER NOT NULL DEFAULT 0,
			earnings_today_cents INTEGER NOT NULL DEFAULT 0,
			last_reset_date TEXT NOT NULL,
			max_daily_ads INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			duration_days INTEGER NOT NULL,
			daily_ads INTEGER NOT NULL,
			daily_rate REAL NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			plan_id TEXT NOT NULL DEFAULT '',
			amount_cents INTEGER NOT NULL,
			proof_ref TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			is_upgrade INTEGER NOT NULL DEFAULT 0,
			previous_id TEXT NOT NULL DEFAULT '',
			admin_id TEXT NOT NULL DEFAULT '',
			reject_reason TEXT NOT NULL DEFAULT '',
			approved_at TEXT,
			activated_at TEXT,
			expires_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// At most one pending and one active purchase per account, enforced
		// below the service layer so races cannot break the invariant.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_one_pending
			ON purchases(account_id) WHERE status = 'pending'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_one_active
			ON purchases(account_id) WHERE is_active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_account ON purchases(account_id)`,
		`CREATE TABLE IF NOT EXISTS ads (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			earning_cents INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			click_count INTEGER NOT NULL DEFAULT 0,
			total_paid_cents INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ad_clicks (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			ad_id TEXT NOT NULL REFERENCES ads(id),
			earning_cents INTEGER NOT NULL,
			click_date TEXT NOT NULL,
			verified INTEGER NOT NULL DEFAULT 1,
			clicked_at TEXT NOT NULL,
			UNIQUE(account_id, ad_id, click_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ad_clicks_account_date ON ad_clicks(account_id, click_date)`,
		`CREATE TABLE IF NOT EXISTS checkouts (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			amount_cents INTEGER NOT NULL,
			method TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			admin_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			transaction_id TEXT NOT NULL DEFAULT '',
			completed_at TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkouts_account ON checkouts(account_id)`,
		`CREATE TABLE IF NOT EXISTS referrals (
			id TEXT PRIMARY KEY,
			referrer_id TEXT NOT NULL REFERENCES accounts(id),
			referred_id TEXT NOT NULL UNIQUE REFERENCES accounts(id),
			earning_cents INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clickrewards-api/internal/models"
)

const checkoutColumns = `id, account_id, amount_cents, method, details, status,
	admin_id, reason, transaction_id, completed_at, created_at, updated_at`

// CreateCheckout inserts a new withdrawal request.
func (db *DB) CreateCheckout(ctx context.Context, q Querier, c *models.Checkout) error {
	query := `INSERT INTO checkouts (` + checkoutColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.AccountID, c.AmountCents, c.Method, c.Details, c.Status,
		c.AdminID, c.Reason, c.TransactionID, nullTime(c.CompletedAt),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}
	return nil
}

// GetCheckout fetches a checkout by id.
func (db *DB) GetCheckout(ctx context.Context, q Querier, id string) (*models.Checkout, error) {
	query := `SELECT ` + checkoutColumns + ` FROM checkouts WHERE id = ?`

	row := q.QueryRowContext(ctx, query, id)
	c, err := scanCheckoutRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkout: %w", err)
	}
	return c, nil
}

// HasOpenCheckout reports whether the account has a pending or processing
// withdrawal.
func (db *DB) HasOpenCheckout(ctx context.Context, q Querier, accountID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM checkouts WHERE account_id = ? AND status IN ('pending', 'processing')`,
		accountID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check open checkouts: %w", err)
	}
	return count > 0, nil
}

// SumOpenCheckouts returns the total amount held in escrow for the account.
func (db *DB) SumOpenCheckouts(ctx context.Context, q Querier, accountID string) (int64, error) {
	var sum sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT SUM(amount_cents) FROM checkouts WHERE account_id = ? AND status IN ('pending', 'processing')`,
		accountID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum open checkouts: %w", err)
	}
	if !sum.Valid {
		return 0, nil
	}
	return sum.Int64, nil
}

// UpdateCheckout persists a state transition.
func (db *DB) UpdateCheckout(ctx context.Context, q Querier, c *models.Checkout) error {
	query := `UPDATE checkouts SET
		status = ?, admin_id = ?, reason = ?, transaction_id = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`

	res, err := q.ExecContext(ctx, query,
		c.Status, c.AdminID, c.Reason, c.TransactionID, nullTime(c.CompletedAt),
		formatTime(time.Now()), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update checkout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("checkout %s not found on update", c.ID)
	}
	return nil
}

// ListCheckoutsByAccount returns the account's withdrawal history, newest first.
func (db *DB) ListCheckoutsByAccount(ctx context.Context, q Querier, accountID string) ([]models.Checkout, error) {
	query := `SELECT ` + checkoutColumns + ` FROM checkouts
		WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkouts: %w", err)
	}
	defer rows.Close()

	var checkouts []models.Checkout
	for rows.Next() {
		c, err := scanCheckoutRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkout: %w", err)
		}
		checkouts = append(checkouts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkouts: %w", err)
	}
	return checkouts, nil
}

func scanCheckoutRow(scan func(dest ...interface{}) error) (*models.Checkout, error) {
	var c models.Checkout
	var completedAt sql.NullString
	var createdAt, updatedAt string

	err := scan(
		&c.ID, &c.AccountID, &c.AmountCents, &c.Method, &c.Details, &c.Status,
		&c.AdminID, &c.Reason, &c.TransactionID, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.CompletedAt, err = scanNullTime(completedAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

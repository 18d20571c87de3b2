package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clickrewards-api/internal/models"
)

const purchaseColumns = `id, account_id, plan_id, amount_cents, proof_ref, status,
	is_active, is_upgrade, previous_id, admin_id, reject_reason,
	approved_at, activated_at, expires_at, created_at, updated_at`

// CreatePurchase inserts a new purchase. The one-pending-per-account index
// turns a racing duplicate submission into a constraint violation.
func (db *DB) CreatePurchase(ctx context.Context, q Querier, p *models.Purchase) error {
	query := `INSERT INTO purchases (` + purchaseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.AccountID, p.PlanID, p.AmountCents, p.ProofRef, p.Status,
		p.IsActive, p.IsUpgrade, p.PreviousID, p.AdminID, p.RejectReason,
		nullTime(p.ApprovedAt), nullTime(p.ActivatedAt), nullTime(p.ExpiresAt),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// GetPurchase fetches a purchase by id.
func (db *DB) GetPurchase(ctx context.Context, q Querier, id string) (*models.Purchase, error) {
	return db.getPurchase(ctx, q, "id = ?", id)
}

// GetActivePurchase returns the account's active purchase, or nil.
func (db *DB) GetActivePurchase(ctx context.Context, q Querier, accountID string) (*models.Purchase, error) {
	return db.getPurchase(ctx, q, "account_id = ? AND is_active = 1", accountID)
}

// GetPendingPurchase returns the account's pending purchase, or nil.
func (db *DB) GetPendingPurchase(ctx context.Context, q Querier, accountID string) (*models.Purchase, error) {
	return db.getPurchase(ctx, q, "account_id = ? AND status = 'pending'", accountID)
}

func (db *DB) getPurchase(ctx context.Context, q Querier, where string, args ...interface{}) (*models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE ` + where

	row := q.QueryRowContext(ctx, query, args...)
	p, err := scanPurchaseRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query purchase: %w", err)
	}
	return p, nil
}

// UpdatePurchase persists a state transition.
func (db *DB) UpdatePurchase(ctx context.Context, q Querier, p *models.Purchase) error {
	query := `UPDATE purchases SET
		status = ?, is_active = ?, admin_id = ?, reject_reason = ?,
		approved_at = ?, activated_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`

	res, err := q.ExecContext(ctx, query,
		p.Status, p.IsActive, p.AdminID, p.RejectReason,
		nullTime(p.ApprovedAt), nullTime(p.ActivatedAt), nullTime(p.ExpiresAt),
		formatTime(time.Now()), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("purchase %s not found on update", p.ID)
	}
	return nil
}

// ListPurchasesByAccount returns the account's purchase history, newest first.
func (db *DB) ListPurchasesByAccount(ctx context.Context, q Querier, accountID string) ([]models.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases
		WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		p, err := scanPurchaseRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}

func scanPurchaseRow(scan func(dest ...interface{}) error) (*models.Purchase, error) {
	var p models.Purchase
	var approvedAt, activatedAt, expiresAt sql.NullString
	var createdAt, updatedAt string

	err := scan(
		&p.ID, &p.AccountID, &p.PlanID, &p.AmountCents, &p.ProofRef, &p.Status,
		&p.IsActive, &p.IsUpgrade, &p.PreviousID, &p.AdminID, &p.RejectReason,
		&approvedAt, &activatedAt, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.ApprovedAt, err = scanNullTime(approvedAt); err != nil {
		return nil, err
	}
	if p.ActivatedAt, err = scanNullTime(activatedAt); err != nil {
		return nil, err
	}
	if p.ExpiresAt, err = scanNullTime(expiresAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

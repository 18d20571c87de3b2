package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clickrewards-api/internal/models"
)

const accountColumns = `id, email, password_hash, name, role, active,
	referral_code, referred_by,
	balance_cents, total_earnings_cents, total_deposits_cents, total_withdrawn_cents,
	earnings_ads_cents, earnings_referrals_cents, earnings_investments_cents,
	ads_completed_today, earnings_today_cents, last_reset_date, max_daily_ads,
	created_at, updated_at`

// CreateAccount inserts a new account.
func (db *DB) CreateAccount(ctx context.Context, q Querier, a *models.Account) error {
	query := `INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Name, a.Role, a.Active,
		a.ReferralCode, a.ReferredBy,
		a.BalanceCents, a.TotalEarningsCents, a.TotalDepositsCents, a.TotalWithdrawnCents,
		a.EarningsAdsCents, a.EarningsReferralsCents, a.EarningsInvestmentsCents,
		a.AdsCompletedToday, a.EarningsTodayCents, a.LastResetDate, a.MaxDailyAds,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetAccountByID fetches an account by id.
func (db *DB) GetAccountByID(ctx context.Context, q Querier, id string) (*models.Account, error) {
	return db.getAccount(ctx, q, "id = ?", id)
}

// GetAccountByEmail fetches an account by email.
func (db *DB) GetAccountByEmail(ctx context.Context, q Querier, email string) (*models.Account, error) {
	return db.getAccount(ctx, q, "email = ?", email)
}

// GetAccountByReferralCode fetches an account by its invite code.
func (db *DB) GetAccountByReferralCode(ctx context.Context, q Querier, code string) (*models.Account, error) {
	return db.getAccount(ctx, q, "referral_code = ?", code)
}

func (db *DB) getAccount(ctx context.Context, q Querier, where string, arg interface{}) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where

	var a models.Account
	var createdAt, updatedAt string
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Role, &a.Active,
		&a.ReferralCode, &a.ReferredBy,
		&a.BalanceCents, &a.TotalEarningsCents, &a.TotalDepositsCents, &a.TotalWithdrawnCents,
		&a.EarningsAdsCents, &a.EarningsReferralsCents, &a.EarningsInvestmentsCents,
		&a.AdsCompletedToday, &a.EarningsTodayCents, &a.LastResetDate, &a.MaxDailyAds,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountLedger persists every ledger-touched column after an
// in-memory mutation. Must run inside the transaction that loaded the row.
func (db *DB) UpdateAccountLedger(ctx context.Context, q Querier, a *models.Account) error {
	query := `UPDATE accounts SET
		balance_cents = ?, total_earnings_cents = ?, total_deposits_cents = ?, total_withdrawn_cents = ?,
		earnings_ads_cents = ?, earnings_referrals_cents = ?, earnings_investments_cents = ?,
		ads_completed_today = ?, earnings_today_cents = ?, last_reset_date = ?, max_daily_ads = ?,
		updated_at = ?
		WHERE id = ?`

	res, err := q.ExecContext(ctx, query,
		a.BalanceCents, a.TotalEarningsCents, a.TotalDepositsCents, a.TotalWithdrawnCents,
		a.EarningsAdsCents, a.EarningsReferralsCents, a.EarningsInvestmentsCents,
		a.AdsCompletedToday, a.EarningsTodayCents, a.LastResetDate, a.MaxDailyAds,
		formatTime(time.Now()), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s not found on ledger update", a.ID)
	}
	return nil
}

// DeactivateAccount soft-deactivates an account; accounts are never deleted.
func (db *DB) DeactivateAccount(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE accounts SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	return nil
}

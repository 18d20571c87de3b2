package database

import (
	"context"
	"fmt"

	"clickrewards-api/internal/models"
)

// InsertReferral records the edge referrer -> referred. The unique
// referred_id column keeps it to one edge per referred account.
func (db *DB) InsertReferral(ctx context.Context, q Querier, r *models.Referral) error {
	query := `INSERT INTO referrals (id, referrer_id, referred_id, earning_cents, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		r.ID, r.ReferrerID, r.ReferredID, r.EarningCents, r.Status, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert referral: %w", err)
	}
	return nil
}

// AddReferralEarnings accumulates a bonus on the edge pointing at the
// referred account and marks it paid.
func (db *DB) AddReferralEarnings(ctx context.Context, q Querier, referredID string, bonusCents int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE referrals SET earning_cents = earning_cents + ?, status = ? WHERE referred_id = ?`,
		bonusCents, models.ReferralPaid, referredID)
	if err != nil {
		return fmt.Errorf("failed to update referral earnings: %w", err)
	}
	return nil
}

// CountReferrals returns the referrer's team size.
func (db *DB) CountReferrals(ctx context.Context, q Querier, referrerID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = ?`, referrerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

// ListReferralsByReferrer returns the referrer's team, newest first.
func (db *DB) ListReferralsByReferrer(ctx context.Context, q Querier, referrerID string) ([]models.Referral, error) {
	query := `SELECT id, referrer_id, referred_id, earning_cents, status, created_at
		FROM referrals WHERE referrer_id = ? ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrals: %w", err)
	}
	defer rows.Close()

	var referrals []models.Referral
	for rows.Next() {
		var r models.Referral
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.EarningCents, &r.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrals: %w", err)
	}
	return referrals, nil
}

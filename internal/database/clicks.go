package database

import (
	"context"
	"fmt"

	"clickrewards-api/internal/models"
)

// InsertAdClick records a completed view. The unique (account, ad, day)
// index makes concurrent duplicates fail here with a constraint violation,
// which the service reports as an already-clicked error.
func (db *DB) InsertAdClick(ctx context.Context, q Querier, c *models.AdClick) error {
	query := `INSERT INTO ad_clicks (id, account_id, ad_id, earning_cents, click_date, verified, clicked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.AccountID, c.AdID, c.EarningCents, c.ClickDate, c.Verified, formatTime(c.ClickedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ad click: %w", err)
	}
	return nil
}

// CountClicksOnDate returns how many ads the account completed on the given
// calendar day.
func (db *DB) CountClicksOnDate(ctx context.Context, q Querier, accountID, date string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ad_clicks WHERE account_id = ? AND click_date = ?`,
		accountID, date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad clicks: %w", err)
	}
	return count, nil
}

// HasClicked reports whether the account already clicked the ad on the
// given calendar day.
func (db *DB) HasClicked(ctx context.Context, q Querier, accountID, adID, date string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ad_clicks WHERE account_id = ? AND ad_id = ? AND click_date = ?`,
		accountID, adID, date).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check ad click: %w", err)
	}
	return count > 0, nil
}

// ListClicksByAccount returns the account's click history, newest first.
func (db *DB) ListClicksByAccount(ctx context.Context, q Querier, accountID string, limit int) ([]models.AdClick, error) {
	query := `SELECT id, account_id, ad_id, earning_cents, click_date, verified, clicked_at
		FROM ad_clicks WHERE account_id = ? ORDER BY clicked_at DESC LIMIT ?`

	rows, err := q.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ad clicks: %w", err)
	}
	defer rows.Close()

	var clicks []models.AdClick
	for rows.Next() {
		var c models.AdClick
		var clickedAt string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.AdID, &c.EarningCents, &c.ClickDate, &c.Verified, &clickedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ad click: %w", err)
		}
		if c.ClickedAt, err = parseTime(clickedAt); err != nil {
			return nil, err
		}
		clicks = append(clicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad clicks: %w", err)
	}
	return clicks, nil
}

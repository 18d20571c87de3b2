package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clickrewards-api/internal/models"
)

// UpsertPlan creates or administratively edits a catalog entry. Running
// purchases keep the terms they were approved with; only the catalog row
// changes.
func (db *DB) UpsertPlan(ctx context.Context, q Querier, p *models.Plan) error {
	query := `INSERT INTO plans (id, name, price_cents, duration_days, daily_ads, daily_rate, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price_cents = excluded.price_cents,
			duration_days = excluded.duration_days,
			daily_ads = excluded.daily_ads,
			daily_rate = excluded.daily_rate,
			active = excluded.active,
			updated_at = excluded.updated_at`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.Name, p.PriceCents, p.DurationDays, p.DailyAds, p.DailyRate, p.Active,
		formatTime(p.CreatedAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}
	return nil
}

// GetPlan fetches a catalog entry by id.
func (db *DB) GetPlan(ctx context.Context, q Querier, id string) (*models.Plan, error) {
	query := `SELECT id, name, price_cents, duration_days, daily_ads, daily_rate, active, created_at, updated_at
		FROM plans WHERE id = ?`

	var p models.Plan
	var createdAt, updatedAt string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.PriceCents, &p.DurationDays, &p.DailyAds, &p.DailyRate, &p.Active,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query plan: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePlans returns the purchasable catalog ordered by price.
func (db *DB) ListActivePlans(ctx context.Context, q Querier) ([]models.Plan, error) {
	query := `SELECT id, name, price_cents, duration_days, daily_ads, daily_rate, active, created_at, updated_at
		FROM plans WHERE active = 1 ORDER BY price_cents ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var p models.Plan
		var createdAt, updatedAt string
		if err := rows.Scan(
			&p.ID, &p.Name, &p.PriceCents, &p.DurationDays, &p.DailyAds, &p.DailyRate, &p.Active,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}

// LowestPlanPrice returns the cheapest active tier, or 0 when the catalog
// is empty. Used as the default referral bonus exclusion threshold.
func (db *DB) LowestPlanPrice(ctx context.Context, q Querier) (int64, error) {
	var price sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MIN(price_cents) FROM plans WHERE active = 1`).Scan(&price)
	if err != nil {
		return 0, fmt.Errorf("failed to query lowest plan price: %w", err)
	}
	if !price.Valid {
		return 0, nil
	}
	return price.Int64, nil
}

// UpsertAd creates or updates an ad.
func (db *DB) UpsertAd(ctx context.Context, q Querier, a *models.Ad) error {
	query := `INSERT INTO ads (id, title, url, earning_cents, active, click_count, total_paid_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			earning_cents = excluded.earning_cents,
			active = excluded.active,
			updated_at = excluded.updated_at`

	_, err := q.ExecContext(ctx, query,
		a.ID, a.Title, a.URL, a.EarningCents, a.Active, a.ClickCount, a.TotalPaidCents,
		formatTime(a.CreatedAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ad: %w", err)
	}
	return nil
}

// GetAd fetches an ad by id.
func (db *DB) GetAd(ctx context.Context, q Querier, id string) (*models.Ad, error) {
	query := `SELECT id, title, url, earning_cents, active, click_count, total_paid_cents, created_at, updated_at
		FROM ads WHERE id = ?`

	var a models.Ad
	var createdAt, updatedAt string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Title, &a.URL, &a.EarningCents, &a.Active, &a.ClickCount, &a.TotalPaidCents,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ad: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActiveAds returns the watchable ad catalog.
func (db *DB) ListActiveAds(ctx context.Context, q Querier) ([]models.Ad, error) {
	query := `SELECT id, title, url, earning_cents, active, click_count, total_paid_cents, created_at, updated_at
		FROM ads WHERE active = 1 ORDER BY created_at ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ads: %w", err)
	}
	defer rows.Close()

	var ads []models.Ad
	for rows.Next() {
		var a models.Ad
		var createdAt, updatedAt string
		if err := rows.Scan(
			&a.ID, &a.Title, &a.URL, &a.EarningCents, &a.Active, &a.ClickCount, &a.TotalPaidCents,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		ads = append(ads, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ads: %w", err)
	}
	return ads, nil
}

// IncrementAdCounters bumps the ad's click and payout totals after a
// successful click.
func (db *DB) IncrementAdCounters(ctx context.Context, q Querier, adID string, paidCents int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE ads SET click_count = click_count + 1, total_paid_cents = total_paid_cents + ?, updated_at = ?
		WHERE id = ?`,
		paidCents, formatTime(time.Now()), adID)
	if err != nil {
		return fmt.Errorf("failed to increment ad counters: %w", err)
	}
	return nil
}

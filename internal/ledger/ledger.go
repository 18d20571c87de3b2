// Package ledger implements the balance mutation rules for an account.
//
// All functions mutate the Account struct in memory; the caller persists the
// result inside the same database transaction that loaded it, so a mutation
// is never observable half-applied.
package ledger

import (
	"time"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/models"
)

// DateKey formats a point in time as the calendar-day watermark stored on
// the account.
func DateKey(now time.Time) string {
	return now.Format("2006-01-02")
}

// RollDay zeroes the daily counters when the stored watermark predates the
// given day. Applied lazily on every path that reads or credits the daily
// counters; never retroactive.
func RollDay(a *models.Account, today string) {
	if a.LastResetDate == today {
		return
	}
	a.AdsCompletedToday = 0
	a.EarningsTodayCents = 0
	a.LastResetDate = today
}

// Credit increases the balance, total earnings, the category bucket and the
// today counter by amount.
func Credit(a *models.Account, amountCents int64, category models.EarningCategory, today string) error {
	if amountCents <= 0 {
		return apperr.Validation("credit amount must be positive, got %d", amountCents)
	}

	RollDay(a, today)

	a.BalanceCents += amountCents
	a.TotalEarningsCents += amountCents
	a.EarningsTodayCents += amountCents

	switch category {
	case models.CategoryAds:
		a.EarningsAdsCents += amountCents
	case models.CategoryReferrals:
		a.EarningsReferralsCents += amountCents
	case models.CategoryInvestments:
		a.EarningsInvestmentsCents += amountCents
	default:
		return apperr.Validation("unknown earning category %q", category)
	}

	return nil
}

// Debit decreases the balance only. The balance never goes negative.
func Debit(a *models.Account, amountCents int64) error {
	if amountCents <= 0 {
		return apperr.Validation("debit amount must be positive, got %d", amountCents)
	}
	if amountCents > a.BalanceCents {
		return apperr.InsufficientFunds("debit of %d exceeds balance %d", amountCents, a.BalanceCents)
	}
	a.BalanceCents -= amountCents
	return nil
}

// Refund restores a previously debited amount. It is a pure balance restore:
// totals and earning buckets are untouched because no new value was earned.
func Refund(a *models.Account, amountCents int64) error {
	if amountCents <= 0 {
		return apperr.Validation("refund amount must be positive, got %d", amountCents)
	}
	a.BalanceCents += amountCents
	return nil
}

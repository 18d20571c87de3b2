package ledger

import (
	"testing"
	"time"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/models"
)

func TestDateKey(t *testing.T) {
	now := time.Date(2025, 11, 3, 23, 59, 59, 0, time.UTC)
	if got := DateKey(now); got != "2025-11-03" {
		t.Errorf("Expected 2025-11-03, got %s", got)
	}
}

func TestCredit_UpdatesAllCounters(t *testing.T) {
	acct := &models.Account{LastResetDate: "2025-11-03"}

	if err := Credit(acct, 500, models.CategoryAds, "2025-11-03"); err != nil {
		t.Fatalf("Failed to credit: %v", err)
	}

	if acct.BalanceCents != 500 {
		t.Errorf("Expected balance 500, got %d", acct.BalanceCents)
	}
	if acct.TotalEarningsCents != 500 {
		t.Errorf("Expected total earnings 500, got %d", acct.TotalEarningsCents)
	}
	if acct.EarningsAdsCents != 500 {
		t.Errorf("Expected ads earnings 500, got %d", acct.EarningsAdsCents)
	}
	if acct.EarningsTodayCents != 500 {
		t.Errorf("Expected today earnings 500, got %d", acct.EarningsTodayCents)
	}
}

func TestCredit_RollsDayBeforeCrediting(t *testing.T) {
	acct := &models.Account{
		LastResetDate:      "2025-11-03",
		AdsCompletedToday:  7,
		EarningsTodayCents: 900,
	}

	if err := Credit(acct, 200, models.CategoryReferrals, "2025-11-04"); err != nil {
		t.Fatalf("Failed to credit: %v", err)
	}

	if acct.LastResetDate != "2025-11-04" {
		t.Errorf("Expected watermark 2025-11-04, got %s", acct.LastResetDate)
	}
	if acct.AdsCompletedToday != 0 {
		t.Errorf("Expected ads completed today reset to 0, got %d", acct.AdsCompletedToday)
	}
	if acct.EarningsTodayCents != 200 {
		t.Errorf("Expected today earnings 200 after reset, got %d", acct.EarningsTodayCents)
	}
}

func TestCredit_RejectsNonPositiveAmount(t *testing.T) {
	acct := &models.Account{LastResetDate: "2025-11-03"}

	if err := Credit(acct, 0, models.CategoryAds, "2025-11-03"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if err := Credit(acct, -100, models.CategoryAds, "2025-11-03"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	acct := &models.Account{BalanceCents: 100}

	err := Debit(acct, 200)
	if !apperr.IsKind(err, apperr.KindInsufficientFunds) {
		t.Fatalf("Expected insufficient funds error, got %v", err)
	}
	if acct.BalanceCents != 100 {
		t.Errorf("Expected balance unchanged at 100, got %d", acct.BalanceCents)
	}
}

func TestDebitRefund_RestoresBalanceOnly(t *testing.T) {
	acct := &models.Account{
		BalanceCents:       1000,
		TotalEarningsCents: 1000,
	}

	if err := Debit(acct, 600); err != nil {
		t.Fatalf("Failed to debit: %v", err)
	}
	if acct.BalanceCents != 400 {
		t.Errorf("Expected balance 400 after debit, got %d", acct.BalanceCents)
	}

	if err := Refund(acct, 600); err != nil {
		t.Fatalf("Failed to refund: %v", err)
	}
	if acct.BalanceCents != 1000 {
		t.Errorf("Expected balance 1000 after refund, got %d", acct.BalanceCents)
	}
	if acct.TotalEarningsCents != 1000 {
		t.Errorf("Expected total earnings untouched at 1000, got %d", acct.TotalEarningsCents)
	}
}

func TestRollDay_SameDayIsNoop(t *testing.T) {
	acct := &models.Account{
		LastResetDate:      "2025-11-03",
		AdsCompletedToday:  4,
		EarningsTodayCents: 300,
	}

	RollDay(acct, "2025-11-03")

	if acct.AdsCompletedToday != 4 || acct.EarningsTodayCents != 300 {
		t.Errorf("Expected counters unchanged, got ads=%d earnings=%d",
			acct.AdsCompletedToday, acct.EarningsTodayCents)
	}
}

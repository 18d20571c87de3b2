package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/cache"
	"clickrewards-api/internal/config"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/features"
	"clickrewards-api/internal/ledger"
	"clickrewards-api/internal/models"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Rewards: config.RewardsConfig{
			FreeDailyAds:           3,
			RegistrationBonusCents: 100,
			ReferralBonusRate:      0.10,
			ReferralBonusMinCents:  5000,
			TeamCap:                100,
			MinWithdrawCents:       500,
			MaxWithdrawCents:       100_000_00,
		},
		Cache: config.CacheConfig{Enabled: true, TTLSec: 60},
	}

	flags := features.NewManager()
	flags.Register(features.FeatureCacheEnabled, true, "")
	flags.Register(features.FeatureEventHooksEnabled, false, "")
	flags.Register(features.FeatureReferralBonus, true, "")

	return NewService(db, cfg, cache.NewInMemoryCache(), events.NewManager(false), flags)
}

func registerAccount(t *testing.T, svc *Service, email, referralCode string, now time.Time) *models.Account {
	t.Helper()

	acct, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:        email,
		Password:     "password123",
		Name:         "Test User",
		ReferralCode: referralCode,
	}, now)
	if err != nil {
		t.Fatalf("Failed to register %s: %v", email, err)
	}
	return acct
}

func seedAd(t *testing.T, svc *Service, title string, earningCents int64, now time.Time) *models.Ad {
	t.Helper()

	ad, err := svc.UpsertAd(context.Background(), models.Ad{
		Title:        title,
		URL:          "https://ads.example.com/" + title,
		EarningCents: earningCents,
		Active:       true,
	}, now)
	if err != nil {
		t.Fatalf("Failed to seed ad: %v", err)
	}
	return ad
}

// fundAccount credits a balance directly so withdrawal tests do not have to
// grind through ad clicks first.
func fundAccount(t *testing.T, svc *Service, accountID string, amountCents int64) {
	t.Helper()

	ctx := context.Background()
	err := svc.db.WithTx(ctx, func(q database.Querier) error {
		acct, err := svc.db.GetAccountByID(ctx, q, accountID)
		if err != nil {
			return err
		}
		if err := ledger.Credit(acct, amountCents, models.CategoryInvestments, acct.LastResetDate); err != nil {
			return err
		}
		return svc.db.UpdateAccountLedger(ctx, q, acct)
	})
	if err != nil {
		t.Fatalf("Failed to fund account: %v", err)
	}
}

func TestRegister_WithReferralCode(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	referrer := registerAccount(t, svc, "referrer@example.com", "", now)
	referred := registerAccount(t, svc, "referred@example.com", referrer.ReferralCode, now)

	if referred.ReferredBy != referrer.ID {
		t.Errorf("Expected referred_by %s, got %s", referrer.ID, referred.ReferredBy)
	}

	reloaded, err := svc.db.GetAccountByID(ctx, svc.db.Q(), referrer.ID)
	if err != nil {
		t.Fatalf("Failed to reload referrer: %v", err)
	}
	if reloaded.BalanceCents != 100 {
		t.Errorf("Expected referrer balance 100 after registration bonus, got %d", reloaded.BalanceCents)
	}
	if reloaded.EarningsReferralsCents != 100 {
		t.Errorf("Expected referral earnings 100, got %d", reloaded.EarningsReferralsCents)
	}

	resp, err := svc.ListReferrals(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("Failed to list referrals: %v", err)
	}
	if resp.TeamSize != 1 {
		t.Fatalf("Expected team size 1, got %d", resp.TeamSize)
	}
	if resp.Referrals[0].Status != models.ReferralConfirmed {
		t.Errorf("Expected confirmed edge, got %s", resp.Referrals[0].Status)
	}
	if resp.TotalEarnedCents != 100 {
		t.Errorf("Expected total earned 100, got %d", resp.TotalEarnedCents)
	}
}

func TestRegister_UnknownReferralCode(t *testing.T) {
	svc := setupTestService(t)
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:        "user@example.com",
		Password:     "password123",
		Name:         "Test User",
		ReferralCode: "NOSUCHCODE",
	}, now)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Expected validation error for unknown referral code, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := setupTestService(t)
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	registerAccount(t, svc, "user@example.com", "", now)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "user@example.com",
		Password: "password123",
		Name:     "Second User",
	}, now)
	if !apperr.IsKind(err, apperr.KindDuplicate) {
		t.Fatalf("Expected duplicate error, got %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	registerAccount(t, svc, "user@example.com", "", now)

	if _, err := svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "password123"}); err != nil {
		t.Fatalf("Expected login to succeed: %v", err)
	}

	_, err := svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "wrongpassword"})
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("Expected unauthorized error, got %v", err)
	}
}

func TestDeactivateAccount_BlocksFurtherUse(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)

	if err := svc.DeactivateAccount(ctx, user.ID); err != nil {
		t.Fatalf("Failed to deactivate account: %v", err)
	}

	if _, err := svc.GetProfile(ctx, user.ID, now); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("Expected forbidden error on profile, got %v", err)
	}
	_, err := svc.Login(ctx, models.LoginRequest{Email: "user@example.com", Password: "password123"})
	if !apperr.IsKind(err, apperr.KindForbidden) {
		t.Errorf("Expected forbidden error on login, got %v", err)
	}
}

func TestPurchase_AdHocApproval(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	buyer := registerAccount(t, svc, "buyer@example.com", "", now)

	purchase, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if purchase.Status != models.PurchasePending {
		t.Fatalf("Expected pending status, got %s", purchase.Status)
	}

	approved, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now)
	if err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}
	if approved.Status != models.PurchaseApproved || !approved.IsActive {
		t.Fatalf("Expected active approved purchase, got %s active=%v", approved.Status, approved.IsActive)
	}

	wantExpiry := now.AddDate(0, 0, 30)
	if approved.ExpiresAt == nil || !approved.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("Expected expiry %v, got %v", wantExpiry, approved.ExpiresAt)
	}

	profile, err := svc.GetProfile(ctx, buyer.ID, now)
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if profile.Account.TotalDepositsCents != 200_00 {
		t.Errorf("Expected deposits 20000, got %d", profile.Account.TotalDepositsCents)
	}
	// Package price is capital, not earnings. No referrer, so no bonus
	// either: the balance stays zero.
	if profile.Account.BalanceCents != 0 {
		t.Errorf("Expected balance 0, got %d", profile.Account.BalanceCents)
	}
	// A $200 package buys 6 daily clicks.
	if profile.Entitlement.Quota != 6 {
		t.Errorf("Expected quota 6, got %d", profile.Entitlement.Quota)
	}
}

func TestPurchase_ReferralBonusCreditsBothSides(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	referrer := registerAccount(t, svc, "referrer@example.com", "", now)
	buyer := registerAccount(t, svc, "buyer@example.com", referrer.ReferralCode, now)

	purchase, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}

	buyerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), buyer.ID)
	if err != nil {
		t.Fatalf("Failed to reload buyer: %v", err)
	}
	if buyerAcct.BalanceCents != 20_00 {
		t.Errorf("Expected buyer balance 2000 (10%% of 20000), got %d", buyerAcct.BalanceCents)
	}
	if buyerAcct.EarningsReferralsCents != 20_00 {
		t.Errorf("Expected buyer referral earnings 2000, got %d", buyerAcct.EarningsReferralsCents)
	}

	referrerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), referrer.ID)
	if err != nil {
		t.Fatalf("Failed to reload referrer: %v", err)
	}
	// 100 registration bonus + 2000 purchase bonus.
	if referrerAcct.BalanceCents != 21_00 {
		t.Errorf("Expected referrer balance 2100, got %d", referrerAcct.BalanceCents)
	}

	resp, err := svc.ListReferrals(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("Failed to list referrals: %v", err)
	}
	if resp.Referrals[0].Status != models.ReferralPaid {
		t.Errorf("Expected paid edge, got %s", resp.Referrals[0].Status)
	}
	if resp.TotalEarnedCents != 21_00 {
		t.Errorf("Expected total earned 2100, got %d", resp.TotalEarnedCents)
	}
}

func TestPurchase_BonusSkippedAtOrBelowThreshold(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	referrer := registerAccount(t, svc, "referrer@example.com", "", now)
	buyer := registerAccount(t, svc, "buyer@example.com", referrer.ReferralCode, now)

	// Exactly at the 5000 threshold: no bonus.
	purchase, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 50_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}

	buyerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), buyer.ID)
	if err != nil {
		t.Fatalf("Failed to reload buyer: %v", err)
	}
	if buyerAcct.BalanceCents != 0 {
		t.Errorf("Expected no bonus at threshold, got balance %d", buyerAcct.BalanceCents)
	}
}

func TestPurchase_UpgradeBonusOnIncrementOnly(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	referrer := registerAccount(t, svc, "referrer@example.com", "", now)
	buyer := registerAccount(t, svc, "buyer@example.com", referrer.ReferralCode, now)

	first, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit first purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, first.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve first purchase: %v", err)
	}

	later := now.Add(48 * time.Hour)
	upgrade, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 500_00,
		ProofRef:    "txn-002",
		IsUpgrade:   true,
	}, later)
	if err != nil {
		t.Fatalf("Failed to submit upgrade: %v", err)
	}
	if upgrade.PreviousID != first.ID {
		t.Fatalf("Expected upgrade to supersede %s, got %s", first.ID, upgrade.PreviousID)
	}

	if _, err := svc.ApprovePurchase(ctx, upgrade.ID, "admin-1", later); err != nil {
		t.Fatalf("Failed to approve upgrade: %v", err)
	}

	buyerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), buyer.ID)
	if err != nil {
		t.Fatalf("Failed to reload buyer: %v", err)
	}
	// 10% of 20000, then 10% of the 30000 increment.
	if buyerAcct.BalanceCents != 50_00 {
		t.Errorf("Expected buyer balance 5000, got %d", buyerAcct.BalanceCents)
	}
	if buyerAcct.TotalDepositsCents != 700_00 {
		t.Errorf("Expected deposits 70000, got %d", buyerAcct.TotalDepositsCents)
	}

	purchases, err := svc.ListPurchases(ctx, buyer.ID, later)
	if err != nil {
		t.Fatalf("Failed to list purchases: %v", err)
	}
	var active, expired int
	for _, p := range purchases {
		switch {
		case p.IsActive:
			active++
		case p.Status == models.PurchaseExpired:
			expired++
		}
	}
	if active != 1 || expired != 1 {
		t.Errorf("Expected 1 active and 1 superseded purchase, got active=%d expired=%d", active, expired)
	}
}

func TestSubmitPurchase_OnePendingAtATime(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	buyer := registerAccount(t, svc, "buyer@example.com", "", now)

	if _, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 100_00,
		ProofRef:    "txn-001",
	}, now); err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}

	_, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 150_00,
		ProofRef:    "txn-002",
	}, now)
	if !apperr.IsKind(err, apperr.KindDuplicate) {
		t.Fatalf("Expected duplicate error for second pending purchase, got %v", err)
	}
}

func TestSubmitPurchase_ActiveRequiresUpgrade(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	buyer := registerAccount(t, svc, "buyer@example.com", "", now)

	first, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, first.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}

	// Plain purchase while one is active is rejected.
	_, err = svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 300_00,
		ProofRef:    "txn-002",
	}, now)
	if !apperr.IsKind(err, apperr.KindDuplicate) {
		t.Fatalf("Expected duplicate error, got %v", err)
	}

	// Upgrade must exceed the current amount.
	_, err = svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 150_00,
		ProofRef:    "txn-003",
		IsUpgrade:   true,
	}, now)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Expected validation error for downgrade, got %v", err)
	}
}

func TestRejectPurchase_NoLedgerEffect(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	buyer := registerAccount(t, svc, "buyer@example.com", "", now)

	purchase, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}

	rejected, err := svc.RejectPurchase(ctx, purchase.ID, "admin-1", "proof does not match", now)
	if err != nil {
		t.Fatalf("Failed to reject purchase: %v", err)
	}
	if rejected.Status != models.PurchaseRejected {
		t.Fatalf("Expected rejected status, got %s", rejected.Status)
	}
	if rejected.RejectReason != "proof does not match" {
		t.Errorf("Expected reject reason stored, got %q", rejected.RejectReason)
	}

	buyerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), buyer.ID)
	if err != nil {
		t.Fatalf("Failed to reload buyer: %v", err)
	}
	if buyerAcct.BalanceCents != 0 || buyerAcct.TotalDepositsCents != 0 {
		t.Errorf("Expected no ledger effect, got balance=%d deposits=%d",
			buyerAcct.BalanceCents, buyerAcct.TotalDepositsCents)
	}

	// Rejection frees the pending slot.
	if _, err := svc.SubmitPurchase(ctx, buyer.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-002",
	}, now); err != nil {
		t.Fatalf("Expected resubmission to succeed: %v", err)
	}

	// Approving the rejected purchase is a state conflict.
	if _, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now); !apperr.IsKind(err, apperr.KindStateConflict) {
		t.Fatalf("Expected state conflict, got %v", err)
	}
}

func TestClickAd_CreditsAndEnforcesLimits(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)

	var ads []*models.Ad
	for i := 0; i < 4; i++ {
		ads = append(ads, seedAd(t, svc, fmt.Sprintf("ad-%d", i), 50, now))
	}

	resp, err := svc.ClickAd(ctx, user.ID, ads[0].ID, now)
	if err != nil {
		t.Fatalf("Failed to click ad: %v", err)
	}
	if resp.EarningCents != 50 || resp.NewBalanceCents != 50 {
		t.Errorf("Expected earning 50 and balance 50, got %d and %d", resp.EarningCents, resp.NewBalanceCents)
	}
	if resp.RemainingClicks != 2 {
		t.Errorf("Expected 2 remaining clicks on the free tier, got %d", resp.RemainingClicks)
	}

	// Same ad again the same day.
	if _, err := svc.ClickAd(ctx, user.ID, ads[0].ID, now); !apperr.IsKind(err, apperr.KindDuplicate) {
		t.Fatalf("Expected duplicate error for repeat click, got %v", err)
	}

	if _, err := svc.ClickAd(ctx, user.ID, ads[1].ID, now); err != nil {
		t.Fatalf("Failed to click second ad: %v", err)
	}
	if _, err := svc.ClickAd(ctx, user.ID, ads[2].ID, now); err != nil {
		t.Fatalf("Failed to click third ad: %v", err)
	}

	// Free quota of 3 is exhausted.
	if _, err := svc.ClickAd(ctx, user.ID, ads[3].ID, now); !apperr.IsKind(err, apperr.KindStateConflict) {
		t.Fatalf("Expected state conflict at daily limit, got %v", err)
	}

	// Next day the quota and the per-ad lock both reset.
	nextDay := now.Add(24 * time.Hour)
	if _, err := svc.ClickAd(ctx, user.ID, ads[0].ID, nextDay); err != nil {
		t.Fatalf("Expected click to succeed the next day: %v", err)
	}

	userAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), user.ID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	if userAcct.BalanceCents != 200 {
		t.Errorf("Expected balance 200 after 4 clicks, got %d", userAcct.BalanceCents)
	}
	if userAcct.AdsCompletedToday != 1 {
		t.Errorf("Expected 1 click on the new day, got %d", userAcct.AdsCompletedToday)
	}
	if userAcct.EarningsAdsCents != 200 {
		t.Errorf("Expected ads earnings 200, got %d", userAcct.EarningsAdsCents)
	}
}

func TestClickAd_QuotaFromActivePackage(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)

	purchase, err := svc.SubmitPurchase(ctx, user.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}

	ad := seedAd(t, svc, "ad-0", 50, now)
	resp, err := svc.ClickAd(ctx, user.ID, ad.ID, now)
	if err != nil {
		t.Fatalf("Failed to click ad: %v", err)
	}
	if resp.RemainingClicks != 5 {
		t.Errorf("Expected 5 remaining clicks on a $200 package, got %d", resp.RemainingClicks)
	}
}

func TestPurchase_LazyExpiration(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)

	purchase, err := svc.SubmitPurchase(ctx, user.ID, models.SubmitPurchaseRequest{
		AmountCents: 200_00,
		ProofRef:    "txn-001",
	}, now)
	if err != nil {
		t.Fatalf("Failed to submit purchase: %v", err)
	}
	if _, err := svc.ApprovePurchase(ctx, purchase.ID, "admin-1", now); err != nil {
		t.Fatalf("Failed to approve purchase: %v", err)
	}

	// 31 days later the package is past its 30-day term.
	later := now.AddDate(0, 0, 31)
	profile, err := svc.GetProfile(ctx, user.ID, later)
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if profile.ActivePurchase != nil {
		t.Fatalf("Expected no active purchase after expiry, got %+v", profile.ActivePurchase)
	}
	if profile.Entitlement.Quota != 3 {
		t.Errorf("Expected free quota 3 after expiry, got %d", profile.Entitlement.Quota)
	}

	purchases, err := svc.ListPurchases(ctx, user.ID, later)
	if err != nil {
		t.Fatalf("Failed to list purchases: %v", err)
	}
	if len(purchases) != 1 || purchases[0].Status != models.PurchaseExpired {
		t.Errorf("Expected one expired purchase, got %+v", purchases)
	}
}

func TestCheckout_EscrowLifecycle(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)
	fundAccount(t, svc, user.ID, 500_00)

	first, err := svc.CreateCheckout(ctx, user.ID, models.CreateCheckoutRequest{
		AmountCents: 100_00,
		Method:      "paypal",
		Details:     "user@example.com",
	}, now)
	if err != nil {
		t.Fatalf("Failed to create checkout: %v", err)
	}

	userAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), user.ID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	if userAcct.BalanceCents != 400_00 {
		t.Errorf("Expected balance 40000 after escrow, got %d", userAcct.BalanceCents)
	}

	// Only one open request at a time.
	_, err = svc.CreateCheckout(ctx, user.ID, models.CreateCheckoutRequest{
		AmountCents: 150_00,
		Method:      "paypal",
	}, now)
	if !apperr.IsKind(err, apperr.KindDuplicate) {
		t.Fatalf("Expected duplicate error for second open checkout, got %v", err)
	}

	rejected, err := svc.RejectCheckout(ctx, first.ID, "admin-1", "account details invalid", now)
	if err != nil {
		t.Fatalf("Failed to reject checkout: %v", err)
	}
	if rejected.Status != models.CheckoutRejected {
		t.Fatalf("Expected rejected status, got %s", rejected.Status)
	}

	userAcct, err = svc.db.GetAccountByID(ctx, svc.db.Q(), user.ID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	if userAcct.BalanceCents != 500_00 {
		t.Errorf("Expected full refund to 50000, got %d", userAcct.BalanceCents)
	}

	// Rejecting the same request twice must not refund twice.
	if _, err := svc.RejectCheckout(ctx, first.ID, "admin-1", "again", now); !apperr.IsKind(err, apperr.KindStateConflict) {
		t.Fatalf("Expected state conflict on double reject, got %v", err)
	}

	second, err := svc.CreateCheckout(ctx, user.ID, models.CreateCheckoutRequest{
		AmountCents: 150_00,
		Method:      "bank",
		Details:     "IBAN XX00",
	}, now)
	if err != nil {
		t.Fatalf("Failed to create second checkout: %v", err)
	}

	processing, err := svc.ProcessCheckout(ctx, second.ID, "admin-1", now)
	if err != nil {
		t.Fatalf("Failed to process checkout: %v", err)
	}
	if processing.Status != models.CheckoutProcessing {
		t.Fatalf("Expected processing status, got %s", processing.Status)
	}

	// Processing requests can no longer be cancelled by the owner.
	if _, err := svc.CancelCheckout(ctx, second.ID, user.ID, now); !apperr.IsKind(err, apperr.KindStateConflict) {
		t.Fatalf("Expected state conflict cancelling a processing checkout, got %v", err)
	}

	completed, err := svc.CompleteCheckout(ctx, second.ID, "admin-1", "payout-789", now)
	if err != nil {
		t.Fatalf("Failed to complete checkout: %v", err)
	}
	if completed.Status != models.CheckoutCompleted || completed.TransactionID != "payout-789" {
		t.Fatalf("Expected completed checkout with transaction id, got %+v", completed)
	}

	userAcct, err = svc.db.GetAccountByID(ctx, svc.db.Q(), user.ID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	if userAcct.BalanceCents != 350_00 {
		t.Errorf("Expected balance 35000 after completion, got %d", userAcct.BalanceCents)
	}
	if userAcct.TotalWithdrawnCents != 150_00 {
		t.Errorf("Expected withdrawn total 15000, got %d", userAcct.TotalWithdrawnCents)
	}
}

func TestCheckout_CancelIsOwnerOnly(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	owner := registerAccount(t, svc, "owner@example.com", "", now)
	other := registerAccount(t, svc, "other@example.com", "", now)
	fundAccount(t, svc, owner.ID, 100_00)

	checkout, err := svc.CreateCheckout(ctx, owner.ID, models.CreateCheckoutRequest{
		AmountCents: 50_00,
		Method:      "usdt",
		Details:     "TRC20 address",
	}, now)
	if err != nil {
		t.Fatalf("Failed to create checkout: %v", err)
	}

	if _, err := svc.CancelCheckout(ctx, checkout.ID, other.ID, now); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("Expected forbidden error, got %v", err)
	}

	cancelled, err := svc.CancelCheckout(ctx, checkout.ID, owner.ID, now)
	if err != nil {
		t.Fatalf("Failed to cancel checkout: %v", err)
	}
	if cancelled.Status != models.CheckoutCancelled {
		t.Fatalf("Expected cancelled status, got %s", cancelled.Status)
	}

	ownerAcct, err := svc.db.GetAccountByID(ctx, svc.db.Q(), owner.ID)
	if err != nil {
		t.Fatalf("Failed to reload owner: %v", err)
	}
	if ownerAcct.BalanceCents != 100_00 {
		t.Errorf("Expected balance restored to 10000, got %d", ownerAcct.BalanceCents)
	}
}

func TestCreateCheckout_Bounds(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)
	fundAccount(t, svc, user.ID, 600)

	// Below the configured minimum.
	_, err := svc.CreateCheckout(ctx, user.ID, models.CreateCheckoutRequest{
		AmountCents: 100,
		Method:      "paypal",
	}, now)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("Expected validation error below minimum, got %v", err)
	}

	// Within bounds but above the balance.
	_, err = svc.CreateCheckout(ctx, user.ID, models.CreateCheckoutRequest{
		AmountCents: 1000,
		Method:      "paypal",
	}, now)
	if !apperr.IsKind(err, apperr.KindInsufficientFunds) {
		t.Fatalf("Expected insufficient funds error, got %v", err)
	}
}

func TestGetAds_CacheInvalidatedOnUpsert(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	user := registerAccount(t, svc, "user@example.com", "", now)
	seedAd(t, svc, "ad-0", 50, now)

	resp, err := svc.GetAds(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("Failed to get ads: %v", err)
	}
	if len(resp.Ads) != 1 {
		t.Fatalf("Expected 1 ad, got %d", len(resp.Ads))
	}
	if resp.Entitlement.Quota != 3 || resp.Entitlement.Remaining != 3 {
		t.Errorf("Expected free entitlement 3/3, got %+v", resp.Entitlement)
	}

	// The upsert drops the cached catalog, so the new ad is visible
	// immediately.
	seedAd(t, svc, "ad-1", 75, now)
	resp, err = svc.GetAds(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("Failed to get ads: %v", err)
	}
	if len(resp.Ads) != 2 {
		t.Fatalf("Expected 2 ads after upsert, got %d", len(resp.Ads))
	}
}

package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/features"
	"clickrewards-api/internal/ledger"
	"clickrewards-api/internal/metrics"
	"clickrewards-api/internal/models"
	"clickrewards-api/internal/validation"
)

// Packages bought as ad-hoc amounts have no catalog duration; they run for
// a fixed month.
const adHocDurationDays = 30

// ListPlans returns the purchasable catalog.
func (s *Service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	return s.db.ListActivePlans(ctx, s.db.Q())
}

// UpsertPlan administratively creates or edits a catalog entry. Purchases
// already approved keep their original terms.
func (s *Service) UpsertPlan(ctx context.Context, p models.Plan, now time.Time) (*models.Plan, error) {
	if err := validation.ValidatePlan(p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
		p.CreatedAt = now
	}
	if err := s.db.UpsertPlan(ctx, s.db.Q(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SubmitPurchase files a pending purchase for admin review. Payment proof
// is external to the ledger; no funds are held.
func (s *Service) SubmitPurchase(ctx context.Context, accountID string, req models.SubmitPurchaseRequest, now time.Time) (*models.Purchase, error) {
	req.ProofRef = validation.SanitizeString(req.ProofRef)
	if err := validation.ValidateSubmitPurchase(req); err != nil {
		return nil, err
	}

	purchase := &models.Purchase{
		ID:        uuid.New().String(),
		AccountID: accountID,
		ProofRef:  req.ProofRef,
		Status:    models.PurchasePending,
		IsUpgrade: req.IsUpgrade,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		if _, err := s.getAccount(ctx, q, accountID); err != nil {
			return err
		}

		if req.PlanID != "" {
			plan, err := s.db.GetPlan(ctx, q, req.PlanID)
			if err != nil {
				return err
			}
			if plan == nil || !plan.Active {
				return apperr.NotFound("plan %s not found", req.PlanID)
			}
			purchase.PlanID = plan.ID
			purchase.AmountCents = plan.PriceCents
		} else {
			purchase.AmountCents = req.AmountCents
		}

		pending, err := s.db.GetPendingPurchase(ctx, q, accountID)
		if err != nil {
			return err
		}
		if pending != nil {
			return apperr.Duplicate("a pending purchase already exists")
		}

		active, err := s.activePurchase(ctx, q, accountID, now)
		if err != nil {
			return err
		}

		if req.IsUpgrade {
			if active == nil {
				return apperr.StateConflict("no active package to upgrade")
			}
			if purchase.AmountCents <= active.AmountCents {
				return apperr.Validation("upgrade amount must exceed the current package amount")
			}
			purchase.PreviousID = active.ID
		} else if active != nil {
			return apperr.Duplicate("an active package already exists; submit an upgrade instead")
		}

		if err := s.db.CreatePurchase(ctx, q, purchase); err != nil {
			if database.IsConstraintViolation(err) {
				return apperr.Duplicate("a pending purchase already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesTotal.WithLabelValues("submitted").Inc()
	return purchase, nil
}

// ApprovePurchase activates a pending purchase. The whole side-effect
// chain commits atomically: supersession of the prior package, activation,
// the account's quota and deposit update, and both referral bonus credits.
func (s *Service) ApprovePurchase(ctx context.Context, purchaseID, adminID string, now time.Time) (*models.Purchase, error) {
	var purchase *models.Purchase
	var bonus int64

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		p, err := s.db.GetPurchase(ctx, q, purchaseID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFound("purchase %s not found", purchaseID)
		}
		if p.Status != models.PurchasePending {
			return apperr.StateConflict("purchase is %s, not pending", p.Status)
		}

		acct, err := s.getAccount(ctx, q, p.AccountID)
		if err != nil {
			return err
		}

		// Supersede the upgraded package, then deactivate anything
		// else still active for the account.
		var prevAmount int64
		if p.IsUpgrade && p.PreviousID != "" {
			prev, err := s.db.GetPurchase(ctx, q, p.PreviousID)
			if err != nil {
				return err
			}
			if prev != nil {
				prevAmount = prev.AmountCents
				if prev.IsActive {
					prev.IsActive = false
					prev.Status = models.PurchaseExpired
					if err := s.db.UpdatePurchase(ctx, q, prev); err != nil {
						return err
					}
				}
			}
		}
		if other, err := s.db.GetActivePurchase(ctx, q, p.AccountID); err != nil {
			return err
		} else if other != nil {
			other.IsActive = false
			other.Status = models.PurchaseExpired
			if err := s.db.UpdatePurchase(ctx, q, other); err != nil {
				return err
			}
		}

		durationDays := adHocDurationDays
		quota := int(p.AmountCents * 3 / 100_00)
		if p.PlanID != "" {
			plan, err := s.db.GetPlan(ctx, q, p.PlanID)
			if err != nil {
				return err
			}
			if plan == nil {
				return apperr.NotFound("plan %s not found", p.PlanID)
			}
			durationDays = plan.DurationDays
			quota = plan.DailyAds
		}

		expiresAt := now.AddDate(0, 0, durationDays)
		p.Status = models.PurchaseApproved
		p.IsActive = true
		p.AdminID = adminID
		p.ApprovedAt = &now
		p.ActivatedAt = &now
		p.ExpiresAt = &expiresAt

		acct.MaxDailyAds = quota
		// Package price is invested capital, not earnings: deposits
		// grow, the balance does not.
		acct.TotalDepositsCents += p.AmountCents

		bonus, err = s.applyPurchaseBonus(ctx, q, acct, p.AmountCents-prevAmount, now)
		if err != nil {
			return err
		}

		if err := s.db.UpdateAccountLedger(ctx, q, acct); err != nil {
			return err
		}
		if err := s.db.UpdatePurchase(ctx, q, p); err != nil {
			return err
		}

		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesTotal.WithLabelValues("approved").Inc()
	if bonus > 0 {
		metrics.LedgerCreditsTotal.WithLabelValues(string(models.CategoryReferrals)).Add(float64(2 * bonus))
	}
	s.publish(ctx, events.EventPurchaseApproved, events.PurchaseEventData{
		Purchase:   *purchase,
		AdminID:    adminID,
		BonusCents: bonus,
	})

	return purchase, nil
}

// applyPurchaseBonus credits the 10% referral bonus twice, independently,
// to the buyer and to the referrer. The basis is the incremental amount so
// upgrades never re-pay the portion rewarded at the initial purchase, and
// amounts at or below the exclusion threshold pay nothing.
func (s *Service) applyPurchaseBonus(ctx context.Context, q database.Querier, acct *models.Account, incrementalCents int64, now time.Time) (int64, error) {
	if acct.ReferredBy == "" || !s.flags.IsEnabled(features.FeatureReferralBonus) {
		return 0, nil
	}

	threshold := s.cfg.Rewards.ReferralBonusMinCents
	if threshold == 0 {
		lowest, err := s.db.LowestPlanPrice(ctx, q)
		if err != nil {
			return 0, err
		}
		threshold = lowest
	}
	if incrementalCents <= threshold {
		return 0, nil
	}

	bonus := int64(math.Round(float64(incrementalCents) * s.cfg.Rewards.ReferralBonusRate))
	if bonus <= 0 {
		return 0, nil
	}

	today := ledger.DateKey(now)
	if err := ledger.Credit(acct, bonus, models.CategoryReferrals, today); err != nil {
		return 0, err
	}

	referrer, err := s.db.GetAccountByID(ctx, q, acct.ReferredBy)
	if err != nil {
		return 0, err
	}
	if referrer != nil {
		if err := ledger.Credit(referrer, bonus, models.CategoryReferrals, today); err != nil {
			return 0, err
		}
		if err := s.db.UpdateAccountLedger(ctx, q, referrer); err != nil {
			return 0, err
		}
		if err := s.db.AddReferralEarnings(ctx, q, acct.ID, bonus); err != nil {
			return 0, err
		}
	}

	return bonus, nil
}

// RejectPurchase declines a pending purchase. No funds were ever held for
// it, so there is no balance effect.
func (s *Service) RejectPurchase(ctx context.Context, purchaseID, adminID, reason string, now time.Time) (*models.Purchase, error) {
	var purchase *models.Purchase

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		p, err := s.db.GetPurchase(ctx, q, purchaseID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFound("purchase %s not found", purchaseID)
		}
		if p.Status != models.PurchasePending {
			return apperr.StateConflict("purchase is %s, not pending", p.Status)
		}

		p.Status = models.PurchaseRejected
		p.AdminID = adminID
		p.RejectReason = validation.SanitizeString(reason)
		if err := s.db.UpdatePurchase(ctx, q, p); err != nil {
			return err
		}

		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PurchasesTotal.WithLabelValues("rejected").Inc()
	s.publish(ctx, events.EventPurchaseRejected, events.PurchaseEventData{Purchase: *purchase, AdminID: adminID})

	return purchase, nil
}

// ListPurchases returns the account's purchase history after the lazy
// expiration check.
func (s *Service) ListPurchases(ctx context.Context, accountID string, now time.Time) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		if _, err := s.activePurchase(ctx, q, accountID, now); err != nil {
			return err
		}
		var err error
		purchases, err = s.db.ListPurchasesByAccount(ctx, q, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

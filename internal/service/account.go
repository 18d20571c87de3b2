package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/auth"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/ledger"
	"clickrewards-api/internal/metrics"
	"clickrewards-api/internal/models"
	"clickrewards-api/internal/validation"
)

// newReferralCode derives a short invite code. Uniqueness is enforced by
// the accounts schema.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
}

// Register creates a new account. When a valid referral code is supplied
// the referrer gains a confirmed referral edge and the flat registration
// bonus, both committed atomically with the new account.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest, now time.Time) (*models.Account, error) {
	req.Email = strings.ToLower(validation.SanitizeString(req.Email))
	req.Name = validation.SanitizeString(req.Name)
	req.ReferralCode = validation.SanitizeString(req.ReferralCode)

	if err := validation.ValidateRegister(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	acct := &models.Account{
		ID:            uuid.New().String(),
		Email:         req.Email,
		PasswordHash:  hash,
		Name:          req.Name,
		Role:          models.RoleUser,
		Active:        true,
		ReferralCode:  newReferralCode(),
		LastResetDate: ledger.DateKey(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var edge *models.Referral
	err = s.db.WithTx(ctx, func(q database.Querier) error {
		existing, err := s.db.GetAccountByEmail(ctx, q, req.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Duplicate("email is already registered")
		}

		var referrer *models.Account
		if req.ReferralCode != "" {
			referrer, err = s.db.GetAccountByReferralCode(ctx, q, req.ReferralCode)
			if err != nil {
				return err
			}
			if referrer == nil {
				return apperr.Validation("unknown referral code")
			}
			acct.ReferredBy = referrer.ID
		}

		if err := s.db.CreateAccount(ctx, q, acct); err != nil {
			if database.IsConstraintViolation(err) {
				return apperr.Duplicate("email is already registered")
			}
			return err
		}

		if referrer == nil {
			return nil
		}

		// Team growth is capped; past the cap no edge or bonus is
		// recorded, only the referred_by link on the new account.
		teamSize, err := s.db.CountReferrals(ctx, q, referrer.ID)
		if err != nil {
			return err
		}
		if teamSize >= s.cfg.Rewards.TeamCap {
			return nil
		}

		bonus := s.cfg.Rewards.RegistrationBonusCents
		edge = &models.Referral{
			ID:           uuid.New().String(),
			ReferrerID:   referrer.ID,
			ReferredID:   acct.ID,
			EarningCents: bonus,
			Status:       models.ReferralConfirmed,
			CreatedAt:    now,
		}
		if err := s.db.InsertReferral(ctx, q, edge); err != nil {
			return err
		}

		if err := ledger.Credit(referrer, bonus, models.CategoryReferrals, ledger.DateKey(now)); err != nil {
			return err
		}
		return s.db.UpdateAccountLedger(ctx, q, referrer)
	})
	if err != nil {
		return nil, err
	}

	metrics.RegistrationsTotal.Inc()
	if edge != nil {
		metrics.LedgerCreditsTotal.WithLabelValues(string(models.CategoryReferrals)).Add(float64(edge.EarningCents))
		s.publish(ctx, events.EventReferralRecorded, events.ReferralRecordedData{Referral: *edge})
	}

	return acct, nil
}

// DeactivateAccount administratively disables an account. Issued tokens
// stop working at the next request because every operation reloads the
// account.
func (s *Service) DeactivateAccount(ctx context.Context, accountID string) error {
	acct, err := s.db.GetAccountByID(ctx, s.db.Q(), accountID)
	if err != nil {
		return err
	}
	if acct == nil {
		return apperr.NotFound("account %s not found", accountID)
	}
	return s.db.DeactivateAccount(ctx, s.db.Q(), accountID)
}

// Login verifies credentials. It either succeeds or fails; there is no
// further token mechanics in the core.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.Account, error) {
	email := strings.ToLower(validation.SanitizeString(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	acct, err := s.db.GetAccountByEmail(ctx, s.db.Q(), email)
	if err != nil {
		return nil, err
	}
	if acct == nil || !auth.CheckPassword(req.Password, acct.PasswordHash) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if !acct.Active {
		return nil, apperr.Forbidden("account is deactivated")
	}

	return acct, nil
}

// GetProfile returns the aggregated account snapshot. Pending withdrawals
// and the active purchase are derived, not stored.
func (s *Service) GetProfile(ctx context.Context, accountID string, now time.Time) (*models.Profile, error) {
	var profile models.Profile

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		acct, err := s.getAccount(ctx, q, accountID)
		if err != nil {
			return err
		}

		active, err := s.activePurchase(ctx, q, accountID, now)
		if err != nil {
			return err
		}

		pendingWithdraw, err := s.db.SumOpenCheckouts(ctx, q, accountID)
		if err != nil {
			return err
		}

		ent, err := s.entitlement(ctx, q, acct, now)
		if err != nil {
			return err
		}

		// Present today's counters as of now; the stored row is only
		// rolled forward on the next credit path.
		ledger.RollDay(acct, ledger.DateKey(now))

		profile = models.Profile{
			Account:              *acct,
			ActivePurchase:       active,
			PendingWithdrawCents: pendingWithdraw,
			Entitlement:          ent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// Package service implements the platform core: the ledger, the package
// purchase lifecycle, the ad-click entitlement, the referral engine and the
// withdrawal lifecycle. Every multi-record transition runs inside a single
// database transaction; callers supply the current time so day-boundary
// logic is deterministic under test.
package service

import (
	"context"
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

// Service provides the business logic of the rewards platform.
type Service struct {
	db     *database.DB
	cfg    *config.Config
	cache  cache.Cache
	events *events.Manager
	flags  *features.Manager
}

// NewService creates a new service instance.
func NewService(db *database.DB, cfg *config.Config, c cache.Cache, ev *events.Manager, flags *features.Manager) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		cache:  c,
		events: ev,
		flags:  flags,
	}
}

// getAccount loads an account or reports it missing.
func (s *Service) getAccount(ctx context.Context, q database.Querier, id string) (*models.Account, error) {
	acct, err := s.db.GetAccountByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, apperr.NotFound("account %s not found", id)
	}
	if !acct.Active {
		return nil, apperr.Forbidden("account is deactivated")
	}
	return acct, nil
}

// activePurchase returns the account's active purchase after the lazy
// expiration check, or nil when none survives it. Every read path
// self-heals; correctness never depends on a background sweep.
func (s *Service) activePurchase(ctx context.Context, q database.Querier, accountID string, now time.Time) (*models.Purchase, error) {
	p, err := s.db.GetActivePurchase(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		p.IsActive = false
		p.Status = models.PurchaseExpired
		if err := s.db.UpdatePurchase(ctx, q, p); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return p, nil
}

// entitlement computes the day-scoped click allowance. The quota comes from
// the active package, else the free tier.
func (s *Service) entitlement(ctx context.Context, q database.Querier, acct *models.Account, now time.Time) (models.Entitlement, error) {
	active, err := s.activePurchase(ctx, q, acct.ID, now)
	if err != nil {
		return models.Entitlement{}, err
	}

	quota := s.cfg.Rewards.FreeDailyAds
	if active != nil && acct.MaxDailyAds > 0 {
		quota = acct.MaxDailyAds
	}

	used, err := s.db.CountClicksOnDate(ctx, q, acct.ID, ledger.DateKey(now))
	if err != nil {
		return models.Entitlement{}, err
	}

	remaining := quota - used
	if remaining < 0 {
		remaining = 0
	}

	return models.Entitlement{Quota: quota, Used: used, Remaining: remaining}, nil
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, data interface{}) {
	if s.events == nil || !s.flags.IsEnabled(features.FeatureEventHooksEnabled) {
		return
	}
	s.events.Publish(ctx, eventType, data)
}

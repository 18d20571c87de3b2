package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/cache"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/features"
	"clickrewards-api/internal/ledger"
	"clickrewards-api/internal/metrics"
	"clickrewards-api/internal/models"
	"clickrewards-api/internal/validation"
)

// GetAds returns the active ad catalog together with the caller's click
// entitlement for the day. The catalog half is cacheable; the entitlement
// is always computed fresh.
func (s *Service) GetAds(ctx context.Context, accountID string, now time.Time) (*models.AdsResponse, error) {
	var resp models.AdsResponse

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		acct, err := s.getAccount(ctx, q, accountID)
		if err != nil {
			return err
		}
		resp.Entitlement, err = s.entitlement(ctx, q, acct, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	ads, err := s.adCatalog(ctx)
	if err != nil {
		return nil, err
	}
	resp.Ads = ads

	return &resp, nil
}

func (s *Service) adCatalog(ctx context.Context) ([]models.Ad, error) {
	useCache := s.cache != nil && s.flags.IsEnabled(features.FeatureCacheEnabled)

	if useCache {
		var ads []models.Ad
		if err := cache.GetJSON(ctx, s.cache, cache.KeyAdCatalog, &ads); err == nil {
			return ads, nil
		} else if err != cache.ErrNotFound {
			log.Printf("cache read failed for %s: %v", cache.KeyAdCatalog, err)
		}
	}

	ads, err := s.db.ListActiveAds(ctx, s.db.Q())
	if err != nil {
		return nil, err
	}

	if useCache {
		ttl := time.Duration(s.cfg.Cache.TTLSec) * time.Second
		if err := cache.SetJSON(ctx, s.cache, cache.KeyAdCatalog, ads, ttl); err != nil {
			log.Printf("cache write failed for %s: %v", cache.KeyAdCatalog, err)
		}
	}

	return ads, nil
}

// ClickAd credits one ad view. The click record, the ledger credit and the
// ad counters commit together; the unique (account, ad, day) click index
// backstops the same-ad check under concurrent requests.
func (s *Service) ClickAd(ctx context.Context, accountID, adID string, now time.Time) (*models.ClickResponse, error) {
	if err := validation.ValidateUUID(adID, "ad id"); err != nil {
		return nil, err
	}

	var resp models.ClickResponse
	var earning int64

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		acct, err := s.getAccount(ctx, q, accountID)
		if err != nil {
			return err
		}

		ad, err := s.db.GetAd(ctx, q, adID)
		if err != nil {
			return err
		}
		if ad == nil || !ad.Active {
			return apperr.NotFound("ad %s not found", adID)
		}

		ent, err := s.entitlement(ctx, q, acct, now)
		if err != nil {
			return err
		}
		if ent.Remaining <= 0 {
			return apperr.StateConflict("daily ad limit reached")
		}

		today := ledger.DateKey(now)
		clicked, err := s.db.HasClicked(ctx, q, accountID, adID, today)
		if err != nil {
			return err
		}
		if clicked {
			return apperr.Duplicate("ad already clicked today")
		}

		click := &models.AdClick{
			ID:           uuid.New().String(),
			AccountID:    accountID,
			AdID:         adID,
			EarningCents: ad.EarningCents,
			ClickDate:    today,
			Verified:     true,
			ClickedAt:    now,
		}
		if err := s.db.InsertAdClick(ctx, q, click); err != nil {
			if database.IsConstraintViolation(err) {
				return apperr.Duplicate("ad already clicked today")
			}
			return err
		}

		if err := ledger.Credit(acct, ad.EarningCents, models.CategoryAds, today); err != nil {
			return err
		}
		acct.AdsCompletedToday++
		if err := s.db.UpdateAccountLedger(ctx, q, acct); err != nil {
			return err
		}
		if err := s.db.IncrementAdCounters(ctx, q, adID, ad.EarningCents); err != nil {
			return err
		}

		earning = ad.EarningCents
		resp = models.ClickResponse{
			EarningCents:    ad.EarningCents,
			NewBalanceCents: acct.BalanceCents,
			RemainingClicks: ent.Remaining - 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AdClicksTotal.Inc()
	metrics.LedgerCreditsTotal.WithLabelValues(string(models.CategoryAds)).Add(float64(earning))
	s.publish(ctx, events.EventAdClicked, events.AdClickedData{
		AccountID:    accountID,
		AdID:         adID,
		EarningCents: earning,
	})

	return &resp, nil
}

// UpsertAd administratively creates or edits an ad and invalidates the
// cached catalog.
func (s *Service) UpsertAd(ctx context.Context, a models.Ad, now time.Time) (*models.Ad, error) {
	a.Title = validation.SanitizeString(a.Title)
	if err := validation.ValidateAd(a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
		a.CreatedAt = now
	}
	if err := s.db.UpsertAd(ctx, s.db.Q(), &a); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.KeyAdCatalog); err != nil {
			log.Printf("cache invalidation failed for %s: %v", cache.KeyAdCatalog, err)
		}
	}

	return &a, nil
}

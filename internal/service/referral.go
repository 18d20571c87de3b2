package service

import (
	"context"

	"clickrewards-api/internal/models"
)

// ListReferrals returns the caller's team and aggregate referral earnings.
func (s *Service) ListReferrals(ctx context.Context, accountID string) (*models.ReferralsResponse, error) {
	referrals, err := s.db.ListReferralsByReferrer(ctx, s.db.Q(), accountID)
	if err != nil {
		return nil, err
	}

	resp := &models.ReferralsResponse{
		Referrals: referrals,
		TeamSize:  len(referrals),
	}
	for _, r := range referrals {
		resp.TotalEarnedCents += r.EarningCents
	}
	if resp.Referrals == nil {
		resp.Referrals = []models.Referral{}
	}
	return resp, nil
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/database"
	"clickrewards-api/internal/events"
	"clickrewards-api/internal/ledger"
	"clickrewards-api/internal/metrics"
	"clickrewards-api/internal/models"
	"clickrewards-api/internal/validation"
)

// CreateCheckout files a withdrawal request and escrows the amount: the
// balance is debited immediately so one open request can never promise the
// same cents twice.
func (s *Service) CreateCheckout(ctx context.Context, accountID string, req models.CreateCheckoutRequest, now time.Time) (*models.Checkout, error) {
	req.Details = validation.SanitizeString(req.Details)
	if err := validation.ValidateCreateCheckout(req, s.cfg.Rewards.MinWithdrawCents, s.cfg.Rewards.MaxWithdrawCents); err != nil {
		return nil, err
	}

	checkout := &models.Checkout{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Details:     req.Details,
		Status:      models.CheckoutPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		acct, err := s.getAccount(ctx, q, accountID)
		if err != nil {
			return err
		}

		open, err := s.db.HasOpenCheckout(ctx, q, accountID)
		if err != nil {
			return err
		}
		if open {
			return apperr.Duplicate("an open withdrawal request already exists")
		}

		if err := ledger.Debit(acct, req.AmountCents); err != nil {
			return err
		}
		if err := s.db.UpdateAccountLedger(ctx, q, acct); err != nil {
			return err
		}
		return s.db.CreateCheckout(ctx, q, checkout)
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutsTotal.WithLabelValues("created").Inc()
	s.publish(ctx, events.EventCheckoutCreated, events.CheckoutEventData{Checkout: *checkout})

	return checkout, nil
}

// ProcessCheckout marks a pending request as being paid out.
func (s *Service) ProcessCheckout(ctx context.Context, checkoutID, adminID string, now time.Time) (*models.Checkout, error) {
	return s.transitionCheckout(ctx, checkoutID, func(c *models.Checkout, acct *models.Account) error {
		if c.Status != models.CheckoutPending {
			return apperr.StateConflict("checkout is %s, not pending", c.Status)
		}
		c.Status = models.CheckoutProcessing
		c.AdminID = adminID
		c.UpdatedAt = now
		return nil
	}, "processing")
}

// CompleteCheckout finalizes a payout. The escrowed amount was already off
// the balance; completion only moves it into the withdrawn total.
func (s *Service) CompleteCheckout(ctx context.Context, checkoutID, adminID, transactionID string, now time.Time) (*models.Checkout, error) {
	transactionID = validation.SanitizeString(transactionID)
	return s.transitionCheckout(ctx, checkoutID, func(c *models.Checkout, acct *models.Account) error {
		if c.Status != models.CheckoutPending && c.Status != models.CheckoutProcessing {
			return apperr.StateConflict("checkout is %s, not open", c.Status)
		}
		c.Status = models.CheckoutCompleted
		c.AdminID = adminID
		c.TransactionID = transactionID
		c.CompletedAt = &now
		c.UpdatedAt = now
		acct.TotalWithdrawnCents += c.AmountCents
		return nil
	}, "completed")
}

// RejectCheckout declines an open request and returns the escrowed amount
// to the balance.
func (s *Service) RejectCheckout(ctx context.Context, checkoutID, adminID, reason string, now time.Time) (*models.Checkout, error) {
	reason = validation.SanitizeString(reason)
	return s.transitionCheckout(ctx, checkoutID, func(c *models.Checkout, acct *models.Account) error {
		if c.Status != models.CheckoutPending && c.Status != models.CheckoutProcessing {
			return apperr.StateConflict("checkout is %s, not open", c.Status)
		}
		c.Status = models.CheckoutRejected
		c.AdminID = adminID
		c.Reason = reason
		c.UpdatedAt = now
		return ledger.Refund(acct, c.AmountCents)
	}, "rejected")
}

// CancelCheckout lets the owner withdraw a request that no admin has
// touched yet. Once processing started only an admin can resolve it.
func (s *Service) CancelCheckout(ctx context.Context, checkoutID, accountID string, now time.Time) (*models.Checkout, error) {
	var checkout *models.Checkout

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		c, err := s.db.GetCheckout(ctx, q, checkoutID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("checkout %s not found", checkoutID)
		}
		if c.AccountID != accountID {
			return apperr.Forbidden("checkout belongs to another account")
		}
		if c.Status != models.CheckoutPending {
			return apperr.StateConflict("checkout is %s, not pending", c.Status)
		}

		acct, err := s.getAccount(ctx, q, accountID)
		if err != nil {
			return err
		}

		c.Status = models.CheckoutCancelled
		c.UpdatedAt = now
		if err := ledger.Refund(acct, c.AmountCents); err != nil {
			return err
		}
		if err := s.db.UpdateAccountLedger(ctx, q, acct); err != nil {
			return err
		}
		if err := s.db.UpdateCheckout(ctx, q, c); err != nil {
			return err
		}

		checkout = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutsTotal.WithLabelValues("cancelled").Inc()
	s.publish(ctx, events.EventCheckoutResolved, events.CheckoutEventData{Checkout: *checkout})

	return checkout, nil
}

// ListCheckouts returns the account's withdrawal history, newest first.
func (s *Service) ListCheckouts(ctx context.Context, accountID string) ([]models.Checkout, error) {
	return s.db.ListCheckoutsByAccount(ctx, s.db.Q(), accountID)
}

// transitionCheckout runs an admin-driven state change atomically with the
// owning account's ledger update.
func (s *Service) transitionCheckout(ctx context.Context, checkoutID string, apply func(*models.Checkout, *models.Account) error, outcome string) (*models.Checkout, error) {
	var checkout *models.Checkout

	err := s.db.WithTx(ctx, func(q database.Querier) error {
		c, err := s.db.GetCheckout(ctx, q, checkoutID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("checkout %s not found", checkoutID)
		}

		acct, err := s.db.GetAccountByID(ctx, q, c.AccountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return apperr.NotFound("account %s not found", c.AccountID)
		}

		if err := apply(c, acct); err != nil {
			return err
		}

		if err := s.db.UpdateAccountLedger(ctx, q, acct); err != nil {
			return err
		}
		if err := s.db.UpdateCheckout(ctx, q, c); err != nil {
			return err
		}

		checkout = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutsTotal.WithLabelValues(outcome).Inc()
	if checkout.Status != models.CheckoutProcessing {
		s.publish(ctx, events.EventCheckoutResolved, events.CheckoutEventData{Checkout: *checkout})
	}

	return checkout, nil
}

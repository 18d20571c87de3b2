package models

import "time"

// All monetary amounts are integer cents.

// EarningCategory labels where a credit came from.
type EarningCategory string

const (
	CategoryAds         EarningCategory = "ads"
	CategoryReferrals   EarningCategory = "referrals"
	CategoryInvestments EarningCategory = "investments"
)

// PurchaseStatus is the lifecycle state of a package purchase.
type PurchaseStatus string

const (
	PurchasePending  PurchaseStatus = "pending"
	PurchaseApproved PurchaseStatus = "approved"
	PurchaseRejected PurchaseStatus = "rejected"
	PurchaseExpired  PurchaseStatus = "expired"
)

// CheckoutStatus is the lifecycle state of a withdrawal request.
type CheckoutStatus string

const (
	CheckoutPending    CheckoutStatus = "pending"
	CheckoutProcessing CheckoutStatus = "processing"
	CheckoutCompleted  CheckoutStatus = "completed"
	CheckoutRejected   CheckoutStatus = "rejected"
	CheckoutCancelled  CheckoutStatus = "cancelled"
)

// ReferralStatus is the state of a referral edge.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralConfirmed ReferralStatus = "confirmed"
	ReferralPaid      ReferralStatus = "paid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account holds a user's identity, balance and running totals.
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Active       bool   `json:"active"`

	ReferralCode string `json:"referral_code"`
	ReferredBy   string `json:"referred_by,omitempty"` // account id of the referrer, empty when none

	BalanceCents        int64 `json:"balance_cents"`
	TotalEarningsCents  int64 `json:"total_earnings_cents"`
	TotalDepositsCents  int64 `json:"total_deposits_cents"`
	TotalWithdrawnCents int64 `json:"total_withdrawn_cents"`

	EarningsAdsCents         int64 `json:"earnings_ads_cents"`
	EarningsReferralsCents   int64 `json:"earnings_referrals_cents"`
	EarningsInvestmentsCents int64 `json:"earnings_investments_cents"`

	// Daily counters, reset lazily when LastResetDate falls behind the
	// current calendar day.
	AdsCompletedToday  int    `json:"ads_completed_today"`
	EarningsTodayCents int64  `json:"earnings_today_cents"`
	LastResetDate      string `json:"last_reset_date"` // YYYY-MM-DD

	MaxDailyAds int `json:"max_daily_ads"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plan is a catalog entry for a purchasable package.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	DurationDays int       `json:"duration_days"`
	DailyAds     int       `json:"daily_ads"`
	DailyRate    float64   `json:"daily_rate"` // daily profit rate, fraction of price
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Purchase is one package purchase attempt. PlanID is empty for ad-hoc
// amounts with no catalog entry.
type Purchase struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"account_id"`
	PlanID      string         `json:"plan_id,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	ProofRef    string         `json:"proof_ref"`
	Status      PurchaseStatus `json:"status"`
	IsActive    bool           `json:"is_active"`

	IsUpgrade  bool   `json:"is_upgrade"`
	PreviousID string `json:"previous_id,omitempty"` // purchase superseded by this upgrade

	AdminID      string     `json:"admin_id,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ad is a watchable ad paying a fixed amount per view.
type Ad struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	EarningCents   int64     `json:"earning_cents"`
	Active         bool      `json:"active"`
	ClickCount     int64     `json:"click_count"`
	TotalPaidCents int64     `json:"total_paid_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AdClick records one completed ad view. Immutable once written; the
// (account, ad, click date) triple is unique.
type AdClick struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	AdID         string    `json:"ad_id"`
	EarningCents int64     `json:"earning_cents"`
	ClickDate    string    `json:"click_date"` // YYYY-MM-DD
	Verified     bool      `json:"verified"`
	ClickedAt    time.Time `json:"clicked_at"`
}

// Checkout is a withdrawal request. The amount is debited from the account
// the moment the request is created and either refunded (reject/cancel) or
// consumed into TotalWithdrawn (complete).
type Checkout struct {
	ID            string         `json:"id"`
	AccountID     string         `json:"account_id"`
	AmountCents   int64          `json:"amount_cents"`
	Method        string         `json:"method"`
	Details       string         `json:"details"`
	Status        CheckoutStatus `json:"status"`
	AdminID       string         `json:"admin_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Referral is the directed edge referrer -> referred.
type Referral struct {
	ID           string         `json:"id"`
	ReferrerID   string         `json:"referrer_id"`
	ReferredID   string         `json:"referred_id"`
	EarningCents int64          `json:"earning_cents"`
	Status       ReferralStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token   string  `json:"token"`
	Account Account `json:"account"`
}

// SubmitPurchaseRequest is the body for POST /purchases.
type SubmitPurchaseRequest struct {
	PlanID      string `json:"plan_id,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	ProofRef    string `json:"proof_ref"`
	IsUpgrade   bool   `json:"is_upgrade"`
}

// RejectRequest carries an admin rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CompleteCheckoutRequest is the body for PUT /checkouts/{id}/complete.
type CompleteCheckoutRequest struct {
	TransactionID string `json:"transaction_id"`
}

// CreateCheckoutRequest is the body for POST /checkouts.
type CreateCheckoutRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Details     string `json:"details"`
}

// Entitlement is the day-scoped ad click allowance.
type Entitlement struct {
	Quota     int `json:"quota"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// AdsResponse is the payload for GET /ads.
type AdsResponse struct {
	Entitlement Entitlement `json:"entitlement"`
	Ads         []Ad        `json:"ads"`
}

// ClickResponse is the payload for POST /ads/{id}/click.
type ClickResponse struct {
	EarningCents    int64 `json:"earning_cents"`
	NewBalanceCents int64 `json:"new_balance_cents"`
	RemainingClicks int   `json:"remaining_clicks"`
}

// Profile is the aggregated account snapshot for GET /profile.
type Profile struct {
	Account              Account     `json:"account"`
	ActivePurchase       *Purchase   `json:"active_purchase,omitempty"`
	PendingWithdrawCents int64       `json:"pending_withdraw_cents"`
	Entitlement          Entitlement `json:"entitlement"`
}

// ReferralsResponse is the payload for GET /referrals.
type ReferralsResponse struct {
	Referrals        []Referral `json:"referrals"`
	TotalEarnedCents int64      `json:"total_earned_cents"`
	TeamSize         int        `json:"team_size"`
}

// ErrorResponse is the error body returned by every handler.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

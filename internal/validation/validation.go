package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/models"
)

var (
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Withdrawal methods the platform knows how to pay out.
var withdrawMethods = map[string]bool{
	"bank":   true,
	"paypal": true,
	"usdt":   true,
	"mobile": true,
}

func fieldErr(field, format string, args ...interface{}) error {
	return apperr.Validation("field '%s' %s", field, fmt.Sprintf(format, args...))
}

// SanitizeString strips control characters and trims whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateUUID checks that id is a UUID v4.
func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return fieldErr(fieldName, "is required")
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return fieldErr(fieldName, "must be a valid UUID v4")
	}

	return nil
}

// ValidateRegister checks a registration request.
func ValidateRegister(req models.RegisterRequest) error {
	if req.Email == "" {
		return fieldErr("email", "is required")
	}
	if !emailRegex.MatchString(req.Email) {
		return fieldErr("email", "must be a valid email address")
	}
	if len(req.Password) < 8 {
		return fieldErr("password", "must be at least 8 characters")
	}
	if len(req.Password) > 128 {
		return fieldErr("password", "cannot exceed 128 characters")
	}
	if req.Name == "" {
		return fieldErr("name", "is required")
	}
	if len(req.Name) > 100 {
		return fieldErr("name", "cannot exceed 100 characters")
	}
	return nil
}

// ValidateSubmitPurchase checks a purchase submission. Exactly one of
// plan_id and amount_cents must identify the package.
func ValidateSubmitPurchase(req models.SubmitPurchaseRequest) error {
	if req.PlanID == "" && req.AmountCents == 0 {
		return fieldErr("plan_id", "or amount_cents is required")
	}
	if req.PlanID != "" && req.AmountCents != 0 {
		return fieldErr("amount_cents", "cannot be combined with plan_id")
	}
	if req.PlanID != "" {
		if err := ValidateUUID(req.PlanID, "plan_id"); err != nil {
			return err
		}
	}
	if req.AmountCents < 0 {
		return fieldErr("amount_cents", "must be positive")
	}
	maxAmount := int64(100_000_00)
	if req.AmountCents > maxAmount {
		return fieldErr("amount_cents", "exceeds maximum allowed amount")
	}
	if req.ProofRef == "" {
		return fieldErr("proof_ref", "is required")
	}
	if len(req.ProofRef) > 500 {
		return fieldErr("proof_ref", "cannot exceed 500 characters")
	}
	return nil
}

// ValidateCreateCheckout checks a withdrawal request against the
// configured bounds.
func ValidateCreateCheckout(req models.CreateCheckoutRequest, minCents, maxCents int64) error {
	if req.AmountCents <= 0 {
		return fieldErr("amount_cents", "must be positive")
	}
	if req.AmountCents < minCents {
		return fieldErr("amount_cents", "is below the minimum withdrawal of %d", minCents)
	}
	if req.AmountCents > maxCents {
		return fieldErr("amount_cents", "is above the maximum withdrawal of %d", maxCents)
	}
	if req.Method == "" {
		return fieldErr("method", "is required")
	}
	if !withdrawMethods[req.Method] {
		return fieldErr("method", "must be one of bank, paypal, usdt, mobile")
	}
	if len(req.Details) > 500 {
		return fieldErr("details", "cannot exceed 500 characters")
	}
	return nil
}

// ValidatePlan checks an admin catalog edit.
func ValidatePlan(p models.Plan) error {
	if p.Name == "" {
		return fieldErr("name", "is required")
	}
	if p.PriceCents <= 0 {
		return fieldErr("price_cents", "must be positive")
	}
	if p.DurationDays <= 0 {
		return fieldErr("duration_days", "must be positive")
	}
	if p.DurationDays > 3650 {
		return fieldErr("duration_days", "cannot exceed 10 years")
	}
	if p.DailyAds < 0 {
		return fieldErr("daily_ads", "must be non-negative")
	}
	if p.DailyRate < 0 || p.DailyRate > 1 {
		return fieldErr("daily_rate", "must be between 0 and 1")
	}
	return nil
}

// ValidateAd checks an admin ad edit.
func ValidateAd(a models.Ad) error {
	if a.Title == "" {
		return fieldErr("title", "is required")
	}
	if a.URL == "" {
		return fieldErr("url", "is required")
	}
	if a.EarningCents <= 0 {
		return fieldErr("earning_cents", "must be positive")
	}
	return nil
}

// ValidateTimeString parses an RFC3339 timestamp.
func ValidateTimeString(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, apperr.Validation("field 'now' is required")
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, apperr.Validation("field 'now' must be a valid RFC3339 timestamp")
	}

	return t, nil
}

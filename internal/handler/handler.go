package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clickrewards-api/internal/apperr"
	"clickrewards-api/internal/auth"
	"clickrewards-api/internal/models"
	"clickrewards-api/internal/service"
	"clickrewards-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	auth        *auth.Manager
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service, am *auth.Manager) *Handler {
	return NewHandlerWithOptions(svc, am, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, am *auth.Manager, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		auth:        am,
		maxBodySize: opts.MaxBodySize,
	}
}

// Register handles POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	account, err := h.service.Register(r.Context(), req, now)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondAuth(w, http.StatusCreated, account)
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	account, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondAuth(w, http.StatusOK, account)
}

func (h *Handler) respondAuth(w http.ResponseWriter, status int, account *models.Account) {
	token, err := h.auth.IssueToken(account.ID, account.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, status, models.AuthResponse{Token: token, Account: *account})
}

// GetProfile handles GET /profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, profile)
}

// ListPlans handles GET /plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	h.respondJSON(w, http.StatusOK, plans)
}

// UpsertPlan handles PUT /admin/plans
func (h *Handler) UpsertPlan(w http.ResponseWriter, r *http.Request) {
	var req models.Plan
	if !h.decodeBody(w, r, &req) {
		return
	}
	req.Name = validation.SanitizeString(req.Name)

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	plan, err := h.service.UpsertPlan(r.Context(), req, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, plan)
}

// SubmitPurchase handles POST /purchases
func (h *Handler) SubmitPurchase(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitPurchaseRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	purchase, err := h.service.SubmitPurchase(r.Context(), auth.AccountID(r.Context()), req, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, purchase)
}

// ListPurchases handles GET /purchases
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if purchases == nil {
		purchases = []models.Purchase{}
	}
	h.respondJSON(w, http.StatusOK, purchases)
}

// ApprovePurchase handles PUT /admin/purchases/{id}/approve
func (h *Handler) ApprovePurchase(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	purchase, err := h.service.ApprovePurchase(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, purchase)
}

// RejectPurchase handles PUT /admin/purchases/{id}/reject
func (h *Handler) RejectPurchase(w http.ResponseWriter, r *http.Request) {
	var req models.RejectRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	purchase, err := h.service.RejectPurchase(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), req.Reason, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, purchase)
}

// GetAds handles GET /ads
func (h *Handler) GetAds(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	resp, err := h.service.GetAds(r.Context(), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if resp.Ads == nil {
		resp.Ads = []models.Ad{}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ClickAd handles POST /ads/{id}/click
func (h *Handler) ClickAd(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ClickAd(r.Context(), auth.AccountID(r.Context()), chi.URLParam(r, "id"), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// UpsertAd handles PUT /admin/ads
func (h *Handler) UpsertAd(w http.ResponseWriter, r *http.Request) {
	var req models.Ad
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	ad, err := h.service.UpsertAd(r.Context(), req, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ad)
}

// CreateCheckout handles POST /checkouts
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCheckoutRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	checkout, err := h.service.CreateCheckout(r.Context(), auth.AccountID(r.Context()), req, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, checkout)
}

// ListCheckouts handles GET /checkouts
func (h *Handler) ListCheckouts(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.service.ListCheckouts(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if checkouts == nil {
		checkouts = []models.Checkout{}
	}
	h.respondJSON(w, http.StatusOK, checkouts)
}

// CancelCheckout handles PUT /checkouts/{id}/cancel
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	checkout, err := h.service.CancelCheckout(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, checkout)
}

// ProcessCheckout handles PUT /admin/checkouts/{id}/process
func (h *Handler) ProcessCheckout(w http.ResponseWriter, r *http.Request) {
	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	checkout, err := h.service.ProcessCheckout(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, checkout)
}

// CompleteCheckout handles PUT /admin/checkouts/{id}/complete
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteCheckoutRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	checkout, err := h.service.CompleteCheckout(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), req.TransactionID, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, checkout)
}

// RejectCheckout handles PUT /admin/checkouts/{id}/reject
func (h *Handler) RejectCheckout(w http.ResponseWriter, r *http.Request) {
	var req models.RejectRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	now, ok := h.requestTime(w, r)
	if !ok {
		return
	}

	checkout, err := h.service.RejectCheckout(r.Context(), chi.URLParam(r, "id"), auth.AccountID(r.Context()), req.Reason, now)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, checkout)
}

// DeactivateAccount handles PUT /admin/accounts/{id}/deactivate
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ListReferrals handles GET /referrals
func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListReferrals(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads the size-limited JSON body into dest. It writes the
// error response itself and reports whether decoding succeeded.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			h.respondError(w, apperr.Validation("request body is required"))
			return false
		}
		h.respondError(w, apperr.Validation("invalid JSON in request body"))
		return false
	}
	return true
}

// requestTime resolves the reference time for the request. The optional
// 'now' query parameter (RFC3339) overrides the wall clock so day
// boundaries and expirations are reproducible. It writes the error
// response itself and reports whether the time is usable.
func (h *Handler) requestTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	nowParam := r.URL.Query().Get("now")
	if nowParam == "" {
		return time.Now().UTC(), true
	}

	parsed, err := validation.ValidateTimeString(validation.SanitizeString(nowParam))
	if err != nil {
		h.respondError(w, apperr.Validation("invalid 'now' parameter, must be RFC3339 format"))
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps a classified error to its status code and error body.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		kind = "internal_error"
		message = "internal server error"
	} else {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			message = ae.Message
		}
	}

	h.respondJSON(w, status, models.ErrorResponse{Kind: string(kind), Error: message})
}

package checkout_api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/cart"
	"ms-storefront/internal/checkout"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	lock "ms-storefront/internal/order/redis"
	"ms-storefront/internal/payment/services"
	"ms-storefront/internal/promo"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const (
	maxWebhookBytes = 65536
	statusPath      = "/api/checkout/payment-status"
)

type CheckoutService interface {
	Review(ctx context.Context, c *cart.Cart) checkout.ReviewResult
	StartCheckout(ctx context.Context, c *cart.Cart, userID string) (*checkout.StartResult, error)
	PaymentStatus(ctx context.Context, req checkout.StatusRequest) (*checkout.StatusResult, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
}

type CartLoader interface {
	Load(ctx context.Context, sessionID string) (*cart.Cart, error)
}

type PromoService interface {
	Verify(ctx context.Context, code string) (*models.PromoCode, error)
	Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Preview, error)
}

type OrderOwner interface {
	RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error)
}

type OrderEvents interface {
	SubscribeToOrder(ctx context.Context, orderNumber string) <-chan models.OrderEvent
}

type Handler struct {
	Checkout CheckoutService
	Carts    CartLoader
	Promos   PromoService
	Orders   OrderOwner
	Events   OrderEvents
	Logger   *logger.Logger
}

// RegisterWebhook mounts the Stripe webhook. It needs no cart session.
func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/webhooks/stripe", h.StripeWebhook)
}

// RegisterRoutes mounts the public checkout routes on r and the rest behind
// requireAuth. r is expected to carry the cart session middleware.
func (h *Handler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/checkout/success/", h.ReturnFromCheckout)
	r.Get("/checkout/cancel/", h.ReturnFromCheckout)
	r.Get("/api/promo-code/verify/{code}", h.VerifyPromoCode)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/api/checkout/review", h.ReviewCart)
		r.Post("/api/checkout/payment", h.StartPayment)
		r.Get(statusPath, h.PaymentStatus)
		r.Get("/api/checkout/{orderNumber}/events", h.StreamOrderEvents)
	})
}

// ReviewCart runs the cart validation chain.
func (h *Handler) ReviewCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}
	result := h.Checkout.Review(r.Context(), c)
	status := http.StatusOK
	if result.Status != "success" {
		status = http.StatusBadRequest
	}
	utils.WriteJSON(w, status, result)
}

// StartPayment creates the order and returns the hosted checkout URL.
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	c, ok := h.loadCart(w, r)
	if !ok {
		return
	}

	result, err := h.Checkout.StartCheckout(r.Context(), c, userID)
	if err != nil {
		h.writeError(w, "Checkout failed", err)
		return
	}
	h.Logger.LogOrder("CHECKOUT", result.OrderNumber, "redirecting user "+userID+" to hosted checkout")
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"checkout_url": result.CheckoutURL,
		"order_number": result.OrderNumber,
	})
}

// ReturnFromCheckout forwards the hosted checkout return to the status endpoint.
func (h *Handler) ReturnFromCheckout(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("order_id", r.URL.Query().Get("order_id"))
	q.Set("session_id", r.URL.Query().Get("session_id"))
	http.Redirect(w, r, statusPath+"?"+q.Encode(), http.StatusSeeOther)
}

// PaymentStatus reports the order and payment outcome after hosted checkout.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	req := checkout.StatusRequest{
		SessionID:     r.URL.Query().Get("session_id"),
		OrderNumber:   r.URL.Query().Get("order_id"),
		UserID:        auth.UserID(r.Context()),
		CartSessionID: cart.SessionID(r.Context()),
	}
	result, err := h.Checkout.PaymentStatus(r.Context(), req)
	if err != nil {
		h.writeError(w, "Failed to load payment status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status", result))
}

// StripeWebhook handles webhook events from Stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook body: %v", err))
		utils.WriteError(w, http.StatusServiceUnavailable, "Failed to read request body", nil)
		return
	}

	err = h.Checkout.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var webhookErr *checkout.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("WEBHOOK", fmt.Sprintf("Webhook rejected category=%s status=%d", webhookErr.Category, webhookErr.StatusCode))
			utils.WriteJSON(w, webhookErr.StatusCode, utils.ErrorResponse("Webhook processing error", webhookErr.PublicError))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing error: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Webhook processing error", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// VerifyPromoCode checks a code and previews its discount on the session cart.
func (h *Handler) VerifyPromoCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var subtotal decimal.Decimal
	if sessionID := cart.SessionID(r.Context()); sessionID != "" {
		if c, err := h.Carts.Load(r.Context(), sessionID); err == nil {
			subtotal = c.Summary().Subtotal
		}
	}

	if subtotal.IsPositive() {
		preview, err := h.Promos.Preview(r.Context(), code, subtotal)
		if err != nil {
			h.writeError(w, "Invalid promo code", err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Promo code is valid", preview))
		return
	}

	p, err := h.Promos.Verify(r.Context(), code)
	if err != nil {
		h.writeError(w, "Invalid promo code", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Promo code is valid", promo.Preview{
		Code:           p.Code,
		DiscountType:   p.DiscountType,
		DiscountValue:  p.DiscountValue,
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
	}))
}

func (h *Handler) loadCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	sessionID := cart.SessionID(r.Context())
	c, err := h.Carts.Load(r.Context(), sessionID)
	if err != nil {
		h.Logger.Error("CART", fmt.Sprintf("Load cart %s failed: %v", sessionID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load cart", nil)
		return nil, false
	}
	return c, true
}

func (h *Handler) writeError(w http.ResponseWriter, message string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", message, err))
		utils.WriteError(w, status, message, nil)
		return
	}
	utils.WriteError(w, status, message, err)
}

// StatusFor maps checkout, ledger and provider errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		emptyCart   *checkout.EmptyCartError
		outOfStock  *checkout.OutOfStockError
		notFound    *orderdb.OrderNotFoundError
		transition  *orderdb.InvalidTransitionError
		promoAbsent *promo.PromoCodeNotFoundError
		inactive    *promo.PromoCodeInactiveError
		expired     *promo.PromoCodeExpiredError
		notApplies  *promo.PromoCodeNotApplicableError
	)
	switch {
	case errors.As(err, &emptyCart), errors.As(err, &outOfStock),
		errors.Is(err, checkout.ErrMissingParameters), errors.Is(err, checkout.ErrSessionMismatch),
		errors.As(err, &inactive), errors.As(err, &expired), errors.As(err, &notApplies):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.As(err, &notFound), errors.As(err, &promoAbsent), errors.Is(err, orderdb.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition), errors.Is(err, lock.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, services.ErrStripeAPIError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

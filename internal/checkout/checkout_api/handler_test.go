package checkout_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/cart"
	"ms-storefront/internal/checkout"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	lock "ms-storefront/internal/order/redis"
	"ms-storefront/internal/payment/services"
	"ms-storefront/internal/promo"
	"ms-storefront/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) Review(ctx context.Context, c *cart.Cart) checkout.ReviewResult {
	return m.Called(ctx, c).Get(0).(checkout.ReviewResult)
}

func (m *mockCheckout) StartCheckout(ctx context.Context, c *cart.Cart, userID string) (*checkout.StartResult, error) {
	args := m.Called(ctx, c, userID)
	res, _ := args.Get(0).(*checkout.StartResult)
	return res, args.Error(1)
}

func (m *mockCheckout) PaymentStatus(ctx context.Context, req checkout.StatusRequest) (*checkout.StatusResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*checkout.StatusResult)
	return res, args.Error(1)
}

func (m *mockCheckout) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

type mockPromos struct{ mock.Mock }

func (m *mockPromos) Verify(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	p, _ := args.Get(0).(*models.PromoCode)
	return p, args.Error(1)
}

func (m *mockPromos) Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*promo.Preview, error) {
	args := m.Called(ctx, code, subtotal)
	p, _ := args.Get(0).(*promo.Preview)
	return p, args.Error(1)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error) {
	args := m.Called(ctx, orderNumber, userID)
	o, _ := args.Get(0).(*models.Order)
	return o, args.Error(1)
}

// carts serves fixed carts per session id.
type carts map[string]*cart.Cart

func (c carts) Load(ctx context.Context, sessionID string) (*cart.Cart, error) {
	if found, ok := c[sessionID]; ok {
		return found, nil
	}
	return cart.New(cart.DefaultPricing), nil
}

const (
	testUser    = "user-1"
	testSession = "sess_checkout"
)

type fixture struct {
	checkout *mockCheckout
	promos   *mockPromos
	orders   *mockOrders
	emitter  *sse.CheckoutEventEmitter
	carts    carts
	router   http.Handler
}

func setup(t *testing.T) *fixture {
	f := &fixture{
		checkout: new(mockCheckout),
		promos:   new(mockPromos),
		orders:   new(mockOrders),
		emitter:  sse.NewCheckoutEventEmitter(),
		carts:    carts{},
	}
	h := &Handler{
		Checkout: f.checkout,
		Carts:    f.carts,
		Promos:   f.promos,
		Orders:   f.orders,
		Events:   f.emitter,
		Logger:   logger.NewWithWriter(io.Discard),
	}
	requireAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), testUser)))
		})
	}

	r := chi.NewRouter()
	h.RegisterWebhook(r)
	r.Group(func(r chi.Router) {
		r.Use(cart.SessionMiddleware("session_id"))
		h.RegisterRoutes(r, requireAuth)
	})
	f.router = r
	return f
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(cart.SessionHeader, testSession)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer test")
	return req
}

func mugCart() *cart.Cart {
	return cart.FromLines(map[string]models.CartLine{
		"SKU-MUG00001": {Title: "Mug", Price: decimal.NewFromInt(10), Quantity: 3, Stock: 5},
	}, cart.DefaultPricing)
}

func TestReviewCart(t *testing.T) {
	f := setup(t)
	c := mugCart()
	f.carts[testSession] = c
	f.checkout.On("Review", mock.Anything, c).Return(checkout.ReviewResult{Status: "success", Message: "Cart is valid"}).Once()

	rec := f.serve(authed(httptest.NewRequest(http.MethodGet, "/api/checkout/review", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","message":"Cart is valid"}`, rec.Body.String())

	f.checkout.On("Review", mock.Anything, c).Return(checkout.ReviewResult{Status: "error", Error: "Your cart is empty. Add items to proceed."}).Once()
	rec = f.serve(authed(httptest.NewRequest(http.MethodGet, "/api/checkout/review", nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your cart is empty")
}

func TestCheckoutRoutesRequireAuth(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/api/checkout/review", "/api/checkout/payment-status", "/api/checkout/ORD-2026-AAAAAAAA/events"} {
		rec := f.serve(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestStartPayment(t *testing.T) {
	f := setup(t)
	c := mugCart()
	f.carts[testSession] = c
	f.checkout.On("StartCheckout", mock.Anything, c, testUser).Return(&checkout.StartResult{
		OrderNumber: "ORD-2026-0A1B2C3D",
		CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_123",
		SessionID:   "cs_test_123",
	}, nil)

	rec := f.serve(authed(httptest.NewRequest(http.MethodPost, "/api/checkout/payment", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", body["checkout_url"])
	assert.Equal(t, "ORD-2026-0A1B2C3D", body["order_number"])
}

func TestStartPaymentErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"empty cart", &checkout.EmptyCartError{}, http.StatusBadRequest},
		{"out of stock", &checkout.OutOfStockError{Items: []checkout.StockShortage{{Title: "Mug", Available: 1}}}, http.StatusBadRequest},
		{"stripe down", fmt.Errorf("%w: connection reset", services.ErrStripeAPIError), http.StatusBadGateway},
		{"database", errors.New("pq: relation does not exist"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t)
			f.checkout.On("StartCheckout", mock.Anything, mock.Anything, testUser).Return(nil, tc.err)

			rec := f.serve(authed(httptest.NewRequest(http.MethodPost, "/api/checkout/payment", nil)))

			assert.Equal(t, tc.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}

func TestReturnFromCheckoutRedirects(t *testing.T) {
	f := setup(t)

	for _, path := range []string{"/checkout/success/", "/checkout/cancel/"} {
		rec := f.serve(httptest.NewRequest(http.MethodGet, path+"?order_id=ORD-2026-0A1B2C3D&session_id=cs_test_123", nil))

		require.Equal(t, http.StatusSeeOther, rec.Code, path)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/api/checkout/payment-status", loc.Path)
		assert.Equal(t, "ORD-2026-0A1B2C3D", loc.Query().Get("order_id"))
		assert.Equal(t, "cs_test_123", loc.Query().Get("session_id"))
	}
}

func TestPaymentStatus(t *testing.T) {
	f := setup(t)
	want := checkout.StatusRequest{
		SessionID:     "cs_test_123",
		OrderNumber:   "ORD-2026-0A1B2C3D",
		UserID:        testUser,
		CartSessionID: testSession,
	}
	f.checkout.On("PaymentStatus", mock.Anything, want).Return(&checkout.StatusResult{
		OrderNumber:   "ORD-2026-0A1B2C3D",
		OrderStatus:   models.OrderPaid,
		PaymentStatus: models.StatusSuccess,
		FinalTotal:    decimal.NewFromInt(156),
	}, nil)

	rec := f.serve(authed(httptest.NewRequest(http.MethodGet, "/api/checkout/payment-status?order_id=ORD-2026-0A1B2C3D&session_id=cs_test_123", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data checkout.StatusResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.OrderPaid, body.Data.OrderStatus)
	assert.Equal(t, models.StatusSuccess, body.Data.PaymentStatus)
}

func TestPaymentStatusErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{checkout.ErrMissingParameters, http.StatusBadRequest},
		{checkout.ErrPermissionDenied, http.StatusForbidden},
		{&orderdb.OrderNotFoundError{OrderNumber: "ORD-2026-0A1B2C3D"}, http.StatusNotFound},
		{lock.ErrLockHeld, http.StatusConflict},
	}
	for _, tc := range cases {
		f := setup(t)
		f.checkout.On("PaymentStatus", mock.Anything, mock.Anything).Return(nil, tc.err)

		rec := f.serve(authed(httptest.NewRequest(http.MethodGet, "/api/checkout/payment-status", nil)))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestStripeWebhook(t *testing.T) {
	f := setup(t)
	payload := `{"id":"evt_1","type":"checkout.session.completed"}`
	f.checkout.On("HandleStripeWebhook", mock.Anything, []byte(payload), "t=1,v1=abc").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(cart.SessionHeader), "webhooks get no cart session")
	assert.Empty(t, rec.Result().Cookies())
	f.checkout.AssertExpectations(t)
}

func TestStripeWebhookRejected(t *testing.T) {
	f := setup(t)
	f.checkout.On("HandleStripeWebhook", mock.Anything, mock.Anything, "bad").Return(&checkout.WebhookError{
		Category:      "validation",
		StatusCode:    http.StatusBadRequest,
		PublicError:   "Invalid signature",
		InternalError: "no valid signature found",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "bad")
	rec := f.serve(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid signature")
	assert.NotContains(t, rec.Body.String(), "no valid signature found")
}

func TestVerifyPromoCodeWithoutCart(t *testing.T) {
	f := setup(t)
	f.promos.On("Verify", mock.Anything, "SPRING10").Return(&models.PromoCode{
		Code: "SPRING10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10),
	}, nil)
	f.promos.On("Verify", mock.Anything, "OLD").Return(nil, &promo.PromoCodeExpiredError{Code: "OLD"})
	f.promos.On("Verify", mock.Anything, "NOPE").Return(nil, &promo.PromoCodeNotFoundError{Code: "NOPE"})

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/api/promo-code/verify/SPRING10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"discount_type":"percentage"`)

	rec = f.serve(httptest.NewRequest(http.MethodGet, "/api/promo-code/verify/OLD", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `has expired.`)

	rec = f.serve(httptest.NewRequest(http.MethodGet, "/api/promo-code/verify/NOPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyPromoCodePreviewsCart(t *testing.T) {
	f := setup(t)
	f.carts[testSession] = mugCart()
	f.promos.On("Preview", mock.Anything, "SPRING10", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.NewFromInt(30))
	})).Return(&promo.Preview{Code: "SPRING10", Subtotal: decimal.NewFromInt(30), DiscountAmount: decimal.NewFromInt(3)}, nil)

	rec := f.serve(httptest.NewRequest(http.MethodGet, "/api/promo-code/verify/SPRING10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data promo.Preview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.DiscountAmount.Equal(decimal.NewFromInt(3)))
	f.promos.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestStreamOrderEvents(t *testing.T) {
	f := setup(t)
	orderNumber := "ORD-2026-0A1B2C3D"
	f.orders.On("RetrieveUserOrder", mock.Anything, orderNumber, testUser).
		Return(&models.Order{OrderNumber: orderNumber, UserID: testUser, Status: models.OrderPending}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := authed(httptest.NewRequest(http.MethodGet, "/api/checkout/"+orderNumber+"/events", nil)).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		req.Header.Set(cart.SessionHeader, testSession)
		f.router.ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool { return f.emitter.OrderClientCount(orderNumber) == 1 }, time.Second, 5*time.Millisecond)
	f.emitter.EmitOrderEvent(models.OrderEvent{
		Type:          models.EventOrderPaid,
		OrderNumber:   orderNumber,
		UserID:        testUser,
		Status:        models.OrderPaid,
		PaymentStatus: models.StatusSuccess,
	})
	// the event is buffered, give the handler a moment to write it
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream;charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, `"status":"pending"`)
	assert.Contains(t, body, "event: order.paid\n")
	assert.Contains(t, body, `"payment_status":"success"`)
}

func TestStreamOrderEventsForeignOrder(t *testing.T) {
	f := setup(t)
	f.orders.On("RetrieveUserOrder", mock.Anything, "ORD-2026-FFFFFFFF", testUser).Return(nil, orderdb.ErrPermissionDenied)

	rec := f.serve(authed(httptest.NewRequest(http.MethodGet, "/api/checkout/ORD-2026-FFFFFFFF/events", nil)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.emitter.OrderClientCount("ORD-2026-FFFFFFFF"))
}

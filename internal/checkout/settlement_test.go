package checkout_test

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"ms-storefront/internal/catalog"
	"ms-storefront/internal/checkout"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/payment/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

// storeFixture runs the checkout service on a real sqlite ledger and catalog.
type storeFixture struct {
	svc     *checkout.Service
	ledger  *orderdb.DB
	catalog *catalog.DB
	gateway *MockGateway
	locker  *fakeLocker
}

func newStoreFixture(t *testing.T, stock int) *storeFixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	require.NoError(t, catalog.CreateTables(ctx, bunDB))
	require.NoError(t, orderdb.CreateTables(ctx, bunDB))
	_, err = bunDB.NewCreateTable().Model((*models.Address)(nil)).IfNotExists().Exec(ctx)
	require.NoError(t, err)

	_, err = bunDB.NewInsert().Model(&models.Product{
		Name: "Desk Lamp", SKU: lampSKU, Price: decimal.NewFromInt(50), OldPrice: decimal.Zero,
		Stock: stock, Status: models.ProductPublished,
	}).Exec(ctx)
	require.NoError(t, err)

	f := &storeFixture{
		ledger:  &orderdb.DB{Bun: bunDB},
		catalog: &catalog.DB{Bun: bunDB},
		gateway: new(MockGateway),
		locker:  &fakeLocker{},
	}
	f.svc = checkout.NewService(checkout.Deps{
		Ledger:  f.ledger,
		Catalog: f.catalog,
		Gateway: f.gateway,
		Locker:  f.locker,
		Carts:   new(MockCartStore),
	}, logger.NewWithWriter(io.Discard))

	order := pendingOrder("user-1")
	order.ID, order.Payment = 0, nil
	payment := pendingOrder("user-1").Payment
	payment.ID = 0
	require.NoError(t, f.ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := f.ledger.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		payment.OrderID = order.ID
		return f.ledger.CreatePayment(ctx, tx, payment)
	}))

	f.gateway.On("GetSession", mock.Anything, "cs_1").Return(paidSession(), nil)
	f.gateway.On("GetPaymentIntent", mock.Anything, "pi_1").Return(&models.PaymentIntentDetails{
		ID: "pi_1", Status: "succeeded", LatestCharge: "ch_1", Created: fixedNow,
	}, nil)
	return f
}

func (f *storeFixture) webhook(t *testing.T, body string, event *services.Event) error {
	t.Helper()
	f.gateway.On("ConstructEvent", []byte(body), signature).Return(event, nil).Once()
	return f.svc.HandleStripeWebhook(context.Background(), []byte(body), signature)
}

func sessionCompleted() *services.Event {
	return &services.Event{
		ID:       "evt_completed",
		Type:     checkout.EventCheckoutSessionCompleted,
		Session:  paidSession(),
		Metadata: map[string]string{"order_id": orderNumber, "user_id": "user-1"},
	}
}

func (f *storeFixture) stock(t *testing.T) int {
	item, err := f.catalog.GetBySKU(context.Background(), lampSKU)
	require.NoError(t, err)
	return item.Stock()
}

func TestRefundedOrderStaysSettled(t *testing.T) {
	f := newStoreFixture(t, 1)
	ctx := context.Background()

	first, err := f.svc.HandleSuccessPaymentStatus(ctx, "cs_1", orderNumber, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefundedInsufficientStock, first.Status)
	assert.Equal(t, models.StatusSuccess, first.Payment.Status)
	assert.Equal(t, "ch_1", first.Payment.TransactionID)

	res, err := f.svc.PaymentStatus(ctx, checkout.StatusRequest{
		SessionID: "cs_1", OrderNumber: orderNumber, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefundedInsufficientStock, res.OrderStatus)
	assert.Equal(t, models.StatusSuccess, res.PaymentStatus)
	assert.NotEmpty(t, res.FailureReason)

	assert.NoError(t, f.webhook(t, "redelivery", sessionCompleted()))
	assert.NoError(t, f.webhook(t, "late-failure", &services.Event{
		ID:       "evt_failed",
		Type:     checkout.EventPaymentIntentFailed,
		Metadata: map[string]string{"order_id": orderNumber, "user_id": "user-1"},
	}))

	got, err := f.ledger.GetOrderByNumber(ctx, nil, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefundedInsufficientStock, got.Status)
	assert.Equal(t, 1, f.stock(t))
}

func TestDeclinedCardRetriedInSameSession(t *testing.T) {
	f := newStoreFixture(t, 5)
	ctx := context.Background()

	require.NoError(t, f.webhook(t, "declined", &services.Event{
		ID:       "evt_failed",
		Type:     checkout.EventPaymentIntentFailed,
		Intent:   &models.PaymentIntentDetails{ID: "pi_1", FailureReason: "Your card was declined."},
		Metadata: map[string]string{"order_id": orderNumber, "user_id": "user-1"},
	}))
	cancelled, err := f.ledger.GetOrderByNumber(ctx, nil, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, models.StatusFailed, cancelled.Payment.Status)

	require.NoError(t, f.webhook(t, "completed", sessionCompleted()))

	paid, err := f.ledger.GetOrderByNumber(ctx, nil, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, paid.Status)
	assert.Empty(t, paid.FailureReason)
	assert.Equal(t, models.StatusSuccess, paid.Payment.Status)
	assert.Equal(t, 3, f.stock(t))

	// a redelivered decline cannot undo the payment
	require.NoError(t, f.webhook(t, "declined-again", &services.Event{
		ID:       "evt_failed",
		Type:     checkout.EventPaymentIntentFailed,
		Metadata: map[string]string{"order_id": orderNumber, "user_id": "user-1"},
	}))
	again, err := f.ledger.GetOrderByNumber(ctx, nil, orderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, again.Status)
}

func TestPaymentStatusSettlesCancelledOrderWhenSessionPaid(t *testing.T) {
	f := newStoreFixture(t, 5)
	ctx := context.Background()

	_, err := f.svc.HandleFailurePaymentStatus(ctx, orderNumber, "user-1", "Your card was declined.")
	require.NoError(t, err)

	res, err := f.svc.PaymentStatus(ctx, checkout.StatusRequest{
		SessionID: "cs_1", OrderNumber: orderNumber, UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, res.OrderStatus)
	assert.Equal(t, models.StatusSuccess, res.PaymentStatus)
	assert.False(t, res.Processing)
}

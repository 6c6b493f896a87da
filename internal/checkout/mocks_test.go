package checkout_test

import (
	"context"

	"ms-storefront/internal/cart"
	"ms-storefront/internal/catalog"
	"ms-storefront/internal/models"
	"ms-storefront/internal/payment/services"

	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockLedger is a mock of the order ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, bun.Tx{})
}

func (m *MockLedger) CreateOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	args := m.Called(ctx, idb, order)
	return args.Error(0)
}

func (m *MockLedger) CreatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error {
	args := m.Called(ctx, idb, payment)
	return args.Error(0)
}

func (m *MockLedger) CreateOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error {
	args := m.Called(ctx, idb, items)
	return args.Error(0)
}

func (m *MockLedger) GetOrderByNumber(ctx context.Context, idb bun.IDB, orderNumber string) (*models.Order, error) {
	args := m.Called(ctx, idb, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockLedger) UpdateOrderStatus(ctx context.Context, idb bun.IDB, orderNumber string, status models.OrderStatus, reason string) (*models.Order, error) {
	args := m.Called(ctx, idb, orderNumber, status, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockLedger) UpdatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error {
	args := m.Called(ctx, idb, payment)
	return args.Error(0)
}

func (m *MockLedger) GetPaymentByOrderID(ctx context.Context, idb bun.IDB, orderID int64) (*models.Payment, error) {
	args := m.Called(ctx, idb, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

// MockCatalog is a mock of the product catalog
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetBySKU(ctx context.Context, sku string) (*catalog.Item, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Item), args.Error(1)
}

func (m *MockCatalog) DecreaseStock(ctx context.Context, idb bun.IDB, sku string, qty int) error {
	args := m.Called(ctx, idb, sku, qty)
	return args.Error(0)
}

// MockGateway is a mock of the hosted checkout provider
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) LineItems(c *cart.Cart) ([]models.CheckoutLineItem, error) {
	args := m.Called(c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CheckoutLineItem), args.Error(1)
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

func (m *MockGateway) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutSession), args.Error(1)
}

func (m *MockGateway) GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntentDetails, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntentDetails), args.Error(1)
}

func (m *MockGateway) ConstructEvent(payload []byte, signature string) (*services.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Event), args.Error(1)
}

// fakeLocker runs fn inline and counts how often the lock was taken
type fakeLocker struct {
	calls int
	err   error
	held  bool
}

func (l *fakeLocker) IsPaymentLocked(ctx context.Context, orderNumber string) (bool, error) {
	return l.held, nil
}

func (l *fakeLocker) WithPaymentLock(ctx context.Context, orderNumber, owner string, fn func() error) error {
	l.calls++
	if l.err != nil {
		return l.err
	}
	return fn()
}

type MockAddressBook struct {
	mock.Mock
}

func (m *MockAddressBook) ShippingAddress(ctx context.Context, userID string) (*models.Address, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Address), args.Error(1)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) Clear(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type recordingEmitter struct {
	events []models.OrderEvent
}

func (e *recordingEmitter) EmitOrderEvent(event models.OrderEvent) {
	e.events = append(e.events, event)
}

package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-storefront/internal/cart"
	"ms-storefront/internal/catalog"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	orderdb "ms-storefront/internal/order/db"
	"ms-storefront/internal/payment/services"
	"ms-storefront/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

var (
	ErrMissingParameters = errors.New("Missing session_id or order_id")
	ErrSessionMismatch   = errors.New("checkout session does not belong to this order")
	ErrPermissionDenied  = orderdb.ErrPermissionDenied
)

type Ledger interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	CreateOrder(ctx context.Context, idb bun.IDB, order *models.Order) error
	CreatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error
	CreateOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error
	GetOrderByNumber(ctx context.Context, idb bun.IDB, orderNumber string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, idb bun.IDB, orderNumber string, status models.OrderStatus, reason string) (*models.Order, error)
	UpdatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, idb bun.IDB, orderID int64) (*models.Payment, error)
}

type Catalog interface {
	GetBySKU(ctx context.Context, sku string) (*catalog.Item, error)
	DecreaseStock(ctx context.Context, idb bun.IDB, sku string, qty int) error
}

type Gateway interface {
	LineItems(c *cart.Cart) ([]models.CheckoutLineItem, error)
	CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntentDetails, error)
	ConstructEvent(payload []byte, signature string) (*services.Event, error)
}

type PaymentLocker interface {
	WithPaymentLock(ctx context.Context, orderNumber, owner string, fn func() error) error
	IsPaymentLocked(ctx context.Context, orderNumber string) (bool, error)
}

type AddressBook interface {
	ShippingAddress(ctx context.Context, userID string) (*models.Address, error)
}

type CartStore interface {
	Clear(ctx context.Context, sessionID string) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type EventEmitter interface {
	EmitOrderEvent(event models.OrderEvent)
}

// Deps groups the collaborators of the checkout service.
type Deps struct {
	Ledger    Ledger
	Catalog   Catalog
	Gateway   Gateway
	Locker    PaymentLocker
	Addresses AddressBook
	Carts     CartStore
	Publisher EventPublisher
	// Emitter is set when events are not already fanned out by the Kafka consumer.
	Emitter EventEmitter
}

type Service struct {
	Deps
	Validation *CartValidationChain
	Logger     *logger.Logger
	Currency   string
	Now        func() time.Time
}

func NewService(deps Deps, log *logger.Logger) *Service {
	return &Service{
		Deps:       deps,
		Validation: NewCartValidationChain(deps.Catalog),
		Logger:     log,
		Currency:   "USD",
		Now:        time.Now,
	}
}

// ReviewResult is the outcome of the pre-payment cart review.
type ReviewResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Review runs the cart validation chain without touching the ledger.
func (s *Service) Review(ctx context.Context, c *cart.Cart) ReviewResult {
	if err := s.Validation.Validate(ctx, c); err != nil {
		return ReviewResult{Status: "error", Error: err.Error()}
	}
	return ReviewResult{Status: "success", Message: "Cart is valid"}
}

// ---------------- ORDER CREATION ----------------

// OrderCreation persists a pending order holding a copy of the cart.
func (s *Service) OrderCreation(ctx context.Context, tx bun.IDB, c *cart.Cart, userID string, address *models.Address) (*models.Order, error) {
	summary := c.Summary()
	order := &models.Order{
		OrderNumber:    models.NewOrderNumber(s.Now()),
		UserID:         userID,
		Status:         models.OrderPending,
		Subtotal:       summary.Subtotal,
		DiscountAmount: decimal.Zero,
		VAT:            summary.Tax,
		ShippingCost:   summary.ShippingFee,
		FinalTotal:     summary.Total,
		Cart:           c.Snapshot(),
	}
	if address != nil {
		id := address.ID
		order.ShippingAddressID = &id
	}
	if err := s.Ledger.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	s.Logger.LogOrder("CREATE", order.OrderNumber, fmt.Sprintf("pending order for user %s, total %s", userID, order.FinalTotal.StringFixed(2)))
	return order, nil
}

// PaymentCreation persists the pending payment of an order.
func (s *Service) PaymentCreation(ctx context.Context, tx bun.IDB, order *models.Order, provider models.PaymentProvider) (*models.Payment, error) {
	payment := &models.Payment{
		OrderID:  order.ID,
		Method:   models.MethodCard,
		Provider: provider,
		Status:   models.StatusPending,
		Amount:   order.FinalTotal,
		Currency: strings.ToUpper(s.Currency),
	}
	if err := s.Ledger.CreatePayment(ctx, tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// AddOrderItems writes one order item per cart line.
func (s *Service) AddOrderItems(ctx context.Context, tx bun.IDB, order *models.Order, c *cart.Cart) ([]models.OrderItem, error) {
	skus := make([]string, 0, len(c.Lines))
	for sku := range c.Lines {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	items := make([]models.OrderItem, 0, len(skus))
	for _, sku := range skus {
		line := c.Lines[sku]
		item, err := s.Catalog.GetBySKU(ctx, sku)
		if err != nil {
			return nil, fmt.Errorf("resolve %s for order %s: %w", sku, order.OrderNumber, err)
		}
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   item.ProductID(),
			VariantID:   item.VariantID(),
			ProductName: line.Title,
			Attributes:  line.Attributes,
			UnitPrice:   line.Price,
			Quantity:    line.Quantity,
			TotalPrice:  line.Total(),
			ImageURL:    line.Image,
		})
	}
	if err := s.Ledger.CreateOrderItems(ctx, tx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// StartResult is what the client needs to continue to hosted checkout.
type StartResult struct {
	OrderNumber string `json:"order_number"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// StartCheckout validates the cart, writes order, payment and items in one
// transaction, then opens the hosted checkout session.
func (s *Service) StartCheckout(ctx context.Context, c *cart.Cart, userID string) (*StartResult, error) {
	if err := s.Validation.Validate(ctx, c); err != nil {
		return nil, err
	}

	address, err := s.Addresses.ShippingAddress(ctx, userID)
	if err != nil {
		s.Logger.Warn("CHECKOUT", fmt.Sprintf("No shipping address for user %s: %v", userID, err))
		address = nil
	}

	var order *models.Order
	var payment *models.Payment
	err = s.Ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if order, err = s.OrderCreation(ctx, tx, c, userID, address); err != nil {
			return err
		}
		if payment, err = s.PaymentCreation(ctx, tx, order, models.ProviderStripe); err != nil {
			return err
		}
		_, err = s.AddOrderItems(ctx, tx, order, c)
		return err
	})
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to create order for user %s: %v", userID, err))
		return nil, err
	}
	s.publish(ctx, models.EventOrderCreated, order, payment.Status)

	lineItems, err := s.Gateway.LineItems(c)
	if err != nil {
		s.abandon(ctx, order, payment, err)
		return nil, err
	}
	session, err := s.Gateway.CreateCheckoutSession(ctx, models.CheckoutSessionRequest{
		OrderNumber: order.OrderNumber,
		UserID:      userID,
		PaymentID:   payment.ID,
		LineItems:   lineItems,
	})
	if err != nil {
		s.abandon(ctx, order, payment, err)
		return nil, err
	}

	payment.StripeSessionID = session.ID
	payment.StripePaymentIntentID = session.PaymentIntentID
	if err := s.Ledger.UpdatePayment(ctx, nil, payment); err != nil {
		return nil, err
	}

	s.Logger.LogPayment("SESSION", order.OrderNumber, "checkout session "+session.ID)
	return &StartResult{OrderNumber: order.OrderNumber, CheckoutURL: session.URL, SessionID: session.ID}, nil
}

// abandon cancels an order whose checkout session could not be opened.
func (s *Service) abandon(ctx context.Context, order *models.Order, payment *models.Payment, cause error) {
	reason := cause.Error()
	updated, err := s.Ledger.UpdateOrderStatus(ctx, nil, order.OrderNumber, models.OrderCancelled, reason)
	if err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to cancel order %s: %v", order.OrderNumber, err))
		return
	}
	payment.Status = models.StatusFailed
	if err := s.Ledger.UpdatePayment(ctx, nil, payment); err != nil {
		s.Logger.Error("CHECKOUT", fmt.Sprintf("Failed to mark payment of %s failed: %v", order.OrderNumber, err))
	}
	s.publish(ctx, models.EventOrderCancelled, updated, payment.Status)
}

// ---------------- PAYMENT OUTCOME ----------------

func (s *Service) loadOwnedOrder(ctx context.Context, orderNumber, userID string) (*models.Order, *models.Payment, error) {
	order, err := s.Ledger.GetOrderByNumber(ctx, nil, orderNumber)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != userID {
		s.Logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("user %s tried to settle order %s", userID, orderNumber))
		return nil, nil, ErrPermissionDenied
	}
	payment := order.Payment
	if payment == nil {
		if payment, err = s.Ledger.GetPaymentByOrderID(ctx, nil, order.ID); err != nil {
			return nil, nil, err
		}
		order.Payment = payment
	}
	return order, payment, nil
}

// awaitsSettlement reports whether a provider confirmation can still move the
// order to paid: a pending order, or one cancelled by a declined attempt.
func awaitsSettlement(order *models.Order, payment *models.Payment) bool {
	switch order.Status {
	case models.OrderPending:
		return !payment.IsSettled()
	case models.OrderCancelled:
		return payment.Status == models.StatusFailed
	default:
		return false
	}
}

// HandleSuccessPaymentStatus records a confirmed payment. Under the order
// payment lock it marks the order paid, settles the payment and decrements
// stock in one transaction. An order past settlement is returned untouched.
func (s *Service) HandleSuccessPaymentStatus(ctx context.Context, sessionID, orderNumber, userID string) (*models.Order, error) {
	var result *models.Order
	err := s.Locker.WithPaymentLock(ctx, orderNumber, utils.GenerateUUID(), func() error {
		order, payment, err := s.loadOwnedOrder(ctx, orderNumber, userID)
		if err != nil {
			return err
		}
		if !awaitsSettlement(order, payment) {
			s.Logger.LogPayment("SKIP", orderNumber, fmt.Sprintf("nothing to settle (order %s, payment %s)", order.Status, payment.Status))
			result = order
			return nil
		}

		session, err := s.Gateway.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		var intent *models.PaymentIntentDetails
		if session.PaymentIntentID != "" {
			if intent, err = s.Gateway.GetPaymentIntent(ctx, session.PaymentIntentID); err != nil {
				return err
			}
		}

		settled := s.settledPayment(*payment, session, intent)
		txErr := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
			paid, err := s.Ledger.UpdateOrderStatus(ctx, tx, orderNumber, models.OrderPaid, "")
			if err != nil {
				return err
			}
			if err := s.Ledger.UpdatePayment(ctx, tx, &settled); err != nil {
				return err
			}
			if err := s.decreaseStock(ctx, tx, order); err != nil {
				return err
			}
			paid.Payment = &settled
			result = paid
			return nil
		})

		var shortage *catalog.InsufficientStockError
		if errors.As(txErr, &shortage) {
			// the charge went through, keep it on record for the refund
			var refunded *models.Order
			err := s.Ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
				var err error
				if refunded, err = s.Ledger.UpdateOrderStatus(ctx, tx, orderNumber, models.OrderRefundedInsufficientStock, txErr.Error()); err != nil {
					return err
				}
				return s.Ledger.UpdatePayment(ctx, tx, &settled)
			})
			if err != nil {
				return err
			}
			s.Logger.LogOrder("REFUND", orderNumber, fmt.Sprintf("%s, refund %s %s via %s", txErr.Error(), settled.Amount.StringFixed(2), settled.Currency, settled.TransactionID))
			refunded.Payment = &settled
			result = refunded
			s.publish(ctx, models.EventOrderCancelled, refunded, settled.Status)
			return nil
		}
		if txErr != nil {
			return txErr
		}

		s.Logger.LogPayment("SUCCESS", orderNumber, fmt.Sprintf("%s %s via %s", settled.Amount.StringFixed(2), settled.Currency, settled.TransactionID))
		s.publish(ctx, models.EventOrderPaid, result, settled.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) settledPayment(payment models.Payment, session *models.CheckoutSession, intent *models.PaymentIntentDetails) models.Payment {
	payment.Status = models.StatusSuccess
	payment.Amount = decimal.New(session.AmountTotal, -2)
	if len(session.PaymentMethodTypes) > 0 {
		payment.Method = models.PaymentMethod(session.PaymentMethodTypes[0])
	}
	if session.Currency != "" {
		payment.Currency = strings.ToUpper(session.Currency)
	}
	payment.StripeSessionID = session.ID

	paidAt := s.Now().UTC()
	if intent != nil {
		payment.StripePaymentIntentID = intent.ID
		payment.TransactionID = intent.LatestCharge
		if !intent.Created.IsZero() {
			paidAt = intent.Created
		}
	}
	payment.PaidAt = &paidAt
	return payment
}

func (s *Service) decreaseStock(ctx context.Context, tx bun.IDB, order *models.Order) error {
	skus := make([]string, 0, len(order.Cart))
	for sku := range order.Cart {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		if err := s.Catalog.DecreaseStock(ctx, tx, sku, order.Cart[sku].Quantity); err != nil {
			return err
		}
	}
	return nil
}

// HandleFailurePaymentStatus cancels the order and fails its payment, unless
// the payment already succeeded or the order reached a final status.
func (s *Service) HandleFailurePaymentStatus(ctx context.Context, orderNumber, userID, reason string) (*models.Order, error) {
	order, payment, err := s.loadOwnedOrder(ctx, orderNumber, userID)
	if err != nil {
		return nil, err
	}
	if payment.IsSettled() || order.Status.IsTerminal() {
		s.Logger.LogPayment("SKIP", orderNumber, "failure after settlement ignored")
		return order, nil
	}

	var cancelled *models.Order
	err = s.Ledger.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if cancelled, err = s.Ledger.UpdateOrderStatus(ctx, tx, orderNumber, models.OrderCancelled, reason); err != nil {
			return err
		}
		payment.Status = models.StatusFailed
		return s.Ledger.UpdatePayment(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	cancelled.Payment = payment
	s.Logger.LogPayment("FAILED", orderNumber, reason)
	s.publish(ctx, models.EventOrderCancelled, cancelled, payment.Status)
	return cancelled, nil
}

// HandleWebhookFallback settles a paid session when the webhook has not
// arrived yet.
func (s *Service) HandleWebhookFallback(ctx context.Context, sessionID, orderNumber, userID string) (*models.Order, error) {
	session, err := s.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsPaid() {
		s.Logger.LogPayment("FALLBACK", orderNumber, "session paid, settling without webhook")
		return s.HandleSuccessPaymentStatus(ctx, sessionID, orderNumber, userID)
	}
	order, _, err := s.loadOwnedOrder(ctx, orderNumber, userID)
	return order, err
}

// CheckoutContext ties a hosted checkout session to its order and payment.
type CheckoutContext struct {
	Session *models.CheckoutSession
	Order   *models.Order
	Payment *models.Payment
}

// FetchCheckoutContext loads the session, order and payment behind a return
// from hosted checkout.
func (s *Service) FetchCheckoutContext(ctx context.Context, sessionID, orderNumber string) (CheckoutContext, error) {
	if sessionID == "" || orderNumber == "" {
		return CheckoutContext{}, ErrMissingParameters
	}
	session, err := s.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		return CheckoutContext{}, err
	}
	if ref := session.Metadata["order_id"]; ref != "" && ref != orderNumber {
		return CheckoutContext{}, ErrSessionMismatch
	}
	order, err := s.Ledger.GetOrderByNumber(ctx, nil, orderNumber)
	if err != nil {
		return CheckoutContext{}, err
	}
	payment := order.Payment
	if payment == nil {
		if payment, err = s.Ledger.GetPaymentByOrderID(ctx, nil, order.ID); err != nil {
			return CheckoutContext{}, err
		}
	}
	return CheckoutContext{Session: session, Order: order, Payment: payment}, nil
}

type StatusRequest struct {
	SessionID     string
	OrderNumber   string
	UserID        string
	CartSessionID string
}

type StatusResult struct {
	OrderNumber   string               `json:"order_number"`
	OrderStatus   models.OrderStatus   `json:"order_status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	FailureReason string               `json:"failure_reason,omitempty"`
	FinalTotal    decimal.Decimal      `json:"final_total"`
	// Processing is set while another request holds the order payment lock.
	Processing bool `json:"processing,omitempty"`
}

// PaymentStatus reports the outcome a customer sees after hosted checkout.
// An order still awaiting settlement goes through the webhook fallback,
// unless a settlement is already running. A paid session empties the cart.
func (s *Service) PaymentStatus(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	cc, err := s.FetchCheckoutContext(ctx, req.SessionID, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	if cc.Order.UserID != req.UserID {
		return nil, ErrPermissionDenied
	}

	order, payment := cc.Order, cc.Payment
	processing := false
	if awaitsSettlement(order, payment) {
		if processing, err = s.Locker.IsPaymentLocked(ctx, req.OrderNumber); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Payment lock check for %s failed: %v", req.OrderNumber, err))
			processing = false
		}
	}
	if processing {
		s.Logger.LogPayment("PROCESSING", order.OrderNumber, "settlement in progress, skipping fallback")
	} else if awaitsSettlement(order, payment) {
		updated, err := s.HandleWebhookFallback(ctx, req.SessionID, req.OrderNumber, req.UserID)
		if err != nil {
			return nil, err
		}
		order = updated
		if updated.Payment != nil {
			payment = updated.Payment
		}
	}

	if cc.Session.IsPaid() && req.CartSessionID != "" {
		if err := s.Carts.Clear(ctx, req.CartSessionID); err != nil {
			s.Logger.Warn("CART", fmt.Sprintf("Failed to clear cart %s: %v", req.CartSessionID, err))
		} else {
			s.Logger.LogCart("CLEAR", req.CartSessionID, "cart emptied after payment of "+order.OrderNumber)
		}
	}

	return &StatusResult{
		OrderNumber:   order.OrderNumber,
		OrderStatus:   order.Status,
		PaymentStatus: payment.Status,
		FailureReason: order.FailureReason,
		FinalTotal:    order.FinalTotal,
		Processing:    processing,
	}, nil
}

func (s *Service) publish(ctx context.Context, eventType models.OrderEventType, order *models.Order, paymentStatus models.PaymentStatus) {
	event := models.NewOrderEvent(eventType, order, paymentStatus)
	if s.Publisher != nil {
		if err := s.Publisher.PublishOrderEvent(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Kafka publish error (%s %s): %v", eventType, order.OrderNumber, err))
		}
	}
	if s.Emitter != nil {
		s.Emitter.EmitOrderEvent(event)
	}
}

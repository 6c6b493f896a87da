package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ms-storefront/internal/cart"
	"ms-storefront/internal/config"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrEmptyCart              = errors.New("cannot build a checkout session for an empty cart")
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrWebhookNotConfigured   = errors.New("stripe webhook secret is not configured")
)

const (
	ShippingFeeItem = "Shipping Fee"
	VATItem         = "VAT"
)

// StripeService handles integration with Stripe hosted checkout
type StripeService struct {
	client        *client.API
	log           *logger.Logger
	domainURL     string
	currency      string
	webhookSecret string
}

// NewStripeService creates a new instance of StripeService
func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	return NewStripeServiceWithBackends(cfg, nil, log)
}

// NewStripeServiceWithBackends lets callers point the client at another API host.
func NewStripeServiceWithBackends(cfg config.StripeConfig, backends *stripe.Backends, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, backends)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{
		client:        sc,
		log:           log,
		domainURL:     cfg.DomainURL,
		currency:      currency,
		webhookSecret: cfg.WebhookSecret,
	}, nil
}

// toCents truncates an amount to integer minor units.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// BuildLineItems converts a cart into checkout line items: one per SKU plus
// the shipping fee and the VAT, each as its own item at quantity 1.
func BuildLineItems(c *cart.Cart, currency string) ([]models.CheckoutLineItem, error) {
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	summary := c.Summary()

	skus := make([]string, 0, len(c.Lines))
	for sku := range c.Lines {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	items := make([]models.CheckoutLineItem, 0, len(skus)+2)
	for _, sku := range skus {
		line := c.Lines[sku]
		items = append(items, models.CheckoutLineItem{
			Name:       line.Title,
			UnitAmount: toCents(line.Price),
			Quantity:   int64(line.Quantity),
			Currency:   currency,
		})
	}
	items = append(items,
		models.CheckoutLineItem{Name: ShippingFeeItem, UnitAmount: toCents(summary.ShippingFee), Quantity: 1, Currency: currency},
		models.CheckoutLineItem{Name: VATItem, UnitAmount: toCents(summary.Tax), Quantity: 1, Currency: currency},
	)
	return items, nil
}

func (s *StripeService) LineItems(c *cart.Cart) ([]models.CheckoutLineItem, error) {
	return BuildLineItems(c, s.currency)
}

func (s *StripeService) successURL(orderNumber string) string {
	return fmt.Sprintf("%scheckout/success/?order_id=%s&session_id={CHECKOUT_SESSION_ID}", s.domainURL, orderNumber)
}

func (s *StripeService) cancelURL(orderNumber string) string {
	return fmt.Sprintf("%scheckout/cancel/?order_id=%s&session_id={CHECKOUT_SESSION_ID}", s.domainURL, orderNumber)
}

// CreateCheckoutSession opens a hosted checkout session for an order.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req models.CheckoutSessionRequest) (*models.CheckoutSession, error) {
	if len(req.LineItems) == 0 {
		return nil, ErrEmptyCart
	}

	s.log.Info("STRIPE", fmt.Sprintf("Creating checkout session for order %s (%d line items)", req.OrderNumber, len(req.LineItems)))

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: []*string{stripe.String("card")},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(s.successURL(req.OrderNumber)),
		CancelURL:          stripe.String(s.cancelURL(req.OrderNumber)),
	}
	params.Context = ctx
	for _, item := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(item.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	metadata := map[string]string{
		"user_id":    req.UserID,
		"order_id":   req.OrderNumber,
		"payment_id": strconv.FormatInt(req.PaymentID, 10),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	// copied onto the intent so payment_intent.* events carry the order
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}

	session, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session for order %s: %v", req.OrderNumber, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	s.log.Info("STRIPE", fmt.Sprintf("Checkout session %s created for order %s", session.ID, req.OrderNumber))
	return toCheckoutSession(session), nil
}

// GetSession retrieves a checkout session by id.
func (s *StripeService) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := s.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve checkout session %s: %v", sessionID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	return toCheckoutSession(session), nil
}

// GetPaymentIntent retrieves the payment intent behind a session.
func (s *StripeService) GetPaymentIntent(ctx context.Context, intentID string) (*models.PaymentIntentDetails, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := s.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", intentID, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	return toPaymentIntentDetails(intent), nil
}

// Event is a verified webhook event with its object decoded.
type Event struct {
	ID       string
	Type     string
	Session  *models.CheckoutSession
	Intent   *models.PaymentIntentDetails
	Metadata map[string]string
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (s *StripeService) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}
	return ConstructEvent(payload, signature, s.webhookSecret)
}

func ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, opts)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNotSigned),
			errors.Is(err, webhook.ErrInvalidHeader),
			errors.Is(err, webhook.ErrNoValidSignature),
			errors.Is(err, webhook.ErrTooOld):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "checkout.session."):
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Session = toCheckoutSession(&session)
		out.Metadata = session.Metadata
	case strings.HasPrefix(out.Type, "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Intent = toPaymentIntentDetails(&intent)
		out.Metadata = intent.Metadata
	}
	return out, nil
}

func toCheckoutSession(session *stripe.CheckoutSession) *models.CheckoutSession {
	out := &models.CheckoutSession{
		ID:                 session.ID,
		URL:                session.URL,
		PaymentStatus:      string(session.PaymentStatus),
		AmountTotal:        session.AmountTotal,
		Currency:           string(session.Currency),
		PaymentMethodTypes: session.PaymentMethodTypes,
		Metadata:           session.Metadata,
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out
}

func toPaymentIntentDetails(intent *stripe.PaymentIntent) *models.PaymentIntentDetails {
	out := &models.PaymentIntentDetails{
		ID:      intent.ID,
		Status:  string(intent.Status),
		Created: utils.UnixTimeToTime(intent.Created),
	}
	if intent.LatestCharge != nil {
		out.LatestCharge = intent.LatestCharge.ID
	}
	if intent.LastPaymentError != nil {
		out.FailureReason = intent.LastPaymentError.Msg
	}
	return out
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSuccess PaymentStatus = "success"
	StatusFailed  PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodCard           PaymentMethod = "card"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPaypal PaymentProvider = "paypal"
)

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID                    int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID               int64           `bun:"order_id,unique,notnull" json:"order_id"`
	Method                PaymentMethod   `bun:"method,notnull" json:"method"`
	Provider              PaymentProvider `bun:"provider,notnull" json:"provider"`
	Status                PaymentStatus   `bun:"status,notnull" json:"status"`
	StripePaymentIntentID string          `bun:"stripe_payment_intent_id,nullzero" json:"stripe_payment_intent_id,omitempty"`
	StripeSessionID       string          `bun:"stripe_session_id,nullzero" json:"stripe_session_id,omitempty"`
	TransactionID         string          `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`
	Amount                decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Currency              string          `bun:"currency,notnull" json:"currency"`
	CreatedAt             time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	PaidAt                *time.Time      `bun:"paid_at" json:"paid_at,omitempty"`
}

// IsSettled reports whether a success was already recorded for this payment.
func (p *Payment) IsSettled() bool {
	return p.Status == StatusSuccess
}

package models

import "time"

// CheckoutSession is the provider-neutral view of a hosted checkout session.
type CheckoutSession struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url,omitempty"`
	PaymentStatus      string            `json:"payment_status"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	PaymentIntentID    string            `json:"payment_intent,omitempty"`
	PaymentMethodTypes []string          `json:"payment_method_types,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// IsPaid reports whether the provider has confirmed the session payment.
func (s *CheckoutSession) IsPaid() bool {
	return s.PaymentStatus == "paid"
}

// PaymentIntentDetails carries the payment intent fields recorded on success.
type PaymentIntentDetails struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	LatestCharge  string    `json:"latest_charge,omitempty"`
	Created       time.Time `json:"created"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// CheckoutLineItem is one hosted checkout line priced in cents.
type CheckoutLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int64  `json:"quantity"`
	Currency   string `json:"currency"`
}

// CheckoutSessionRequest holds what the provider needs to open a session.
type CheckoutSessionRequest struct {
	OrderNumber string
	UserID      string
	PaymentID   int64
	LineItems   []CheckoutLineItem
}

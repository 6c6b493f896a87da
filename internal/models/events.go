package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	EventOrderCreated   OrderEventType = "order.created"
	EventOrderPaid      OrderEventType = "order.paid"
	EventOrderCancelled OrderEventType = "order.cancelled"
)

// OrderEvent is the message published on the order events topic.
type OrderEvent struct {
	Type          OrderEventType  `json:"type"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status,omitempty"`
	FinalTotal    decimal.Decimal `json:"final_total"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewOrderEvent(eventType OrderEventType, order *Order, paymentStatus PaymentStatus) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: paymentStatus,
		FinalTotal:    order.FinalTotal,
		Reason:        order.FailureReason,
		OccurredAt:    time.Now().UTC(),
	}
}

type AccountNotificationType string

const (
	NotifyAccountActivation AccountNotificationType = "account.activation"
	NotifyPasswordReset     AccountNotificationType = "account.password_reset"
)

// AccountNotification carries a one-time account token to the mailer.
type AccountNotification struct {
	Type       AccountNotificationType `json:"type"`
	UserID     string                  `json:"user_id"`
	Username   string                  `json:"username"`
	Email      string                  `json:"email"`
	Token      string                  `json:"token"`
	OccurredAt time.Time               `json:"occurred_at"`
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending                   OrderStatus = "pending"
	OrderPaid                      OrderStatus = "paid"
	OrderShipped                   OrderStatus = "shipped"
	OrderCompleted                 OrderStatus = "completed"
	OrderCancelled                 OrderStatus = "cancelled"
	OrderRefundedInsufficientStock OrderStatus = "refunded_insufficient_stock"
)

// A cancelled order may still become paid: hosted checkout lets a customer
// retry a declined card within the same session.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPaid, OrderCancelled, OrderRefundedInsufficientStock},
	OrderPaid:      {OrderShipped, OrderCancelled, OrderRefundedInsufficientStock},
	OrderShipped:   {OrderCompleted},
	OrderCancelled: {OrderPaid, OrderRefundedInsufficientStock},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CartLine is one SKU entry of a cart. Orders keep a copy of these lines.
type CartLine struct {
	Title      string            `json:"title"`
	Price      decimal.Decimal   `json:"price"`
	OldPrice   decimal.Decimal   `json:"old_price"`
	Stock      int               `json:"stock"`
	Image      string            `json:"image"`
	Quantity   int               `json:"quantity"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Discount   string            `json:"discount,omitempty"`
}

// Total is quantity x unit price.
func (l CartLine) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                int64               `bun:"id,pk,autoincrement" json:"id"`
	OrderNumber       string              `bun:"order_number,unique,notnull" json:"order_number"`
	UserID            string              `bun:"user_id,notnull" json:"user_id"`
	Status            OrderStatus         `bun:"status,notnull" json:"status"`
	Subtotal          decimal.Decimal     `bun:"subtotal,type:numeric(12,2),notnull" json:"subtotal"`
	DiscountAmount    decimal.Decimal     `bun:"discount_amount,type:numeric(12,2),notnull" json:"discount_amount"`
	VAT               decimal.Decimal     `bun:"vat,type:numeric(12,2),notnull" json:"vat"`
	ShippingCost      decimal.Decimal     `bun:"shipping_cost,type:numeric(12,2),notnull" json:"shipping_cost"`
	FinalTotal        decimal.Decimal     `bun:"final_total,type:numeric(12,2),notnull" json:"final_total"`
	ShippingAddressID *int64              `bun:"shipping_address_id" json:"shipping_address_id,omitempty"`
	Cart              map[string]CartLine `bun:"cart,type:jsonb" json:"cart"`
	FailureReason     string              `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`
	CreatedAt         time.Time           `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time           `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Items           []OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
	Payment         *Payment    `bun:"rel:has-one,join:id=order_id" json:"payment,omitempty"`
	ShippingAddress *Address    `bun:"rel:belongs-to,join:shipping_address_id=id" json:"shipping_address,omitempty"`
}

// NewOrderNumber generates ORD-<year>-<8 upper hex> from a time based UUID.
func NewOrderNumber(now time.Time) string {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("ORD-%d-%s", now.Year(), strings.ToUpper(hex[:8]))
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID          int64             `bun:"id,pk,autoincrement" json:"id"`
	OrderID     int64             `bun:"order_id,notnull" json:"order_id"`
	ProductID   *int64            `bun:"product_id" json:"product_id,omitempty"`
	VariantID   *int64            `bun:"variant_id" json:"variant_id,omitempty"`
	ProductName string            `bun:"product_name,notnull" json:"product_name"`
	Attributes  map[string]string `bun:"attributes,type:jsonb" json:"attributes,omitempty"`
	UnitPrice   decimal.Decimal   `bun:"unit_price,type:numeric(10,2),notnull" json:"unit_price"`
	Quantity    int               `bun:"quantity,notnull" json:"quantity"`
	TotalPrice  decimal.Decimal   `bun:"total_price,type:numeric(12,2),notnull" json:"total_price"`
	ImageURL    string            `bun:"image_url" json:"image_url,omitempty"`
}

type OrderSummary struct {
	OrderNumber string          `json:"order_number"`
	Status      OrderStatus     `json:"status"`
	FinalTotal  decimal.Decimal `json:"final_total"`
	ItemCount   int             `json:"item_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

var (
	ErrPermissionDenied = errors.New("You don't have permission to view this order")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// OrderNotFoundError is returned when no order carries the given number.
type OrderNotFoundError struct {
	OrderNumber string
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("Order with ID %s not found.", e.OrderNumber)
}

// InvalidTransitionError is returned when a status write breaks the order state machine.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

// RunInTx runs fn inside one database transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// ---------------- ORDERS ----------------

// CreateOrder → insert a new order, filling its id
func (d *DB) CreateOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	_, err := d.conn(idb).NewInsert().Model(order).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.OrderNumber, err)
	}
	return nil
}

// GetOrderByNumber → fetch one order with its payment
func (d *DB) GetOrderByNumber(ctx context.Context, idb bun.IDB, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := d.conn(idb).NewSelect().
		Model(&order).
		Relation("Payment").
		Where("\"order\".order_number = ?", orderNumber).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &OrderNotFoundError{OrderNumber: orderNumber}
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	return &order, nil
}

// UpdateOrderStatus moves an order along the state machine. Writing the
// current status again is a no-op. A paid order drops any earlier failure
// reason.
func (d *DB) UpdateOrderStatus(ctx context.Context, idb bun.IDB, orderNumber string, status models.OrderStatus, reason string) (*models.Order, error) {
	order, err := d.GetOrderByNumber(ctx, idb, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !models.CanTransition(order.Status, status) {
		return nil, &InvalidTransitionError{From: order.Status, To: status}
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	columns := []string{"status", "updated_at"}
	if reason != "" || status == models.OrderPaid {
		order.FailureReason = reason
		columns = append(columns, "failure_reason")
	}

	_, err = d.conn(idb).NewUpdate().
		Model(order).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update order %s status: %w", orderNumber, err)
	}
	return order, nil
}

// RetrieveUserOrder → fetch an order with items, payment and address, scoped to its owner
func (d *DB) RetrieveUserOrder(ctx context.Context, orderNumber, userID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Relation("Items").
		Relation("Payment").
		Relation("ShippingAddress").
		Where("\"order\".order_number = ?", orderNumber).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &OrderNotFoundError{OrderNumber: orderNumber}
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	if order.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return &order, nil
}

// ListUserOrders → newest first summaries of a user's orders
func (d *DB) ListUserOrders(ctx context.Context, userID string) ([]models.OrderSummary, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Relation("Items").
		Where("\"order\".user_id = ?", userID).
		Order("order.created_at DESC", "order.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", userID, err)
	}

	result := make([]models.OrderSummary, 0, len(orders))
	for _, o := range orders {
		count := 0
		for _, item := range o.Items {
			count += item.Quantity
		}
		result = append(result, models.OrderSummary{
			OrderNumber: o.OrderNumber,
			Status:      o.Status,
			FinalTotal:  o.FinalTotal,
			ItemCount:   count,
			CreatedAt:   o.CreatedAt,
		})
	}
	return result, nil
}

// ---------------- ITEMS ----------------

func (d *DB) CreateOrderItems(ctx context.Context, idb bun.IDB, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	_, err := d.conn(idb).NewInsert().Model(&items).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (d *DB) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("order_id = ?", orderID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get items of order %d: %w", orderID, err)
	}
	return items, nil
}

// ---------------- PAYMENTS ----------------

func (d *DB) CreatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error {
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := d.conn(idb).NewInsert().Model(payment).Returning("id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert payment for order %d: %w", payment.OrderID, err)
	}
	return nil
}

func (d *DB) GetPaymentByOrderID(ctx context.Context, idb bun.IDB, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := d.conn(idb).NewSelect().
		Model(&payment).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment of order %d: %w", orderID, err)
	}
	return &payment, nil
}

// UpdatePayment → write the mutable payment fields
func (d *DB) UpdatePayment(ctx context.Context, idb bun.IDB, payment *models.Payment) error {
	res, err := d.conn(idb).NewUpdate().
		Model(payment).
		Column("method", "status", "stripe_payment_intent_id", "stripe_session_id",
			"transaction_id", "amount", "currency", "paid_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", payment.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// CreateTables creates the ledger tables when they are missing.
func CreateTables(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{
		(*models.Order)(nil),
		(*models.OrderItem)(nil),
		(*models.Payment)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

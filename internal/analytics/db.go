package analytics

import (
	"context"
	"time"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// RevenueStatuses are the order statuses that count as a completed sale.
var RevenueStatuses = []models.OrderStatus{models.OrderPaid, models.OrderShipped, models.OrderCompleted}

// Range bounds a report on order creation time. Zero values are open ends.
type Range struct {
	From time.Time
	To   time.Time
}

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

func (r Range) apply(q *bun.SelectQuery, column string) *bun.SelectQuery {
	if !r.From.IsZero() {
		q = q.Where(column+" >= ?", r.From.UTC())
	}
	if !r.To.IsZero() {
		q = q.Where(column+" < ?", r.To.UTC())
	}
	return q
}

// StatusTotal is the order count and amount for one status.
type StatusTotal struct {
	Status models.OrderStatus `bun:"status" json:"status"`
	Orders int                `bun:"orders" json:"orders"`
	Amount decimal.Decimal    `bun:"amount" json:"amount"`
}

// TotalsByStatus groups orders by status
func (db *DB) TotalsByStatus(ctx context.Context, r Range) ([]StatusTotal, error) {
	var totals []StatusTotal
	q := db.bun.NewSelect().
		TableExpr("orders AS o").
		ColumnExpr("o.status AS status").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("SUM(o.final_total) AS amount")
	q = r.apply(q, "o.created_at")
	err := q.GroupExpr("o.status").
		OrderExpr("o.status ASC").
		Scan(ctx, &totals)
	return totals, err
}

// RevenueOrders returns the sold orders of the range, oldest first
func (db *DB) RevenueOrders(ctx context.Context, r Range) ([]models.Order, error) {
	var orders []models.Order
	q := db.bun.NewSelect().
		Model(&orders).
		Column("id", "order_number", "status", "final_total", "created_at").
		Where("status IN (?)", bun.In(RevenueStatuses))
	q = r.apply(q, "created_at")
	err := q.Order("created_at ASC").Scan(ctx)
	return orders, err
}

// ProductSales is the sold quantity and revenue of one product name.
type ProductSales struct {
	ProductName string          `bun:"product_name" json:"product_name"`
	Quantity    int             `bun:"quantity" json:"quantity"`
	Revenue     decimal.Decimal `bun:"revenue" json:"revenue"`
}

// TopProducts ranks sold items by quantity
func (db *DB) TopProducts(ctx context.Context, r Range, limit int) ([]ProductSales, error) {
	var rows []ProductSales
	q := db.bun.NewSelect().
		TableExpr("order_items AS oi").
		Join("JOIN orders AS o ON o.id = oi.order_id").
		ColumnExpr("oi.product_name AS product_name").
		ColumnExpr("SUM(oi.quantity) AS quantity").
		ColumnExpr("SUM(oi.total_price) AS revenue").
		Where("o.status IN (?)", bun.In(RevenueStatuses))
	q = r.apply(q, "o.created_at")
	err := q.GroupExpr("oi.product_name").
		OrderExpr("quantity DESC, oi.product_name ASC").
		Limit(limit).
		Scan(ctx, &rows)
	return rows, err
}

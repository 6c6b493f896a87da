package analytics

import (
	"context"
	"fmt"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

const DefaultTopProducts = 5

type Store interface {
	TotalsByStatus(ctx context.Context, r Range) ([]StatusTotal, error)
	RevenueOrders(ctx context.Context, r Range) ([]models.Order, error)
	TopProducts(ctx context.Context, r Range, limit int) ([]ProductSales, error)
}

// Service handles analytics operations
type Service struct {
	store  Store
	logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, logger: log}
}

// DailySales contains metrics for a single day
type DailySales struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// SalesSummary is the sales report for a date range.
type SalesSummary struct {
	TotalOrders       int             `json:"total_orders"`
	PaidOrders        int             `json:"paid_orders"`
	Revenue           decimal.Decimal `json:"revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	ByStatus          []StatusTotal   `json:"by_status"`
	DailySales        []DailySales    `json:"daily_sales"`
	TopProducts       []ProductSales  `json:"top_products"`
}

// Sales builds the revenue, status and best seller report for r.
func (s *Service) Sales(ctx context.Context, r Range, top int) (*SalesSummary, error) {
	if top <= 0 {
		top = DefaultTopProducts
	}

	totals, err := s.store.TotalsByStatus(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("totals by status: %w", err)
	}
	orders, err := s.store.RevenueOrders(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("revenue orders: %w", err)
	}
	products, err := s.store.TopProducts(ctx, r, top)
	if err != nil {
		return nil, fmt.Errorf("top products: %w", err)
	}

	summary := &SalesSummary{
		Revenue:           decimal.Zero,
		AverageOrderValue: decimal.Zero,
		ByStatus:          nonNil(totals),
		DailySales:        dailySales(orders),
		TopProducts:       nonNil(products),
	}
	for _, t := range totals {
		summary.TotalOrders += t.Orders
	}
	for _, o := range orders {
		summary.Revenue = summary.Revenue.Add(o.FinalTotal)
	}
	summary.PaidOrders = len(orders)
	if summary.PaidOrders > 0 {
		summary.AverageOrderValue = summary.Revenue.Div(decimal.NewFromInt(int64(summary.PaidOrders))).Round(2)
	}

	s.logger.Debug("ANALYTICS", fmt.Sprintf("Sales report: %d orders, revenue %s", summary.TotalOrders, summary.Revenue.StringFixed(2)))
	return summary, nil
}

// dailySales expects orders sorted by creation time.
func dailySales(orders []models.Order) []DailySales {
	days := make([]DailySales, 0)
	for _, o := range orders {
		date := o.CreatedAt.UTC().Format("2006-01-02")
		if n := len(days); n > 0 && days[n-1].Date == date {
			days[n-1].Revenue = days[n-1].Revenue.Add(o.FinalTotal)
			days[n-1].Orders++
			continue
		}
		days = append(days, DailySales{Date: date, Revenue: o.FinalTotal, Orders: 1})
	}
	return days
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package catalog

import (
	"context"
	"fmt"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Store is the catalog persistence used by the service.
type Store interface {
	GetBySKU(ctx context.Context, sku string) (*Item, error)
	ListPublished(ctx context.Context) ([]models.Product, error)
	ListByCategory(ctx context.Context, name string) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type Service struct {
	Store  Store
	Logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{Store: store, Logger: log}
}

type ProductCard struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Category   string          `json:"category"`
	Stock      int             `json:"stock"`
	Price      decimal.Decimal `json:"price"`
	OldPrice   decimal.Decimal `json:"old_price"`
	Discount   decimal.Decimal `json:"discount"`
	ImageURL   string          `json:"image_url"`
	ProductURL string          `json:"product_url"`
}

type ProductDetail struct {
	ProductType ItemKind          `json:"product_type"`
	SKU         string            `json:"sku"`
	Title       string            `json:"title"`
	Price       decimal.Decimal   `json:"price"`
	Stock       int               `json:"stock"`
	OldPrice    decimal.Decimal   `json:"old_price"`
	Discount    decimal.Decimal   `json:"discount"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Image       string            `json:"image"`
}

// FilterByCategory lists products of a category; "All" lists every published product.
func (s *Service) FilterByCategory(ctx context.Context, category string) ([]ProductCard, error) {
	var (
		products []models.Product
		err      error
	)
	if category == "" || category == "All" {
		products, err = s.Store.ListPublished(ctx)
	} else {
		products, err = s.Store.ListByCategory(ctx, category)
	}
	if err != nil {
		return nil, err
	}

	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		card := ProductCard{
			ID:         p.ID,
			Name:       p.Name,
			SKU:        p.SKU,
			Stock:      p.Stock,
			Price:      p.Price,
			OldPrice:   p.OldPrice,
			Discount:   p.Discount,
			ImageURL:   p.FeaturedImage(),
			ProductURL: fmt.Sprintf("/products/%s", p.Slug),
		}
		if p.Category != nil {
			card.Category = p.Category.Name
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Detail describes a product or variant for the product page.
func (s *Service) Detail(ctx context.Context, sku string) (*ProductDetail, error) {
	item, err := s.Store.GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &ProductDetail{
		ProductType: item.Kind,
		SKU:         item.SKU(),
		Title:       item.Title(),
		Price:       item.Price(),
		Stock:       item.Stock(),
		OldPrice:    item.OldPrice(),
		Discount:    models.DiscountPercent(item.Price(), item.OldPrice()),
		Attributes:  item.Attributes(),
		Image:       item.Image(),
	}, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return s.Store.ListCategories(ctx)
}

package catalog

import (
	"errors"
	"fmt"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
)

// InsufficientStockError is returned when a stock decrement would go below zero.
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

type ItemKind string

const (
	KindBase    ItemKind = "base"
	KindVariant ItemKind = "variant"
)

// Item is a product or a variant found by SKU. Exactly one of Product and Variant is set.
type Item struct {
	Kind    ItemKind
	Product *models.Product
	Variant *models.ProductVariant
}

func (i *Item) SKU() string {
	if i.Kind == KindVariant {
		return i.Variant.SKU
	}
	return i.Product.SKU
}

func (i *Item) Title() string {
	if i.Kind == KindVariant {
		return i.Variant.Title()
	}
	return i.Product.Name
}

func (i *Item) Price() decimal.Decimal {
	if i.Kind == KindVariant {
		return i.Variant.Price
	}
	return i.Product.Price
}

func (i *Item) OldPrice() decimal.Decimal {
	if i.Kind == KindVariant {
		return i.Variant.OldPrice
	}
	return i.Product.OldPrice
}

func (i *Item) Stock() int {
	if i.Kind == KindVariant {
		return i.Variant.Stock
	}
	return i.Product.Stock
}

func (i *Item) Image() string {
	if i.Kind == KindVariant {
		return i.Variant.MainImage()
	}
	return i.Product.FeaturedImage()
}

// Attributes is nil for base products.
func (i *Item) Attributes() map[string]string {
	if i.Kind != KindVariant {
		return nil
	}
	return i.Variant.AttributeMap()
}

func (i *Item) ProductID() *int64 {
	if i.Kind == KindVariant {
		return nil
	}
	id := i.Product.ID
	return &id
}

func (i *Item) VariantID() *int64 {
	if i.Kind != KindVariant {
		return nil
	}
	id := i.Variant.ID
	return &id
}

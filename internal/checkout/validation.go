package checkout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ms-storefront/internal/cart"
)

type EmptyCartError struct{}

func (e *EmptyCartError) Error() string {
	return "Your cart is empty. Add items to proceed."
}

type StockShortage struct {
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// OutOfStockError lists every cart line that asks for more than is in stock.
type OutOfStockError struct {
	Items []StockShortage
}

func (e *OutOfStockError) Error() string {
	var b strings.Builder
	b.WriteString("There was an issue with your payment.")
	for _, item := range e.Items {
		fmt.Fprintf(&b, "\n Not enough stock for %q . Only %d left.", item.Title, item.Available)
	}
	return b.String()
}

// CartValidator checks one property of a cart and returns a typed error on failure.
type CartValidator func(ctx context.Context, c *cart.Cart) error

// CartValidationChain runs its validators in order and stops at the first failure.
type CartValidationChain struct {
	validators []CartValidator
}

func NewCartValidationChain(lookup cart.Lookup) *CartValidationChain {
	return &CartValidationChain{
		validators: []CartValidator{
			ValidateNotEmpty,
			ValidateStock(lookup),
		},
	}
}

func (ch *CartValidationChain) Validate(ctx context.Context, c *cart.Cart) error {
	for _, validate := range ch.validators {
		if err := validate(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func ValidateNotEmpty(ctx context.Context, c *cart.Cart) error {
	if c == nil || c.IsEmpty() {
		return &EmptyCartError{}
	}
	return nil
}

// ValidateStock re-reads the current stock of every line and reports all
// shortages at once. A line with no quantity counts as a shortage.
func ValidateStock(lookup cart.Lookup) CartValidator {
	return func(ctx context.Context, c *cart.Cart) error {
		skus := make([]string, 0, len(c.Lines))
		for sku := range c.Lines {
			skus = append(skus, sku)
		}
		sort.Strings(skus)

		var shortages []StockShortage
		for _, sku := range skus {
			line := c.Lines[sku]
			item, err := lookup.GetBySKU(ctx, sku)
			if err != nil {
				return fmt.Errorf("check stock for %s: %w", sku, err)
			}
			if line.Quantity <= 0 || line.Quantity > item.Stock() {
				shortages = append(shortages, StockShortage{
					SKU:       sku,
					Title:     item.Title(),
					Requested: line.Quantity,
					Available: item.Stock(),
				})
			}
		}
		if len(shortages) > 0 {
			return &OutOfStockError{Items: shortages}
		}
		return nil
	}
}

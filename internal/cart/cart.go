package cart

import (
	"context"
	"fmt"

	"ms-storefront/internal/catalog"
	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

// Lookup resolves SKUs against the catalog.
type Lookup interface {
	GetBySKU(ctx context.Context, sku string) (*catalog.Item, error)
}

type Pricing struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

var DefaultPricing = Pricing{
	TaxRate:     decimal.RequireFromString("0.2"),
	ShippingFee: decimal.NewFromInt(120),
}

// Cart maps SKU to line. The cached totals are refreshed by Summary.
type Cart struct {
	Lines       map[string]models.CartLine `json:"lines"`
	Subtotal    decimal.Decimal            `json:"subtotal"`
	Tax         decimal.Decimal            `json:"tax"`
	ShippingFee decimal.Decimal            `json:"shipping_fee"`
	Total       decimal.Decimal            `json:"total"`

	pricing Pricing
}

type Summary struct {
	DistinctCount int             `json:"distinct_count"`
	TotalQuantity int             `json:"total_quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Total         decimal.Decimal `json:"total"`
}

type RemoveResult struct {
	Removed bool   `json:"removed"`
	Message string `json:"message"`
}

func New(pricing Pricing) *Cart {
	return &Cart{Lines: make(map[string]models.CartLine), pricing: pricing}
}

// FromLines builds a cart from a stored line snapshot.
func FromLines(lines map[string]models.CartLine, pricing Pricing) *Cart {
	c := New(pricing)
	for sku, line := range lines {
		c.Lines[sku] = line
	}
	return c
}

func (c *Cart) SetPricing(p Pricing) {
	c.pricing = p
}

// Add puts quantity units of sku in the cart. Existing lines are incremented,
// new lines snapshot the catalog. The resulting quantity is clamped to the
// stock available right now, so a sold out product stays in the cart with
// quantity 0 until checkout review rejects it.
func (c *Cart) Add(ctx context.Context, lookup Lookup, sku string, quantity int) error {
	item, err := lookup.GetBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if quantity <= 0 {
		quantity = 1
	}

	key := item.SKU()
	line, exists := c.Lines[key]
	if exists {
		line.Quantity += quantity
	} else {
		line = models.CartLine{
			Title:      item.Title(),
			Price:      item.Price(),
			OldPrice:   item.OldPrice(),
			Image:      item.Image(),
			Quantity:   quantity,
			Attributes: item.Attributes(),
		}
		if item.OldPrice().IsPositive() {
			line.Discount = models.DiscountPercent(item.Price(), item.OldPrice()).StringFixed(2)
		}
	}

	line.Stock = max(item.Stock(), 0)
	if line.Quantity > line.Stock {
		line.Quantity = line.Stock
	}
	c.Lines[key] = line
	return nil
}

func (c *Cart) Remove(sku string) RemoveResult {
	if _, ok := c.Lines[sku]; !ok {
		return RemoveResult{Message: fmt.Sprintf("Product with sku %q doesn't exist !", sku)}
	}
	delete(c.Lines, sku)
	return RemoveResult{Removed: true, Message: fmt.Sprintf("Product with sku %q deleted successfully !", sku)}
}

// UpdateQuantity overwrites the quantity without checking stock. It returns
// false when the SKU is not in the cart.
func (c *Cart) UpdateQuantity(sku string, quantity int) bool {
	line, ok := c.Lines[sku]
	if !ok {
		return false
	}
	line.Quantity = quantity
	c.Lines[sku] = line
	return true
}

func (c *Cart) Clear() {
	c.Lines = make(map[string]models.CartLine)
	c.Subtotal = decimal.Zero
	c.Tax = decimal.Zero
	c.ShippingFee = decimal.Zero
	c.Total = decimal.Zero
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Summary recomputes the totals and stores them on the cart.
func (c *Cart) Summary() Summary {
	pricing := c.pricing
	if pricing.TaxRate.IsZero() && pricing.ShippingFee.IsZero() {
		pricing = DefaultPricing
	}

	subtotal := decimal.Zero
	quantity := 0
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.Total())
		quantity += line.Quantity
	}

	shipping := decimal.Zero
	if len(c.Lines) > 0 {
		shipping = pricing.ShippingFee
	}
	tax := subtotal.Mul(pricing.TaxRate).Round(2)

	c.Subtotal = subtotal.Round(2)
	c.Tax = tax
	c.ShippingFee = shipping
	c.Total = c.Subtotal.Add(tax).Add(shipping)

	return Summary{
		DistinctCount: len(c.Lines),
		TotalQuantity: quantity,
		Subtotal:      c.Subtotal,
		Tax:           c.Tax,
		ShippingFee:   c.ShippingFee,
		Total:         c.Total,
	}
}

// Snapshot copies the lines so later cart changes do not leak into orders.
func (c *Cart) Snapshot() map[string]models.CartLine {
	out := make(map[string]models.CartLine, len(c.Lines))
	for sku, line := range c.Lines {
		if line.Attributes != nil {
			attrs := make(map[string]string, len(line.Attributes))
			for k, v := range line.Attributes {
				attrs[k] = v
			}
			line.Attributes = attrs
		}
		out[sku] = line
	}
	return out
}

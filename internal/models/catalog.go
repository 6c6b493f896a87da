package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ProductStatus string

const (
	ProductDraft     ProductStatus = "draft"
	ProductReview    ProductStatus = "review"
	ProductPublished ProductStatus = "published"
	ProductArchived  ProductStatus = "archived"
)

type Category struct {
	bun.BaseModel `bun:"table:categories"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	Name        string `bun:"name,unique,notnull" json:"name"`
	Slug        string `bun:"slug,notnull" json:"slug"`
	Description string `bun:"description" json:"description,omitempty"`
}

type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	Name        string          `bun:"name,notnull" json:"name"`
	Description string          `bun:"description" json:"description,omitempty"`
	Slug        string          `bun:"slug,unique,notnull" json:"slug"`
	Price       decimal.Decimal `bun:"price,type:numeric(10,2),notnull" json:"price"`
	OldPrice    decimal.Decimal `bun:"old_price,type:numeric(10,2),notnull" json:"old_price"`
	Discount    decimal.Decimal `bun:"discount,type:numeric(10,2),notnull" json:"discount"`
	Stock       int             `bun:"stock,notnull" json:"stock"`
	CategoryID  *int64          `bun:"category_id" json:"category_id,omitempty"`
	SKU         string          `bun:"sku,unique,notnull" json:"sku"`
	Status      ProductStatus   `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Category *Category      `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
	Images   []ProductImage `bun:"rel:has-many,join:id=product_id" json:"images,omitempty"`
}

func (p *Product) IsPublished() bool {
	return p.Status == ProductPublished
}

// FeaturedImage returns the featured image URL, falling back to the first image.
func (p *Product) FeaturedImage() string {
	for _, img := range p.Images {
		if img.IsFeatured {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

var _ bun.BeforeAppendModelHook = (*Product)(nil)

func (p *Product) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if p.SKU == "" {
			p.SKU = NewSKU()
		}
		if p.Slug == "" {
			p.Slug = Slugify(p.Name)
		}
		if p.Status == "" {
			p.Status = ProductDraft
		}
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	case *bun.UpdateQuery:
		p.UpdatedAt = time.Now()
	}
	p.Discount = DiscountPercent(p.Price, p.OldPrice)
	return nil
}

type ProductImage struct {
	bun.BaseModel `bun:"table:product_images"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	ProductID  int64     `bun:"product_id,notnull" json:"product_id"`
	URL        string    `bun:"url,notnull" json:"url"`
	AltText    string    `bun:"alt_text" json:"alt_text,omitempty"`
	IsFeatured bool      `bun:"is_featured,notnull" json:"is_featured"`
	UploadedAt time.Time `bun:"uploaded_at,notnull,default:current_timestamp" json:"uploaded_at"`
}

type ProductVariant struct {
	bun.BaseModel `bun:"table:product_variants"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	ProductID   int64           `bun:"product_id,notnull" json:"product_id"`
	SKU         string          `bun:"sku,unique,notnull" json:"sku"`
	Price       decimal.Decimal `bun:"price,type:numeric(10,2),notnull" json:"price"`
	OldPrice    decimal.Decimal `bun:"old_price,type:numeric(10,2),notnull" json:"old_price"`
	Discount    decimal.Decimal `bun:"discount,type:numeric(10,2),notnull" json:"discount"`
	Stock       int             `bun:"stock,notnull" json:"stock"`
	Identifiant string          `bun:"identifiant,notnull" json:"identifiant"`

	Product    *Product           `bun:"rel:belongs-to,join:product_id=id" json:"product,omitempty"`
	Images     []VariantImage     `bun:"rel:has-many,join:id=variant_id" json:"images,omitempty"`
	Attributes []VariantAttribute `bun:"rel:has-many,join:id=variant_id" json:"attributes,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*ProductVariant)(nil)

func (v *ProductVariant) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if v.SKU == "" {
			v.SKU = NewSKU()
		}
		if v.Identifiant == "" {
			v.Identifiant = "name"
		}
	}
	v.Discount = DiscountPercent(v.Price, v.OldPrice)
	return nil
}

// Title is the display name of a variant: the parent product name when loaded.
func (v *ProductVariant) Title() string {
	if v.Product != nil && v.Product.Name != "" {
		return fmt.Sprintf("%s - %s", v.Product.Name, v.Identifiant)
	}
	return v.Identifiant
}

// MainImage returns the main variant image, then any variant image, then the parent's.
func (v *ProductVariant) MainImage() string {
	for _, img := range v.Images {
		if img.IsMain {
			return img.URL
		}
	}
	if len(v.Images) > 0 {
		return v.Images[0].URL
	}
	if v.Product != nil {
		return v.Product.FeaturedImage()
	}
	return ""
}

// AttributeMap flattens the variant attributes into name -> value.
func (v *ProductVariant) AttributeMap() map[string]string {
	out := make(map[string]string, len(v.Attributes))
	for _, attr := range v.Attributes {
		out[attr.Name] = attr.Value
	}
	return out
}

type VariantImage struct {
	bun.BaseModel `bun:"table:variant_images"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	VariantID int64  `bun:"variant_id,notnull" json:"variant_id"`
	URL       string `bun:"url,notnull" json:"url"`
	AltText   string `bun:"alt_text" json:"alt_text,omitempty"`
	IsMain    bool   `bun:"is_main,notnull" json:"is_main"`
}

// VariantAttribute is one attribute of a variant, e.g. Color=Red.
type VariantAttribute struct {
	bun.BaseModel `bun:"table:variant_attributes"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	VariantID int64  `bun:"variant_id,notnull,unique:variant_attribute" json:"variant_id"`
	Name      string `bun:"name,notnull,unique:variant_attribute" json:"name"`
	Value     string `bun:"value,notnull" json:"value"`
}

var hundred = decimal.NewFromInt(100)

// DiscountPercent is 100 - price*100/oldPrice, or zero without an old price.
func DiscountPercent(price, oldPrice decimal.Decimal) decimal.Decimal {
	if !oldPrice.IsPositive() {
		return decimal.Zero
	}
	return hundred.Sub(price.Mul(hundred).Div(oldPrice)).Round(2)
}

// NewSKU generates an SKU of the form SKU-1A2B3C4D.
func NewSKU() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SKU-" + strings.ToUpper(id[:8])
}

func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-storefront/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetBySKU looks the SKU up among base products first, then variants.
func (d *DB) GetBySKU(ctx context.Context, sku string) (*Item, error) {
	return d.getBySKU(ctx, d.Bun, sku)
}

func (d *DB) getBySKU(ctx context.Context, idb bun.IDB, sku string) (*Item, error) {
	sku = strings.TrimSpace(sku)

	var product models.Product
	err := idb.NewSelect().
		Model(&product).
		Relation("Category").
		Relation("Images").
		Where("product.sku = ?", sku).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &Item{Kind: KindBase, Product: &product}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup product %s: %w", sku, err)
	}

	var variant models.ProductVariant
	err = idb.NewSelect().
		Model(&variant).
		Relation("Product").
		Relation("Images").
		Relation("Attributes").
		Where("product_variant.sku = ?", sku).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product with SKU '%s' not found: %w", sku, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup variant %s: %w", sku, err)
	}

	if variant.Product != nil && len(variant.Images) == 0 {
		err = idb.NewSelect().
			Model(&variant.Product.Images).
			Where("product_id = ?", variant.ProductID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("lookup images for %s: %w", sku, err)
		}
	}
	return &Item{Kind: KindVariant, Variant: &variant}, nil
}

// ListPublished returns published products, best discount first.
func (d *DB) ListPublished(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := d.Bun.NewSelect().
		Model(&products).
		Relation("Category").
		Relation("Images").
		Where("product.status = ?", models.ProductPublished).
		Order("product.discount DESC", "product.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (d *DB) ListByCategory(ctx context.Context, name string) ([]models.Product, error) {
	var category models.Category
	err := d.Bun.NewSelect().
		Model(&category).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, ErrCategoryNotFound)
	}
	if err != nil {
		return nil, err
	}

	var products []models.Product
	err = d.Bun.NewSelect().
		Model(&products).
		Relation("Category").
		Relation("Images").
		Where("product.category_id = ?", category.ID).
		Where("product.status = ?", models.ProductPublished).
		Order("product.discount DESC", "product.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (d *DB) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := d.Bun.NewSelect().Model(&categories).Order("name ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// DecreaseStock subtracts qty from the SKU's stock in one conditional update.
// When the stock is lower than qty nothing is written and an
// *InsufficientStockError is returned. idb may be a transaction.
func (d *DB) DecreaseStock(ctx context.Context, idb bun.IDB, sku string, qty int) error {
	if idb == nil {
		idb = d.Bun
	}
	if qty <= 0 {
		return fmt.Errorf("invalid quantity %d for %s", qty, sku)
	}

	for _, model := range []interface{}{(*models.Product)(nil), (*models.ProductVariant)(nil)} {
		res, err := idb.NewUpdate().
			Model(model).
			Set("stock = stock - ?", qty).
			Where("sku = ?", sku).
			Where("stock >= ?", qty).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("decrease stock for %s: %w", sku, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	item, err := d.getBySKU(ctx, idb, sku)
	if err != nil {
		return err
	}
	return &InsufficientStockError{SKU: sku, Requested: qty, Available: item.Stock()}
}

// CreateTables creates the catalog tables. Used for local runs and tests.
func CreateTables(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{
		(*models.Category)(nil),
		(*models.Product)(nil),
		(*models.ProductImage)(nil),
		(*models.ProductVariant)(nil),
		(*models.VariantImage)(nil),
		(*models.VariantAttribute)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}

package promo

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

func (d *DB) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := d.Bun.NewSelect().
		Model(&promo).
		Where("code = ?", strings.TrimSpace(code)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &PromoCodeNotFoundError{Code: code}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup promo code %s: %w", code, err)
	}
	return &promo, nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	Code           string          `bun:"code,unique,notnull" json:"code"`
	DiscountType   DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue  decimal.Decimal `bun:"discount_value,type:numeric(10,2),notnull" json:"discount_value"`
	MinOrderAmount decimal.Decimal `bun:"min_order_amount,type:numeric(10,2),notnull" json:"min_order_amount"`
	IsActive       bool            `bun:"is_active,notnull" json:"is_active"`
	ValidFrom      time.Time       `bun:"valid_from,notnull" json:"valid_from"`
	ValidTo        time.Time       `bun:"valid_to,notnull" json:"valid_to"`
	UsageLimit     int             `bun:"usage_limit,notnull" json:"usage_limit"`
	TimesUsed      int             `bun:"times_used,notnull" json:"times_used"`
}

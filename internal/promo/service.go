package promo

import (
	"context"
	"fmt"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

type Store interface {
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

type Service struct {
	Store  Store
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{Store: store, Logger: log, Now: time.Now}
}

// Verify looks the code up and runs the validation chain.
func (s *Service) Verify(ctx context.Context, code string) (*models.PromoCode, error) {
	promo, err := s.Store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := Validate(promo, s.Now()); err != nil {
		s.Logger.Info("PROMO", fmt.Sprintf("Rejected promo code %s: %v", code, err))
		return nil, err
	}
	return promo, nil
}

type Preview struct {
	Code           string              `json:"code"`
	DiscountType   models.DiscountType `json:"discount_type"`
	DiscountValue  decimal.Decimal     `json:"discount_value"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
}

// Preview verifies the code and computes the discount it would give on subtotal.
func (s *Service) Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*Preview, error) {
	promo, err := s.Verify(ctx, code)
	if err != nil {
		return nil, err
	}
	amount, err := CalculateDiscount(promo, subtotal, s.Now())
	if err != nil {
		return nil, err
	}
	return &Preview{
		Code:           promo.Code,
		DiscountType:   promo.DiscountType,
		DiscountValue:  promo.DiscountValue,
		Subtotal:       subtotal,
		DiscountAmount: amount,
	}, nil
}

// CalculateDiscount applies the code's start date, usage limit and minimum
// order rules, then returns the discount capped at the subtotal.
func CalculateDiscount(promo *models.PromoCode, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !promo.ValidFrom.IsZero() && now.Before(promo.ValidFrom) {
		return decimal.Zero, &PromoCodeNotApplicableError{Code: promo.Code, Reason: "not yet active"}
	}
	if promo.UsageLimit > 0 && promo.TimesUsed >= promo.UsageLimit {
		return decimal.Zero, &PromoCodeNotApplicableError{Code: promo.Code, Reason: "usage limit has been reached"}
	}
	if subtotal.LessThan(promo.MinOrderAmount) {
		return decimal.Zero, &PromoCodeNotApplicableError{
			Code:   promo.Code,
			Reason: fmt.Sprintf("order subtotal does not meet minimum of %s", promo.MinOrderAmount.StringFixed(2)),
		}
	}

	var amount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountPercentage:
		amount = subtotal.Mul(promo.DiscountValue).Div(decimal.NewFromInt(100))
	case models.DiscountFixed:
		amount = promo.DiscountValue
	default:
		return decimal.Zero, fmt.Errorf("unsupported discount type: %s", promo.DiscountType)
	}

	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount.Round(2), nil
}

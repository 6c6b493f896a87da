package promo

import (
	"time"

	"ms-storefront/internal/models"
)

// Validator checks one rule of a promo code.
type Validator func(promo *models.PromoCode, now time.Time) error

// ValidationChain runs the active check, then the expiry check.
var ValidationChain = []Validator{
	ValidateActive,
	ValidateNotExpired,
}

func Validate(promo *models.PromoCode, now time.Time) error {
	for _, validate := range ValidationChain {
		if err := validate(promo, now); err != nil {
			return err
		}
	}
	return nil
}

func ValidateActive(promo *models.PromoCode, now time.Time) error {
	if !promo.IsActive {
		return &PromoCodeInactiveError{Code: promo.Code}
	}
	return nil
}

// ValidateNotExpired compares calendar dates: a code is usable through its valid_to day.
func ValidateNotExpired(promo *models.PromoCode, now time.Time) error {
	if dateOf(now).After(dateOf(promo.ValidTo)) {
		return &PromoCodeExpiredError{Code: promo.Code}
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

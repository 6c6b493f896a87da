package promo

import "fmt"

type PromoCodeNotFoundError struct {
	Code string
}

func (e *PromoCodeNotFoundError) Error() string {
	return fmt.Sprintf("Promo code %q not found", e.Code)
}

type PromoCodeInactiveError struct {
	Code string
}

func (e *PromoCodeInactiveError) Error() string {
	return fmt.Sprintf("Promo code %q is not active.", e.Code)
}

type PromoCodeExpiredError struct {
	Code string
}

func (e *PromoCodeExpiredError) Error() string {
	return fmt.Sprintf("Promo code %q has expired.", e.Code)
}

// PromoCodeNotApplicableError is returned when a valid code cannot be applied to a cart.
type PromoCodeNotApplicableError struct {
	Code   string
	Reason string
}

func (e *PromoCodeNotApplicableError) Error() string {
	return fmt.Sprintf("Promo code %q cannot be applied: %s", e.Code, e.Reason)
}

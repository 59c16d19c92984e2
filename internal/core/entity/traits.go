package entity

import (
	"context"

	"orderflow/internal/core/apperror"
)

// CurrencyAware is a trait for documents priced in a single currency.
type CurrencyAware struct {
	// Currency is an ISO 4217 code, e.g. "PHP"
	Currency string `db:"currency" json:"currency"`
}

// ValidateCurrency ensures a three-letter currency code is set.
func (c *CurrencyAware) ValidateCurrency(ctx context.Context) error {
	if len(c.Currency) != 3 {
		return apperror.NewValidation("currency must be a 3-letter code").
			WithDetail("field", "currency")
	}
	return nil
}

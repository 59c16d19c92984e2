// Package product provides the Product catalog. Products never store stock;
// on-hand quantities are always derived from the location ledger.
package product

import (
	"context"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/types"
)

// Product is a stock-keeping item that can be quoted, ordered and produced.
type Product struct {
	entity.Catalog

	// Unit of measure (pcs, kg, m)
	Unit string `db:"unit" json:"unit"`

	// Description is free text shown on documents
	Description string `db:"description" json:"description,omitempty"`

	// BasePrice is used by the default pricing provider
	BasePrice types.Money `db:"base_price" json:"basePrice"`

	// LowStockThreshold triggers the low-stock report when total on hand
	// falls to or below it. Zero disables the alert.
	LowStockThreshold types.Quantity `db:"low_stock_threshold" json:"lowStockThreshold"`
}

// NewProduct creates a new Product with required fields.
func NewProduct(code, name, unit string) *Product {
	return &Product{
		Catalog:   entity.NewCatalog(code, name),
		Unit:      unit,
		BasePrice: types.Zero(),
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}
	if p.Unit == "" {
		return apperror.NewValidation("unit is required").
			WithDetail("field", "unit")
	}
	if p.BasePrice.IsNegative() {
		return apperror.NewValidation("base price cannot be negative").
			WithDetail("field", "basePrice")
	}
	if p.LowStockThreshold.IsNegative() {
		return apperror.NewValidation("low stock threshold cannot be negative").
			WithDetail("field", "lowStockThreshold")
	}
	return nil
}

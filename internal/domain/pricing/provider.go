// Package pricing is the boundary to price lookup. Tier and customer price
// rules live outside this service; documents only need an opaque unit price.
package pricing

import (
	"context"

	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// Provider returns the unit price a customer pays for a product.
type Provider interface {
	UnitPrice(ctx context.Context, customerRef string, productID id.ID) (types.Money, error)
}

// ProductLookup is the part of the product catalog the base-price provider needs.
type ProductLookup interface {
	BasePrice(ctx context.Context, productID id.ID) (types.Money, error)
}

// BasePriceProvider prices every customer at the catalog base price.
type BasePriceProvider struct {
	products ProductLookup
}

// NewBasePriceProvider creates a BasePriceProvider.
func NewBasePriceProvider(products ProductLookup) *BasePriceProvider {
	return &BasePriceProvider{products: products}
}

// UnitPrice implements Provider.
func (p *BasePriceProvider) UnitPrice(ctx context.Context, customerRef string, productID id.ID) (types.Money, error) {
	return p.products.BasePrice(ctx, productID)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, customerRef string, productID id.ID) (types.Money, error)

// UnitPrice implements Provider.
func (f ProviderFunc) UnitPrice(ctx context.Context, customerRef string, productID id.ID) (types.Money, error) {
	return f(ctx, customerRef, productID)
}

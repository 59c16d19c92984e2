package product

import (
	"context"

	"orderflow/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// All returns every product without a deletion mark, ordered by code.
	All(ctx context.Context) ([]*Product, error)
}

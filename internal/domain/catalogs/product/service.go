package product

import (
	"context"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/core/tx"
	"orderflow/internal/core/types"
	"orderflow/internal/domain"
)

// Service provides business logic for the Product catalog.
type Service struct {
	*domain.CatalogService[*Product]
	repo Repository
}

// NewService creates a new Product service.
func NewService(repo Repository, txm tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txm,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
	}

	base.Hooks().On(domain.BeforeCreate, svc.checkCodeUnique)
	base.Hooks().On(domain.BeforeUpdate, svc.checkCodeUnique)

	return svc
}

func (s *Service) checkCodeUnique(ctx context.Context, p *Product) error {
	existing, err := s.repo.GetByCode(ctx, p.Code)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != p.ID {
		return apperror.NewDuplicate("product", "code", p.Code)
	}
	return nil
}

// StockFunc returns the total quantity on hand of a product.
type StockFunc func(ctx context.Context, productID id.ID) (types.Quantity, error)

// GuardStock refuses to delete a product that still has stock anywhere.
func (s *Service) GuardStock(onHand StockFunc) {
	s.Hooks().On(domain.BeforeDelete, func(ctx context.Context, p *Product) error {
		qty, err := onHand(ctx, p.ID)
		if err != nil {
			return err
		}
		if !qty.IsZero() {
			return apperror.NewValidation("product still has stock on hand").
				WithDetail("productId", p.ID).
				WithDetail("onHand", qty.String())
		}
		return nil
	})
}

// Resolve fetches products by ID, failing with NotFound on the first unknown one.
func (s *Service) Resolve(ctx context.Context, ids []id.ID) (map[id.ID]*Product, error) {
	out := make(map[id.ID]*Product, len(ids))
	for _, pid := range ids {
		if _, ok := out[pid]; ok {
			continue
		}
		p, err := s.GetByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		out[pid] = p
	}
	return out, nil
}

// BasePrice returns the catalog base price of a product.
func (s *Service) BasePrice(ctx context.Context, productID id.ID) (types.Money, error) {
	p, err := s.GetByID(ctx, productID)
	if err != nil {
		return types.Zero(), err
	}
	return p.BasePrice, nil
}

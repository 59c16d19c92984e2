package memory

import (
	"context"
	"sort"
	"strings"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/domain"
	"orderflow/internal/domain/catalogs/product"
)

// ProductRepo stores the product catalog.
type ProductRepo struct {
	t *table[*product.Product]
}

// NewProductRepo creates an empty catalog.
func NewProductRepo() *ProductRepo {
	return &ProductRepo{t: newTable("product", func(p *product.Product) *product.Product {
		c := *p
		return &c
	})}
}

// Create implements product.Repository.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	return r.t.insert(ctx, p.ID, p, func(existing []*product.Product) error {
		for _, e := range existing {
			if e.Code == p.Code {
				return apperror.NewDuplicate("product", "code", p.Code)
			}
		}
		return nil
	})
}

// GetByID implements product.Repository.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.t.get(productID)
}

// GetByCode implements product.Repository.
func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	found := r.t.scan(func(p *product.Product) bool { return p.Code == code && !p.DeletionMark })
	if len(found) == 0 {
		return nil, apperror.NewNotFound("product", code)
	}
	return found[0], nil
}

// Update implements product.Repository with optimistic locking.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	current, err := r.t.get(p.ID)
	if err != nil {
		return err
	}
	if current.Version != p.Version {
		return apperror.NewConcurrentModification("product", p.ID.String())
	}
	p.Touch()
	return r.t.put(ctx, p.ID, p)
}

// SetDeletionMark implements product.Repository.
func (r *ProductRepo) SetDeletionMark(ctx context.Context, productID id.ID, marked bool) error {
	p, err := r.t.get(productID)
	if err != nil {
		return err
	}
	p.DeletionMark = marked
	p.Touch()
	return r.t.put(ctx, productID, p)
}

// List implements product.Repository.
func (r *ProductRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	search := strings.ToLower(filter.Search)
	ids := idSet(filter.IDs)
	items := r.t.scan(func(p *product.Product) bool {
		if p.DeletionMark && !filter.IncludeDeleted {
			return false
		}
		if ids != nil && !ids[p.ID] {
			return false
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Code), search) &&
			!strings.Contains(strings.ToLower(p.Name), search) {
			return false
		}
		return true
	})
	sort.SliceStable(items, func(i, j int) bool {
		switch strings.TrimPrefix(filter.OrderBy, "-") {
		case "code":
			return lessOrder(items[i].Code, items[j].Code, filter.OrderBy)
		default:
			return lessOrder(items[i].Name, items[j].Name, filter.OrderBy)
		}
	})
	return domain.Page(items, filter), nil
}

// All implements product.Repository.
func (r *ProductRepo) All(ctx context.Context) ([]*product.Product, error) {
	items := r.t.scan(func(p *product.Product) bool { return !p.DeletionMark })
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

func idSet(ids []id.ID) map[id.ID]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[id.ID]bool, len(ids))
	for _, v := range ids {
		out[v] = true
	}
	return out
}

// lessOrder compares a and b honoring a leading "-" in orderBy.
func lessOrder(a, b, orderBy string) bool {
	if strings.HasPrefix(orderBy, "-") {
		return a > b
	}
	return a < b
}

var _ product.Repository = (*ProductRepo)(nil)

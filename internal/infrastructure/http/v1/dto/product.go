package dto

import (
	"orderflow/internal/core/types"
	"orderflow/internal/domain/catalogs/product"
)

// CreateProductRequest creates a catalog product.
type CreateProductRequest struct {
	Code              string         `json:"code" binding:"required,max=50"`
	Name              string         `json:"name" binding:"required,max=200"`
	Unit              string         `json:"unit" binding:"required,max=20"`
	Description       string         `json:"description,omitempty"`
	BasePrice         types.Money    `json:"basePrice"`
	LowStockThreshold types.Quantity `json:"lowStockThreshold"`
}

// ToEntity converts the request to a domain product.
func (r CreateProductRequest) ToEntity() *product.Product {
	p := product.NewProduct(r.Code, r.Name, r.Unit)
	p.Description = r.Description
	p.BasePrice = r.BasePrice
	p.LowStockThreshold = r.LowStockThreshold
	return p
}

// UpdateProductRequest replaces the editable fields. Version guards
// against lost updates.
type UpdateProductRequest struct {
	Code              string         `json:"code" binding:"required,max=50"`
	Name              string         `json:"name" binding:"required,max=200"`
	Unit              string         `json:"unit" binding:"required,max=20"`
	Description       string         `json:"description,omitempty"`
	BasePrice         types.Money    `json:"basePrice"`
	LowStockThreshold types.Quantity `json:"lowStockThreshold"`
	Version           int            `json:"version" binding:"required,min=1"`
}

// ApplyTo copies the request onto an existing product.
func (r UpdateProductRequest) ApplyTo(p *product.Product) *product.Product {
	p.Code = r.Code
	p.Name = r.Name
	p.Unit = r.Unit
	p.Description = r.Description
	p.BasePrice = r.BasePrice
	p.LowStockThreshold = r.LowStockThreshold
	p.Version = r.Version
	return p
}

// ProductResponse is the API view of a product.
type ProductResponse struct {
	ID                string         `json:"id"`
	Code              string         `json:"code"`
	Name              string         `json:"name"`
	Unit              string         `json:"unit"`
	Description       string         `json:"description,omitempty"`
	BasePrice         types.Money    `json:"basePrice"`
	LowStockThreshold types.Quantity `json:"lowStockThreshold"`
	DeletionMark      bool           `json:"deletionMark"`
	Version           int            `json:"version"`
}

// FromProduct maps a domain product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID.String(),
		Code:              p.Code,
		Name:              p.Name,
		Unit:              p.Unit,
		Description:       p.Description,
		BasePrice:         p.BasePrice,
		LowStockThreshold: p.LowStockThreshold,
		DeletionMark:      p.DeletionMark,
		Version:           p.Version,
	}
}

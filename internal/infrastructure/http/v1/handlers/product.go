package handlers

import (
	"orderflow/internal/domain/catalogs/product"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves the product catalog.
type ProductHandler = CatalogHandler[*product.Product, dto.CreateProductRequest, dto.UpdateProductRequest, dto.ProductResponse]

// NewProductHandler creates a product handler.
func NewProductHandler(base *BaseHandler, svc *product.Service) *ProductHandler {
	return NewCatalogHandler(base, CatalogHandlerConfig[*product.Product, dto.CreateProductRequest, dto.UpdateProductRequest, dto.ProductResponse]{
		Service: svc.CatalogService,
		MapCreateDTO: func(req dto.CreateProductRequest) *product.Product {
			return req.ToEntity()
		},
		MapUpdateDTO: func(req dto.UpdateProductRequest, existing *product.Product) *product.Product {
			return req.ApplyTo(existing)
		},
		MapToDTO: dto.FromProduct,
	})
}

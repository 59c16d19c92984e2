// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// CatalogRouteHandler is implemented by catalog handlers.
type CatalogRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

// DocumentRouteHandler is the CRUD part of a document handler. Lifecycle
// actions are registered per document.
type DocumentRouteHandler interface {
	List(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
}

// DocumentUpdateHandler is implemented by documents editable with PUT.
type DocumentUpdateHandler interface {
	Update(c *gin.Context)
}

// DocumentDeleteHandler is implemented by documents that can be deleted.
type DocumentDeleteHandler interface {
	Delete(c *gin.Context)
}

// RegisterCatalogRoutes registers standard CRUD routes for a catalog.
//
//	handler := handlers.NewProductHandler(base, services.Products)
//	RegisterCatalogRoutes(api.Group("/products"), handler)
func RegisterCatalogRoutes(group *gin.RouterGroup, handler CatalogRouteHandler) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)
}

// RegisterDocumentRoutes registers list/create/get and, when the handler
// supports them, update and delete. actions maps "/:id/<name>" POST routes.
func RegisterDocumentRoutes(group *gin.RouterGroup, handler DocumentRouteHandler, actions map[string]gin.HandlerFunc) {
	group.GET("", handler.List)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)

	if u, ok := handler.(DocumentUpdateHandler); ok {
		group.PUT("/:id", u.Update)
	}
	if d, ok := handler.(DocumentDeleteHandler); ok {
		group.DELETE("/:id", d.Delete)
	}
	for name, fn := range actions {
		group.POST("/:id/"+name, fn)
	}
}

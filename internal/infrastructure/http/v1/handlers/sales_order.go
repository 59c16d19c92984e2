package handlers

import (
	"github.com/gin-gonic/gin"

	"orderflow/internal/domain/documents/sales_order"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// SalesOrderHandler serves sales orders.
type SalesOrderHandler struct {
	*BaseHandler
	service *sales_order.Service
}

// NewSalesOrderHandler creates a sales order handler.
func NewSalesOrderHandler(base *BaseHandler, service *sales_order.Service) *SalesOrderHandler {
	return &SalesOrderHandler{BaseHandler: base, service: service}
}

// List handles GET /sales-orders.
func (h *SalesOrderHandler) List(c *gin.Context) {
	var q dto.SalesOrderListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	result, err := h.service.List(c.Request.Context(), q.Filter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get handles GET /sales-orders/:id.
func (h *SalesOrderHandler) Get(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Create handles POST /sales-orders.
func (h *SalesOrderHandler) Create(c *gin.Context) {
	var req dto.SalesOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Create(c.Request.Context(), doc); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Update handles PUT /sales-orders/:id.
func (h *SalesOrderHandler) Update(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.SalesOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Update(c.Request.Context(), docID, req.ApplyTo)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

func (h *SalesOrderHandler) transition(c *gin.Context, fn func(*gin.Context, *sales_order.Service) (*sales_order.SalesOrder, error)) {
	doc, err := fn(c, h.service)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Confirm handles POST /sales-orders/:id/confirm.
func (h *SalesOrderHandler) Confirm(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.Confirm(c.Request.Context(), docID)
	})
}

// Ship handles POST /sales-orders/:id/ship.
func (h *SalesOrderHandler) Ship(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.Ship(c.Request.Context(), docID)
	})
}

// Deliver handles POST /sales-orders/:id/deliver.
func (h *SalesOrderHandler) Deliver(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.Deliver(c.Request.Context(), docID)
	})
}

// Cancel handles POST /sales-orders/:id/cancel.
func (h *SalesOrderHandler) Cancel(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.Cancel(c.Request.Context(), docID)
	})
}

// SetPaymentStatus handles PUT /sales-orders/:id/payment-status.
func (h *SalesOrderHandler) SetPaymentStatus(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.PaymentStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.SetPaymentStatus(c.Request.Context(), docID, req.Status)
	})
}

// SetShippingStatus handles PUT /sales-orders/:id/shipping-status.
func (h *SalesOrderHandler) SetShippingStatus(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ShippingStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.transition(c, func(c *gin.Context, s *sales_order.Service) (*sales_order.SalesOrder, error) {
		return s.SetShippingStatus(c.Request.Context(), docID, req.Status)
	})
}

// GetFulfillment handles GET /sales-orders/:id/fulfillment.
func (h *SalesOrderHandler) GetFulfillment(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	status, err := h.service.Fulfillment(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FulfillmentResponse{SalesOrderID: docID.String(), Status: status})
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"orderflow/internal/domain/documents/quotation"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// QuotationHandler serves quotations and their lifecycle.
type QuotationHandler struct {
	*BaseHandler
	service *quotation.Service
}

// NewQuotationHandler creates a quotation handler.
func NewQuotationHandler(base *BaseHandler, service *quotation.Service) *QuotationHandler {
	return &QuotationHandler{BaseHandler: base, service: service}
}

// List handles GET /quotations.
func (h *QuotationHandler) List(c *gin.Context) {
	var q dto.QuotationListQuery
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

// Get handles GET /quotations/:id.
func (h *QuotationHandler) Get(c *gin.Context) {
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

// Create handles POST /quotations.
func (h *QuotationHandler) Create(c *gin.Context) {
	var req dto.QuotationRequest
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

// Update handles PUT /quotations/:id.
func (h *QuotationHandler) Update(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.QuotationRequest
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

// Delete handles DELETE /quotations/:id.
func (h *QuotationHandler) Delete(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), docID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Send handles POST /quotations/:id/send.
func (h *QuotationHandler) Send(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Send(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Approve handles POST /quotations/:id/approve. Approval converts the
// quotation into a sales order in the same transaction.
func (h *QuotationHandler) Approve(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	doc, orderID, err := h.service.Approve(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ApproveQuotationResponse{Quotation: doc, SalesOrderID: orderID.String()})
}

// Reject handles POST /quotations/:id/reject.
func (h *QuotationHandler) Reject(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.RejectQuotationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Reject(c.Request.Context(), docID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Convert handles POST /quotations/:id/convert for approved quotations
// whose order was not created yet.
func (h *QuotationHandler) Convert(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	orderID, err := h.service.Convert(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.ApproveQuotationResponse{SalesOrderID: orderID.String()})
}

// Revise handles POST /quotations/:id/revise.
func (h *QuotationHandler) Revise(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Revise(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"orderflow/internal/domain/reports"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves read-only stock reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

// GetStockOverview handles GET /reports/stock-overview.
func (h *ReportsHandler) GetStockOverview(c *gin.Context) {
	var req dto.StockOverviewRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.service.StockOverview(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetLowStock handles GET /reports/low-stock.
func (h *ReportsHandler) GetLowStock(c *gin.Context) {
	report, err := h.service.LowStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

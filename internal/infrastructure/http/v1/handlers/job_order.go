package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/id"
	"orderflow/internal/domain/audit"
	"orderflow/internal/domain/documents/job_order"
	"orderflow/internal/domain/reconciliation"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// JobOrderHandler serves job orders and the reservation and shipment
// operations on their lines.
type JobOrderHandler struct {
	*BaseHandler
	service *job_order.Service
	engine  *reconciliation.Engine
	audit   *audit.Recorder
}

// NewJobOrderHandler creates a job order handler.
func NewJobOrderHandler(base *BaseHandler, service *job_order.Service, engine *reconciliation.Engine, recorder *audit.Recorder) *JobOrderHandler {
	return &JobOrderHandler{BaseHandler: base, service: service, engine: engine, audit: recorder}
}

// List handles GET /job-orders.
func (h *JobOrderHandler) List(c *gin.Context) {
	var q dto.JobOrderListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get handles GET /job-orders/:id.
func (h *JobOrderHandler) Get(c *gin.Context) {
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

// Summary handles GET /job-orders/:id/summary.
func (h *JobOrderHandler) Summary(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// Create handles POST /job-orders.
func (h *JobOrderHandler) Create(c *gin.Context) {
	var req dto.CreateJobOrderRequest
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

// UpdateHeader handles PATCH /job-orders/:id.
func (h *JobOrderHandler) UpdateHeader(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateJobOrderHeaderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.UpdateHeader(c.Request.Context(), docID, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Delete handles DELETE /job-orders/:id.
func (h *JobOrderHandler) Delete(c *gin.Context) {
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

type transitionFunc func(ctx context.Context, docID id.ID) (*job_order.JobOrder, error)

func (h *JobOrderHandler) statusChange(c *gin.Context, fn func(s *job_order.Service) transitionFunc) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	doc, err := fn(h.service)(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Start handles POST /job-orders/:id/start.
func (h *JobOrderHandler) Start(c *gin.Context) {
	h.statusChange(c, func(s *job_order.Service) transitionFunc { return s.Start })
}

// Hold handles POST /job-orders/:id/hold.
func (h *JobOrderHandler) Hold(c *gin.Context) {
	h.statusChange(c, func(s *job_order.Service) transitionFunc { return s.Hold })
}

// Resume handles POST /job-orders/:id/resume.
func (h *JobOrderHandler) Resume(c *gin.Context) {
	h.statusChange(c, func(s *job_order.Service) transitionFunc { return s.Resume })
}

// Complete handles POST /job-orders/:id/complete.
func (h *JobOrderHandler) Complete(c *gin.Context) {
	h.statusChange(c, func(s *job_order.Service) transitionFunc { return s.Complete })
}

// Cancel handles POST /job-orders/:id/cancel. Held reservations are
// released back to the main locations.
func (h *JobOrderHandler) Cancel(c *gin.Context) {
	h.statusChange(c, func(s *job_order.Service) transitionFunc { return s.Cancel })
}

// --- Lines ---

// GetLine handles GET /job-order-lines/:lineId.
func (h *JobOrderHandler) GetLine(c *gin.Context) {
	lineID, ok := h.PathID(c, "lineId")
	if !ok {
		return
	}
	line, err := h.service.GetLine(c.Request.Context(), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// SetReservation handles PUT /job-order-lines/:lineId/reservation.
func (h *JobOrderHandler) SetReservation(c *gin.Context) {
	lineID, ok := h.PathID(c, "lineId")
	if !ok {
		return
	}
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	line, err := h.engine.SetReservation(c.Request.Context(), lineID, req.Reserved)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// RecordTranche handles PUT /job-order-lines/:lineId/tranches/:index.
func (h *JobOrderHandler) RecordTranche(c *gin.Context) {
	lineID, ok := h.PathID(c, "lineId")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid tranche index").WithDetail("field", "index"))
		return
	}
	var req dto.TrancheRequest
	if !h.BindJSON(c, &req) {
		return
	}
	line, err := h.engine.RecordShipmentTranche(c.Request.Context(), reconciliation.ShipmentRequest{
		LineID:   lineID,
		Index:    index,
		Amount:   req.Amount,
		Override: req.Override,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// Recompute handles POST /job-order-lines/:lineId/recompute.
func (h *JobOrderHandler) Recompute(c *gin.Context) {
	lineID, ok := h.PathID(c, "lineId")
	if !ok {
		return
	}
	line, changed, err := h.engine.RecomputeAll(c.Request.Context(), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.RecomputeResponse{Line: line, Changed: changed})
}

// RecomputeEverything handles POST /maintenance/recompute-lines.
func (h *JobOrderHandler) RecomputeEverything(c *gin.Context) {
	report, err := h.engine.RecomputeEverything(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// LineHistory handles GET /job-order-lines/:lineId/history.
func (h *JobOrderHandler) LineHistory(c *gin.Context) {
	lineID, ok := h.PathID(c, "lineId")
	if !ok {
		return
	}
	records, err := h.audit.History(c.Request.Context(), job_order.LineType, lineID, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": records})
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/infrastructure/http/v1/dto"
)

// LedgerHandler exposes stock balances, movement history and the
// administrative stock flows.
type LedgerHandler struct {
	*BaseHandler
	service    *ledger.Service
	aggregator *ledger.Aggregator
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service, aggregator *ledger.Aggregator) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service, aggregator: aggregator}
}

// GetBalances handles GET /ledger/balances. With productId it returns one
// product across every location, otherwise every indexed balance.
func (h *LedgerHandler) GetBalances(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := dto.ParseOptionalID("productId", c.Query("productId"))
	if err != nil {
		h.Error(c, err)
		return
	}

	if productID == nil {
		rows, err := h.aggregator.AllBalances(ctx)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, gin.H{"items": rows})
		return
	}

	balances, err := h.aggregator.Balances(ctx, *productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	var total types.Quantity
	for _, q := range balances {
		total += q
	}
	h.OK(c, dto.ProductBalancesResponse{
		ProductID: productID.String(),
		Balances:  balances,
		Total:     total,
	})
}

// GetEntries handles GET /ledger/entries.
func (h *LedgerHandler) GetEntries(c *gin.Context) {
	var q dto.EntryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.Filter()
	if err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.aggregator.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.EntriesResponse{Items: entries})
}

// Transfer handles POST /ledger/transfers.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.service.Transfer(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.EntriesResponse{Items: entries})
}

// Adjust handles POST /ledger/adjustments.
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	entry, err := h.service.Adjust(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// ReceiveProduction handles POST /ledger/receipts.
func (h *LedgerHandler) ReceiveProduction(c *gin.Context) {
	var req dto.ProductionReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	entry, err := h.service.ReceiveProduction(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, entry)
}

// Verify handles POST /ledger/verify: replays the log and reports drift
// without changing anything.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.aggregator.Verify(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Rebuild handles POST /ledger/rebuild.
func (h *LedgerHandler) Rebuild(c *gin.Context) {
	report, err := h.aggregator.Rebuild(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

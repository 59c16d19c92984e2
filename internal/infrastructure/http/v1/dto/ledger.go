package dto

import (
	"strings"
	"time"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
)

func parseLocation(field, raw string) (entity.Location, error) {
	loc, err := entity.ParseLocation(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return "", apperror.NewValidation(err.Error()).WithDetail("field", field)
	}
	return loc, nil
}

// TransferRequest moves stock between two locations.
type TransferRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	From      string         `json:"from" binding:"required"`
	To        string         `json:"to" binding:"required"`
	Quantity  types.Quantity `json:"quantity"`
	Note      string         `json:"note,omitempty"`
}

// ToDomain validates identifiers and locations.
func (r TransferRequest) ToDomain() (ledger.TransferRequest, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return ledger.TransferRequest{}, err
	}
	from, err := parseLocation("from", r.From)
	if err != nil {
		return ledger.TransferRequest{}, err
	}
	to, err := parseLocation("to", r.To)
	if err != nil {
		return ledger.TransferRequest{}, err
	}
	return ledger.TransferRequest{
		ProductID: productID,
		From:      from,
		To:        to,
		Quantity:  r.Quantity,
		Note:      r.Note,
	}, nil
}

// AdjustRequest books a correction at one location.
type AdjustRequest struct {
	ProductID     string         `json:"productId" binding:"required"`
	Location      string         `json:"location" binding:"required"`
	Delta         types.Quantity `json:"delta"`
	Reason        string         `json:"reason" binding:"required"`
	AllowNegative bool           `json:"allowNegative,omitempty"`
}

// ToDomain validates identifiers and the location.
func (r AdjustRequest) ToDomain() (ledger.AdjustRequest, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return ledger.AdjustRequest{}, err
	}
	loc, err := parseLocation("location", r.Location)
	if err != nil {
		return ledger.AdjustRequest{}, err
	}
	return ledger.AdjustRequest{
		ProductID:     productID,
		Location:      loc,
		Delta:         r.Delta,
		Reason:        r.Reason,
		AllowNegative: r.AllowNegative,
	}, nil
}

// ProductionReceiptRequest books finished goods into a location.
type ProductionReceiptRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Location  string         `json:"location" binding:"required"`
	Quantity  types.Quantity `json:"quantity"`
	// JobOrderID links the receipt to the job order that produced it.
	JobOrderID string `json:"jobOrderId,omitempty"`
}

// ToDomain validates identifiers and the location.
func (r ProductionReceiptRequest) ToDomain() (ledger.ProductionReceipt, error) {
	productID, err := ParseID("productId", r.ProductID)
	if err != nil {
		return ledger.ProductionReceipt{}, err
	}
	loc, err := parseLocation("location", r.Location)
	if err != nil {
		return ledger.ProductionReceipt{}, err
	}
	out := ledger.ProductionReceipt{ProductID: productID, Location: loc, Quantity: r.Quantity}
	if r.JobOrderID != "" {
		jobID, err := ParseID("jobOrderId", r.JobOrderID)
		if err != nil {
			return ledger.ProductionReceipt{}, err
		}
		out.Ref = entity.DocumentRef{Type: ledger.RefTypeProduction, ID: jobID}
	}
	return out, nil
}

// EntryQuery filters ledger history.
type EntryQuery struct {
	ProductID string     `form:"productId"`
	Location  string     `form:"location"`
	RefID     string     `form:"refId"`
	Kind      string     `form:"kind"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset    int        `form:"offset" binding:"omitempty,min=0"`
}

// Filter converts the query to a ledger filter.
func (q EntryQuery) Filter() (ledger.EntryFilter, error) {
	f := ledger.EntryFilter{FromDate: q.From, ToDate: q.To, Limit: q.Limit, Offset: q.Offset}
	var err error
	if f.ProductID, err = ParseOptionalID("productId", q.ProductID); err != nil {
		return f, err
	}
	if f.RefID, err = ParseOptionalID("refId", q.RefID); err != nil {
		return f, err
	}
	if q.Location != "" {
		loc, err := parseLocation("location", q.Location)
		if err != nil {
			return f, err
		}
		f.Location = &loc
	}
	if q.Kind != "" {
		kind := entity.MovementKind(q.Kind)
		f.Kind = &kind
	}
	return f, nil
}

// ProductBalancesResponse lists the balances of one product.
type ProductBalancesResponse struct {
	ProductID string                             `json:"productId"`
	Balances  map[entity.Location]types.Quantity `json:"balances"`
	Total     types.Quantity                     `json:"total"`
}

// EntriesResponse wraps ledger entries.
type EntriesResponse struct {
	Items []entity.LedgerEntry `json:"items"`
}

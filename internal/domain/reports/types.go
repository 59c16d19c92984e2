// Package reports builds read-only stock reports from the product catalog and
// the ledger balance index.
package reports

import (
	"time"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
)

// --- Stock overview ---

// StockOverviewFilter narrows the overview.
type StockOverviewFilter struct {
	ProductIDs []id.ID

	// Locations limits the columns that count toward Total. Empty means all.
	Locations []entity.Location

	ExcludeZero bool

	Limit  int
	Offset int
}

// StockOverviewRow is one product with on-hand per location.
type StockOverviewRow struct {
	ProductID   id.ID                              `json:"productId"`
	ProductCode string                             `json:"productCode"`
	ProductName string                             `json:"productName"`
	Unit        string                             `json:"unit"`
	ByLocation  map[entity.Location]types.Quantity `json:"byLocation"`
	Total       types.Quantity                     `json:"total"`
}

// StockOverview is the overview result.
type StockOverview struct {
	GeneratedAt time.Time                          `json:"generatedAt"`
	Rows        []StockOverviewRow                 `json:"rows"`
	Totals      map[entity.Location]types.Quantity `json:"totals"`
	TotalCount  int                                `json:"totalCount"`
}

// --- Low stock ---

// LowStockRow is a product whose total on hand is at or below its threshold.
type LowStockRow struct {
	ProductID   id.ID          `json:"productId"`
	ProductCode string         `json:"productCode"`
	ProductName string         `json:"productName"`
	OnHand      types.Quantity `json:"onHand"`
	Threshold   types.Quantity `json:"threshold"`
	Shortfall   types.Quantity `json:"shortfall"`
}

// LowStockReport lists low-stock products, largest shortfall first.
type LowStockReport struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Items       []LowStockRow `json:"items"`
}

package dto

import (
	"orderflow/internal/domain/reports"
)

// StockOverviewRequest is the query of GET /reports/stock-overview.
type StockOverviewRequest struct {
	ProductIDs  []string `form:"productIds"`
	Locations   []string `form:"locations"`
	ExcludeZero *bool    `form:"excludeZero"`
	Limit       int      `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset      int      `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter validates the query. ExcludeZero defaults to true.
func (r StockOverviewRequest) ToFilter() (reports.StockOverviewFilter, error) {
	f := reports.StockOverviewFilter{
		ExcludeZero: r.ExcludeZero == nil || *r.ExcludeZero,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
	for _, raw := range r.ProductIDs {
		pid, err := ParseID("productIds", raw)
		if err != nil {
			return f, err
		}
		f.ProductIDs = append(f.ProductIDs, pid)
	}
	for _, raw := range r.Locations {
		loc, err := parseLocation("locations", raw)
		if err != nil {
			return f, err
		}
		f.Locations = append(f.Locations, loc)
	}
	return f, nil
}

package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/catalogs/product"
)

// ProductSource lists the catalog. product.Repository satisfies it.
type ProductSource interface {
	All(ctx context.Context) ([]*product.Product, error)
}

// BalanceSource lists indexed balances. ledger.Aggregator satisfies it.
type BalanceSource interface {
	AllBalances(ctx context.Context) ([]entity.LocationBalance, error)
}

// Service provides report generation operations.
type Service struct {
	products ProductSource
	balances BalanceSource
	now      func() time.Time
}

// NewService creates a new reports service.
func NewService(products ProductSource, balances BalanceSource) *Service {
	return &Service{
		products: products,
		balances: balances,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// byProduct groups balances per product and location.
func (s *Service) byProduct(ctx context.Context) (map[id.ID]map[entity.Location]types.Quantity, error) {
	rows, err := s.balances.AllBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	out := make(map[id.ID]map[entity.Location]types.Quantity)
	for _, b := range rows {
		m, ok := out[b.ProductID]
		if !ok {
			m = make(map[entity.Location]types.Quantity, len(entity.AllLocations))
			out[b.ProductID] = m
		}
		m[b.Location] += b.Quantity
	}
	return out, nil
}

// StockOverview returns on-hand per location for every product.
func (s *Service) StockOverview(ctx context.Context, filter StockOverviewFilter) (*StockOverview, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	products, err := s.products.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	balances, err := s.byProduct(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[id.ID]bool, len(filter.ProductIDs))
	for _, pid := range filter.ProductIDs {
		wanted[pid] = true
	}
	locations := filter.Locations
	if len(locations) == 0 {
		locations = entity.AllLocations
	}

	report := &StockOverview{
		GeneratedAt: s.now(),
		Totals:      make(map[entity.Location]types.Quantity, len(locations)),
	}
	for _, loc := range locations {
		report.Totals[loc] = 0
	}

	var rows []StockOverviewRow
	for _, p := range products {
		if len(wanted) > 0 && !wanted[p.ID] {
			continue
		}
		row := StockOverviewRow{
			ProductID:   p.ID,
			ProductCode: p.Code,
			ProductName: p.Name,
			Unit:        p.Unit,
			ByLocation:  make(map[entity.Location]types.Quantity, len(locations)),
		}
		for _, loc := range locations {
			q := balances[p.ID][loc]
			row.ByLocation[loc] = q
			row.Total += q
		}
		if filter.ExcludeZero && row.Total.IsZero() {
			continue
		}
		for loc, q := range row.ByLocation {
			report.Totals[loc] += q
		}
		rows = append(rows, row)
	}

	report.TotalCount = len(rows)
	start := filter.Offset
	if start > len(rows) {
		start = len(rows)
	}
	end := start + filter.Limit
	if end > len(rows) {
		end = len(rows)
	}
	report.Rows = rows[start:end]
	if report.Rows == nil {
		report.Rows = []StockOverviewRow{}
	}
	return report, nil
}

// LowStock lists products whose total on hand across all locations is at
// or below their threshold. Products without a threshold are skipped.
func (s *Service) LowStock(ctx context.Context) (*LowStockReport, error) {
	products, err := s.products.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	balances, err := s.byProduct(ctx)
	if err != nil {
		return nil, err
	}

	report := &LowStockReport{GeneratedAt: s.now(), Items: []LowStockRow{}}
	for _, p := range products {
		if !p.LowStockThreshold.IsPositive() {
			continue
		}
		var onHand types.Quantity
		for _, q := range balances[p.ID] {
			onHand += q
		}
		if onHand > p.LowStockThreshold {
			continue
		}
		report.Items = append(report.Items, LowStockRow{
			ProductID:   p.ID,
			ProductCode: p.Code,
			ProductName: p.Name,
			OnHand:      onHand,
			Threshold:   p.LowStockThreshold,
			Shortfall:   p.LowStockThreshold - onHand,
		})
	}

	sort.SliceStable(report.Items, func(i, j int) bool {
		return report.Items[i].Shortfall > report.Items[j].Shortfall
	})
	return report, nil
}

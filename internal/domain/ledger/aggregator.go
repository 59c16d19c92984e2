package ledger

import (
	"context"
	"fmt"
	"sort"

	"orderflow/internal/core/apperror"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/tx"
	"orderflow/internal/core/types"
	"orderflow/pkg/logger"
)

// Aggregator is the read side of the ledger. It answers on-hand queries from
// the maintained balance index and can rebuild that index from the log.
type Aggregator struct {
	repo      Repository
	txManager tx.Manager
}

// NewAggregator creates an Aggregator.
func NewAggregator(repo Repository, txm tx.Manager) *Aggregator {
	return &Aggregator{repo: repo, txManager: txm}
}

// OnHand returns the balance of productID at loc.
func (a *Aggregator) OnHand(ctx context.Context, productID id.ID, loc entity.Location) (types.Quantity, error) {
	if !loc.IsValid() {
		return 0, apperror.NewValidation("unknown location").WithDetail("location", string(loc))
	}
	q, err := a.repo.GetBalance(ctx, entity.BalanceKey{ProductID: productID, Location: loc})
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return q, nil
}

// Balances returns on-hand per location for productID. Every known location
// is present, unseen ones with zero.
func (a *Aggregator) Balances(ctx context.Context, productID id.ID) (map[entity.Location]types.Quantity, error) {
	rows, err := a.repo.GetBalancesByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	out := make(map[entity.Location]types.Quantity, len(entity.AllLocations))
	for _, loc := range entity.AllLocations {
		out[loc] = 0
	}
	for _, b := range rows {
		out[b.Location] += b.Quantity
	}
	return out, nil
}

// TotalOnHand sums productID across all locations.
func (a *Aggregator) TotalOnHand(ctx context.Context, productID id.ID) (types.Quantity, error) {
	balances, err := a.Balances(ctx, productID)
	if err != nil {
		return 0, err
	}
	var total types.Quantity
	for _, q := range balances {
		total += q
	}
	return total, nil
}

// AllBalances returns every indexed balance.
func (a *Aggregator) AllBalances(ctx context.Context) ([]entity.LocationBalance, error) {
	rows, err := a.repo.GetAllBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("get all balances: %w", err)
	}
	return rows, nil
}

// History returns ledger entries, newest first.
func (a *Aggregator) History(ctx context.Context, filter EntryFilter) ([]entity.LedgerEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return a.repo.ListEntries(ctx, filter)
}

// Drift describes a balance whose indexed value differs from the replayed one.
type Drift struct {
	ProductID id.ID           `json:"productId"`
	Location  entity.Location `json:"location"`
	Indexed   types.Quantity  `json:"indexed"`
	Replayed  types.Quantity  `json:"replayed"`
}

// VerifyReport summarizes a replay.
type VerifyReport struct {
	EntriesReplayed int     `json:"entriesReplayed"`
	Balances        int     `json:"balances"`
	Drift           []Drift `json:"drift,omitempty"`
}

// replay folds the whole entry log into balances. A commit-class entry that
// took a balance below zero without the override is an impossible state.
func (a *Aggregator) replay(ctx context.Context) (map[entity.BalanceKey]*entity.LocationBalance, int, error) {
	balances := make(map[entity.BalanceKey]*entity.LocationBalance)
	count := 0
	err := a.repo.ScanEntries(ctx, func(e entity.LedgerEntry) error {
		count++
		key := e.Key()
		b, ok := balances[key]
		if !ok {
			b = &entity.LocationBalance{ProductID: e.ProductID, Location: e.Location}
			balances[key] = b
		}
		b.Quantity += e.Delta
		b.LastSequence = e.Sequence
		b.LastMovementAt = e.CreatedAt

		if b.Quantity.IsNegative() && e.Delta.IsNegative() && e.Kind.IsCommit() && !e.Forced {
			return apperror.NewIntegrity("ledger entry drove on-hand below zero").
				WithDetail("entry_id", e.ID.String()).
				WithDetail("sequence", e.Sequence).
				WithDetail("product_id", e.ProductID.String()).
				WithDetail("location", string(e.Location)).
				WithDetail("balance", b.Quantity.String())
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return balances, count, nil
}

// Verify replays the log and compares it with the balance index.
// Any difference is reported as INTEGRITY_ERROR together with the report.
func (a *Aggregator) Verify(ctx context.Context) (VerifyReport, error) {
	replayed, count, err := a.replay(ctx)
	if err != nil {
		logger.Error(ctx, "ledger replay failed", "error", err)
		return VerifyReport{}, err
	}
	indexed, err := a.repo.GetAllBalances(ctx)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("get balances: %w", err)
	}

	report := VerifyReport{EntriesReplayed: count, Balances: len(replayed)}
	seen := make(map[entity.BalanceKey]bool, len(indexed))
	for _, b := range indexed {
		key := entity.BalanceKey{ProductID: b.ProductID, Location: b.Location}
		seen[key] = true
		var want types.Quantity
		if r, ok := replayed[key]; ok {
			want = r.Quantity
		}
		if want != b.Quantity {
			report.Drift = append(report.Drift, Drift{ProductID: b.ProductID, Location: b.Location, Indexed: b.Quantity, Replayed: want})
		}
	}
	for key, r := range replayed {
		if !seen[key] && !r.Quantity.IsZero() {
			report.Drift = append(report.Drift, Drift{ProductID: key.ProductID, Location: key.Location, Replayed: r.Quantity})
		}
	}
	sort.Slice(report.Drift, func(i, j int) bool {
		return entity.BalanceKey{ProductID: report.Drift[i].ProductID, Location: report.Drift[i].Location}.
			Less(entity.BalanceKey{ProductID: report.Drift[j].ProductID, Location: report.Drift[j].Location})
	})

	if len(report.Drift) > 0 {
		logger.Error(ctx, "balance index drift detected", "drift", len(report.Drift))
		return report, apperror.NewIntegrity("balance index does not match ledger").
			WithDetail("drift", len(report.Drift))
	}
	return report, nil
}

// Rebuild replays the log and replaces the balance index.
func (a *Aggregator) Rebuild(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		replayed, count, err := a.replay(ctx)
		if err != nil {
			return err
		}
		rows := make([]entity.LocationBalance, 0, len(replayed))
		for _, b := range replayed {
			rows = append(rows, *b)
		}
		sort.Slice(rows, func(i, j int) bool {
			return entity.BalanceKey{ProductID: rows[i].ProductID, Location: rows[i].Location}.
				Less(entity.BalanceKey{ProductID: rows[j].ProductID, Location: rows[j].Location})
		})
		if err := a.repo.ReplaceBalances(ctx, rows); err != nil {
			return fmt.Errorf("replace balances: %w", err)
		}
		report = VerifyReport{EntriesReplayed: count, Balances: len(rows)}
		return nil
	})
	if err != nil {
		return VerifyReport{}, err
	}
	logger.Info(ctx, "balance index rebuilt", "entries", report.EntriesReplayed, "balances", report.Balances)
	return report, nil
}

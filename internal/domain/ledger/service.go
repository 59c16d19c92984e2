package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/tx"
	"orderflow/internal/core/types"
	"orderflow/pkg/logger"
)

// Reference types written by the ledger's own administrative flows.
const (
	RefTypeAdjustment = "adjustment"
	RefTypeTransfer   = "transfer"
	RefTypeProduction = "production_receipt"
)

// AppendOptions controls the non-negative rule.
type AppendOptions struct {
	// AllowNegative lets commit-class entries drive a balance below zero.
	// Reserved for administrative flows.
	AllowNegative bool
}

// Service is the write side of the location ledger.
type Service struct {
	repo      Repository
	txManager tx.Manager
	now       func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txm,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Lock locks the balances of productID at the given locations for the rest
// of the caller's transaction and returns them. Callers that read balances
// to plan entries must lock first so the plan stays valid until Append.
func (s *Service) Lock(ctx context.Context, productID id.ID, locations ...entity.Location) (map[entity.Location]types.Quantity, error) {
	keys := make([]entity.BalanceKey, 0, len(locations))
	for _, loc := range locations {
		keys = append(keys, entity.BalanceKey{ProductID: productID, Location: loc})
	}
	balances, err := s.repo.LockBalances(ctx, sortedUnique(keys))
	if err != nil {
		return nil, fmt.Errorf("lock balances: %w", err)
	}
	out := make(map[entity.Location]types.Quantity, len(locations))
	for _, loc := range locations {
		out[loc] = balances[entity.BalanceKey{ProductID: productID, Location: loc}]
	}
	return out, nil
}

// Append records entries atomically. A commit-class entry that would drive
// the projected on-hand of its (product, location) below zero fails the
// whole batch with VALIDATION_ERROR unless opts.AllowNegative is set.
// Entries in one call share a GroupID.
func (s *Service) Append(ctx context.Context, entries []entity.LedgerEntry, opts AppendOptions) ([]entity.LedgerEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	for i := range entries {
		if err := validateEntry(&entries[i]); err != nil {
			return nil, err.WithDetail("index", i)
		}
	}

	out := make([]entity.LedgerEntry, len(entries))
	copy(out, entries)

	groupID := id.New()
	actor := appctx.GetActorID(ctx)
	now := s.now()
	for i := range out {
		if id.IsNil(out[i].ID) {
			out[i].ID = id.New()
		}
		if id.IsNil(out[i].GroupID) {
			out[i].GroupID = groupID
		}
		out[i].CreatedBy = actor
		out[i].CreatedAt = now
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		keys := make([]entity.BalanceKey, 0, len(out))
		for i := range out {
			keys = append(keys, out[i].Key())
		}
		balances, err := s.repo.LockBalances(ctx, sortedUnique(keys))
		if err != nil {
			return fmt.Errorf("lock balances: %w", err)
		}

		projected := make(map[entity.BalanceKey]types.Quantity, len(balances))
		for k, v := range balances {
			projected[k] = v
		}
		for i := range out {
			e := &out[i]
			key := e.Key()
			before := projected[key]
			after := before + e.Delta
			projected[key] = after
			if after.IsNegative() && e.Delta.IsNegative() && e.Kind.IsCommit() {
				if !opts.AllowNegative {
					return apperror.NewValidation("movement would drive on-hand below zero").
						WithDetail("product_id", e.ProductID.String()).
						WithDetail("location", string(e.Location)).
						WithDetail("available", before.String()).
						WithDetail("requested", e.Delta.Neg().String())
				}
				e.Forced = true
			}
		}

		if err := s.repo.AppendEntries(ctx, out); err != nil {
			return fmt.Errorf("append entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "ledger entries appended",
		"count", len(out),
		"group_id", groupID,
		"kind", out[0].Kind,
	)
	return out, nil
}

func validateEntry(e *entity.LedgerEntry) *apperror.AppError {
	switch {
	case id.IsNil(e.ProductID):
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	case !e.Location.IsValid():
		return apperror.NewValidation("unknown location").WithDetail("location", string(e.Location))
	case !e.Kind.IsValid():
		return apperror.NewValidation("unknown movement kind").WithDetail("kind", string(e.Kind))
	case e.Delta.IsZero():
		return apperror.NewValidation("movement quantity cannot be zero").WithDetail("field", "delta")
	}
	return nil
}

// sortedUnique orders keys for deadlock-free locking.
func sortedUnique(keys []entity.BalanceKey) []entity.BalanceKey {
	seen := make(map[entity.BalanceKey]struct{}, len(keys))
	out := make([]entity.BalanceKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// --- Administrative flows ---

// TransferRequest moves stock between two locations.
type TransferRequest struct {
	ProductID id.ID
	From      entity.Location
	To        entity.Location
	Quantity  types.Quantity
	Note      string
}

// Transfer appends a transfer-out/transfer-in pair sharing one group id.
// The source must cover the quantity.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) ([]entity.LedgerEntry, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("transfer quantity must be positive").WithDetail("field", "quantity")
	}
	if req.From == req.To {
		return nil, apperror.NewValidation("source and destination must differ").WithDetail("field", "to")
	}

	ref := entity.DocumentRef{Type: RefTypeTransfer, ID: id.New()}
	out := entity.NewLedgerEntry(req.ProductID, req.From, req.Quantity.Neg(), entity.MovementTransfer, ref)
	in := entity.NewLedgerEntry(req.ProductID, req.To, req.Quantity, entity.MovementTransfer, ref)
	out.Note, in.Note = req.Note, req.Note

	entries, err := s.Append(ctx, []entity.LedgerEntry{out, in}, AppendOptions{})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "stock transferred",
		"product_id", req.ProductID,
		"from", req.From,
		"to", req.To,
		"quantity", req.Quantity.String(),
	)
	return entries, nil
}

// AdjustRequest corrects stock at one location (count differences, damage).
type AdjustRequest struct {
	ProductID     id.ID
	Location      entity.Location
	Delta         types.Quantity
	Reason        string
	AllowNegative bool
}

// Adjust appends an adjustment entry. Adjustments are exempt from the
// non-negative rule only when AllowNegative is set; otherwise a decrease
// still cannot take the location below zero.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (entity.LedgerEntry, error) {
	if req.Reason == "" {
		return entity.LedgerEntry{}, apperror.NewValidation("adjustment reason is required").WithDetail("field", "reason")
	}

	e := entity.NewLedgerEntry(req.ProductID, req.Location, req.Delta, entity.MovementAdjustment,
		entity.DocumentRef{Type: RefTypeAdjustment, ID: id.New()})
	e.Note = req.Reason

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if req.Delta.IsNegative() && !req.AllowNegative {
			balances, err := s.Lock(ctx, req.ProductID, req.Location)
			if err != nil {
				return err
			}
			if available := balances[req.Location]; available+req.Delta < 0 {
				return apperror.NewValidation("adjustment would drive on-hand below zero").
					WithDetail("available", available.String()).
					WithDetail("requested", req.Delta.Neg().String())
			}
		}
		entries, err := s.Append(ctx, []entity.LedgerEntry{e}, AppendOptions{AllowNegative: req.AllowNegative})
		if err != nil {
			return err
		}
		e = entries[0]
		return nil
	})
	if err != nil {
		return entity.LedgerEntry{}, err
	}

	logger.Info(ctx, "stock adjusted",
		"product_id", req.ProductID,
		"location", req.Location,
		"delta", req.Delta.String(),
		"allow_negative", req.AllowNegative,
	)
	return e, nil
}

// ProductionReceipt books finished goods into a location.
type ProductionReceipt struct {
	ProductID id.ID
	Location  entity.Location
	Quantity  types.Quantity
	Ref       entity.DocumentRef
}

// ReceiveProduction appends a production_in entry.
func (s *Service) ReceiveProduction(ctx context.Context, req ProductionReceipt) (entity.LedgerEntry, error) {
	if !req.Quantity.IsPositive() {
		return entity.LedgerEntry{}, apperror.NewValidation("produced quantity must be positive").WithDetail("field", "quantity")
	}
	ref := req.Ref
	if ref.Type == "" {
		ref = entity.DocumentRef{Type: RefTypeProduction, ID: id.New()}
	}
	entries, err := s.Append(ctx, []entity.LedgerEntry{
		entity.NewLedgerEntry(req.ProductID, req.Location, req.Quantity, entity.MovementProductionIn, ref),
	}, AppendOptions{})
	if err != nil {
		return entity.LedgerEntry{}, err
	}
	return entries[0], nil
}

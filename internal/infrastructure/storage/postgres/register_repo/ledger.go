// Package register_repo provides the PostgreSQL location ledger.
package register_repo

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orderflow/internal/core/entity"
	"orderflow/internal/core/id"
	"orderflow/internal/core/types"
	"orderflow/internal/domain/ledger"
	"orderflow/internal/infrastructure/storage/postgres"
)

const (
	entriesTable  = "reg_ledger_entries"
	balancesTable = "reg_location_balances"
)

var entryColumns = []string{
	"id", "sequence", "product_id", "location", "delta", "kind",
	"ref_type", "ref_id", "ref_line_id", "group_id",
	"forced", "note", "created_by", "created_at",
}

var balanceColumns = []string{
	"product_id", "location", "quantity", "last_sequence", "last_movement_at",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchWriter
	builder squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		batch:   postgres.NewBatchWriter(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LockBalances implements ledger.Repository. Each key is upserted with a
// no-op update, which both creates missing rows and takes the row lock, so
// unseen keys are serialized as well.
func (r *LedgerRepo) LockBalances(ctx context.Context, keys []entity.BalanceKey) (map[entity.BalanceKey]types.Quantity, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("lock balances requires transaction context")
	}

	ordered := make([]entity.BalanceKey, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	q := r.txm.GetQuerier(ctx)
	out := make(map[entity.BalanceKey]types.Quantity, len(ordered))
	for _, key := range ordered {
		var qty types.Quantity
		err := q.QueryRow(ctx, `
			INSERT INTO reg_location_balances (product_id, location, quantity, last_sequence, last_movement_at)
			VALUES ($1, $2, 0, 0, NOW())
			ON CONFLICT (product_id, location) DO UPDATE SET quantity = reg_location_balances.quantity
			RETURNING quantity
		`, key.ProductID, key.Location).Scan(&qty)
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", key, err)
		}
		out[key] = qty
	}
	return out, nil
}

// AppendEntries implements ledger.Repository. Sequences are drawn in one
// round trip, entries go in via COPY and balances via a batched upsert.
func (r *LedgerRepo) AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	q := r.txm.GetQuerier(ctx)

	rows, err := q.Query(ctx,
		`SELECT nextval('reg_ledger_entries_sequence_seq') FROM generate_series(1, $1)`, len(entries))
	if err != nil {
		return fmt.Errorf("draw sequences: %w", err)
	}
	seqs := make([]int64, 0, len(entries))
	for rows.Next() {
		var s int64
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return fmt.Errorf("scan sequence: %w", err)
		}
		seqs = append(seqs, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("draw sequences: %w", err)
	}
	if len(seqs) != len(entries) {
		return fmt.Errorf("draw sequences: got %d, want %d", len(seqs), len(entries))
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	copyRows := make([][]any, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		e.Sequence = seqs[i]
		copyRows = append(copyRows, []any{
			e.ID, e.Sequence, e.ProductID, string(e.Location), e.Delta.Int64Scaled(), string(e.Kind),
			e.RefType, e.RefID, e.RefLineID, e.GroupID,
			e.Forced, e.Note, e.CreatedBy, e.CreatedAt,
		})
	}
	if _, err := r.batch.CopyFrom(ctx, entriesTable, entryColumns, copyRows); err != nil {
		return fmt.Errorf("copy entries: %w", err)
	}

	statements := make([]postgres.Statement, 0, len(entries))
	for _, b := range foldBalances(entries) {
		statements = append(statements, postgres.Statement{
			SQL: `
				INSERT INTO reg_location_balances (product_id, location, quantity, last_sequence, last_movement_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (product_id, location) DO UPDATE SET
					quantity = reg_location_balances.quantity + EXCLUDED.quantity,
					last_sequence = EXCLUDED.last_sequence,
					last_movement_at = EXCLUDED.last_movement_at
			`,
			Args: []any{b.ProductID, string(b.Location), b.Quantity.Int64Scaled(), b.LastSequence, b.LastMovementAt},
		})
	}
	if err := r.batch.Exec(ctx, statements); err != nil {
		return fmt.Errorf("apply balances: %w", err)
	}
	return nil
}

// foldBalances sums entry deltas per key, in key order.
func foldBalances(entries []entity.LedgerEntry) []entity.LocationBalance {
	byKey := make(map[entity.BalanceKey]*entity.LocationBalance)
	var keys []entity.BalanceKey
	for i := range entries {
		e := &entries[i]
		k := e.Key()
		b, ok := byKey[k]
		if !ok {
			b = &entity.LocationBalance{ProductID: k.ProductID, Location: k.Location}
			byKey[k] = b
			keys = append(keys, k)
		}
		b.Quantity += e.Delta
		if e.Sequence > b.LastSequence {
			b.LastSequence = e.Sequence
			b.LastMovementAt = e.CreatedAt
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]entity.LocationBalance, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

// GetBalance implements ledger.Repository.
func (r *LedgerRepo) GetBalance(ctx context.Context, key entity.BalanceKey) (types.Quantity, error) {
	var qty types.Quantity
	err := r.txm.GetQuerier(ctx).QueryRow(ctx,
		`SELECT quantity FROM reg_location_balances WHERE product_id = $1 AND location = $2`,
		key.ProductID, string(key.Location),
	).Scan(&qty)
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return qty, nil
}

// GetBalancesByProduct implements ledger.Repository.
func (r *LedgerRepo) GetBalancesByProduct(ctx context.Context, productID id.ID) ([]entity.LocationBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("location")
	return r.selectBalances(ctx, q)
}

// GetAllBalances implements ledger.Repository.
func (r *LedgerRepo) GetAllBalances(ctx context.Context) ([]entity.LocationBalance, error) {
	q := r.builder.Select(balanceColumns...).
		From(balancesTable).
		OrderBy("product_id", "location")
	return r.selectBalances(ctx, q)
}

func (r *LedgerRepo) selectBalances(ctx context.Context, q squirrel.SelectBuilder) ([]entity.LocationBalance, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var balances []entity.LocationBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	return balances, nil
}

// entriesQuery builds the history query for filter.
func (r *LedgerRepo) entriesQuery(filter ledger.EntryFilter) squirrel.SelectBuilder {
	q := r.builder.Select(entryColumns...).From(entriesTable)

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.Location != nil {
		q = q.Where(squirrel.Eq{"location": string(*filter.Location)})
	}
	if filter.RefID != nil {
		q = q.Where(squirrel.Eq{"ref_id": *filter.RefID})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": string(*filter.Kind)})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("sequence DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// ListEntries implements ledger.Repository.
func (r *LedgerRepo) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]entity.LedgerEntry, error) {
	sql, args, err := r.entriesQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var entries []entity.LedgerEntry
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

// ScanEntries implements ledger.Repository.
func (r *LedgerRepo) ScanEntries(ctx context.Context, fn func(entity.LedgerEntry) error) error {
	sql, args, err := r.builder.Select(entryColumns...).
		From(entriesTable).
		OrderBy("sequence").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("scan entries: %w", err)
	}
	defer rows.Close()

	scanner := pgxscan.NewRowScanner(rows)
	for rows.Next() {
		var e entity.LedgerEntry
		if err := scanner.Scan(&e); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ReplaceBalances implements ledger.Repository.
func (r *LedgerRepo) ReplaceBalances(ctx context.Context, balances []entity.LocationBalance) error {
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, `DELETE FROM reg_location_balances`); err != nil {
		return fmt.Errorf("clear balances: %w", err)
	}

	rows := make([][]any, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, []any{
			b.ProductID, string(b.Location), b.Quantity.Int64Scaled(), b.LastSequence, b.LastMovementAt,
		})
	}
	if _, err := r.batch.CopyFrom(ctx, balancesTable, balanceColumns, rows); err != nil {
		return fmt.Errorf("copy balances: %w", err)
	}
	return nil
}

var _ ledger.Repository = (*LedgerRepo)(nil)

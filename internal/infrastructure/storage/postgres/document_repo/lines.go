package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"orderflow/internal/core/id"
	"orderflow/internal/infrastructure/storage/postgres"
)

// pricedLineColumns are shared by quotation and sales order line tables.
var pricedLineColumns = []string{
	"line_id", "line_no", "product_id", "description",
	"quantity", "unit_price", "amount",
}

// lineTable reads and replaces the lines of one document type.
type lineTable[L any] struct {
	txm   *postgres.TxManager
	table string
	cols  []string
	row   func(docID id.ID, line L) []any
}

func (t lineTable[L]) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (t lineTable[L]) get(ctx context.Context, docID id.ID) ([]L, error) {
	sql, args, err := t.builder().
		Select(t.cols...).
		From(t.table).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	lines := make([]L, 0)
	if err := pgxscan.Select(ctx, t.txm.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return lines, nil
}

// replace deletes the stored lines and inserts lines in one statement.
func (t lineTable[L]) replace(ctx context.Context, docID id.ID, lines []L) error {
	querier := t.txm.GetQuerier(ctx)

	if _, err := querier.Exec(ctx, "DELETE FROM "+t.table+" WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}

	q := t.builder().Insert(t.table).Columns(append([]string{"document_id"}, t.cols...)...)
	for _, l := range lines {
		q = q.Values(append([]any{docID}, t.row(docID, l)...)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BatchWriter sends many rows or statements to PostgreSQL in one round trip.
// Both methods require a transaction in ctx so a partial batch never commits.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a batch writer bound to txManager.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// CopyFrom bulk-inserts rows with the COPY protocol. Used for ledger entries
// and opening stock, where a single document can produce dozens of rows.
func (b *BatchWriter) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// Statement is one query of a batch.
type Statement struct {
	SQL  string
	Args []any
}

// Exec runs statements in a single round trip and fails on the first error.
func (b *BatchWriter) Exec(ctx context.Context, statements []Statement) error {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("batch exec requires transaction context")
	}
	if len(statements) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range statements {
		batch.Queue(s.SQL, s.Args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range statements {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, err)
		}
	}
	return nil
}

// Package memory provides in-process repositories used for tests, demos and
// single-node deployments without PostgreSQL.
//
// Transactions are emulated with an undo journal: every write registers a
// compensating action that runs if the transaction function fails. Locks
// taken inside a transaction are released when it finishes.
package memory

import (
	"context"
	"fmt"

	"orderflow/internal/core/tx"
)

type txKey struct{}

type txState struct {
	undo     []func()
	releases []func()
	held     map[string]bool
}

// TxManager implements tx.Manager for the memory store.
type TxManager struct{}

// NewTxManager creates a TxManager.
func NewTxManager() *TxManager {
	return &TxManager{}
}

// RunInTransaction executes fn; on error or panic every registered undo runs
// in reverse order. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if current(ctx) != nil {
		return fn(ctx)
	}

	st := &txState{held: make(map[string]bool)}
	txCtx := context.WithValue(ctx, txKey{}, st)

	defer func() {
		if p := recover(); p != nil {
			st.rollback()
			st.release()
			panic(p)
		}
		if err != nil {
			st.rollback()
		}
		st.release()
	}()

	if err = fn(txCtx); err != nil {
		return err
	}
	return nil
}

func (st *txState) rollback() {
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
	st.undo = nil
}

func (st *txState) release() {
	for i := len(st.releases) - 1; i >= 0; i-- {
		st.releases[i]()
	}
	st.releases = nil
}

func current(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// onRollback registers a compensating action. Outside a transaction the
// write is final and nothing is recorded.
func onRollback(ctx context.Context, fn func()) {
	if st := current(ctx); st != nil {
		st.undo = append(st.undo, fn)
	}
}

// holdUntilEnd acquires key via acquire once per transaction and keeps it
// until the transaction finishes.
func holdUntilEnd(ctx context.Context, key string, acquire func(context.Context) (func(), error)) error {
	st := current(ctx)
	if st == nil {
		return fmt.Errorf("lock %s requires a transaction", key)
	}
	if st.held[key] {
		return nil
	}
	release, err := acquire(ctx)
	if err != nil {
		return err
	}
	st.held[key] = true
	st.releases = append(st.releases, release)
	return nil
}

var _ tx.Manager = (*TxManager)(nil)

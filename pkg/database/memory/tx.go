package memory

import (
	"context"
	"errors"
	"sync"
)

type txJournalContextKey struct{}

var (
	ErrAlreadyInTx = errors.New("already executing in existing memory tx")
)

// journal collects undo functions for writes made by in-memory stores while a
// transaction is open.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

// ExecuteTxWithinCtx runs fn with a transaction journal attached to the
// context. In-memory stores register undo functions against the journal via
// OnRollback, and they are applied in reverse order when fn fails.
func ExecuteTxWithinCtx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txJournalContextKey{}) != nil {
		return ErrAlreadyInTx
	}

	j := &journal{}
	ctx = context.WithValue(ctx, txJournalContextKey{}, j)

	err := fn(ctx)
	if err != nil {
		j.rollback()
		return err
	}
	return nil
}

// OnRollback registers undo to run if the transaction attached to ctx fails.
// Outside of a transaction every write is final and undo is dropped.
func OnRollback(ctx context.Context, undo func()) {
	j, ok := ctx.Value(txJournalContextKey{}).(*journal)
	if !ok {
		return
	}

	j.mu.Lock()
	j.undo = append(j.undo, undo)
	j.mu.Unlock()
}

// InTx reports whether ctx carries an open memory transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txJournalContextKey{}).(*journal)
	return ok
}

func (j *journal) rollback() {
	j.mu.Lock()
	undo := j.undo
	j.undo = nil
	j.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

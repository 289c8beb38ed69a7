/*
tx.go - Ambient unit-of-work transaction management

PURPOSE:
  Owns the transaction for one logical unit of work and collapses nested
  requests: a service can call another service's multi-statement operation
  inside its own transaction without double-wrapping.

DESIGN:
  The ambient transaction travels in the context rather than in global
  state. WithTransaction checks the incoming context; if a transaction is
  already open it runs fn in place and neither commits nor rolls back -
  the outermost caller owns both. Otherwise it opens one, rolls back on
  error or panic via deferred cleanup, and commits on success.

FAILURE SEMANTICS:
  Errors from fn propagate after rollback. Rollback failures are logged
  but never mask the original error. A cancelled context aborts before
  commit; database/sql rolls the transaction back on its own.

SEE ALSO:
  - executor.go: Resolves its connection through the same context key
*/
package persist

import (
	"context"
	"database/sql"
	"errors"
)

type txKey struct{}

// TxFromContext returns the ambient transaction, if one is open.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// WithTransaction runs fn inside the ambient transaction, opening one if
// none is active. Nested calls collapse into the outer transaction.
func (ex *Executor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := ex.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			ex.log.Errorw("transaction rollback failed", "error", rbErr)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// InTransaction is WithTransaction for callers that produce a result.
func InTransaction[T any](ctx context.Context, ex *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := ex.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

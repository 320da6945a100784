package share

import (
	"context"
	"time"
)

// Transaction is one storage transaction. Implementations wrap whatever the
// backing store provides; storage services downcast to their own concrete
// type.
type Transaction interface {
	Commit() error
	Context() context.Context
	Rollback() error
}

// Transactor hands out transactions. Start is separate from construction so
// that implementations which need to establish a connection can do that upon
// Start() rather than in their New function.
type Transactor interface {
	Start() error
	BeginTx(ctx context.Context, writable bool) (Transaction, error)
	Close() error
}

// TxFunc is the unit of work passed to RetryWithTx. It must be safe to re-run:
// on a retryable failure the whole function is executed again in a fresh
// transaction.
type TxFunc func(tx Transaction, writable bool) error

// RetryWithTx runs fn inside a transaction, committing on success and rolling
// back on error. Write transactions under snapshot isolation can fail to
// begin or commit on serialization conflicts, so those failures are retried
// up to `retries` times with a short backoff. Errors returned by fn itself are
// business errors and are returned to the caller immediately.
func RetryWithTx(ctx context.Context, trans Transactor, fn TxFunc, writable bool, retries int) error {
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}

		var tx Transaction
		tx, err = trans.BeginTx(ctx, writable)
		if err != nil {
			continue
		}

		if ferr := fn(tx, writable); ferr != nil {
			_ = tx.Rollback()
			return ferr
		}

		if err = tx.Commit(); err == nil {
			return nil
		}
	}

	return err
}

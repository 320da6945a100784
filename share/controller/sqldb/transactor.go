// Package sqldb implements the controller's Store and Transactor on a SQL
// database through pop.
package sqldb

import (
	"context"
	"database/sql"

	"github.com/gobuffalo/pop/v6"

	"github.com/datafoundry/shareflow/errors"
	"github.com/datafoundry/shareflow/share"
)

// Transactor wraps a pop Connection to make it into a share.Transactor which
// can be used by the controller agnostic of implementation.
type Transactor struct {
	*pop.Connection
}

func (t Transactor) Start() error {
	return nil
}

func (t Transactor) BeginTx(ctx context.Context, writable bool) (share.Transaction, error) {
	cn, err := t.NewTransactionContextOptions(ctx, &sql.TxOptions{ReadOnly: !writable})
	if err != nil {
		return nil, errors.Wrap(err, "getting SQL transaction")
	}
	return &ShareTransaction{C: cn}, nil
}

func (t Transactor) Close() error {
	return t.Connection.Close()
}

// ShareTransaction is a thin wrapper to create a share.Transaction from a pop
// Transaction/Connection.
type ShareTransaction struct {
	C *pop.Connection
}

func (w *ShareTransaction) Commit() error {
	return w.C.TX.Commit()
}

func (w *ShareTransaction) Context() context.Context {
	return w.C.Context()
}

func (w *ShareTransaction) Rollback() error {
	return w.C.TX.Rollback()
}

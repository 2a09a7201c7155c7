package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// TxRunner runs fn inside a single transaction: fn's error (or panic) rolls everything back.
	// Repositories called with the provided executor take part in the transaction.
	TxRunner interface {
		InTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}

	// Tx is the executor a TxRunner hands to fn.
	Tx struct {
		DBExecutor
		onCommit []func()
	}
)

func NewTx(exec DBExecutor) *Tx {
	return &Tx{DBExecutor: exec}
}

// Committed runs the callbacks registered with AfterCommit, in order.
func (tx *Tx) Committed() {
	for _, fn := range tx.onCommit {
		fn()
	}
	tx.onCommit = nil
}

// AfterCommit delays fn until the transaction exec belongs to commits; it is dropped on rollback.
// Outside of a transaction fn runs right away.
func AfterCommit(fn func(), exec ...DBExecutor) {
	if len(exec) > 0 {
		if tx, ok := exec[0].(*Tx); ok {
			tx.onCommit = append(tx.onCommit, fn)
			return
		}
	}
	fn()
}

// Package sqlxrepos implements the domain repositories with hand-written postgres SQL.
// Queries use "?" bind vars and slice arguments, expanded by sqlx.In and rebound to "$n".
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// postgres error code of unique constraint violations.
const uniqueViolation = pq.ErrorCode("23505")

type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

// hasSlice reports whether some argument is a list to expand in an IN clause.
func hasSlice(args []interface{}) bool {
	for _, arg := range args {
		switch arg.(type) {
		case nil, []byte, driver.Valuer:
			continue
		}
		if reflect.TypeOf(arg).Kind() == reflect.Slice {
			return true
		}
	}
	return false
}

func bind(query string, args []interface{}) (string, []interface{}, error) {
	if hasSlice(args) {
		var err error
		if query, args, err = sqlx.In(query, args...); err != nil {
			return "", nil, errors.Wrap(err, "expanding query")
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// selectAll scans every row into dest, a pointer to a slice of structs with db tags.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	query, args, err := bind(query, args)
	if err != nil {
		return err
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

// scalar scans the single column of the first row into dest.
func scalar(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	query, args, err := bind(query, args)
	if err != nil {
		return err
	}
	return exec.QueryRowContext(ctx, query, args...).Scan(dest)
}

func execute(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (sql.Result, error) {
	query, args, err := bind(query, args)
	if err != nil {
		return nil, err
	}
	return exec.ExecContext(ctx, query, args...)
}

// page appends LIMIT / OFFSET when p is set.
func page(query string, args []interface{}, p *core.Pagination) (string, []interface{}) {
	if p == nil {
		return query, args
	}
	return query + " LIMIT ? OFFSET ?", append(args, p.Limit(), p.Offset())
}

// where joins conditions with AND.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	s := " WHERE " + w.conds[0]
	for _, c := range w.conds[1:] {
		s += " AND " + c
	}
	return s
}

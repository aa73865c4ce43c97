package sqlx

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/pool/driver"
)

// Conn runs driver.Statement payloads. Queries return *driver.Rows, Exec
// statements return *driver.ExecResult.
type Conn struct {
	db      *sqlx.DB
	dialect string
}

func (c *Conn) Execute(ctx context.Context, payload interface{}) (interface{}, error) {
	stmt, err := driver.ToStatement(payload)
	if err != nil {
		return nil, err
	}

	if stmt.Exec {
		return c.exec(ctx, stmt)
	}

	return c.query(ctx, stmt)
}

func (c *Conn) query(ctx context.Context, stmt *driver.Statement) (*driver.Rows, error) {
	rows, err := c.db.QueryxContext(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "columns")
	}

	result := &driver.Rows{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
	}

	for rows.Next() {
		row := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(row); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		for k, v := range row {
			row[k] = driver.NormalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}

	return result, nil
}

func (c *Conn) exec(ctx context.Context, stmt *driver.Statement) (*driver.ExecResult, error) {
	// clickhouse-go accepts writes only inside a transaction
	if c.dialect == DialectClickHouse {
		tx, err := c.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "begin")
		}

		res, err := tx.ExecContext(ctx, stmt.Query, stmt.Args...)
		if err != nil {
			_ = tx.Rollback()
			return nil, errors.Wrap(err, "exec")
		}

		if err := tx.Commit(); err != nil {
			return nil, errors.Wrap(err, "commit")
		}

		return execResult(res), nil
	}

	res, err := c.db.ExecContext(ctx, stmt.Query, stmt.Args...)
	if err != nil {
		return nil, errors.Wrap(err, "exec")
	}

	return execResult(res), nil
}

type sqlResult interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

func execResult(res sqlResult) *driver.ExecResult {
	// Not every driver reports both values, missing ones stay zero.
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &driver.ExecResult{RowsAffected: affected, LastInsertID: lastID}
}

func (c *Conn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Conn) Close() error {
	return c.db.Close()
}

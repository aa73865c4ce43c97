package dispatch

import (
	"context"
	"time"

	"github.com/agnosticeng/panicsafe"
	"github.com/soldatov-s/go-dispatch/pool"
)

// unit pairs a query with the connection it runs on. It is created by the
// loop, executed on a worker slot and handed back to the loop.
type unit struct {
	query *Query
	conn  *pool.Conn

	startedAt  time.Time
	finishedAt time.Time
	payload    interface{}
	err        error
}

func newUnit(q *Query, conn *pool.Conn) *unit {
	return &unit{query: q, conn: conn}
}

// execute blocks for the duration of the remote call. Driver panics are
// turned into execution errors.
func (u *unit) execute(ctx context.Context) {
	u.startedAt = nowFunc()
	u.err = panicsafe.Recover(func() error {
		var err error
		u.payload, err = u.conn.Execute(ctx, u.query.Payload)
		return err
	})
	u.finishedAt = nowFunc()
}

// healthy reports whether the connection may be reused.
func (u *unit) healthy() bool {
	return u.err == nil
}

func (u *unit) result() *Result {
	res := &Result{
		QueryID:     u.query.id,
		Status:      StatusSuccess,
		ConnID:      u.conn.ID(),
		SubmittedAt: u.query.submittedAt,
		StartedAt:   u.startedAt,
		FinishedAt:  u.finishedAt,
	}

	if u.err != nil {
		res.Status = StatusExecutionFailure
		res.Err = newQueryError(ErrExecution, u.err)
		return res
	}

	res.Payload = u.payload
	return res
}

package dispatch

import (
	"context"
	"time"
)

// Do submits payload and waits for its result. The deadline of ctx bounds
// the time the query may wait for a connection; once the query runs it is
// not interrupted, and Do returns ctx.Err() without waiting for it.
func (e *Engine) Do(ctx context.Context, payload interface{}) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan *Result, 1)
	q := NewQuery(payload, func(res *Result) {
		ch <- res
	})

	if deadline, ok := ctx.Deadline(); ok {
		q.Timeout = time.Until(deadline)
		if q.Timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if !e.StartQuery(q) {
		return nil, ErrRejected
	}

	select {
	case res := <-ch:
		return res, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

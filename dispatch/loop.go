package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agnosticeng/panicsafe"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/soldatov-s/go-dispatch/pool"
)

type dialResult struct {
	conn *pool.Conn
	err  error
}

// run is the loop goroutine. Everything below is called from it only.
func (e *Engine) run(ctx context.Context) {
	defer e.finish()

	cancelled := ctx.Done()
	for !e.drained() {
		select {
		case <-e.wake:
			e.acceptPending()
		case u := <-e.completions:
			e.complete(u)
		case r := <-e.dials:
			e.connected(r)
		case <-e.timerC():
			e.timer = nil
			e.expireAwaiting()
		case <-cancelled:
			cancelled = nil
			e.mu.Lock()
			if e.getState() == stateRunning {
				e.setState(stateDraining)
			}
			e.mu.Unlock()
			e.acceptPending()
		}

		e.resetTimer()
	}
}

func (e *Engine) drained() bool {
	return e.draining &&
		e.dialing == 0 &&
		len(e.awaiting) == 0 &&
		atomic.LoadInt64(&e.activeQueries) == 0
}

func (e *Engine) finish() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.cancelDials()
	e.release(e.ctx)

	e.mu.Lock()
	e.setState(stateStopped)
	e.mu.Unlock()
	close(e.done)
}

// acceptPending swaps the pending buffer with the loop's working buffer, so
// the lock is held for the swap only.
func (e *Engine) acceptPending() {
	e.mu.Lock()
	e.working, e.pending = e.pending, e.working[:0]
	draining := e.getState() == stateDraining
	e.mu.Unlock()

	if draining && !e.draining {
		e.draining = true
		// Dials in flight serve nobody once awaiting queries are resolved.
		e.cancelDials()
		e.GetLogger(e.ctx).Info().
			Int("awaiting", len(e.awaiting)).
			Int("pending", len(e.working)).
			Int64("active", e.GetActiveQueryCount()).
			Msg("draining dispatch engine")

		for _, q := range e.awaiting {
			e.resolve(q, newResult(q, StatusShutdownInProgress, ErrShutdownInProgress))
		}
		e.setAwaiting(nil)
	}

	for i, q := range e.working {
		e.working[i] = nil
		if e.draining {
			e.resolve(q, newResult(q, StatusShutdownInProgress, ErrShutdownInProgress))
			continue
		}
		e.schedule(q)
	}
	e.working = e.working[:0]
}

func (e *Engine) schedule(q *Query) {
	if q.expired(nowFunc()) {
		e.resolve(q, newResult(q, StatusTimeout, ErrTimeout))
		return
	}

	// Queries already waiting go first.
	if len(e.awaiting) > 0 {
		e.await(q)
		return
	}

	conn, err := e.pool.Acquire()
	switch {
	case err == nil:
		e.dispatch(q, conn)
	case errors.Is(err, pool.ErrNeedsNew), errors.Is(err, pool.ErrExhausted):
		e.await(q)
	default:
		e.resolve(q, newResult(q, StatusConnectionFailure, newQueryError(ErrConnectionEstablishment, err)))
	}
}

func (e *Engine) await(q *Query) {
	e.setAwaiting(append(e.awaiting, q))
	e.maybeDial()
}

func (e *Engine) setAwaiting(awaiting []*Query) {
	e.awaiting = awaiting
	atomic.StoreInt64(&e.awaitingQueries, int64(len(awaiting)))
}

// nextAwaiting pops the oldest awaiting query that has not expired.
func (e *Engine) nextAwaiting() *Query {
	now := nowFunc()
	for len(e.awaiting) > 0 {
		q := e.awaiting[0]
		e.awaiting[0] = nil
		e.setAwaiting(e.awaiting[1:])
		if q.expired(now) {
			e.resolve(q, newResult(q, StatusTimeout, ErrTimeout))
			continue
		}
		return q
	}
	return nil
}

// maybeDial starts connection establishments for awaiting queries that no
// dial in flight will serve, up to MaxConcurrentDials.
func (e *Engine) maybeDial() {
	for !e.draining && e.dialing < e.config.MaxConcurrentDials && len(e.awaiting) > e.dialing {
		// A full pool is not a failure: awaiting queries get the
		// connections released by running ones.
		if err := e.pool.Reserve(); err != nil {
			return
		}
		e.dialing++
		go e.dial(e.dialCtx)
	}
}

func (e *Engine) dial(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DialTimeout)
	defer cancel()

	start := nowFunc()
	conn, err := e.pool.Establish(ctx)
	e.metrics.dialDuration.Observe(time.Since(start).Seconds())
	e.dials <- dialResult{conn: conn, err: err}
}

// connected hands a new connection to the oldest awaiting query. A failed
// establishment fails the oldest awaiting query and is not retried for it.
func (e *Engine) connected(r dialResult) {
	e.dialing--

	if r.err != nil {
		e.metrics.dialFailures.Inc()
		e.GetLogger(e.ctx).Err(r.err).Msg("establish connection")
		if q := e.nextAwaiting(); q != nil {
			e.resolve(q, newResult(q, StatusConnectionFailure, newQueryError(ErrConnectionEstablishment, r.err)))
		}
		e.maybeDial()
		return
	}

	q := e.nextAwaiting()
	if q == nil {
		e.pool.Release(r.conn, true)
		return
	}

	e.dispatch(q, r.conn)
	e.maybeDial()
}

// dispatch runs q on conn on a worker slot.
func (e *Engine) dispatch(q *Query, conn *pool.Conn) {
	atomic.AddInt64(&e.activeQueries, 1)
	e.metrics.waitDuration.Observe(nowFunc().Sub(q.submittedAt).Seconds())

	u := newUnit(q, conn)
	task := func() {
		u.execute(e.ctx)
		e.completions <- u
	}

	if err := e.workers.Submit(task); err != nil {
		go task()
	}
}

// complete reports a finished execution: callback first, then the counter,
// then the connection goes back to the pool.
func (e *Engine) complete(u *unit) {
	res := u.result()
	e.metrics.execDuration.WithLabelValues(res.Status.String()).
		Observe(u.finishedAt.Sub(u.startedAt).Seconds())
	if res.Err != nil {
		e.GetLogger(e.ctx).Debug().Err(res.Err).
			Str("query_id", res.QueryID.String()).
			Uint64("conn_id", res.ConnID).
			Msg("query failed, discarding connection")
	}

	e.resolve(u.query, res)
	atomic.AddInt64(&e.activeQueries, -1)
	e.pool.Release(u.conn, u.healthy())

	e.feedAwaiting()
}

// feedAwaiting gives idle connections to awaiting queries.
func (e *Engine) feedAwaiting() {
	for !e.draining && len(e.awaiting) > 0 {
		conn, err := e.pool.Acquire()
		if err != nil {
			break
		}

		q := e.nextAwaiting()
		if q == nil {
			e.pool.Release(conn, true)
			break
		}
		e.dispatch(q, conn)
	}

	e.maybeDial()
}

func (e *Engine) expireAwaiting() {
	now := nowFunc()
	expired := lo.Filter(e.awaiting, func(q *Query, _ int) bool {
		return q.expired(now)
	})
	if len(expired) == 0 {
		return
	}

	e.setAwaiting(lo.Reject(e.awaiting, func(q *Query, _ int) bool {
		return q.expired(now)
	}))
	for _, q := range expired {
		e.resolve(q, newResult(q, StatusTimeout, ErrTimeout))
	}
}

func (e *Engine) timerC() <-chan time.Time {
	if e.timer == nil {
		return nil
	}
	return e.timer.C
}

// resetTimer arms the timer for the earliest awaiting deadline.
func (e *Engine) resetTimer() {
	var earliest time.Time
	for _, q := range e.awaiting {
		if q.deadline.IsZero() {
			continue
		}
		if earliest.IsZero() || q.deadline.Before(earliest) {
			earliest = q.deadline
		}
	}

	if e.timer != nil && earliest.Equal(e.timerAt) {
		return
	}

	if e.timer != nil && !e.timer.Stop() {
		select {
		case <-e.timer.C:
		default:
		}
	}
	e.timer = nil
	e.timerAt = earliest

	if earliest.IsZero() {
		return
	}

	d := earliest.Sub(nowFunc())
	if d < 0 {
		d = 0
	}
	e.timer = time.NewTimer(d)
}

// resolve invokes the callback of q and the completion hooks. A panicking
// callback is logged and does not affect the loop.
func (e *Engine) resolve(q *Query, res *Result) {
	e.metrics.queries.WithLabelValues(res.Status.String()).Inc()

	if err := panicsafe.Recover(func() error {
		q.Callback(res)
		return nil
	}); err != nil {
		e.GetLogger(e.ctx).Error().Err(err).
			Str("query_id", res.QueryID.String()).
			Msg("query callback panicked")
	}

	for _, hook := range e.hooks {
		hook := hook
		if err := panicsafe.Recover(func() error {
			hook(e.ctx, res)
			return nil
		}); err != nil {
			e.GetLogger(e.ctx).Error().Err(err).Msg("completion hook panicked")
		}
	}
}

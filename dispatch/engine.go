// Package dispatch runs database queries asynchronously on pooled
// connections.
//
// Callers submit queries from any goroutine with StartQuery. A single loop
// goroutine pairs every query with an idle connection (or waits for a new
// one to be established), runs the blocking call on a worker slot and
// reports the result through the query's callback.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/base"
	"github.com/soldatov-s/go-dispatch/pool"
	"github.com/soldatov-s/go-dispatch/pool/driver"
)

const (
	ProviderName = "dispatch"
	DefaultName  = "engine"
)

// nowFunc returns the current time; it's overridden in tests.
var nowFunc = time.Now

type state int32

const (
	stateIdle state = iota
	stateRunning
	stateDraining
	stateStopped
)

// CompletionHook observes every resolved query after its callback. Hooks
// run on the loop goroutine and must not block.
type CompletionHook func(ctx context.Context, res *Result)

type Option func(e *Engine)

func WithCompletionHook(hook CompletionHook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hook)
	}
}

// Engine is the dispatch engine. It's safe for concurrent use by multiple
// goroutines.
type Engine struct {
	*base.Enity
	*base.MetricsStorage
	*base.ReadyCheckStorage
	*base.AliveCheckStorage

	config  *Config
	pool    *pool.Pool
	workers *ants.Pool
	hooks   []CompletionHook
	metrics *engineMetrics

	activeQueries   int64 // atomic
	awaitingQueries int64 // atomic
	state           int32 // atomic loads, stores under mu

	mu      sync.Mutex // protects pending and state transitions
	pending []*Query

	wake        chan struct{}
	completions chan *unit
	dials       chan dialResult
	done        chan struct{}

	// owned by the loop goroutine
	ctx         context.Context
	dialCtx     context.Context
	cancelDials context.CancelFunc
	working     []*Query
	awaiting    []*Query
	dialing     int
	draining    bool
	timer       *time.Timer
	timerAt     time.Time
}

// New creates an engine and starts it.
func New(ctx context.Context, cfg *Config, connector driver.Connector, opts ...Option) (*Engine, error) {
	e, err := NewEngine(ctx, DefaultName, cfg, connector, opts...)
	if err != nil {
		return nil, err
	}

	if err := e.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start engine")
	}

	return e, nil
}

// NewEngine creates an engine that accepts queries once Start is called.
func NewEngine(ctx context.Context, name string, cfg *Config, connector driver.Connector, opts ...Option) (*Engine, error) {
	if connector == nil {
		return nil, ErrNilConnector
	}

	cfg = cfg.SetDefault()
	p, err := pool.New(connector, cfg.Pool)
	if err != nil {
		return nil, errors.Wrap(err, "new pool")
	}

	e := &Engine{
		Enity:             base.NewEnity(&base.EnityDeps{Name: name, ProviderName: ProviderName}),
		MetricsStorage:    base.NewMetricsStorage(),
		ReadyCheckStorage: base.NewReadyCheckStorage(),
		AliveCheckStorage: base.NewAliveCheckStorage(),
		config:            cfg,
		pool:              p,
		wake:              make(chan struct{}, 1),
		completions:       make(chan *unit, cfg.CompletionBuffer),
		dials:             make(chan dialResult, cfg.MaxConcurrentDials),
		done:              make(chan struct{}),
		ctx:               context.WithoutCancel(ctx),
	}

	for _, opt := range opts {
		opt(e)
	}

	logger := e.GetLogger(ctx)
	// Submit never blocks: there are never more executions than open
	// connections and the pool size follows MaxOpenConns.
	e.workers, err = ants.NewPool(cfg.WorkerSlots,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error().Interface("panic", v).Msg("worker panicked")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "new worker pool")
	}

	if err := e.buildMetrics(ctx); err != nil {
		return nil, errors.Wrap(err, "build metrics")
	}

	if err := e.buildReadyHandlers(ctx); err != nil {
		return nil, errors.Wrap(err, "build ready handlers")
	}

	if err := e.buildAliveHandlers(ctx); err != nil {
		return nil, errors.Wrap(err, "build alive handlers")
	}

	return e, nil
}

func (e *Engine) getState() state {
	return state(atomic.LoadInt32(&e.state))
}

// setState must be called with e.mu held.
func (e *Engine) setState(s state) {
	atomic.StoreInt32(&e.state, int32(s))
}

// Start launches the loop. Cancelling ctx drains the engine like Stop does,
// but does not wait for it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.getState() != stateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.setState(stateRunning)
	e.ctx = context.WithoutCancel(ctx)
	e.dialCtx, e.cancelDials = context.WithCancel(e.ctx)
	e.mu.Unlock()

	go e.run(ctx)

	e.GetLogger(ctx).Info().
		Int("max_open_conns", e.config.Pool.MaxOpenConns).
		Int("max_concurrent_dials", e.config.MaxConcurrentDials).
		Msg("dispatch engine started")

	return nil
}

// StartQuery submits q. It returns false, leaving q untouched, if the
// engine is not running, q has no callback or q was submitted before.
// Once StartQuery returns true the callback is invoked exactly once.
func (e *Engine) StartQuery(q *Query) bool {
	if q == nil || q.Callback == nil {
		return false
	}

	e.mu.Lock()
	if e.getState() != stateRunning || !q.markSubmitted() {
		e.mu.Unlock()
		e.metrics.rejected.Inc()
		return false
	}

	q.id = uuid.New()
	q.submittedAt = nowFunc()
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = e.config.QueryTimeout
	}
	if timeout > 0 {
		q.deadline = q.submittedAt.Add(timeout)
	}
	e.pending = append(e.pending, q)
	e.mu.Unlock()

	e.signal()
	return true
}

// IsRunning reports whether the engine has been started and Stop has not
// completed yet.
func (e *Engine) IsRunning() bool {
	s := e.getState()
	return s == stateRunning || s == stateDraining
}

// GetActiveQueryCount returns the number of queries holding a connection.
// Queries waiting for a connection are not counted.
func (e *Engine) GetActiveQueryCount() int64 {
	return atomic.LoadInt64(&e.activeQueries)
}

// GetAwaitingQueryCount returns the number of queries waiting for a
// connection.
func (e *Engine) GetAwaitingQueryCount() int64 {
	return atomic.LoadInt64(&e.awaitingQueries)
}

// Pool returns the connection pool of the engine.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}

// Stop rejects new queries, resolves queries that have no connection yet
// with StatusShutdownInProgress, waits for running ones and closes the
// pool. It's safe to call Stop many times from many goroutines; every
// call returns after the engine has stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.getState() {
	case stateIdle:
		e.setState(stateStopped)
		e.mu.Unlock()
		e.release(e.ctx)
		close(e.done)
		return
	case stateRunning:
		e.setState(stateDraining)
		e.mu.Unlock()
		e.signal()
	default:
		e.mu.Unlock()
	}

	<-e.done
}

// Shutdown stops the engine, giving up waiting when ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.SetShuttingDown(true)
	logger := e.GetLogger(ctx)
	logger.Info().Msg("shutting down dispatch engine")

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for engine stop")
	}

	logger.Info().Msg("dispatch engine stopped")
	return nil
}

// Done is closed once the engine has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// release frees resources owned by the engine once nothing runs anymore.
func (e *Engine) release(ctx context.Context) {
	logger := e.GetLogger(ctx)
	if err := e.pool.Close(); err != nil {
		logger.Err(err).Msg("close connection pool")
	}
	e.workers.Release()
}

// Package pool keeps established database connections for reuse.
//
// Unlike database/sql the pool never dials on its own and never blocks a
// caller: Acquire either hands out an idle connection or reports that a new
// one is needed, and the caller decides when to establish it.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/pool/driver"
)

// nowFunc returns the current time; it's overridden in tests.
var nowFunc = time.Now

var (
	// ErrNeedsNew is returned by Acquire when there is no idle connection
	// but the pool may still grow.
	ErrNeedsNew = errors.New("pool: no idle connection, a new one must be established")
	// ErrExhausted is returned when MaxOpenConns connections are open or
	// being established.
	ErrExhausted = errors.New("pool: connection limit reached")
	// ErrClosed is returned by any operation on a closed pool.
	ErrClosed = errors.New("pool: closed")
	// ErrNilConnector is returned by New when no connector is passed.
	ErrNilConnector = errors.New("pool: connector is nil")
)

// Conn wraps a driver.Conn with the bookkeeping the pool needs.
// A Conn is owned either by the pool's idle list or by exactly one user.
type Conn struct {
	pool      *Pool
	id        uint64
	ci        driver.Conn
	createdAt time.Time

	// guarded by pool.mu
	inUse      bool
	returnedAt time.Time // Time the connection was created or returned.
}

func (c *Conn) ID() uint64 {
	return c.id
}

// Driver returns the underlying connection. It must only be used by the
// current owner of c.
func (c *Conn) Driver() driver.Conn {
	return c.ci
}

func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// Execute runs payload on the underlying connection.
func (c *Conn) Execute(ctx context.Context, payload interface{}) (interface{}, error) {
	return c.ci.Execute(ctx, payload)
}

// Ping checks the link if the driver supports it.
func (c *Conn) Ping(ctx context.Context) error {
	if p, ok := c.ci.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Conn) expired(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return c.createdAt.Add(timeout).Before(nowFunc())
}

func (c *Conn) idleExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return c.returnedAt.Add(timeout).Before(nowFunc())
}

// valid reports whether the driver still considers the link usable.
func (c *Conn) valid() bool {
	if cv, ok := c.ci.(driver.Validator); ok {
		return cv.IsValid()
	}
	return true
}

// Pool is a set of idle connections plus the accounting of leased ones.
// It's safe for concurrent use by multiple goroutines.
type Pool struct {
	connector driver.Connector
	config    *Config

	mu       sync.Mutex // protects following fields
	freeConn []*Conn
	leased   map[uint64]*Conn
	nextID   uint64
	numOpen  int // number of opened, leased and pending open connections
	closed   bool
	cleaner  chan struct{}

	established       int64 // Total number of established connections.
	failed            int64 // Total number of failed establishment attempts.
	badClosed         int64 // Total number of connections released as unhealthy.
	maxIdleClosed     int64 // Total number of connections closed due to MaxIdleConns.
	maxIdleTimeClosed int64 // Total number of connections closed due to ConnMaxIdleTime.
	maxLifetimeClosed int64 // Total number of connections closed due to ConnMaxLifetime.
}

func New(connector driver.Connector, cfg *Config) (*Pool, error) {
	if connector == nil {
		return nil, ErrNilConnector
	}

	p := &Pool{
		connector: connector,
		config:    cfg.SetDefault(),
		leased:    make(map[uint64]*Conn),
	}

	return p, nil
}

func (p *Pool) maxIdleLocked() int {
	n := p.config.MaxIdleConns
	if p.config.MaxOpenConns > 0 && (n <= 0 || n > p.config.MaxOpenConns) {
		return p.config.MaxOpenConns
	}
	return n
}

func (p *Pool) canOpenLocked() bool {
	return p.config.MaxOpenConns <= 0 || p.numOpen < p.config.MaxOpenConns
}

// Acquire pops an idle connection. Without an idle connection it returns
// ErrNeedsNew while the pool may grow and ErrExhausted once it may not.
// Acquire never performs I/O except closing expired idle connections.
func (p *Pool) Acquire() (*Conn, error) {
	var closing []*Conn
	defer func() {
		closeConns(closing)
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	for len(p.freeConn) > 0 {
		c := p.freeConn[0]
		copy(p.freeConn, p.freeConn[1:])
		p.freeConn[len(p.freeConn)-1] = nil
		p.freeConn = p.freeConn[:len(p.freeConn)-1]

		switch {
		case c.expired(p.config.ConnMaxLifetime):
			p.maxLifetimeClosed++
		case c.idleExpired(p.config.ConnMaxIdleTime):
			p.maxIdleTimeClosed++
		default:
			c.inUse = true
			p.leased[c.id] = c
			return c, nil
		}

		p.numOpen--
		closing = append(closing, c)
	}

	if !p.canOpenLocked() {
		return nil, ErrExhausted
	}

	return nil, ErrNeedsNew
}

// Reserve claims room for one connection that the caller is about to
// establish with Establish.
func (p *Pool) Reserve() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if !p.canOpenLocked() {
		return ErrExhausted
	}

	p.numOpen++ // optimistically
	return nil
}

// Establish dials a connection for a slot claimed with Reserve. The slot is
// given back if dialing fails. The new connection is returned leased.
func (p *Pool) Establish(ctx context.Context) (*Conn, error) {
	// Reserve has already executed p.numOpen++. This function must execute
	// p.numOpen-- if the connection fails or the pool is closed meanwhile.
	ci, err := p.connector.Connect(ctx)

	p.mu.Lock()
	if err != nil {
		p.numOpen--
		p.failed++
		p.mu.Unlock()
		return nil, errors.Wrap(err, "connect")
	}

	if p.closed {
		p.numOpen--
		p.mu.Unlock()
		if errClose := ci.Close(); errClose != nil {
			return nil, multierror.Append(ErrClosed, errClose)
		}
		return nil, ErrClosed
	}

	p.nextID++
	now := nowFunc()
	c := &Conn{
		pool:       p,
		id:         p.nextID,
		ci:         ci,
		createdAt:  now,
		returnedAt: now,
		inUse:      true,
	}
	p.leased[c.id] = c
	p.established++
	p.startCleanerLocked()
	p.mu.Unlock()

	return c, nil
}

// Open reserves a slot and establishes a connection in it.
func (p *Pool) Open(ctx context.Context) (*Conn, error) {
	if err := p.Reserve(); err != nil {
		return nil, err
	}
	return p.Establish(ctx)
}

// Release gives a leased connection back. A healthy connection becomes
// idle unless the driver reports it invalid, it outlived ConnMaxLifetime,
// the idle list is full or the pool is closed. Any other connection is
// closed.
//
// Releasing a connection that was not leased from p panics.
func (p *Pool) Release(c *Conn, healthy bool) {
	if healthy && !c.valid() {
		healthy = false
	}

	p.mu.Lock()
	if c.pool != p || !c.inUse || p.leased[c.id] != c {
		p.mu.Unlock()
		panic(fmt.Sprintf("pool: connection %d returned that was never out", c.id))
	}

	delete(p.leased, c.id)
	c.inUse = false
	c.returnedAt = nowFunc()

	switch {
	case !healthy:
		p.badClosed++
	case p.closed:
	case c.expired(p.config.ConnMaxLifetime):
		p.maxLifetimeClosed++
	case p.maxIdleLocked() > 0 && len(p.freeConn) >= p.maxIdleLocked():
		p.maxIdleClosed++
	default:
		p.freeConn = append(p.freeConn, c)
		p.mu.Unlock()
		return
	}

	p.numOpen--
	p.mu.Unlock()
	closeConns([]*Conn{c})
}

// Size returns the number of established connections, idle and leased.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeConn) + len(p.leased)
}

func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.freeConn)
}

func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Close closes idle connections and makes the pool reject further use.
// Leased connections are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed { // Make Pool.Close idempotent
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	closing := p.freeConn
	p.freeConn = nil
	p.numOpen -= len(closing)
	if p.cleaner != nil {
		close(p.cleaner)
		p.cleaner = nil
	}
	p.mu.Unlock()

	return closeConns(closing)
}

func closeConns(conns []*Conn) error {
	var result *multierror.Error
	for _, c := range conns {
		if err := c.ci.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close connection %d", c.id))
		}
	}
	return result.ErrorOrNil()
}

// startCleanerLocked starts connectionCleaner if needed.
func (p *Pool) startCleanerLocked() {
	d := p.shortestIdleTimeLocked()
	if d > 0 && p.cleaner == nil && !p.closed {
		p.cleaner = make(chan struct{})
		go p.connectionCleaner(d, p.cleaner)
	}
}

func (p *Pool) shortestIdleTimeLocked() time.Duration {
	maxIdleTime, maxLifetime := p.config.ConnMaxIdleTime, p.config.ConnMaxLifetime
	if maxIdleTime <= 0 {
		return maxLifetime
	}
	if maxLifetime <= 0 {
		return maxIdleTime
	}
	if maxIdleTime > maxLifetime {
		return maxLifetime
	}
	return maxIdleTime
}

// connectionCleaner closes idle connections past their lifetime or idle
// time so that they do not linger until the next Acquire.
func (p *Pool) connectionCleaner(d time.Duration, done <-chan struct{}) {
	const minInterval = time.Second

	if d < minInterval {
		d = minInterval
	}
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
		}

		p.mu.Lock()
		closing := p.connectionCleanerRunLocked()
		p.mu.Unlock()
		_ = closeConns(closing)
	}
}

func (p *Pool) connectionCleanerRunLocked() []*Conn {
	var closing []*Conn
	kept := p.freeConn[:0]
	for _, c := range p.freeConn {
		switch {
		case c.expired(p.config.ConnMaxLifetime):
			p.maxLifetimeClosed++
		case c.idleExpired(p.config.ConnMaxIdleTime):
			p.maxIdleTimeClosed++
		default:
			kept = append(kept, c)
			continue
		}
		closing = append(closing, c)
	}
	for i := len(kept); i < len(p.freeConn); i++ {
		p.freeConn[i] = nil
	}
	p.freeConn = kept
	p.numOpen -= len(closing)
	return closing
}

// Stats contains connection statistics.
type Stats struct {
	MaxOpenConnections int // Maximum number of open connections.

	// Pool Status
	OpenConnections int // The number of established connections both in use and idle.
	Pending         int // The number of connections being established.
	InUse           int // The number of connections currently in use.
	Idle            int // The number of idle connections.

	// Counters
	Established       int64 // The total number of established connections.
	Failed            int64 // The total number of failed establishment attempts.
	BadClosed         int64 // The total number of connections released as unhealthy.
	MaxIdleClosed     int64 // The total number of connections closed due to MaxIdleConns.
	MaxIdleTimeClosed int64 // The total number of connections closed due to ConnMaxIdleTime.
	MaxLifetimeClosed int64 // The total number of connections closed due to ConnMaxLifetime.
}

// Stats returns connection statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	open := len(p.freeConn) + len(p.leased)
	return Stats{
		MaxOpenConnections: p.config.MaxOpenConns,

		OpenConnections: open,
		Pending:         p.numOpen - open,
		InUse:           len(p.leased),
		Idle:            len(p.freeConn),

		Established:       p.established,
		Failed:            p.failed,
		BadClosed:         p.badClosed,
		MaxIdleClosed:     p.maxIdleClosed,
		MaxIdleTimeClosed: p.maxIdleTimeClosed,
		MaxLifetimeClosed: p.maxLifetimeClosed,
	}
}

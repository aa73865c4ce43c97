package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type execFunc func(ctx context.Context, payload interface{}) (interface{}, error)

func echoExec(_ context.Context, payload interface{}) (interface{}, error) {
	return payload, nil
}

// fakeConn records concurrent use, which must never happen.
type fakeConn struct {
	connector *fakeConnector
	id        int32
	inUse     int32
	closed    int32
}

func (c *fakeConn) Execute(ctx context.Context, payload interface{}) (interface{}, error) {
	if !atomic.CompareAndSwapInt32(&c.inUse, 0, 1) {
		atomic.AddInt32(&c.connector.violations, 1)
	}
	defer atomic.StoreInt32(&c.inUse, 0)
	atomic.AddInt32(&c.connector.execs, 1)

	return c.connector.exec(ctx, payload)
}

func (c *fakeConn) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	return nil
}

type fakeConnector struct {
	exec execFunc
	// gate, when set, holds every Connect until it is closed.
	gate chan struct{}
	// fail returns the error for the n-th (1-based) dial.
	fail func(n int32) error

	dials      int32
	execs      int32
	violations int32

	mu    sync.Mutex
	conns []*fakeConn
}

func newFakeConnector(exec execFunc) *fakeConnector {
	if exec == nil {
		exec = echoExec
	}
	return &fakeConnector{exec: exec}
}

func (f *fakeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	n := atomic.AddInt32(&f.dials, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}

	c := &fakeConn{connector: f, id: n}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeConnector) Dials() int32 {
	return atomic.LoadInt32(&f.dials)
}

func (f *fakeConnector) Violations() int32 {
	return atomic.LoadInt32(&f.violations)
}

func (f *fakeConnector) Conns() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeConn(nil), f.conns...)
}

func testContext() context.Context {
	logger := zerolog.Nop()
	return logger.WithContext(context.Background())
}

func newTestEngine(t *testing.T, cfg *Config, connector driver.Connector, opts ...Option) *Engine {
	t.Helper()
	e, err := New(testContext(), cfg, connector, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

// collector gathers results of many queries.
type collector struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []*Result
}

func (c *collector) query(payload interface{}) *Query {
	c.wg.Add(1)
	return NewQuery(payload, func(res *Result) {
		c.mu.Lock()
		c.results = append(c.results, res)
		c.mu.Unlock()
		c.wg.Done()
	})
}

func (c *collector) wait(t *testing.T) []*Result {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("callbacks were not invoked in time")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Result(nil), c.results...)
}

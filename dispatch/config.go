package dispatch

import (
	"time"

	"github.com/soldatov-s/go-dispatch/pool"
)

const (
	defaultMaxConcurrentDials = 1
	defaultDialTimeout        = 10 * time.Second
	defaultCompletionBuffer   = 64
)

type Config struct {
	Pool *pool.Config
	// MaxConcurrentDials limits connection establishments in flight.
	MaxConcurrentDials int `envconfig:"optional"`
	// DialTimeout bounds a single connection establishment.
	DialTimeout time.Duration `envconfig:"optional"`
	// QueryTimeout is applied to queries submitted without their own
	// Timeout. It bounds the time a query may wait for a connection, not
	// the execution. Zero means wait forever.
	QueryTimeout time.Duration `envconfig:"optional"`
	// WorkerSlots limits goroutines running blocking calls. Zero means
	// Pool.MaxOpenConns, which is never exceeded anyway.
	WorkerSlots int `envconfig:"optional"`
	// CompletionBuffer is the capacity of the channel carrying finished
	// executions back to the loop.
	CompletionBuffer int `envconfig:"optional"`
}

// SetDefault returns a copy of the config with empty fields filled in.
func (c *Config) SetDefault() *Config {
	var cfgCopy Config
	if c != nil {
		cfgCopy = *c
	}

	cfgCopy.Pool = cfgCopy.Pool.SetDefault()

	if cfgCopy.MaxConcurrentDials <= 0 {
		cfgCopy.MaxConcurrentDials = defaultMaxConcurrentDials
	}

	if cfgCopy.DialTimeout <= 0 {
		cfgCopy.DialTimeout = defaultDialTimeout
	}

	if cfgCopy.QueryTimeout < 0 {
		cfgCopy.QueryTimeout = 0
	}

	if cfgCopy.WorkerSlots <= 0 {
		cfgCopy.WorkerSlots = cfgCopy.Pool.MaxOpenConns
	}

	if cfgCopy.CompletionBuffer <= 0 {
		cfgCopy.CompletionBuffer = defaultCompletionBuffer
	}

	return &cfgCopy
}

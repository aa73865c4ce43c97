// Package driver defines the interfaces a database client must implement to
// be served by the pool and the dispatch engine.
package driver

//go:generate mockgen -source=driver.go -destination=mock_driver/driver.go

import (
	"context"
)

// Conn is a single established link to a database server. The pool
// guarantees that a Conn is used by one goroutine at a time.
type Conn interface {
	// Execute runs the payload and blocks until the server answers. The
	// payload and the result format are defined by the driver. Any returned
	// error makes the pool discard the connection.
	Execute(ctx context.Context, payload interface{}) (interface{}, error)
	// Close terminates the link.
	Close() error
}

// A Connector represents a driver in a fixed configuration
// and can create any number of equivalent Conns.
//
// The provided context.Context is for dialing purposes only
// and should not be stored or used for other purposes.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts an ordinary function to a Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Validator may be implemented by Conn to allow drivers to
// signal if a connection is valid or if it should be discarded.
type Validator interface {
	// IsValid is called prior to placing the connection into the
	// connection pool. The connection will be discarded if false is returned.
	IsValid() bool
}

// Pinger may be implemented by Conn to check the link without running a
// payload. It is used by readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Statement is the payload understood by every driver in this module.
// Query holds SQL text for sql drivers, a command name for redis and
// an extended JSON command document for mongo.
type Statement struct {
	Query string        `json:"query"`
	Args  []interface{} `json:"args,omitempty"`
	// Exec asks sql drivers to run the statement without reading rows.
	Exec bool `json:"exec,omitempty"`
}

// Rows is the result of a Statement that returns data.
type Rows struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// ExecResult is the result of a Statement run with Exec.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId,omitempty"`
}

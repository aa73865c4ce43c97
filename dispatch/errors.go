package dispatch

import (
	"github.com/pkg/errors"
)

var (
	ErrNilConnector            = errors.New("connector is nil")
	ErrAlreadyStarted          = errors.New("engine already started")
	ErrRejected                = errors.New("query rejected")
	ErrShutdownInProgress      = errors.New("shutdown in progress")
	ErrConnectionEstablishment = errors.New("connection establishment failed")
	ErrExecution               = errors.New("query execution failed")
	ErrTimeout                 = errors.New("timed out waiting for a connection")
	ErrNotRunning              = errors.New("engine is not running")
)

// QueryError ties the cause reported by a driver to one of the sentinel
// errors above, so both can be matched with errors.Is.
type QueryError struct {
	Kind error
	Err  error
}

func newQueryError(kind, err error) *QueryError {
	return &QueryError{Kind: kind, Err: err}
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == e.Kind
}

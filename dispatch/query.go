package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a query.
type Status int

const (
	StatusSuccess Status = iota
	StatusExecutionFailure
	StatusConnectionFailure
	StatusShutdownInProgress
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusExecutionFailure:
		return "execution_failure"
	case StatusConnectionFailure:
		return "connection_failure"
	case StatusShutdownInProgress:
		return "shutdown_in_progress"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Callback receives the result of a query. It runs on the engine loop, so
// it must not block; hand long work over to another goroutine.
type Callback func(res *Result)

// Query is a unit of work submitted to the engine. A Query is single-use.
type Query struct {
	// Payload is passed as is to the driver connection.
	Payload interface{}
	// Callback is invoked exactly once for an accepted query.
	Callback Callback
	// Timeout bounds the time the query may wait for a connection.
	// Zero means the engine's QueryTimeout.
	Timeout time.Duration

	submitted   int32
	id          uuid.UUID
	submittedAt time.Time
	deadline    time.Time
}

func NewQuery(payload interface{}, cb Callback) *Query {
	return &Query{
		Payload:  payload,
		Callback: cb,
	}
}

// WithTimeout sets Timeout and returns q.
func (q *Query) WithTimeout(d time.Duration) *Query {
	q.Timeout = d
	return q
}

// ID is assigned when the query is accepted.
func (q *Query) ID() uuid.UUID {
	return q.id
}

func (q *Query) markSubmitted() bool {
	return atomic.CompareAndSwapInt32(&q.submitted, 0, 1)
}

func (q *Query) expired(now time.Time) bool {
	return !q.deadline.IsZero() && !now.Before(q.deadline)
}

// Result is handed to the query's callback.
type Result struct {
	QueryID uuid.UUID   `json:"queryId"`
	Status  Status      `json:"status"`
	Payload interface{} `json:"payload,omitempty"`
	Err     error       `json:"-"`
	// ConnID is the pool connection the query ran on, zero if it never got one.
	ConnID      uint64    `json:"connId,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func (r *Result) OK() bool {
	return r.Status == StatusSuccess
}

// ErrorText returns the error text, empty on success.
func (r *Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func newResult(q *Query, status Status, err error) *Result {
	return &Result{
		QueryID:     q.id,
		Status:      status,
		Err:         err,
		SubmittedAt: q.submittedAt,
		FinishedAt:  nowFunc(),
	}
}

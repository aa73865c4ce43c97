package echo

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/dispatch"
	"github.com/soldatov-s/go-dispatch/pool/driver"
	"github.com/soldatov-s/go-dispatch/x/httpx"
)

const QueryEndpoint = "/query"

var ErrEmptyQuery = errors.New("empty query")

// Dispatcher runs a payload and waits for its result.
type Dispatcher interface {
	Do(ctx context.Context, payload interface{}) (*dispatch.Result, error)
}

type QueryRequest struct {
	Query string        `json:"query"`
	Args  []interface{} `json:"args,omitempty"`
	Exec  bool          `json:"exec,omitempty"`
	// Timeout is a duration like "5s" bounding the wait for a connection.
	Timeout string `json:"timeout,omitempty"`
}

func (r *QueryRequest) statement() *driver.Statement {
	return &driver.Statement{Query: r.Query, Args: r.Args, Exec: r.Exec}
}

type QueryHandler struct {
	dispatcher Dispatcher
}

func NewQueryHandler(d Dispatcher) *QueryHandler {
	return &QueryHandler{dispatcher: d}
}

// Register adds the query endpoint to the group.
func (h *QueryHandler) Register(group *echo.Group) {
	group.POST(QueryEndpoint, h.Query)
}

// Query runs a statement through the dispatch engine.
func (h *QueryHandler) Query(ec echo.Context) error {
	var req QueryRequest
	if err := ec.Bind(&req); err != nil {
		return ec.JSON(http.StatusBadRequest, httpx.BadRequest(err))
	}

	if req.Query == "" {
		return ec.JSON(http.StatusBadRequest, httpx.BadRequest(ErrEmptyQuery))
	}

	ctx := ec.Request().Context()
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			return ec.JSON(http.StatusBadRequest, httpx.BadRequest(errors.Wrap(err, "parse timeout")))
		}

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := h.dispatcher.Do(ctx, req.statement())
	if res == nil {
		return h.failure(ec, err)
	}

	switch res.Status {
	case dispatch.StatusSuccess:
		return ec.JSON(http.StatusOK, httpx.ResultAnsw{Body: res})
	case dispatch.StatusExecutionFailure:
		return ec.JSON(http.StatusBadGateway, httpx.BadGateway(res.Err))
	case dispatch.StatusTimeout:
		return ec.JSON(http.StatusGatewayTimeout, httpx.GatewayTimeout(res.Err))
	default:
		return ec.JSON(http.StatusServiceUnavailable, httpx.ServiceUnavailable(res.Err))
	}
}

// failure answers when no result came back.
func (h *QueryHandler) failure(ec echo.Context, err error) error {
	if logger, errLogger := GetZerologger(ec); errLogger == nil {
		logger.Debug().Err(err).Msg("query got no result")
	}

	// Rejected queries and cancelled requests both land on 503.
	if errors.Is(err, context.DeadlineExceeded) {
		return ec.JSON(http.StatusGatewayTimeout, httpx.GatewayTimeout(err))
	}
	return ec.JSON(http.StatusServiceUnavailable, httpx.ServiceUnavailable(err))
}

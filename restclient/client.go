// Package restclient talks to the HTTP API of dispatchd.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/soldatov-s/go-dispatch/app"
	"github.com/soldatov-s/go-dispatch/httpsrv/echo"
	"github.com/soldatov-s/go-dispatch/x/httpx"
)

const queryPath = "/api/v1" + echo.QueryEndpoint

var ErrUnexpectedAnswer = errors.New("unexpected answer")

type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewNetTransport builds a transport with the timeouts of cfg.
func NewNetTransport(cfg *Config) *http.Transport {
	cfg = cfg.SetDefault()
	dialer := &net.Dialer{
		Timeout: cfg.DialerTimeout,
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}
}

type ClientOption func(*Client)

func WithCustomHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(cfg *Config, opts ...ClientOption) *Client {
	cfg = cfg.SetDefault()
	client := &Client{
		httpClient: &http.Client{
			Transport: NewNetTransport(cfg),
			Timeout:   cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// QueryResult is a successful query as dispatchd reports it.
type QueryResult struct {
	QueryID     uuid.UUID       `json:"queryId"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ConnID      uint64          `json:"connId,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	StartedAt   time.Time       `json:"startedAt,omitempty"`
	FinishedAt  time.Time       `json:"finishedAt"`
}

// Decode unmarshals the payload into v, e.g. a *driver.Rows.
func (r *QueryResult) Decode(v interface{}) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}

// Query runs req on the remote engine. A failed query comes back as an
// httpx.ErrorAnsw carrying the HTTP status.
func (c *Client) Query(ctx context.Context, req *echo.QueryRequest) (*QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	request.Header.Set("Content-Type", "application/json")

	contents, statusCode, err := c.do(request)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, decodeError(statusCode, contents)
	}

	answ := struct {
		Result *QueryResult `json:"result"`
	}{}
	if err := json.Unmarshal(contents, &answ); err != nil {
		return nil, errors.Wrap(err, "unmarshal answer")
	}
	if answ.Result == nil {
		return nil, errors.Wrap(ErrUnexpectedAnswer, "empty result")
	}

	return answ.Result, nil
}

// Ping checks the alive endpoint of the remote service.
func (c *Client) Ping(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+app.AliveEndpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	contents, statusCode, err := c.do(request)
	if err != nil {
		return err
	}

	if statusCode != http.StatusOK {
		return decodeError(statusCode, contents)
	}

	return nil
}

func (c *Client) do(request *http.Request) ([]byte, int, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, 0, errors.Wrap(err, "do request")
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read body")
	}

	return contents, response.StatusCode, nil
}

func decodeError(statusCode int, contents []byte) error {
	var answ httpx.ErrorAnsw
	if err := json.Unmarshal(contents, &answ); err != nil || answ.Body.Code == "" {
		return errors.Wrapf(ErrUnexpectedAnswer, "status %d", statusCode)
	}
	return answ
}

// Package httpx holds the JSON answers shared by the HTTP endpoints.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type MiddleWareFunc func(http.Handler) http.Handler

type ErrorAnswBody struct {
	Code       string `json:"code"`
	StatusCode int    `json:"statusCode"`
	Details    string `json:"details"`
}

// ErrorAnsw is the body of every failed request: {"error": {...}}.
type ErrorAnsw struct {
	Body ErrorAnswBody `json:"error"`
}

func (e ErrorAnsw) Error() string {
	return fmt.Sprintf("error %s: %s", e.Body.Code, e.Body.Details)
}

func (e *ErrorAnsw) WriteJSON(w http.ResponseWriter) error {
	return WriteJSON(w, e.Body.StatusCode, e)
}

// ResultAnsw is the body of every successful request: {"result": ...}.
type ResultAnsw struct {
	Body interface{} `json:"result"`
}

func (answ *ResultAnsw) WriteJSON(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusOK, answ)
}

func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal answer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write data to connection")
	}
	return nil
}

// WriteErrAnswer writes a failed health check.
func WriteErrAnswer(ctx context.Context, w http.ResponseWriter, err error, code string) {
	answ := NewErrorAnsw(http.StatusServiceUnavailable, code, err)
	if errWrite := answ.WriteJSON(w); errWrite != nil {
		zerolog.Ctx(ctx).Err(errWrite).Msg("write json")
	}
}

// NewErrorAnsw turns code into an upper snake case error code.
func NewErrorAnsw(statusCode int, code string, err error) ErrorAnsw {
	return ErrorAnsw{
		Body: ErrorAnswBody{
			Code:       strings.ToUpper(strings.ReplaceAll(code, " ", "_")),
			StatusCode: statusCode,
			Details:    err.Error(),
		},
	}
}

func statusAnsw(statusCode int, err error) ErrorAnsw {
	return NewErrorAnsw(statusCode, http.StatusText(statusCode), err)
}

func BadRequest(err error) ErrorAnsw         { return statusAnsw(http.StatusBadRequest, err) }
func BadGateway(err error) ErrorAnsw         { return statusAnsw(http.StatusBadGateway, err) }
func ServiceUnavailable(err error) ErrorAnsw { return statusAnsw(http.StatusServiceUnavailable, err) }
func GatewayTimeout(err error) ErrorAnsw     { return statusAnsw(http.StatusGatewayTimeout, err) }

package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorAnsw(t *testing.T) {
	answ := NewErrorAnsw(http.StatusBadGateway, "query failed", errors.New("boom"))
	assert.Equal(t, "QUERY_FAILED", answ.Body.Code)
	assert.Equal(t, http.StatusBadGateway, answ.Body.StatusCode)
	assert.Equal(t, "error QUERY_FAILED: boom", answ.Error())
}

func TestWriteErrAnswer(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrAnswer(context.Background(), rec, errors.New("not ready"), "dispatch_engine")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var answ ErrorAnsw
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answ))
	assert.Equal(t, "DISPATCH_ENGINE", answ.Body.Code)
	assert.Equal(t, "not ready", answ.Body.Details)
}

func TestResultAnswWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	answ := ResultAnsw{Body: "ok"}
	require.NoError(t, answ.WriteJSON(rec))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"ok"}`, rec.Body.String())
}

func TestStatusAnswers(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, "BAD_REQUEST", BadRequest(err).Body.Code)
	assert.Equal(t, http.StatusBadGateway, BadGateway(err).Body.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", ServiceUnavailable(err).Body.Code)
	assert.Equal(t, http.StatusGatewayTimeout, GatewayTimeout(err).Body.StatusCode)
}

package base

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

func TestMapCheckOptionsAdd(t *testing.T) {
	m := NewMapCheckOptions()
	assert.ErrorIs(t, m.Add(nil), ErrOptionsIsNil)
	assert.ErrorIs(t, m.Add(&CheckOptions{}), ErrEmptyOptionsName)
	assert.ErrorIs(t, m.Add(&CheckOptions{Name: "a"}), ErrFuncIsNil)

	ok := func(ctx context.Context) error { return nil }
	require.NoError(t, m.AddCheck("a", ok))
	assert.ErrorIs(t, m.AddCheck("a", ok), ErrConflictName)
	assert.Equal(t, 1, m.Len())
}

func TestMapCheckOptionsCheck(t *testing.T) {
	m := NewMapCheckOptions()
	require.NoError(t, m.AddCheck("a", func(ctx context.Context) error { return nil }))
	name, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, m.AddCheck("b", func(ctx context.Context) error { return errors.New("down") }))
	name, err = m.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "b", name)
}

func TestReadyCheckHandler(t *testing.T) {
	s := NewReadyCheckStorage()
	rec := httptest.NewRecorder()
	s.ReadyCheckHandler(context.Background(), rec)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"ok"}`, rec.Body.String())

	require.NoError(t, s.GetReadyHandlers().AddCheck("engine", func(ctx context.Context) error {
		return errors.New("stopped")
	}))
	rec = httptest.NewRecorder()
	s.ReadyCheckHandler(context.Background(), rec)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var answ map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answ))
	assert.Equal(t, "ENGINE", answ["error"]["code"])
}

func TestAliveCheckHandler(t *testing.T) {
	s := NewAliveCheckStorage()
	require.NoError(t, s.GetAliveHandlers().AddCheck("loop", func(ctx context.Context) error { return nil }))
	rec := httptest.NewRecorder()
	s.AliveCheckHandler(context.Background(), rec)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnity(t *testing.T) {
	e := NewEnity(&EnityDeps{Name: "main", ProviderName: "dispatch"})
	assert.Equal(t, "main", e.GetName())
	assert.Equal(t, "dispatch_main", e.GetFullName())
	assert.False(t, e.IsShuttingDown())
	e.SetShuttingDown(true)
	assert.True(t, e.IsShuttingDown())
	assert.NotNil(t, e.GetLogger(context.Background()))
}

func TestMapCheckOptionsWriteAnswer(t *testing.T) {
	m := NewMapCheckOptions()

	rec := httptest.NewRecorder()
	m.WriteAnswer(context.Background(), rec)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"ok"}`, rec.Body.String())

	require.NoError(t, m.AddCheck("dispatch engine", func(context.Context) error {
		return ErrShuttingDown
	}))

	rec = httptest.NewRecorder()
	m.WriteAnswer(context.Background(), rec)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "DISPATCH_ENGINE")
}

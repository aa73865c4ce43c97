package rabbitmq_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	gomock "github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soldatov-s/go-dispatch/dispatch"
	"github.com/soldatov-s/go-dispatch/events/rabbitmq"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestSend = errors.New("failed to send")

func testResult() *dispatch.Result {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &dispatch.Result{
		QueryID:     uuid.MustParse("6f1d8a52-3c2b-4d8e-9f4a-2b7c1e0d5a91"),
		Status:      dispatch.StatusSuccess,
		ConnID:      3,
		SubmittedAt: now,
		FinishedAt:  now.Add(time.Second),
	}
}

func newStartedPublisher(t *testing.T, ctrl *gomock.Controller, cfg *rabbitmq.Config) (*rabbitmq.Publisher, *MockChannel, *MockConnector) {
	t.Helper()

	ch := NewMockChannel(ctrl)
	conn := NewMockConnector(ctrl)
	conn.EXPECT().Channel().Return(ch, nil)
	ch.EXPECT().ExchangeDeclare(cfg.ExchangeName, "direct", true, false, false, false, nil).Return(nil)

	p, err := rabbitmq.NewPublisher(context.Background(), rabbitmq.DefaultName, cfg, conn)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	return p, ch, conn
}

func TestPublisher_SendMessage(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
		wantErr bool
	}{
		{
			name: "normal send",
		},
		{
			name:    "failed send",
			sendErr: errTestSend,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			cfg := &rabbitmq.Config{ExchangeName: "test_exchange", RoutingKey: "test_key"}
			p, ch, _ := newStartedPublisher(t, ctrl, cfg)

			msg := amqp.Publishing{ContentType: "application/json", Body: []byte("\"test data\"")}
			ch.EXPECT().Publish(cfg.ExchangeName, cfg.RoutingKey, false, false, msg).Return(tt.sendErr)

			err := p.SendMessage(context.Background(), "test data")
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestPublisher_SendMessageNotStarted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p, err := rabbitmq.NewPublisher(context.Background(), rabbitmq.DefaultName, nil, NewMockConnector(ctrl))
	require.NoError(t, err)
	assert.ErrorIs(t, p.SendMessage(context.Background(), "x"), rabbitmq.ErrNotStarted)

	_, err = p.GetReadyHandlers().Check(context.Background())
	assert.ErrorIs(t, err, rabbitmq.ErrNotStarted)
}

func TestPublisher_HookPublishesEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := &rabbitmq.Config{ExchangeName: "queries", RoutingKey: "completed"}
	p, ch, conn := newStartedPublisher(t, ctrl, cfg)

	var (
		mu   sync.Mutex
		sent []amqp.Publishing
	)
	ch.EXPECT().Publish("queries", "completed", false, false, gomock.Any()).
		DoAndReturn(func(_, _ string, _, _ bool, msg amqp.Publishing) error {
			mu.Lock()
			sent = append(sent, msg)
			mu.Unlock()
			return nil
		}).Times(2)
	ch.EXPECT().Close().Return(nil)
	conn.EXPECT().Close().Return(nil)

	res := testResult()
	p.Hook(context.Background(), res)
	failed := testResult()
	failed.Status = dispatch.StatusTimeout
	failed.Err = dispatch.ErrTimeout
	p.Hook(context.Background(), failed)

	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)

	var ev rabbitmq.Event
	require.NoError(t, json.Unmarshal(sent[0].Body, &ev))
	assert.Equal(t, res.QueryID.String(), ev.QueryID)
	assert.Equal(t, "success", ev.Status)
	assert.Empty(t, ev.Error)
	assert.Equal(t, uint64(3), ev.ConnID)

	require.NoError(t, json.Unmarshal(sent[1].Body, &ev))
	assert.Equal(t, "timeout", ev.Status)
	assert.Equal(t, dispatch.ErrTimeout.Error(), ev.Error)

	// Events after shutdown are dropped, nothing more is published.
	p.Hook(context.Background(), res)
}

func TestPublisher_HookDropsWhenFull(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := NewMockConnector(ctrl)
	p, err := rabbitmq.NewPublisher(context.Background(), rabbitmq.DefaultName, &rabbitmq.Config{Buffer: 1}, conn)
	require.NoError(t, err)

	// Not started, so nothing drains the buffer.
	p.Hook(context.Background(), testResult())
	p.Hook(context.Background(), testResult())

	dropped, ok := p.GetMetrics().Get(p.GetFullName() + "_dropped_messages")
	require.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(dropped.Metric))

	conn.EXPECT().Close().Return(nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPublisher_StartFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := NewMockConnector(ctrl)
	conn.EXPECT().Channel().Return(nil, errTestSend)
	p, err := rabbitmq.NewPublisher(context.Background(), rabbitmq.DefaultName, nil, conn)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Start(context.Background()), errTestSend)

	ch := NewMockChannel(ctrl)
	conn.EXPECT().Channel().Return(ch, nil)
	ch.EXPECT().ExchangeDeclare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(),
		gomock.Any(), gomock.Any(), gomock.Any()).Return(errTestSend)
	assert.ErrorIs(t, p.Start(context.Background()), errTestSend)
}

func TestNewPublisherNilConnector(t *testing.T) {
	_, err := rabbitmq.NewPublisher(context.Background(), rabbitmq.DefaultName, nil, nil)
	assert.Error(t, err)
}

// Package rabbitmq publishes query completion events to a RabbitMQ
// exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soldatov-s/go-dispatch/base"
	"github.com/soldatov-s/go-dispatch/dispatch"
	"github.com/streadway/amqp"
)

const (
	ProviderName = "rabbitmq"
	DefaultName  = "events"
)

var ErrNotStarted = errors.New("publisher is not started")

// Event is the message body published for every resolved query.
type Event struct {
	QueryID     string    `json:"queryId"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ConnID      uint64    `json:"connId,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func NewEvent(res *dispatch.Result) *Event {
	return &Event{
		QueryID:     res.QueryID.String(),
		Status:      res.Status.String(),
		Error:       res.ErrorText(),
		ConnID:      res.ConnID,
		SubmittedAt: res.SubmittedAt,
		FinishedAt:  res.FinishedAt,
	}
}

// Publisher buffers events and publishes them from its own goroutine, so
// Hook never blocks the dispatch loop.
type Publisher struct {
	*base.Enity
	*base.MetricsStorage
	*base.ReadyCheckStorage

	config    *Config
	connector Connector
	channel   Channel
	events    chan *Event
	started   int32 // atomic
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	okMessages      prometheus.Counter
	badMessages     prometheus.Counter
	droppedMessages prometheus.Counter
}

func NewPublisher(ctx context.Context, name string, config *Config, connector Connector) (*Publisher, error) {
	if connector == nil {
		return nil, base.ErrInvalidEnityOptions
	}

	config = config.SetDefault()
	p := &Publisher{
		Enity:             base.NewEnity(&base.EnityDeps{Name: name, ProviderName: ProviderName}),
		MetricsStorage:    base.NewMetricsStorage(),
		ReadyCheckStorage: base.NewReadyCheckStorage(),
		config:            config,
		connector:         connector,
		events:            make(chan *Event, config.Buffer),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}

	if err := p.buildMetrics(ctx); err != nil {
		return nil, errors.Wrap(err, "build metrics")
	}

	if err := p.buildReadyHandlers(ctx); err != nil {
		return nil, errors.Wrap(err, "build ready handlers")
	}

	return p, nil
}

// Start opens a channel, declares the exchange and starts publishing.
func (p *Publisher) Start(ctx context.Context) error {
	ch, err := p.connector.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}

	if err := ch.ExchangeDeclare(p.config.ExchangeName, p.config.ExchangeKind, true,
		false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare a exchange")
	}

	p.channel = ch
	atomic.StoreInt32(&p.started, 1)
	go p.loop(ctx)

	p.GetLogger(ctx).Info().
		Str("exchange", p.config.ExchangeName).
		Str("routing_key", p.config.RoutingKey).
		Msg("publisher started")

	return nil
}

// Hook is a dispatch.CompletionHook.
func (p *Publisher) Hook(ctx context.Context, res *dispatch.Result) {
	if p.IsShuttingDown() {
		p.droppedMessages.Inc()
		return
	}

	select {
	case p.events <- NewEvent(res):
	default:
		p.droppedMessages.Inc()
		p.GetLogger(ctx).Warn().Str("query_id", res.QueryID.String()).Msg("events buffer is full, event dropped")
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case ev := <-p.events:
			p.send(ctx, ev)
		case <-p.stop:
			// flush what was accepted before shutdown
			for {
				select {
				case ev := <-p.events:
					p.send(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev *Event) {
	if err := p.SendMessage(ctx, ev); err != nil {
		p.GetLogger(ctx).Err(err).Str("query_id", ev.QueryID).Msg("publish event")
	}
}

// SendMessage publish message to exchange
func (p *Publisher) SendMessage(ctx context.Context, message interface{}) error {
	if p.channel == nil {
		return ErrNotStarted
	}

	body, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	p.GetLogger(ctx).Debug().Msgf("send message: %s", string(body))

	if err := p.channel.Publish(p.config.ExchangeName, p.config.RoutingKey, false,
		false, amqp.Publishing{ContentType: "application/json", Body: body}); err != nil {
		p.badMessages.Inc()
		return errors.Wrap(err, "publish a message")
	}

	p.okMessages.Inc()
	return nil
}

// Shutdown publishes buffered events and closes the channel and the
// connection.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.GetLogger(ctx).Info().Msg("shutting down")
	p.SetShuttingDown(true)

	if p.channel != nil {
		p.stopOnce.Do(func() { close(p.stop) })

		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
		select {
		case <-p.done:
		case <-ctx.Done():
			p.GetLogger(ctx).Warn().Int("pending", len(p.events)).Msg("events left unpublished")
		}
	}

	var result *multierror.Error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close channel"))
		}
	}

	if err := p.connector.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close connection"))
	}

	return result.ErrorOrNil()
}

func (p *Publisher) buildMetrics(_ context.Context) error {
	fullName := p.GetFullName()
	metrics := p.MetricsStorage.GetMetrics()

	var err error
	p.okMessages, err = metrics.AddCounter(fullName, "ok send messages", "ok send messages to exchange")
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}

	p.badMessages, err = metrics.AddCounter(fullName, "bad send messages", "bad send messages to exchange")
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}

	p.droppedMessages, err = metrics.AddCounter(fullName, "dropped messages", "events dropped before publishing")
	if err != nil {
		return errors.Wrap(err, "add counter metric")
	}

	if _, err := metrics.AddMetricGauge(fullName, "buffered messages", "events waiting to be published",
		func(context.Context) (float64, error) {
			return float64(len(p.events)), nil
		}); err != nil {
		return errors.Wrap(err, "add gauge metric")
	}

	return nil
}

func (p *Publisher) buildReadyHandlers(_ context.Context) error {
	return p.GetReadyHandlers().AddCheck(p.GetFullName()+"_started", func(context.Context) error {
		if atomic.LoadInt32(&p.started) == 0 {
			return ErrNotStarted
		}
		return nil
	})
}

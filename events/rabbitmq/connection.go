package rabbitmq

import (
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

//go:generate mockgen -source=connection.go -destination=mock_connection_test.go -package=rabbitmq_test

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Connector interface {
	Channel() (Channel, error)
	Close() error
}

type amqpConnector struct {
	conn *amqp.Connection
}

// Dial connects to the broker at url.
func Dial(url string) (Connector, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return &amqpConnector{conn: conn}, nil
}

func (c *amqpConnector) Channel() (Channel, error) {
	return c.conn.Channel()
}

func (c *amqpConnector) Close() error {
	return c.conn.Close()
}

package database

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectNATS opens a NATS connection that keeps reconnecting in the background.
func ConnectNATS(url, clientName string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}

// RabbitMQ bundles a connection with the channel used for publishing.
type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// Close releases the channel and the connection.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if r.Channel != nil {
		_ = r.Channel.Close()
	}
	if r.Conn != nil {
		return r.Conn.Close()
	}
	return nil
}

// ConnectRabbitMQ dials the broker and declares a durable queue so messages
// published to the default exchange with the queue name as routing key are kept.
func ConnectRabbitMQ(url, queue string) (*RabbitMQ, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url must not be empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to open rabbitmq channel: %w", err)
	}

	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("unable to declare queue %q: %w", queue, err)
	}

	return &RabbitMQ{Conn: conn, Channel: channel}, nil
}

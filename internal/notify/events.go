package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Publisher pushes a payload to a broker subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

type event struct {
	Kind         Kind      `json:"kind"`
	RecipientID  uint      `json:"recipient_id,omitempty"`
	Subject      string    `json:"subject"`
	SubmissionID uint      `json:"submission_id"`
	AssignmentID uint      `json:"assignment_id"`
	SentAt       time.Time `json:"sent_at"`
}

// EventChannel broadcasts notifications for other services. Email
// addresses are not part of the event.
type EventChannel struct {
	name      string
	subject   string
	publisher Publisher
}

// NewEventChannel wraps a publisher under the given channel name.
func NewEventChannel(name, subject string, publisher Publisher) *EventChannel {
	return &EventChannel{name: name, subject: subject, publisher: publisher}
}

func (c *EventChannel) Name() string { return c.name }

func (c *EventChannel) Deliver(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(event{
		Kind:         msg.Kind,
		RecipientID:  msg.To.ID,
		Subject:      msg.Subject,
		SubmissionID: msg.SubmissionID,
		AssignmentID: msg.AssignmentID,
		SentAt:       msg.SentAt,
	})
	if err != nil {
		return err
	}
	return c.publisher.Publish(ctx, c.subject, payload)
}

// NATSPublisher publishes on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, payload []byte) error {
	if p.conn == nil || p.conn.IsClosed() {
		return fmt.Errorf("nats connection closed")
	}
	return p.conn.Publish(subject, payload)
}

// RedisPublisher publishes on a Redis pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	return p.client.Publish(ctx, subject, payload).Err()
}

// RabbitMQPublisher publishes persistent messages to an exchange using the
// subject as routing key.
type RabbitMQPublisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQPublisher(channel *amqp.Channel, exchange string) *RabbitMQPublisher {
	return &RabbitMQPublisher{channel: channel, exchange: exchange}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(
		publishCtx,
		p.exchange,
		subject,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

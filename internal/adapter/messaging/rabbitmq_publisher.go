package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

// RabbitMQPublisher sends sale events to a durable queue through the
// default exchange.
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	queue string

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQPublisher(url, queue string) (*RabbitMQPublisher, error) {
	if queue == "" {
		queue = SaleEventsTopic
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-queue-mode": "lazy"},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	logrus.WithField("queue", queue).Info("rabbitmq publisher connected")
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event domain.SaleEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(event.Type),
			MessageId:    event.SaleID,
			Timestamp:    event.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close rabbitmq channel")
	}
	return p.conn.Close()
}

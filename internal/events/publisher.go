// Package events publishes chat activity to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultExchange = "admin-chat"

// Envelope wraps every published payload.
type Envelope struct {
	Meta    Meta            `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewEnvelope(eventType string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       eventType,
			OccurredAt: time.Now().UTC(),
		},
		Payload: body,
	}, nil
}

type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *zap.Logger
}

// Dial connects and declares the topic exchange.
func Dial(url, exchange string, log *zap.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{conn: conn, exchange: exchange, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    env.Meta.OccurredAt,
		Type:         env.Meta.Type,
		Body:         body,
	})
	if err == nil {
		p.log.Debug("published", zap.String("key", key), zap.String("exchange", p.exchange))
	}
	return err
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

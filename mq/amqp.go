package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPEmitter publishes to a durable topic exchange, routed by event name.
type AMQPEmitter struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zerolog.Logger
}

func NewAMQPEmitter(url, exchange string, log *zerolog.Logger) (*AMQPEmitter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("rabbitmq emitter ready")
	return &AMQPEmitter{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (e *AMQPEmitter) Emit(ctx context.Context, eventName string, content Index) error {
	data, err := encode(eventName, content)
	if err != nil {
		return err
	}

	// Channels are not safe for concurrent publishing.
	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.channel.PublishWithContext(ctx,
		e.exchange,
		eventName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s to rabbitmq: %w", eventName, err)
	}
	e.log.Debug().Str("event", eventName).Str("exchange", e.exchange).Msg("event published")
	return nil
}

func (e *AMQPEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channel != nil {
		_ = e.channel.Close()
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
	e.log.Info().Msg("rabbitmq connection closed")
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

const (
	// DefaultExchange is the topic exchange pool events are published to.
	DefaultExchange = "botpool.events"
	sinkName        = "rabbitmq"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes pool events to a RabbitMQ topic exchange, routed by event subject.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials url, opens a channel and declares the exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishEvent publishes evt with its subject as routing key.
func (p *Publisher) PublishEvent(ctx context.Context, evt model.PoolEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("rabbitmq.marshal_failed", zap.Error(err))
		metrics.IncError(sinkName, "marshal_failed")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID.String(),
		Timestamp:    evt.Timestamp,
		Type:         string(evt.Kind),
		Body:         body,
	}
	switch evt.Outcome {
	case model.OutcomeClaimed, model.OutcomeCreated, model.OutcomeExisting:
	default:
		msg.Priority = 5
	}

	start := time.Now()
	err = p.channel.PublishWithContext(ctx, p.exchange, evt.Subject(), false, false, msg)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, sinkName)
	if err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.String("routing_key", evt.Subject()),
			zap.String("event_id", evt.ID.String()),
			zap.Error(err))
		metrics.IncEventDelivery(sinkName, "error")
		return err
	}

	metrics.IncEventDelivery(sinkName, "ok")
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

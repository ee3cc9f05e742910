package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/logger"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

const (
	sinkName = "nats"
	// StreamSubjects is the subject filter of the pool event stream.
	StreamSubjects = "evt.botpool.>"
)

// msgPublisher is the part of nats.JetStreamContext the publisher uses.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes pool events to JetStream.
type Publisher struct {
	nc      *nats.Conn
	js      msgPublisher
	service string
}

// New creates a Publisher with JetStream enabled. When stream is non-empty the
// stream is created on first use if the server does not have it yet.
func New(nc *nats.Conn, stream, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if stream != "" {
		if err := ensureStream(js, stream); err != nil {
			return nil, err
		}
	}
	return &Publisher{nc: nc, js: js, service: service}, nil
}

func ensureStream(js nats.JetStreamContext, stream string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{StreamSubjects},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// PublishEvent serializes evt and publishes it on evt.Subject().
func (p *Publisher) PublishEvent(ctx context.Context, evt model.PoolEvent) error {
	subject := evt.Subject()
	data, err := json.Marshal(evt)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_id", evt.ID,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_id":     []string{evt.ID.String()},
			"event_kind":   []string{string(evt.Kind)},
			"outcome":      []string{string(evt.Outcome)},
			"pool":         []string{string(evt.Pool)},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
			// JetStream drops a repeated message id inside the dedupe window.
			nats.MsgIdHdr: []string{evt.ID.String()},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.EventPublishLatency, start, sinkName)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_id", evt.ID,
			"client_id", evt.ClientID,
			"error", err,
		)
		metrics.IncEventDelivery(sinkName, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_id", evt.ID,
	)
	metrics.IncEventDelivery(sinkName, "ok")
	return nil
}

// HealthCheck reports whether the underlying connection is up.
func (p *Publisher) HealthCheck() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}

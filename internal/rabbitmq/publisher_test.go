package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type mockChannel struct {
	sent   []published
	fail   bool
	closed bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.fail {
		return errors.New("channel closed")
	}
	m.sent = append(m.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestPublishEvent_RoutesBySubject(t *testing.T) {
	ch := &mockChannel{}
	p := &Publisher{channel: ch, exchange: DefaultExchange, logger: zap.NewNop()}

	evt := model.NewPoolEvent(model.EventAllocation, model.DefaultPool, model.OutcomeCreated, "stock: aapl")
	evt.Ticker = "aapl"
	require.NoError(t, p.PublishEvent(context.Background(), evt))

	require.Len(t, ch.sent, 1)
	got := ch.sent[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, "evt.botpool.allocation.created.v1", got.key)
	assert.Equal(t, evt.ID.String(), got.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), got.msg.DeliveryMode)
	assert.Zero(t, got.msg.Priority)

	var decoded model.PoolEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "aapl", decoded.Ticker)
}

func TestPublishEvent_FailuresGetPriority(t *testing.T) {
	ch := &mockChannel{}
	p := &Publisher{channel: ch, exchange: DefaultExchange, logger: zap.NewNop()}

	evt := model.NewPoolEvent(model.EventAllocation, model.DefaultPool, model.OutcomePoolExhausted, "no bots")
	require.NoError(t, p.PublishEvent(context.Background(), evt))
	assert.Equal(t, uint8(5), ch.sent[0].msg.Priority)

	evt = model.NewPoolEvent(model.EventAllocation, model.DefaultPool, model.OutcomeClaimed, "attempting")
	require.NoError(t, p.PublishEvent(context.Background(), evt))
	assert.Zero(t, ch.sent[1].msg.Priority)
}

func TestPublishEvent_ChannelError(t *testing.T) {
	p := &Publisher{channel: &mockChannel{fail: true}, exchange: DefaultExchange, logger: zap.NewNop()}
	evt := model.NewPoolEvent(model.EventAllocation, model.DefaultPool, model.OutcomeCreated, "x")
	assert.Error(t, p.PublishEvent(context.Background(), evt))
}

func TestClose_ClosesChannel(t *testing.T) {
	ch := &mockChannel{}
	p := &Publisher{channel: ch, logger: zap.NewNop()}
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

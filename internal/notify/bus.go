package notify

import (
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/eventbus"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// Bus is the pool event fan-out shared by the allocator, the registrar and the pool monitor.
type Bus = eventbus.Bus[model.PoolEvent]

// NewBus creates an event bus whose sink failures are logged and counted.
// Sinks register with Subscribe; a failed sink never affects the publisher.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return eventbus.New[model.PoolEvent](func(sink string, err error) {
		logger.Warn("notify.sink_failed", zap.String("sink", sink), zap.Error(err))
		metrics.IncError("notify", sink)
	})
}

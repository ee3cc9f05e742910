package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// Counter is the subset of store.Store the monitor needs.
type Counter interface {
	CountUnclaimed(ctx context.Context, pool model.PoolID) (int, error)
}

// Notifier accepts pool events fire-and-forget.
type Notifier interface {
	Publish(ctx context.Context, event model.PoolEvent)
}

// PoolMonitor periodically gauges the number of unclaimed entries in a pool
// and raises a pool_low event when it drops below the watermark. The alert
// fires once per dip and re-arms when the pool is replenished.
type PoolMonitor struct {
	logger    *zap.Logger
	store     Counter
	notifier  Notifier
	pool      model.PoolID
	interval  time.Duration
	watermark int

	mu       sync.Mutex
	alerting bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPoolMonitor constructs a background job that runs every interval.
func NewPoolMonitor(logger *zap.Logger, st Counter, notifier Notifier, pool model.PoolID, interval time.Duration, watermark int) *PoolMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PoolMonitor{
		logger:    logger,
		store:     st,
		notifier:  notifier,
		pool:      pool,
		interval:  interval,
		watermark: watermark,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the check loop until Stop is called or ctx is canceled.
func (m *PoolMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("pool_monitor.started",
		zap.String("pool", string(m.pool)),
		zap.Duration("interval", m.interval),
		zap.Int("watermark", m.watermark))

	m.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-m.stopCh:
			m.logger.Info("pool_monitor.stopped (manual stop)")
			return
		case <-ctx.Done():
			m.logger.Info("pool_monitor.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the monitor.
func (m *PoolMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// RunOnce executes one check and returns the unclaimed count.
func (m *PoolMonitor) RunOnce(ctx context.Context) (int, error) {
	n, err := m.store.CountUnclaimed(ctx, m.pool)
	if err != nil {
		m.logger.Error("pool_monitor.count_failed", zap.String("pool", string(m.pool)), zap.Error(err))
		metrics.IncError("pool_monitor", "count_failed")
		return 0, err
	}

	metrics.SetUnclaimed(string(m.pool), n)
	metrics.SetLastPoolCheck(string(m.pool), time.Now())

	m.mu.Lock()
	low := n < m.watermark
	fire := low && !m.alerting
	m.alerting = low
	m.mu.Unlock()

	if fire {
		m.logger.Warn("pool_monitor.pool_low",
			zap.String("pool", string(m.pool)),
			zap.Int("unclaimed", n),
			zap.Int("watermark", m.watermark))
		evt := model.NewPoolEvent(model.EventPoolLevel, m.pool, model.OutcomePoolLow,
			fmt.Sprintf("pool %s is running low: %d unclaimed bots left", m.pool, n))
		m.notifier.Publish(ctx, evt)
	}

	m.logger.Debug("pool_monitor.checked", zap.String("pool", string(m.pool)), zap.Int("unclaimed", n))
	return n, nil
}

package rate

import (
	"context"
	"sync"

	xrate "golang.org/x/time/rate"
)

// Config defines rate limiting parameters for one provider.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Manager holds one token-bucket limiter per key (usually a provider name).
// Keys without an explicit config use the defaults.
type Manager struct {
	mu        sync.RWMutex
	limiters  map[string]*xrate.Limiter
	overrides map[string]Config
	defaults  Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters:  make(map[string]*xrate.Limiter),
		overrides: make(map[string]Config),
		defaults:  defaults,
	}
}

// Configure sets the limits for key. It replaces any limiter already built for key.
func (m *Manager) Configure(key string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = cfg
	delete(m.limiters, key)
}

func (m *Manager) GetLimiter(key string) *xrate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	cfg, ok := m.overrides[key]
	if !ok {
		cfg = m.defaults
	}
	limit := xrate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = xrate.Inf
	}
	lim := xrate.NewLimiter(limit, cfg.Burst)
	m.limiters[key] = lim
	return lim
}

// Allow reports whether a request for key may proceed right now.
func (m *Manager) Allow(key string) bool {
	return m.GetLimiter(key).Allow()
}

// Wait blocks until key has a token or ctx is done.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}

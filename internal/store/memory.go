package store

import (
	"context"
	"sync"
	"time"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// MemoryStore is an in-process Store with the same claim semantics as
// PGStore. Every mutation happens under one mutex, which makes ClaimUnclaimed
// a single critical section.
type MemoryStore struct {
	mu      sync.Mutex
	entries []*model.PoolEntry
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) FindBinding(ctx context.Context, pool model.PoolID, ticker string) (*model.PoolEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.bindingLocked(pool, ticker); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ClaimUnclaimed(ctx context.Context, pool model.PoolID, ticker string, asset model.AssetType) (*model.PoolEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bindingLocked(pool, ticker) != nil {
		return nil, ErrTickerBound
	}
	for _, e := range m.entries {
		if e.Pool != pool || e.Claimed() {
			continue
		}
		now := time.Now().UTC()
		e.Ticker = ticker
		e.AssetType = asset
		e.ClaimedAt = &now
		cp := *e
		return &cp, nil
	}
	return nil, ErrPoolExhausted
}

func (m *MemoryStore) InsertUnclaimed(ctx context.Context, pool model.PoolID, clientID, token string) error {
	return m.insert(ctx, model.PoolEntry{Pool: pool, ClientID: clientID, Token: token})
}

func (m *MemoryStore) InsertBound(ctx context.Context, e model.PoolEntry) error {
	now := time.Now().UTC()
	e.ClaimedAt = &now
	return m.insert(ctx, e)
}

func (m *MemoryStore) insert(ctx context.Context, e model.PoolEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.entries {
		if existing.ClientID == e.ClientID || existing.Token == e.Token {
			return ErrDuplicate
		}
	}
	if e.Claimed() && m.bindingLocked(e.Pool, e.Ticker) != nil {
		return ErrDuplicate
	}
	e.RegisteredAt = time.Now().UTC()
	m.entries = append(m.entries, &e)
	return nil
}

func (m *MemoryStore) HasCredential(ctx context.Context, clientID, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ClientID == clientID || e.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountUnclaimed(ctx context.Context, pool model.PoolID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if e.Pool == pool && !e.Claimed() {
			n++
		}
	}
	return n, nil
}

// Entries returns a snapshot of every entry, in registration order.
func (m *MemoryStore) Entries() []model.PoolEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.PoolEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) bindingLocked(pool model.PoolID, ticker string) *model.PoolEntry {
	for _, e := range m.entries {
		if e.Pool == pool && e.Claimed() && e.Ticker == ticker {
			return e
		}
	}
	return nil
}

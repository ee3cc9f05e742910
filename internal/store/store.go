package store

import (
	"context"
	"errors"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

var (
	// ErrNotFound is returned by FindBinding when no entry is bound to the ticker.
	ErrNotFound = errors.New("store: binding not found")

	// ErrPoolExhausted is returned by ClaimUnclaimed when the pool has no unclaimed entry.
	ErrPoolExhausted = errors.New("store: no unclaimed entry available")

	// ErrTickerBound is returned by ClaimUnclaimed when another claim bound the
	// same ticker first. The attempted claim is rolled back.
	ErrTickerBound = errors.New("store: ticker already bound")

	// ErrDuplicate is returned when an insert collides with an existing client id or token.
	ErrDuplicate = errors.New("store: duplicate credential")
)

// Store is the persisted pool of bot credentials. Every operation is scoped
// to a pool; tickers are expected in normalized (lower-case) form.
//
// Errors other than the sentinels above are infrastructure failures.
type Store interface {
	// FindBinding returns the entry bound to ticker, or ErrNotFound.
	FindBinding(ctx context.Context, pool model.PoolID, ticker string) (*model.PoolEntry, error)

	// ClaimUnclaimed atomically binds one arbitrary unclaimed entry to ticker.
	// Returns ErrPoolExhausted when nothing is left to claim.
	ClaimUnclaimed(ctx context.Context, pool model.PoolID, ticker string, asset model.AssetType) (*model.PoolEntry, error)

	// InsertUnclaimed registers a new unclaimed credential, or returns ErrDuplicate.
	InsertUnclaimed(ctx context.Context, pool model.PoolID, clientID, token string) error

	// InsertBound registers a credential that is already bound to a ticker.
	InsertBound(ctx context.Context, entry model.PoolEntry) error

	// HasCredential reports whether clientID or token is already registered in any pool.
	HasCredential(ctx context.Context, clientID, token string) (bool, error)

	// CountUnclaimed returns the number of entries still available in pool.
	CountUnclaimed(ctx context.Context, pool model.PoolID) (int, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

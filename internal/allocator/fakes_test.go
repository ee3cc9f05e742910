package allocator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Checker-Finance/ticker-bots/internal/market"
	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// fakeValidator knows a fixed catalog keyed by lower-cased input.
type fakeValidator struct {
	catalog map[string]market.Ticker
	down    bool
}

func (f *fakeValidator) Validate(_ context.Context, _ model.AssetType, symbol string) (market.Ticker, error) {
	if f.down {
		return market.Ticker{}, errors.Join(market.ErrInvalidTicker, errors.New("provider unreachable"))
	}
	tk, ok := f.catalog[strings.ToLower(symbol)]
	if !ok {
		return market.Ticker{}, market.ErrInvalidTicker
	}
	return tk, nil
}

func newCatalog() *fakeValidator {
	return &fakeValidator{catalog: map[string]market.Ticker{
		"bitcoin":  {ID: "bitcoin", Symbol: "btc"},
		"ethereum": {ID: "ethereum", Symbol: "eth"},
		"aapl":     {ID: "aapl", Symbol: "aapl"},
		// An alias that resolves to a different canonical id.
		"xbt": {ID: "Bitcoin", Symbol: "btc"},
	}}
}

type fakeIdentity struct {
	mu          sync.Mutex
	renameErr   error
	avatarErr   error
	fetchErr    error
	renames     []string
	renameToken []string
	avatars     []string
	fetches     int
}

func (f *fakeIdentity) Rename(_ context.Context, token, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return "", f.renameErr
	}
	f.renames = append(f.renames, name)
	f.renameToken = append(f.renameToken, token)
	return strings.ToUpper(name), nil
}

func (f *fakeIdentity) SetAvatar(_ context.Context, _ string, dataURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.avatarErr != nil {
		return f.avatarErr
	}
	f.avatars = append(f.avatars, dataURI)
	return nil
}

func (f *fakeIdentity) FetchAvatar(_ context.Context, imageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return "data:image/png;base64," + imageURL, nil
}

func (f *fakeIdentity) renameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.renames)
}

type fakeLauncher struct {
	err      error
	launched []string
}

func (f *fakeLauncher) Launch(_ context.Context, ticker, _ string, _ bool, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.launched = append(f.launched, ticker)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.PoolEvent
}

func (r *recordingNotifier) Publish(_ context.Context, evt model.PoolEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingNotifier) last() model.PoolEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingNotifier) snapshot() []model.PoolEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PoolEvent(nil), r.events...)
}

// brokenStore fails every read with an infrastructure error.
type brokenStore struct {
	store.Store
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connection refused")

func (brokenStore) FindBinding(context.Context, model.PoolID, string) (*model.PoolEntry, error) {
	return nil, errConnRefused
}

func (brokenStore) ClaimUnclaimed(context.Context, model.PoolID, string, model.AssetType) (*model.PoolEntry, error) {
	return nil, errConnRefused
}

// claimFailStore finds nothing and fails the claim.
type claimFailStore struct {
	store.Store
}

func (claimFailStore) FindBinding(context.Context, model.PoolID, string) (*model.PoolEntry, error) {
	return nil, store.ErrNotFound
}

func (claimFailStore) ClaimUnclaimed(context.Context, model.PoolID, string, model.AssetType) (*model.PoolEntry, error) {
	return nil, errConnRefused
}

func marketTicker(id string) market.Ticker {
	return market.Ticker{ID: id, Symbol: id}
}

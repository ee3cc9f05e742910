package allocator

import (
	"context"

	"github.com/Checker-Finance/ticker-bots/internal/market"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// Validator confirms a ticker for an asset class. Implemented by market.Gateway.
type Validator interface {
	Validate(ctx context.Context, asset model.AssetType, symbol string) (market.Ticker, error)
}

// Identity brands bots on the messaging platform. Implemented by discord.Identity.
type Identity interface {
	Rename(ctx context.Context, token, name string) (string, error)
	SetAvatar(ctx context.Context, token, dataURI string) error
	FetchAvatar(ctx context.Context, imageURL string) (string, error)
}

// Launcher starts a bot instance on the runtime host. Implemented by launcher.Client.
type Launcher interface {
	Launch(ctx context.Context, ticker, name string, crypto bool, token string) error
}

// Notifier accepts pool events fire-and-forget. Implemented by notify.Bus.
type Notifier interface {
	Publish(ctx context.Context, event model.PoolEvent)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, model.PoolEvent) {}

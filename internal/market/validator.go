package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// ErrInvalidTicker means the provider could not confirm the symbol. Transport
// failures, bad statuses and malformed payloads all wrap it: for allocation
// purposes an unreachable provider is the same as an unknown ticker.
var ErrInvalidTicker = errors.New("invalid ticker")

// Ticker is a provider-confirmed symbol.
type Ticker struct {
	ID       string          // canonical id, used as the binding key
	Symbol   string          // display symbol
	Name     string          // provider display name, may be empty
	Price    decimal.Decimal // last known price, zero when the provider omits it
	Currency string
}

// Validator confirms a user-supplied symbol against one external catalog.
type Validator interface {
	Validate(ctx context.Context, symbol string) (Ticker, error)
}

// Gateway dispatches validation to the validator registered for an asset class.
type Gateway struct {
	validators map[model.AssetType]Validator
}

// NewGateway builds a gateway over the crypto and equity validators.
func NewGateway(crypto, stock Validator) *Gateway {
	return &Gateway{validators: map[model.AssetType]Validator{
		model.AssetCrypto: crypto,
		model.AssetStock:  stock,
	}}
}

// Validate confirms symbol for asset. Unknown asset classes are invalid.
func (g *Gateway) Validate(ctx context.Context, asset model.AssetType, symbol string) (Ticker, error) {
	v, ok := g.validators[asset]
	if !ok || v == nil {
		return Ticker{}, fmt.Errorf("%w: no validator for asset type %q", ErrInvalidTicker, asset)
	}
	return v.Validate(ctx, symbol)
}

func invalid(id string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, id)
	}
	return fmt.Errorf("%w: %q: %w", ErrInvalidTicker, id, cause)
}

package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/discord"
	"github.com/Checker-Finance/ticker-bots/internal/market"
	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/pkg/cache"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// User-facing error messages.
const (
	MsgNoBots        = "there are no more unclaimed bots, come back later and there might be more available"
	MsgBrandingFail  = "having trouble starting new bot"
	MsgInternalError = "internal error, please try again later"
)

const avatarCacheTTL = time.Hour

// Allocator binds pool entries to validated tickers.
type Allocator struct {
	logger    *zap.Logger
	validator Validator
	store     store.Store
	identity  Identity
	launcher  Launcher
	notifier  Notifier
	pool      model.PoolID
	avatars   map[model.AssetType]string
	dataURIs  *cache.TTL[string]
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPool selects the pool entries are claimed from. Defaults to model.DefaultPool.
func WithPool(pool model.PoolID) Option {
	return func(a *Allocator) { a.pool = pool }
}

// WithLauncher starts a bot instance between claim and rename.
func WithLauncher(l Launcher) Option {
	return func(a *Allocator) { a.launcher = l }
}

// WithDefaultAvatar sets the image applied to new bots of an asset class.
func WithDefaultAvatar(asset model.AssetType, imageURL string) Option {
	return func(a *Allocator) {
		if imageURL != "" {
			a.avatars[asset] = imageURL
		}
	}
}

// New creates an Allocator. A nil notifier discards events.
func New(logger *zap.Logger, validator Validator, st store.Store, identity Identity, notifier Notifier, opts ...Option) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	a := &Allocator{
		logger:    logger,
		validator: validator,
		store:     st,
		identity:  identity,
		notifier:  notifier,
		pool:      model.DefaultPool,
		avatars:   map[model.AssetType]string{},
		dataURIs:  cache.New[string](avatarCacheTTL),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the bot bound to rawTicker, claiming a new one from the
// pool when the ticker has no binding yet. It never returns a Go error: every
// outcome, including infrastructure failures, is encoded in the result.
func (a *Allocator) Allocate(ctx context.Context, asset model.AssetType, rawTicker string) (res model.AllocationResult) {
	// Events outlive the call; detach from caller-owned memory.
	raw := strings.Clone(strings.TrimSpace(rawTicker))
	lower := model.NormalizeTicker(raw)

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("allocator.panic", zap.Any("panic", r), zap.String("ticker", lower))
			res = a.finish(ctx, asset, lower, internalError(), fmt.Sprintf("allocation for %s panicked: %v", raw, r))
		}
	}()

	if !asset.IsValid() {
		return a.finish(ctx, asset, lower, invalidTicker(asset, raw), fmt.Sprintf("unsupported asset type %q", asset))
	}

	tk, err := a.validator.Validate(ctx, asset, lower)
	if err != nil {
		return a.fallback(ctx, asset, raw, lower, err)
	}
	id := model.NormalizeTicker(tk.ID)

	entry, err := a.store.FindBinding(ctx, a.pool, id)
	switch {
	case err == nil:
		return a.existing(ctx, asset, raw, entry)
	case !errors.Is(err, store.ErrNotFound):
		return a.infraFailure(ctx, asset, id, "find_binding", err)
	}

	entry, err = a.store.ClaimUnclaimed(ctx, a.pool, id, asset)
	switch {
	case errors.Is(err, store.ErrPoolExhausted):
		a.logger.Warn("allocator.pool_exhausted", zap.String("pool", string(a.pool)), zap.String("ticker", id))
		return a.finish(ctx, asset, id, model.AllocationResult{Error: MsgNoBots, Outcome: model.OutcomePoolExhausted},
			"no more new bots available")
	case errors.Is(err, store.ErrTickerBound):
		// A concurrent request bound this ticker first; serve its bot.
		entry, err = a.store.FindBinding(ctx, a.pool, id)
		if err != nil {
			return a.infraFailure(ctx, asset, id, "find_binding_after_race", err)
		}
		return a.existing(ctx, asset, raw, entry)
	case err != nil:
		return a.infraFailure(ctx, asset, id, "claim", err)
	}

	a.logger.Info("allocator.claimed",
		zap.String("pool", string(a.pool)),
		zap.String("ticker", id),
		zap.String("client_id", entry.ClientID))
	a.publish(ctx, asset, id, entry.ClientID, model.OutcomeClaimed, "attempting to create new bot: "+id)

	// The claim is committed. Branding failures below leave the entry bound.
	if err := a.brand(ctx, asset, tk, entry); err != nil {
		a.logger.Error("allocator.branding_failed",
			zap.String("ticker", id),
			zap.String("client_id", entry.ClientID),
			zap.Error(err))
		res := model.AllocationResult{Error: MsgBrandingFail, Outcome: model.OutcomeBrandingFailed}
		return a.finishEntry(ctx, asset, id, entry.ClientID, res,
			fmt.Sprintf("unable to start new bot for %s (%s): %v", id, entry.ClientID, err))
	}

	res = model.AllocationResult{ClientID: entry.ClientID, Outcome: model.OutcomeCreated}
	return a.finishEntry(ctx, asset, id, entry.ClientID, res,
		fmt.Sprintf("%s: `[%s](%s)`", asset, tk.Symbol, discord.InviteURL(entry.ClientID)))
}

// fallback serves a pre-existing binding under the raw ticker when validation fails.
func (a *Allocator) fallback(ctx context.Context, asset model.AssetType, raw, lower string, validateErr error) model.AllocationResult {
	a.logger.Info("allocator.validation_failed",
		zap.String("asset_type", asset.String()),
		zap.String("ticker", lower),
		zap.Error(validateErr))

	if lower != "" {
		entry, err := a.store.FindBinding(ctx, a.pool, lower)
		switch {
		case err == nil:
			return a.existing(ctx, asset, raw, entry)
		case !errors.Is(err, store.ErrNotFound):
			return a.infraFailure(ctx, asset, lower, "find_binding_fallback", err)
		}
	}

	res := invalidTicker(asset, raw)
	return a.finish(ctx, asset, lower, res, res.Error)
}

func (a *Allocator) existing(ctx context.Context, asset model.AssetType, raw string, entry *model.PoolEntry) model.AllocationResult {
	res := model.AllocationResult{ClientID: entry.ClientID, Existing: true, Outcome: model.OutcomeExisting}
	return a.finishEntry(ctx, asset, entry.Ticker, entry.ClientID, res, "existing bot requested: "+raw)
}

func (a *Allocator) infraFailure(ctx context.Context, asset model.AssetType, ticker, step string, err error) model.AllocationResult {
	a.logger.Error("allocator.store_failed",
		zap.String("step", step),
		zap.String("ticker", ticker),
		zap.Error(err))
	metrics.IncError("allocator", step)
	return a.finish(ctx, asset, ticker, internalError(), fmt.Sprintf("store failure during %s for %s: %v", step, ticker, err))
}

// brand launches (optional) and renames the claimed bot, then applies the
// default avatar best-effort.
func (a *Allocator) brand(ctx context.Context, asset model.AssetType, tk market.Ticker, entry *model.PoolEntry) error {
	if a.launcher != nil {
		if err := a.launcher.Launch(ctx, tk.Symbol, tk.ID, asset == model.AssetCrypto, entry.Token); err != nil {
			return err
		}
	}
	if _, err := a.identity.Rename(ctx, entry.Token, tk.Symbol); err != nil {
		return err
	}

	imageURL, ok := a.avatars[asset]
	if !ok {
		return nil
	}
	if err := a.applyAvatar(ctx, entry.Token, imageURL); err != nil {
		a.logger.Warn("allocator.avatar_failed",
			zap.String("client_id", entry.ClientID),
			zap.Error(err))
	}
	return nil
}

func (a *Allocator) applyAvatar(ctx context.Context, token, imageURL string) error {
	dataURI, ok := a.dataURIs.Get(imageURL)
	if !ok {
		var err error
		if dataURI, err = a.identity.FetchAvatar(ctx, imageURL); err != nil {
			return err
		}
		a.dataURIs.Put(imageURL, dataURI)
	}
	err := a.identity.SetAvatar(ctx, token, dataURI)
	if errors.Is(err, discord.ErrAvatarRejected) {
		a.dataURIs.Bust(imageURL)
	}
	return err
}

func (a *Allocator) finish(ctx context.Context, asset model.AssetType, ticker string, res model.AllocationResult, message string) model.AllocationResult {
	return a.finishEntry(ctx, asset, ticker, "", res, message)
}

// finishEntry records metrics and publishes the outcome event.
func (a *Allocator) finishEntry(ctx context.Context, asset model.AssetType, ticker, clientID string, res model.AllocationResult, message string) model.AllocationResult {
	metrics.IncAllocation(asset.String(), string(res.Outcome))
	a.publish(ctx, asset, ticker, clientID, res.Outcome, message)
	return res
}

func (a *Allocator) publish(ctx context.Context, asset model.AssetType, ticker, clientID string, outcome model.Outcome, message string) {
	evt := model.NewPoolEvent(model.EventAllocation, a.pool, outcome, message)
	evt.AssetType = asset
	evt.Ticker = ticker
	evt.ClientID = clientID
	a.notifier.Publish(ctx, evt)
}

func invalidTicker(asset model.AssetType, raw string) model.AllocationResult {
	noun := "coin"
	if asset == model.AssetStock {
		noun = "stock"
	}
	return model.AllocationResult{
		Error:   fmt.Sprintf("unable to validate %s id: %s", noun, raw),
		Outcome: model.OutcomeInvalidTicker,
	}
}

func internalError() model.AllocationResult {
	return model.AllocationResult{Error: MsgInternalError, Outcome: model.OutcomeInternalError}
}

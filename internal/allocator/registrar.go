package allocator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/store"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
	"github.com/Checker-Finance/ticker-bots/pkg/utils"
)

// UnclaimedName is the username given to bots waiting in the pool.
const UnclaimedName = "new ticker bot"

var (
	// ErrInvalidRequest is returned for registration requests with missing or inconsistent fields.
	ErrInvalidRequest = errors.New("invalid registration request")

	// ErrTokenRejected means the platform refused the credential, so it is not live.
	ErrTokenRejected = errors.New("bot token rejected")
)

// RegisterRequest adds one credential to a pool. With Ticker set the entry is
// inserted already bound (private pools); otherwise it is inserted unclaimed.
type RegisterRequest struct {
	Pool      model.PoolID    `json:"pool"`
	ClientID  string          `json:"client_id"`
	Token     string          `json:"token"`
	Ticker    string          `json:"ticker,omitempty"`
	AssetType model.AssetType `json:"asset_type,omitempty"`
}

// Validate normalizes r in place and checks it is complete.
func (r *RegisterRequest) Validate() error {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Token = strings.TrimSpace(r.Token)
	r.Ticker = model.NormalizeTicker(r.Ticker)
	if r.Pool == "" {
		r.Pool = model.DefaultPool
	}

	switch {
	case r.ClientID == "":
		return fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	case r.Token == "":
		return fmt.Errorf("%w: token is required", ErrInvalidRequest)
	case r.Ticker == "" && r.AssetType != "":
		return fmt.Errorf("%w: asset_type requires ticker", ErrInvalidRequest)
	case r.Ticker != "" && !r.AssetType.IsValid():
		return fmt.Errorf("%w: ticker requires asset_type crypto or stock", ErrInvalidRequest)
	}
	return nil
}

// Registrar is the admin path that grows pools and maintains bot avatars.
// It needs a store that returns tokens, so it must not be given a CachedStore.
type Registrar struct {
	logger   *zap.Logger
	store    store.Store
	identity Identity
	notifier Notifier
}

// NewRegistrar creates a Registrar. A nil notifier discards events.
func NewRegistrar(logger *zap.Logger, st store.Store, identity Identity, notifier Notifier) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Registrar{logger: logger, store: st, identity: identity, notifier: notifier}
}

// Register verifies the token is live by renaming the bot, then inserts it.
// A duplicate client id or token returns store.ErrDuplicate and changes nothing.
func (r *Registrar) Register(ctx context.Context, req RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	// The rename below is visible on a live bot, so known credentials stop here.
	known, err := r.store.HasCredential(ctx, req.ClientID, req.Token)
	if err != nil {
		r.logger.Error("registrar.lookup_failed", zap.String("client_id", req.ClientID), zap.Error(err))
		return err
	}
	if known {
		r.logger.Warn("registrar.duplicate", zap.String("client_id", req.ClientID))
		r.publish(ctx, req, model.OutcomeDeclined, "bot already registered: "+req.ClientID)
		return store.ErrDuplicate
	}

	name := UnclaimedName
	if req.Ticker != "" {
		name = req.Ticker
	}
	if _, err := r.identity.Rename(ctx, req.Token, name); err != nil {
		r.logger.Warn("registrar.token_rejected",
			zap.String("client_id", req.ClientID),
			zap.String("token", utils.MaskToken(req.Token)),
			zap.Error(err))
		r.publish(ctx, req, model.OutcomeDeclined, "unable to change the name for "+req.ClientID)
		return fmt.Errorf("%w: %w", ErrTokenRejected, err)
	}

	if req.Ticker == "" {
		err = r.store.InsertUnclaimed(ctx, req.Pool, req.ClientID, req.Token)
	} else {
		err = r.store.InsertBound(ctx, model.PoolEntry{
			Pool:      req.Pool,
			ClientID:  req.ClientID,
			Token:     req.Token,
			Ticker:    req.Ticker,
			AssetType: req.AssetType,
		})
	}
	if err != nil {
		r.logger.Error("registrar.insert_failed",
			zap.String("pool", string(req.Pool)),
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		r.publish(ctx, req, model.OutcomeDeclined, "unable to add new bot to db: "+req.ClientID)
		return err
	}

	r.logger.Info("registrar.registered",
		zap.String("pool", string(req.Pool)),
		zap.String("client_id", req.ClientID),
		zap.String("ticker", req.Ticker))
	r.publish(ctx, req, model.OutcomeRegistered, fmt.Sprintf("registered bot %s in pool %s", req.ClientID, req.Pool))
	return nil
}

// ChangeAvatar downloads imageURL and sets it as the avatar of the bot bound to ticker.
func (r *Registrar) ChangeAvatar(ctx context.Context, pool model.PoolID, ticker, imageURL string) error {
	if pool == "" {
		pool = model.DefaultPool
	}
	ticker = model.NormalizeTicker(ticker)
	if ticker == "" || strings.TrimSpace(imageURL) == "" {
		return fmt.Errorf("%w: ticker and url are required", ErrInvalidRequest)
	}

	entry, err := r.store.FindBinding(ctx, pool, ticker)
	if err != nil {
		return err
	}

	err = func() error {
		dataURI, err := r.identity.FetchAvatar(ctx, imageURL)
		if err != nil {
			return err
		}
		return r.identity.SetAvatar(ctx, entry.Token, dataURI)
	}()

	evt := model.NewPoolEvent(model.EventAvatar, pool, model.OutcomeAvatarChanged, "changed avatar for "+ticker)
	evt.Ticker = ticker
	evt.ClientID = entry.ClientID
	evt.AssetType = entry.AssetType
	if err != nil {
		r.logger.Warn("registrar.avatar_failed", zap.String("ticker", ticker), zap.Error(err))
		evt.Outcome = model.OutcomeAvatarFailed
		evt.Message = fmt.Sprintf("unable to change avatar for %s: %v", ticker, err)
	}
	r.notifier.Publish(ctx, evt)
	return err
}

func (r *Registrar) publish(ctx context.Context, req RegisterRequest, outcome model.Outcome, message string) {
	evt := model.NewPoolEvent(model.EventRegistration, req.Pool, outcome, message)
	evt.ClientID = req.ClientID
	evt.Ticker = req.Ticker
	evt.AssetType = req.AssetType
	r.notifier.Publish(ctx, evt)
}

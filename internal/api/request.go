package api

import (
	"errors"
	"strings"

	"github.com/Checker-Finance/ticker-bots/internal/allocator"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

// AllocateRequest is the body of POST /api/v1/{crypto|stock}.
type AllocateRequest struct {
	Ticker string `json:"ticker" example:"bitcoin"`
}

func (r *AllocateRequest) Validate() error {
	r.Ticker = strings.TrimSpace(r.Ticker)
	if r.Ticker == "" {
		return errors.New("ticker is required")
	}
	if len(r.Ticker) > 64 {
		return errors.New("ticker is too long")
	}
	return nil
}

// SearchResponse lists catalog ids matching a search key.
type SearchResponse struct {
	IDs []string `json:"ids"`
}

// RegisterBotRequest adds a bot credential to a pool. Ticker and asset_type
// are set only for pre-bound bots.
type RegisterBotRequest struct {
	Pool      string `json:"pool,omitempty" example:"public"`
	ClientID  string `json:"client_id" example:"1029384756"`
	Token     string `json:"token"`
	Ticker    string `json:"ticker,omitempty"`
	AssetType string `json:"asset_type,omitempty" example:"crypto"`
}

func (r RegisterBotRequest) toRegisterRequest() allocator.RegisterRequest {
	return allocator.RegisterRequest{
		Pool:      model.PoolID(strings.TrimSpace(r.Pool)),
		ClientID:  r.ClientID,
		Token:     r.Token,
		Ticker:    r.Ticker,
		AssetType: model.AssetType(strings.ToLower(strings.TrimSpace(r.AssetType))),
	}
}

// AvatarRequest changes the avatar of the bot bound to a ticker.
type AvatarRequest struct {
	Pool   string `json:"pool,omitempty"`
	Ticker string `json:"ticker" example:"btc"`
	URL    string `json:"url" example:"https://example.com/btc.png"`
}

func (r *AvatarRequest) Validate() error {
	r.Ticker = strings.TrimSpace(r.Ticker)
	r.URL = strings.TrimSpace(r.URL)
	switch {
	case r.Ticker == "":
		return errors.New("ticker is required")
	case !strings.HasPrefix(r.URL, "http://") && !strings.HasPrefix(r.URL, "https://"):
		return errors.New("url must be an http(s) URL")
	}
	return nil
}

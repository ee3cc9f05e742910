package model

import (
	"strings"
	"time"
)

// AssetType is the asset class a bot tracks.
type AssetType string

const (
	AssetCrypto AssetType = "crypto"
	AssetStock  AssetType = "stock"
)

// IsValid reports whether a is a known asset class.
func (a AssetType) IsValid() bool {
	return a == AssetCrypto || a == AssetStock
}

func (a AssetType) String() string {
	return string(a)
}

// ParseAssetType normalizes s into an AssetType. The bool is false for unknown values.
func ParseAssetType(s string) (AssetType, bool) {
	a := AssetType(strings.ToLower(strings.TrimSpace(s)))
	return a, a.IsValid()
}

// PoolID names a pool of bot credentials. The shared pool is DefaultPool;
// private pools hold manually provisioned, pre-bound bots.
type PoolID string

const DefaultPool PoolID = "public"

// PoolEntry is one registered bot credential and its (optional) ticker binding.
// Ticker and AssetType are empty while the entry is unclaimed and are set
// together, exactly once, by a claim.
type PoolEntry struct {
	Pool         PoolID     `json:"pool"`
	ClientID     string     `json:"client_id"`
	Token        string     `json:"-"`
	Ticker       string     `json:"ticker,omitempty"`
	AssetType    AssetType  `json:"asset_type,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
}

// Claimed reports whether the entry is bound to a ticker.
func (e PoolEntry) Claimed() bool {
	return e.Ticker != ""
}

// NormalizeTicker is the canonical form used for every store lookup and claim.
func NormalizeTicker(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/httpclient"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
	"github.com/Checker-Finance/ticker-bots/pkg/cache"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	coinListKey         = "coins/list"
)

// CoinGeckoConfig configures the crypto catalog client.
type CoinGeckoConfig struct {
	BaseURL string
	APIKey  string // optional demo/pro key
	Timeout time.Duration
	ListTTL time.Duration // how long the coins/list catalog is reused for search
}

// CoinGecko validates crypto ids against the CoinGecko catalog.
type CoinGecko struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
	apiKey  string
	list    *cache.TTL[[]coinListItem]
}

type coinResponse struct {
	ID         string `json:"id"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	MarketData struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

type coinListItem struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// NewCoinGecko constructs the crypto validator.
func NewCoinGecko(logger *zap.Logger, rateMgr *rate.Manager, cfg CoinGeckoConfig) *CoinGecko {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCoinGeckoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = time.Hour
	}
	return &CoinGecko{
		logger:  logger,
		exec:    httpclient.New(logger, rateMgr, &http.Client{Timeout: cfg.Timeout}, "coingecko", nil),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		list:    cache.New[[]coinListItem](cfg.ListTTL),
	}
}

// Validate requires an exact catalog entry for id and returns its canonical id and symbol.
func (c *CoinGecko) Validate(ctx context.Context, id string) (Ticker, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return Ticker{}, invalid(id, fmt.Errorf("empty id"))
	}

	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("community_data", "false")
	q.Set("developer_data", "false")

	var resp coinResponse
	if err := c.getJSON(ctx, "/coins/"+url.PathEscape(id)+"?"+q.Encode(), &resp); err != nil {
		c.logger.Info("coingecko.validate_failed", zap.String("id", id), zap.Error(err))
		return Ticker{}, invalid(id, err)
	}
	if resp.ID == "" || resp.Symbol == "" {
		return Ticker{}, invalid(id, fmt.Errorf("catalog entry missing id or symbol"))
	}

	return Ticker{
		ID:       strings.ToLower(resp.ID),
		Symbol:   strings.ToLower(resp.Symbol),
		Name:     resp.Name,
		Price:    resp.MarketData.CurrentPrice["usd"],
		Currency: "USD",
	}, nil
}

// Search returns the ids of catalog entries whose id, symbol or name contains key.
// The catalog is fetched once per ListTTL.
func (c *CoinGecko) Search(ctx context.Context, key string) ([]string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return nil, nil
	}

	coins, ok := c.list.Get(coinListKey)
	if !ok {
		if err := c.getJSON(ctx, "/coins/list", &coins); err != nil {
			c.logger.Error("coingecko.list_failed", zap.Error(err))
			return nil, fmt.Errorf("fetch coin list: %w", err)
		}
		c.list.Put(coinListKey, coins)
	}

	ids := []string{}
	for _, coin := range coins {
		if strings.Contains(coin.ID, key) ||
			strings.Contains(strings.ToLower(coin.Symbol), key) ||
			strings.Contains(strings.ToLower(coin.Name), key) {
			ids = append(ids, coin.ID)
		}
	}
	return ids, nil
}

func (c *CoinGecko) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	setBrowserHeaders(req)
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}
	return c.exec.DoJSON(ctx, req, out)
}

// setBrowserHeaders sets the headers both public market-data APIs expect.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")
}

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/httpclient"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
)

const DefaultYahooURL = "https://query1.finance.yahoo.com/v10/finance"

// YahooConfig configures the equity quote client.
type YahooConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Yahoo validates stock tickers through the quoteSummary price module.
type Yahoo struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price *yahooPrice `json:"price"`
		} `json:"result"`
		Error json.RawMessage `json:"error"`
	} `json:"quoteSummary"`
}

type yahooPrice struct {
	Symbol             string  `json:"symbol"`
	ShortName          string  `json:"shortName"`
	Currency           string  `json:"currency"`
	CurrencySymbol     *string `json:"currencySymbol"`
	RegularMarketPrice struct {
		Raw decimal.Decimal `json:"raw"`
	} `json:"regularMarketPrice"`
}

// NewYahoo constructs the equity validator.
func NewYahoo(logger *zap.Logger, rateMgr *rate.Manager, cfg YahooConfig) *Yahoo {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Yahoo{
		logger:  logger,
		exec:    httpclient.New(logger, rateMgr, &http.Client{Timeout: cfg.Timeout}, "yahoo", nil),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Validate confirms a stock ticker. The provider's own symbol, lower-cased, is
// both the canonical id and the display symbol.
func (y *Yahoo) Validate(ctx context.Context, id string) (Ticker, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return Ticker{}, invalid(id, fmt.Errorf("empty id"))
	}

	endpoint := fmt.Sprintf("%s/quoteSummary/%s?modules=price", y.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Ticker{}, invalid(id, err)
	}
	setBrowserHeaders(req)

	var resp quoteSummaryResponse
	if err := y.exec.DoJSON(ctx, req, &resp); err != nil {
		y.logger.Info("yahoo.validate_failed", zap.String("id", id), zap.Error(err))
		return Ticker{}, invalid(id, err)
	}

	if hasError(resp.QuoteSummary.Error) {
		y.logger.Info("yahoo.not_a_valid_ticker", zap.String("id", id), zap.ByteString("error", resp.QuoteSummary.Error))
		return Ticker{}, invalid(id, fmt.Errorf("provider reported an error"))
	}
	if len(resp.QuoteSummary.Result) == 0 || resp.QuoteSummary.Result[0].Price == nil {
		return Ticker{}, invalid(id, fmt.Errorf("empty quote result"))
	}

	price := resp.QuoteSummary.Result[0].Price
	// A quote without a currency symbol is Yahoo's placeholder for an unknown ticker.
	if price.CurrencySymbol == nil {
		y.logger.Info("yahoo.not_a_valid_ticker", zap.String("id", id))
		return Ticker{}, invalid(id, fmt.Errorf("quote has no currency"))
	}
	if price.Symbol == "" {
		return Ticker{}, invalid(id, fmt.Errorf("quote has no symbol"))
	}

	symbol := strings.ToLower(price.Symbol)
	return Ticker{
		ID:       symbol,
		Symbol:   symbol,
		Name:     price.ShortName,
		Price:    price.RegularMarketPrice.Raw,
		Currency: price.Currency,
	}, nil
}

func hasError(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

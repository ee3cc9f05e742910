package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/httpclient"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
	"github.com/Checker-Finance/ticker-bots/pkg/utils"
)

// DefaultFrequency is the price refresh interval, in seconds, requested for new bots.
const DefaultFrequency = 90

// Config configures the bot runtime host client.
type Config struct {
	URL       string
	User      string
	Password  string
	Frequency int
	Timeout   time.Duration
}

// Request is the body of POST /ticker.
type Request struct {
	Ticker    string `json:"ticker"`
	Name      string `json:"name"`
	Crypto    bool   `json:"crypto"`
	Frequency int    `json:"frequency"`
	Token     string `json:"discord_bot_token"`
}

// Client starts bot instances on the runtime host.
type Client struct {
	logger    *zap.Logger
	exec      *httpclient.Executor
	cfg       Config
	frequency int
}

// New returns a launcher client, or nil when no URL is configured.
func New(logger *zap.Logger, rateMgr *rate.Manager, cfg Config) *Client {
	if cfg.URL == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	freq := cfg.Frequency
	if freq <= 0 {
		freq = DefaultFrequency
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	exec := httpclient.New(logger, rateMgr, &http.Client{Timeout: cfg.Timeout}, "launcher", func(status int, body []byte) error {
		return fmt.Errorf("launcher returned %d: %s", status, strings.TrimSpace(string(body)))
	})
	return &Client{logger: logger, exec: exec, cfg: cfg, frequency: freq}
}

// Launch asks the runtime host to start a bot for ticker using token.
func (c *Client) Launch(ctx context.Context, ticker, name string, crypto bool, token string) error {
	body, err := json.Marshal(Request{
		Ticker:    ticker,
		Name:      name,
		Crypto:    crypto,
		Frequency: c.frequency,
		Token:     token,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/ticker", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.exec.Do(ctx, req); err != nil {
		c.logger.Error("launcher.launch_failed",
			zap.String("ticker", ticker),
			zap.String("token", utils.MaskToken(token)),
			zap.Error(err))
		return fmt.Errorf("launch bot %s: %w", ticker, err)
	}

	c.logger.Info("launcher.launched", zap.String("ticker", ticker), zap.Bool("crypto", crypto))
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/httpclient"
	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/pkg/model"
)

const (
	sinkName   = "webhook"
	embedTitle = "API Log"
	embedColor = 0xffb300
)

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Webhook posts each pool event's message to the admin Discord channel as an embed.
type Webhook struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	url    string
}

// NewWebhook returns a webhook sink. An empty url yields a sink that only logs.
func NewWebhook(logger *zap.Logger, url string, timeout time.Duration) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		logger: logger,
		exec:   httpclient.New(logger, nil, &http.Client{Timeout: timeout}, "admin_webhook", nil),
		url:    url,
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// Handle delivers evt. It is an eventbus handler.
func (w *Webhook) Handle(ctx context.Context, evt model.PoolEvent) error {
	w.logger.Info("notify.event",
		zap.String("kind", string(evt.Kind)),
		zap.String("outcome", string(evt.Outcome)),
		zap.String("message", evt.Message))
	if !w.Enabled() {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embed{{
		Title:       embedTitle,
		Description: evt.Message,
		Color:       embedColor,
		Timestamp:   evt.Timestamp.Format(time.RFC3339),
	}}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		metrics.IncEventDelivery(sinkName, "error")
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	_, err = w.exec.Do(ctx, req)
	metrics.ObserveDuration(metrics.EventPublishLatency, start, sinkName)
	if err != nil {
		metrics.IncEventDelivery(sinkName, "error")
		return fmt.Errorf("deliver webhook: %w", err)
	}
	metrics.IncEventDelivery(sinkName, "ok")
	return nil
}

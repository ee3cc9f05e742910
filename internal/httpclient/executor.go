package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/ticker-bots/internal/metrics"
	"github.com/Checker-Finance/ticker-bots/internal/rate"
)

// maxBodyBytes caps how much of a provider response is read into memory.
const maxBodyBytes = 8 << 20

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Provider, e.Status)
}

// Executor performs a single rate-limited, time-bounded HTTP exchange per call.
// It never retries; callers decide what a failure means.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	provider     string
	errorHandler func(status int, body []byte) error
}

// New creates an Executor for provider. errorHandler, if set, turns a non-2xx
// response into a provider-specific error; otherwise a *StatusError is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	provider string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		provider:     provider,
		errorHandler: errorHandler,
	}
}

// Provider returns the provider tag used for logs, metrics and rate limiting.
func (e *Executor) Provider() string {
	return e.provider
}

// DoJSON executes req and JSON-decodes a successful response into out.
// An empty body leaves out untouched.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, out any) error {
	body, err := e.Do(ctx, req)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(e.provider+".decode_failed",
				zap.Error(err),
				zap.String("url", redactedURL(req)))
			metrics.IncError(e.provider, "decode_failed")
			return fmt.Errorf("%s decode failed: %w", e.provider, err)
		}
	}
	return nil
}

// Do executes req and returns the raw body of a successful response.
func (e *Executor) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.provider); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.http.Do(req.WithContext(ctx))
	metrics.ObserveDuration(metrics.ExternalRequestDuration, start, e.provider)
	if err != nil {
		e.logger.Warn(e.provider+".http_failed",
			zap.String("url", redactedURL(req)),
			zap.Error(err))
		metrics.IncExternalRequest(e.provider, "transport_error")
		return nil, fmt.Errorf("%s request failed: %w", e.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.IncExternalRequest(e.provider, "read_error")
		return nil, fmt.Errorf("%s read body: %w", e.provider, err)
	}
	elapsed := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Warn(e.provider+".bad_status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", redactedURL(req)),
			zap.Duration("latency", elapsed))
		metrics.IncExternalRequest(e.provider, fmt.Sprintf("%dxx", resp.StatusCode/100))
		if e.errorHandler != nil {
			return nil, e.errorHandler(resp.StatusCode, body)
		}
		return nil, &StatusError{Provider: e.provider, Status: resp.StatusCode, Body: body}
	}

	e.logger.Debug(e.provider+".http_success",
		zap.String("url", redactedURL(req)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	metrics.IncExternalRequest(e.provider, "2xx")

	return body, nil
}

// redactedURL drops the query string, which may carry API keys.
func redactedURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
